// Package digest computes content digests of container entries while
// they stream through the engine.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/itchio/wharf/counter"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

const (
	MD5    = "md5"
	SHA1   = "sha1"
	SHA256 = "sha256"
	SHA512 = "sha512"
	BLAKE3 = "blake3"

	// SizeKey is the fact key holding the entry size
	SizeKey = "size"
)

// DefaultAlgorithms are computed when nothing else is configured
var DefaultAlgorithms = []string{MD5, SHA1, SHA256}

var ErrUnknownAlgorithm = errors.New("unknown digest algorithm")

// Known lists every supported algorithm name, sorted
func Known() []string {
	res := []string{MD5, SHA1, SHA256, SHA512, BLAKE3}
	sort.Strings(res)
	return res
}

// New returns a fresh hash for the given algorithm name
func New(alg string) (hash.Hash, error) {
	switch strings.ToLower(alg) {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	}
	return nil, errors.Wrapf(ErrUnknownAlgorithm, "(%s)", alg)
}

type countingReader interface {
	io.Reader
	Count() int64
}

// Reader hashes everything read through it
type Reader struct {
	algs   []string
	hashes []hash.Hash
	cr     countingReader
}

// NewReader wraps r so that all bytes read are fed to the given
// algorithms. Reading it to EOF is up to the caller.
func NewReader(r io.Reader, algs []string) (*Reader, error) {
	if len(algs) == 0 {
		algs = DefaultAlgorithms
	}

	res := &Reader{}
	var writers []io.Writer
	for _, alg := range algs {
		h, err := New(alg)
		if err != nil {
			return nil, err
		}
		res.algs = append(res.algs, strings.ToLower(alg))
		res.hashes = append(res.hashes, h)
		writers = append(writers, h)
	}

	res.cr = counter.NewReader(io.TeeReader(r, io.MultiWriter(writers...)))
	return res, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	return r.cr.Read(p)
}

// Count returns the number of bytes read so far
func (r *Reader) Count() int64 {
	return r.cr.Count()
}

// Drain reads whatever is left
func (r *Reader) Drain() error {
	_, err := io.Copy(io.Discard, r)
	return err
}

// Sum returns hex digests keyed by algorithm name, plus the size
// under SizeKey.
func (r *Reader) Sum() map[string]string {
	res := make(map[string]string, len(r.hashes)+1)
	for i, h := range r.hashes {
		res[r.algs[i]] = hex.EncodeToString(h.Sum(nil))
	}
	res[SizeKey] = strconv.FormatInt(r.Count(), 10)
	return res
}
