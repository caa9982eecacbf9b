package archive

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrUnrecognizedArchiveType = errors.New("Unrecognized archive type")
	ErrUnsupportedFlavor       = errors.New("unsupported container flavor")
	ErrFlavorMismatch          = errors.New("output container flavor must match input flavor")
	ErrNeedsRandomAccess       = errors.New("container flavor needs random access input")
	ErrUnknownSize             = errors.New("entry size must be known before writing")
)

// Entry types, as exposed to selectors. Record-stream flavors
// use their own record type instead (e.g. a WARC-Type).
const (
	TypeFile    = "file"
	TypeDir     = "dir"
	TypeSymlink = "symlink"
	TypeOther   = "other"
)

// Entry refers to a logical file or record in a container.
// It is only valid until the next call to Reader.Next.
type Entry struct {
	// Name uses `/` separators, without a trailing slash for directories
	Name  string
	IsDir bool
	// Size is the number of content bytes, or -1 if unknown
	Size    int64
	Type    string
	Mode    os.FileMode
	ModTime time.Time

	// Linkname is set for symlinks and hard links
	Linkname string

	// ID identifies a record in a record stream, where several records
	// share the same name (request, response, revisits of one URI).
	// Empty for file containers.
	ID string

	// Version is only set for record streams
	Version string
	Header  Header

	// Replaced is set on entries whose content was rewritten,
	// so writers can drop header fields describing the old content.
	Replaced bool
}

// MatchPath is the name selectors are matched against:
// directories get a trailing separator.
func (e *Entry) MatchPath() string {
	if e.IsDir {
		return e.Name + "/"
	}
	return e.Name
}

// Key identifies the entry within its container: the record ID for
// record streams, the normalized name otherwise.
func (e *Entry) Key() string {
	if e.ID != "" {
		return e.ID
	}
	return NormalizeName(e.Name)
}

// WithSize returns a copy of the entry with a different content size,
// marked as replaced.
func (e *Entry) WithSize(size int64) *Entry {
	c := *e
	c.Size = size
	c.Replaced = true
	c.Header = append(Header{}, e.Header...)
	return &c
}

// HeaderField is a single named value in a record header
type HeaderField struct {
	Name  string
	Value string
}

// Header is an ordered list of record header fields
type Header []HeaderField

// Get returns the first value for name (case-insensitive)
func (h Header) Get(name string) string {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Set replaces the first field named name, or appends it
func (h Header) Set(name, value string) Header {
	for i, f := range h {
		if strings.EqualFold(f.Name, name) {
			h[i].Value = value
			return h
		}
	}
	return append(h, HeaderField{Name: name, Value: value})
}

// A Reader iterates over the entries of a container, in stream order.
type Reader interface {
	// Next returns the next entry and a reader for its content.
	// The content reader is invalidated by the next call to Next.
	// It returns io.EOF when there are no more entries.
	Next() (*Entry, io.Reader, error)
	Flavor() Flavor
	Close() error
}

// A Writer composes an output container of the same flavor
// as the one being read.
type Writer interface {
	// Begin starts a new entry. Formats with length-prefixed
	// entries need entry.Size to be known.
	Begin(entry *Entry) (io.Writer, error)
	// End finalizes the current entry.
	End() error
	Flavor() Flavor
	// Close finalizes the container. It does not close the
	// underlying io.Writer.
	Close() error
}

// OpenReader returns a Reader for the given flavor. Zip-based flavors
// need r to also implement io.ReaderAt, see RandomAccess.
func OpenReader(flavor Flavor, r io.Reader) (Reader, error) {
	switch flavor {
	case FlavorZip, FlavorJar:
		ra, size, ok := RandomAccess(r)
		if !ok {
			return nil, errors.WithStack(ErrNeedsRandomAccess)
		}
		return newZipReader(flavor, ra, size)
	case FlavorTar, FlavorTarGz:
		return newTarReader(flavor, r)
	case FlavorWarc, FlavorWarcGz:
		return newWarcReader(flavor, r)
	}
	return nil, errors.Wrapf(ErrUnsupportedFlavor, "reading %s", flavor)
}

// NewWriter returns a Writer producing a container of the given flavor.
func NewWriter(flavor Flavor, w io.Writer) (Writer, error) {
	switch flavor {
	case FlavorZip, FlavorJar:
		return newZipWriter(flavor, w), nil
	case FlavorTar, FlavorTarGz:
		return newTarWriter(flavor, w), nil
	case FlavorWarc, FlavorWarcGz:
		return newWarcWriter(flavor, w), nil
	}
	return nil, errors.Wrapf(ErrUnsupportedFlavor, "writing %s", flavor)
}

type sizer interface {
	Stat() (os.FileInfo, error)
}

// RandomAccess returns r as an io.ReaderAt along with its total size,
// if r supports it.
func RandomAccess(r io.Reader) (io.ReaderAt, int64, bool) {
	ra, ok := r.(io.ReaderAt)
	if !ok {
		return nil, 0, false
	}

	if s, ok := r.(sizer); ok {
		stats, err := s.Stat()
		if err == nil {
			return ra, stats.Size(), true
		}
	}

	if s, ok := r.(io.Seeker); ok {
		pos, err := s.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, 0, false
		}
		size, err := s.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, false
		}
		_, err = s.Seek(pos, io.SeekStart)
		if err != nil {
			return nil, 0, false
		}
		return ra, size, true
	}

	return nil, 0, false
}
