package archive

import (
	"bufio"
	"fmt"
	"io"
	"io/ioutil"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/itchio/wharf/counter"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

const (
	warcVersion    = "WARC/1.0"
	warcRecordTail = "\r\n\r\n"
)

// warcReader splits a web archive into records. Record blocks
// are handed out as slices of the continuous stream, they're never
// buffered whole.
type warcReader struct {
	flavor Flavor
	gz     *gzip.Reader
	br     *bufio.Reader
	body   *io.LimitedReader
	index  int
}

var _ Reader = (*warcReader)(nil)

func newWarcReader(flavor Flavor, r io.Reader) (*warcReader, error) {
	res := &warcReader{flavor: flavor}
	if flavor == FlavorWarcGz {
		// one gzip member per record, read as a single stream
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "opening gzip stream")
		}
		gz.Multistream(true)
		res.gz = gz
		r = gz
	}
	res.br = bufio.NewReader(r)
	return res, nil
}

func (r *warcReader) Next() (*Entry, io.Reader, error) {
	if r.body != nil {
		_, err := io.Copy(ioutil.Discard, r.body)
		r.body = nil
		if err != nil {
			return nil, nil, errors.Wrap(err, "skipping rest of warc record")
		}
	}

	var version string
	for {
		line, err := r.br.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if err != nil {
			if err == io.EOF && strings.TrimSpace(trimmed) == "" {
				return nil, nil, io.EOF
			}
			if err != io.EOF {
				return nil, nil, errors.Wrap(err, "reading warc version line")
			}
		}
		if trimmed == "" {
			// record separator
			continue
		}
		version = trimmed
		break
	}

	if !strings.HasPrefix(version, "WARC/") {
		return nil, nil, errors.Errorf("malformed warc record %d: expected version line, got (%s)", r.index, version)
	}

	header, err := r.readHeader()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading warc record %d", r.index)
	}

	lengthField := header.Get("Content-Length")
	size, err := strconv.ParseInt(strings.TrimSpace(lengthField), 10, 64)
	if err != nil || size < 0 {
		return nil, nil, errors.Errorf("warc record %d has invalid Content-Length (%s)", r.index, lengthField)
	}

	entry := &Entry{
		Name:    header.Get("WARC-Target-URI"),
		ID:      strings.Trim(strings.TrimSpace(header.Get("WARC-Record-ID")), "<>"),
		Size:    size,
		Type:    header.Get("WARC-Type"),
		Version: version,
		Header:  header,
	}
	if entry.ID == "" {
		entry.ID = fmt.Sprintf("record-%d", r.index)
	}
	if entry.Name == "" {
		entry.Name = entry.ID
	}
	if date, err := time.Parse(time.RFC3339, header.Get("WARC-Date")); err == nil {
		entry.ModTime = date
	}

	r.index++
	r.body = &io.LimitedReader{R: r.br, N: size}
	return entry, r.body, nil
}

func (r *warcReader) readHeader() (Header, error) {
	var header Header
	for {
		line, err := r.br.ReadString('\n')
		if err != nil {
			return nil, errors.Wrap(err, "reading warc header")
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return header, nil
		}

		if (line[0] == ' ' || line[0] == '\t') && len(header) > 0 {
			last := &header[len(header)-1]
			last.Value += " " + strings.TrimSpace(line)
			continue
		}

		colon := strings.Index(line, ":")
		if colon <= 0 {
			return nil, errors.Errorf("malformed warc header line (%s)", line)
		}
		header = append(header, HeaderField{
			Name:  strings.TrimSpace(line[:colon]),
			Value: strings.TrimSpace(line[colon+1:]),
		})
	}
}

func (r *warcReader) Flavor() Flavor {
	return r.flavor
}

func (r *warcReader) Close() error {
	if r.gz != nil {
		return r.gz.Close()
	}
	return nil
}

type countingWriter interface {
	io.Writer
	Count() int64
}

type warcWriter struct {
	flavor Flavor
	w      io.Writer
	gz     *gzip.Writer

	current  *Entry
	out      io.Writer
	block    countingWriter
	expected int64
}

var _ Writer = (*warcWriter)(nil)

func newWarcWriter(flavor Flavor, w io.Writer) *warcWriter {
	return &warcWriter{flavor: flavor, w: w}
}

// staleOnReplace lists header fields that describe the original block
// and can't be carried over to a replacement.
var staleOnReplace = map[string]bool{
	"warc-block-digest":   true,
	"warc-payload-digest": true,
}

func (w *warcWriter) Begin(entry *Entry) (io.Writer, error) {
	if entry.Size < 0 {
		return nil, errors.Wrapf(ErrUnknownSize, "writing warc record (%s)", entry.Name)
	}

	w.out = w.w
	if w.flavor == FlavorWarcGz {
		w.gz = gzip.NewWriter(w.w)
		w.out = w.gz
	}

	version := entry.Version
	if version == "" {
		version = warcVersion
	}

	var header Header
	for _, f := range entry.Header {
		if entry.Replaced && staleOnReplace[strings.ToLower(f.Name)] {
			continue
		}
		header = append(header, f)
	}
	if len(header) == 0 {
		header = synthesizeHeader(entry)
	}
	header = header.Set("Content-Length", strconv.FormatInt(entry.Size, 10))

	bw := bufio.NewWriter(w.out)
	fmt.Fprintf(bw, "%s\r\n", version)
	for _, f := range header {
		fmt.Fprintf(bw, "%s: %s\r\n", f.Name, f.Value)
	}
	bw.WriteString("\r\n")
	err := bw.Flush()
	if err != nil {
		return nil, errors.Wrapf(err, "writing warc header (%s)", entry.Name)
	}

	w.current = entry
	w.expected = entry.Size
	w.block = counter.NewWriter(w.out)
	return w.block, nil
}

func synthesizeHeader(entry *Entry) Header {
	date := entry.ModTime
	if date.IsZero() {
		date = time.Now()
	}
	return Header{
		{Name: "WARC-Type", Value: "resource"},
		{Name: "WARC-Record-ID", Value: fmt.Sprintf("<urn:uuid:%s>", uuid.New().String())},
		{Name: "WARC-Date", Value: date.UTC().Format(time.RFC3339)},
		{Name: "WARC-Target-URI", Value: entry.Name},
		{Name: "Content-Type", Value: "application/octet-stream"},
	}
}

func (w *warcWriter) End() error {
	if w.current == nil {
		return nil
	}
	name := w.current.Name
	w.current = nil

	if w.block.Count() != w.expected {
		return errors.Errorf("warc record (%s) declared %d bytes but %d were written", name, w.expected, w.block.Count())
	}

	_, err := io.WriteString(w.out, warcRecordTail)
	if err != nil {
		return errors.Wrapf(err, "finishing warc record (%s)", name)
	}

	if w.gz != nil {
		err = w.gz.Close()
		w.gz = nil
		if err != nil {
			return errors.Wrapf(err, "closing gzip member (%s)", name)
		}
	}
	return nil
}

func (w *warcWriter) Flavor() Flavor {
	return w.flavor
}

func (w *warcWriter) Close() error {
	return w.End()
}
