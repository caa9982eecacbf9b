package archive

import (
	"io"
	"strings"

	"github.com/itchio/arkive/zip"
	"github.com/pkg/errors"
)

type zipReader struct {
	flavor Flavor
	zr     *zip.Reader
	index  int
	rc     io.ReadCloser
}

var _ Reader = (*zipReader)(nil)

func newZipReader(flavor Flavor, ra io.ReaderAt, size int64) (*zipReader, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, errors.Wrap(err, "opening zip container")
	}
	return &zipReader{flavor: flavor, zr: zr}, nil
}

func (r *zipReader) Next() (*Entry, io.Reader, error) {
	err := r.closeCurrent()
	if err != nil {
		return nil, nil, err
	}

	if r.index >= len(r.zr.File) {
		return nil, nil, io.EOF
	}
	f := r.zr.File[r.index]
	r.index++

	isDir := strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir()
	entry := &Entry{
		Name:    EntryName(f.Name),
		IsDir:   isDir,
		Size:    int64(f.UncompressedSize64),
		Type:    TypeFile,
		Mode:    f.Mode(),
		ModTime: f.ModTime(),
	}
	if isDir {
		entry.Type = TypeDir
		entry.Size = 0
		return entry, eofReader{}, nil
	}

	rc, err := f.Open()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening zip entry (%s)", f.Name)
	}
	r.rc = rc
	return entry, rc, nil
}

func (r *zipReader) closeCurrent() error {
	if r.rc == nil {
		return nil
	}
	err := r.rc.Close()
	r.rc = nil
	if err != nil {
		return errors.Wrap(err, "closing zip entry")
	}
	return nil
}

func (r *zipReader) Flavor() Flavor {
	return r.flavor
}

func (r *zipReader) Close() error {
	return r.closeCurrent()
}

type zipWriter struct {
	flavor Flavor
	zw     *zip.Writer
}

var _ Writer = (*zipWriter)(nil)

func newZipWriter(flavor Flavor, w io.Writer) *zipWriter {
	return &zipWriter{flavor: flavor, zw: zip.NewWriter(w)}
}

func (w *zipWriter) Begin(entry *Entry) (io.Writer, error) {
	fh := &zip.FileHeader{
		Name:   entry.Name,
		Method: zip.Deflate,
	}
	if entry.IsDir {
		fh.Name += "/"
		fh.Method = zip.Store
	}
	if !entry.ModTime.IsZero() {
		fh.SetModTime(entry.ModTime)
	}
	if entry.Mode != 0 {
		fh.SetMode(entry.Mode)
	}

	ew, err := w.zw.CreateHeader(fh)
	if err != nil {
		return nil, errors.Wrapf(err, "creating zip entry (%s)", fh.Name)
	}
	return ew, nil
}

// End is a no-op: the zip writer finalizes an entry
// when the next one is created.
func (w *zipWriter) End() error {
	return nil
}

func (w *zipWriter) Flavor() Flavor {
	return w.flavor
}

func (w *zipWriter) Close() error {
	return errors.Wrap(w.zw.Close(), "finalizing zip container")
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) {
	return 0, io.EOF
}
