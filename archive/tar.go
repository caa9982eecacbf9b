package archive

import (
	"archive/tar"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Header fields carrying what Entry can't express for tar entries
const (
	tarTypeflag = "typeflag"
	tarDevmajor = "devmajor"
	tarDevminor = "devminor"
)

type tarReader struct {
	flavor Flavor
	gz     *gzip.Reader
	tr     *tar.Reader
}

var _ Reader = (*tarReader)(nil)

func newTarReader(flavor Flavor, r io.Reader) (*tarReader, error) {
	res := &tarReader{flavor: flavor}
	if flavor == FlavorTarGz {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "opening gzip stream")
		}
		res.gz = gz
		r = gz
	}
	res.tr = tar.NewReader(r)
	return res, nil
}

func (r *tarReader) Next() (*Entry, io.Reader, error) {
	hdr, err := r.tr.Next()
	if err != nil {
		if err == io.EOF {
			return nil, nil, io.EOF
		}
		return nil, nil, errors.Wrap(err, "reading tar header")
	}

	entry := &Entry{
		Name:    EntryName(hdr.Name),
		Size:    hdr.Size,
		Mode:    os.FileMode(hdr.Mode).Perm(),
		ModTime: hdr.ModTime,
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		entry.IsDir = true
		entry.Type = TypeDir
		entry.Size = 0
	case tar.TypeReg, tar.TypeRegA:
		entry.Type = TypeFile
	case tar.TypeSymlink:
		entry.Type = TypeSymlink
		entry.Linkname = hdr.Linkname
	default:
		// hard links, devices, fifos: kept as-is so they can be written back
		entry.Type = TypeOther
		entry.Linkname = hdr.Linkname
		entry.Header = Header{
			{Name: tarTypeflag, Value: strconv.Itoa(int(hdr.Typeflag))},
			{Name: tarDevmajor, Value: strconv.FormatInt(hdr.Devmajor, 10)},
			{Name: tarDevminor, Value: strconv.FormatInt(hdr.Devminor, 10)},
		}
	}
	return entry, r.tr, nil
}

func (r *tarReader) Flavor() Flavor {
	return r.flavor
}

func (r *tarReader) Close() error {
	if r.gz != nil {
		return r.gz.Close()
	}
	return nil
}

type tarWriter struct {
	flavor Flavor
	gz     *gzip.Writer
	tw     *tar.Writer
}

var _ Writer = (*tarWriter)(nil)

func newTarWriter(flavor Flavor, w io.Writer) *tarWriter {
	res := &tarWriter{flavor: flavor}
	if flavor == FlavorTarGz {
		res.gz = gzip.NewWriter(w)
		w = res.gz
	}
	res.tw = tar.NewWriter(w)
	return res
}

func (w *tarWriter) Begin(entry *Entry) (io.Writer, error) {
	hdr := &tar.Header{
		Name:    entry.Name,
		Mode:    int64(entry.Mode.Perm()),
		ModTime: entry.ModTime,
	}
	if hdr.ModTime.IsZero() {
		hdr.ModTime = time.Now()
	}

	switch {
	case entry.IsDir:
		hdr.Typeflag = tar.TypeDir
		hdr.Name += "/"
		if hdr.Mode == 0 {
			hdr.Mode = 0755
		}
	case entry.Type == TypeSymlink:
		hdr.Typeflag = tar.TypeSymlink
		hdr.Linkname = entry.Linkname
	case entry.Type == TypeOther && entry.Header.Get(tarTypeflag) != "":
		err := setSpecialHeader(hdr, entry)
		if err != nil {
			return nil, err
		}
	default:
		if entry.Size < 0 {
			return nil, errors.Wrapf(ErrUnknownSize, "writing tar entry (%s)", entry.Name)
		}
		hdr.Typeflag = tar.TypeReg
		hdr.Size = entry.Size
		if hdr.Mode == 0 {
			hdr.Mode = 0644
		}
	}

	err := w.tw.WriteHeader(hdr)
	if err != nil {
		return nil, errors.Wrapf(err, "writing tar header (%s)", entry.Name)
	}
	return w.tw, nil
}

func setSpecialHeader(hdr *tar.Header, entry *Entry) error {
	flag, err := strconv.Atoi(entry.Header.Get(tarTypeflag))
	if err != nil || flag < 0 || flag > 255 {
		return errors.Errorf("tar entry (%s) has invalid typeflag (%s)", entry.Name, entry.Header.Get(tarTypeflag))
	}
	hdr.Typeflag = byte(flag)
	hdr.Linkname = entry.Linkname
	hdr.Devmajor, _ = strconv.ParseInt(entry.Header.Get(tarDevmajor), 10, 64)
	hdr.Devminor, _ = strconv.ParseInt(entry.Header.Get(tarDevminor), 10, 64)
	if entry.Size > 0 {
		hdr.Size = entry.Size
	}
	return nil
}

func (w *tarWriter) End() error {
	return errors.Wrap(w.tw.Flush(), "finishing tar entry")
}

func (w *tarWriter) Flavor() Flavor {
	return w.flavor
}

func (w *tarWriter) Close() error {
	err := w.tw.Close()
	if err != nil {
		return errors.Wrap(err, "finalizing tar container")
	}
	if w.gz != nil {
		return errors.Wrap(w.gz.Close(), "finalizing gzip stream")
	}
	return nil
}
