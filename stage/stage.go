// Package stage moves entry content between container streams
// and scoped temporary files.
package stage

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"sync"

	"github.com/itchio/wharf/ctxcopy"
	"github.com/kbarchive/curator/archive"
	"github.com/pkg/errors"
)

// TransferError is returned when bytes could not be moved
// between a container and a temporary file.
type TransferError struct {
	Path string
	Op   string
	Err  error
}

func (te *TransferError) Error() string {
	return fmt.Sprintf("%s (%s): %s", te.Op, te.Path, te.Err.Error())
}

func (te *TransferError) Unwrap() error {
	return te.Err
}

func (te *TransferError) Cause() error {
	return te.Err
}

// TempFile is an owned temporary file, removed on Close.
type TempFile struct {
	*os.File

	closeOnce sync.Once
	closeErr  error
}

// New creates a temporary file in dir (or the default temp dir when empty)
func New(dir string, pattern string) (*TempFile, error) {
	f, err := ioutil.TempFile(dir, pattern)
	if err != nil {
		return nil, errors.Wrap(err, "creating temporary file")
	}
	return &TempFile{File: f}, nil
}

// Path returns the on-disk location of the temp file
func (tf *TempFile) Path() string {
	return tf.File.Name()
}

// Size returns the current size of the temp file
func (tf *TempFile) Size() (int64, error) {
	stats, err := tf.File.Stat()
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return stats.Size(), nil
}

// Rewind seeks back to the beginning of the file
func (tf *TempFile) Rewind() error {
	_, err := tf.File.Seek(0, io.SeekStart)
	return errors.WithStack(err)
}

// Close closes and removes the file. Calling it more than once is fine.
func (tf *TempFile) Close() error {
	tf.closeOnce.Do(func() {
		err := tf.File.Close()
		rmErr := os.Remove(tf.File.Name())
		if err == nil && rmErr != nil && !os.IsNotExist(rmErr) {
			err = rmErr
		}
		tf.closeErr = errors.WithStack(err)
	})
	return tf.closeErr
}

// ExtractEntry stages exactly entry.Size bytes of r into a new temp file,
// leaving the rest of r untouched, and rewinds it. An unknown size (-1)
// copies until EOF. The temp file is removed on any error.
func ExtractEntry(ctx context.Context, dir string, entry *archive.Entry, r io.Reader) (*TempFile, error) {
	tf, err := New(dir, "curator-entry-")
	if err != nil {
		return nil, err
	}

	err = func() error {
		src := r
		if entry.Size >= 0 {
			src = io.LimitReader(r, entry.Size)
		}

		copied, err := ctxcopy.Do(ctx, tf, src)
		if err != nil {
			return &TransferError{Path: entry.Name, Op: "extracting entry", Err: err}
		}
		if entry.Size >= 0 && copied != entry.Size {
			return &TransferError{
				Path: entry.Name,
				Op:   "extracting entry",
				Err:  errors.Errorf("expected %d bytes, got %d", entry.Size, copied),
			}
		}
		return tf.Rewind()
	}()
	if err != nil {
		tf.Close()
		return nil, err
	}
	return tf, nil
}

// CopyEntry streams r into a new entry of w. The output entry is always
// ended, the first error is returned. Entries of unknown size are staged
// first, since most writers need the size up front.
func CopyEntry(ctx context.Context, dir string, w archive.Writer, entry *archive.Entry, r io.Reader) (retErr error) {
	if !entry.IsDir && entry.Size < 0 {
		tf, err := ExtractEntry(ctx, dir, entry, r)
		if err != nil {
			return err
		}
		defer tf.Close()
		return AddEntry(ctx, w, entry, tf)
	}

	ew, err := w.Begin(entry)
	if err != nil {
		return &TransferError{Path: entry.Name, Op: "beginning entry", Err: err}
	}
	defer func() {
		endErr := w.End()
		if retErr == nil && endErr != nil {
			retErr = &TransferError{Path: entry.Name, Op: "ending entry", Err: endErr}
		}
	}()

	if entry.IsDir {
		return nil
	}

	copied, err := ctxcopy.Do(ctx, ew, io.LimitReader(r, entry.Size))
	if err != nil {
		return &TransferError{Path: entry.Name, Op: "copying entry", Err: err}
	}
	if copied != entry.Size {
		return &TransferError{
			Path: entry.Name,
			Op:   "copying entry",
			Err:  errors.Errorf("expected %d bytes, got %d", entry.Size, copied),
		}
	}
	return nil
}

// AddEntry emits a staged temp file as a replacement for entry,
// with the temp file's size. The output entry is always ended.
func AddEntry(ctx context.Context, w archive.Writer, entry *archive.Entry, tf *TempFile) (retErr error) {
	size, err := tf.Size()
	if err != nil {
		return &TransferError{Path: entry.Name, Op: "adding entry", Err: err}
	}
	err = tf.Rewind()
	if err != nil {
		return &TransferError{Path: entry.Name, Op: "adding entry", Err: err}
	}

	replacement := entry.WithSize(size)
	ew, err := w.Begin(replacement)
	if err != nil {
		return &TransferError{Path: entry.Name, Op: "beginning entry", Err: err}
	}
	defer func() {
		endErr := w.End()
		if retErr == nil && endErr != nil {
			retErr = &TransferError{Path: entry.Name, Op: "ending entry", Err: endErr}
		}
	}()

	_, err = ctxcopy.Do(ctx, ew, tf)
	if err != nil {
		return &TransferError{Path: entry.Name, Op: "adding entry", Err: err}
	}
	return nil
}
