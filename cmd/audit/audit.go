package audit

import (
	"fmt"
	"io"
	"io/ioutil"
	"sort"
	"strings"

	humanize "github.com/dustin/go-humanize"
	itchiozip "github.com/itchio/arkive/zip"
	"github.com/itchio/wharf/counter"
	"github.com/itchio/wharf/eos"
	"github.com/itchio/wharf/state"
	"github.com/kbarchive/curator/archive"
	"github.com/kbarchive/curator/comm"
	"github.com/kbarchive/curator/filtering"
	"github.com/kbarchive/curator/mansion"
	"github.com/pkg/errors"
)

var args = struct {
	file *string
}{}

func Register(ctx *mansion.Context) {
	cmd := ctx.App.Command("audit", "Audit a package for structural errors (sizes, duplicates, unsafe names)")
	args.file = cmd.Arg("file", "Package to audit").Required().ExistingFile()
	ctx.Register(cmd, do)
}

func do(ctx *mansion.Context) {
	consumer := comm.NewStateConsumer()
	ctx.Must(Do(consumer, *args.file))
}

// Problem is something wrong with a single entry
type Problem struct {
	Path    string `json:"path"`
	Fatal   bool   `json:"fatal"`
	Message string `json:"message"`
}

type Result struct {
	Type       string    `json:"type"`
	Flavor     string    `json:"flavor"`
	NumEntries int       `json:"numEntries"`
	TotalSize  int64     `json:"totalSize"`
	Problems   []Problem `json:"problems"`
}

// Errors counts fatal problems
func (r *Result) Errors() int {
	n := 0
	for _, p := range r.Problems {
		if p.Fatal {
			n++
		}
	}
	return n
}

func Do(consumer *state.Consumer, file string) error {
	res, err := Audit(consumer, file)
	if err != nil {
		return err
	}

	if comm.JsonEnabled() {
		comm.Result(res)
	}

	if n := res.Errors(); n > 0 {
		comm.Statf("Found %d errors, see above", n)
		return fmt.Errorf("Found %d errors in package", n)
	}

	comm.Statf("%d entries (%s), everything checks out!", res.NumEntries, humanize.IBytes(uint64(res.TotalSize)))
	return nil
}

func Audit(consumer *state.Consumer, file string) (*Result, error) {
	if consumer == nil {
		consumer = &state.Consumer{}
	}

	f, err := eos.Open(file)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	stats, err := f.Stat()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	flavor := archive.ProbeFile(f, consumer)
	if flavor == archive.FlavorNone {
		return nil, errors.Wrapf(archive.ErrUnrecognizedArchiveType, "(%s)", file)
	}
	comm.Opf("Auditing (%s) as %s...", stats.Name(), flavor)

	if flavor.NeedsRandomAccess() {
		printZipExtras(consumer, f, stats.Size())
	}

	ar, err := archive.OpenReader(flavor, f)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer ar.Close()

	res := &Result{
		Type:   "audit",
		Flavor: flavor.String(),
	}

	markError := func(path string, fatal bool, message string, args ...interface{}) {
		p := Problem{Path: path, Fatal: fatal, Message: fmt.Sprintf(message, args...)}
		consumer.Warnf("(%s): %s", path, p.Message)
		res.Problems = append(res.Problems, p)
	}

	paths := make(map[string]int)
	for index := 0; ; index++ {
		entry, content, err := ar.Next()
		if err != nil {
			if errors.Cause(err) == io.EOF {
				break
			}
			return nil, errors.Wrapf(err, "reading entry %d", index)
		}
		res.NumEntries++

		name := archive.EntryName(entry.Name)
		path := archive.CleanFileName(name)
		comm.ProgressLabel(path)

		// records share target URIs, only their IDs have to be unique
		key := path
		if entry.ID != "" {
			key = entry.ID
		}
		if previousIndex, ok := paths[key]; ok {
			markError(path, false, "duplicate path at indices (%d) and (%d)", index, previousIndex)
		}
		paths[key] = index

		if strings.HasPrefix(path, "../") || path == ".." || strings.HasPrefix(name, "/") {
			markError(name, true, "entry escapes the package root")
		}
		if !filtering.FilterEntry(name) {
			markError(name, false, "looks like an OS or VCS leftover")
		}

		if entry.IsDir {
			continue
		}

		cw := counter.NewWriter(ioutil.Discard)
		_, err = io.Copy(cw, content)
		if err != nil {
			markError(path, true, err.Error())
			continue
		}
		actualSize := cw.Count()
		res.TotalSize += actualSize

		if entry.Size >= 0 && actualSize != entry.Size {
			markError(path, true, "dictionary says %s (%d bytes), but it's actually %s (%d bytes)",
				humanize.IBytes(uint64(entry.Size)),
				entry.Size,
				humanize.IBytes(uint64(actualSize)),
				actualSize,
			)
		}
	}

	return res, nil
}

func printZipExtras(consumer *state.Consumer, r io.ReaderAt, size int64) {
	zr, err := itchiozip.NewReader(r, size)
	if err != nil {
		consumer.Warnf("could not read zip directory: %s", err.Error())
		return
	}

	var compressedSize int64
	var uncompressedSize int64
	foundMethods := make(map[uint16]int)
	for _, entry := range zr.File {
		compressedSize += int64(entry.CompressedSize64)
		uncompressedSize += int64(entry.UncompressedSize64)
		foundMethods[entry.Method]++
	}

	consumer.Infof("Comment: (%s)", zr.Comment)
	consumer.Infof("Sizes: ")
	consumer.Infof("  → Archive size      : %s (%d bytes)", humanize.IBytes(uint64(size)), size)
	consumer.Infof("  → Sum (compressed)  : %s (%d bytes)", humanize.IBytes(uint64(compressedSize)), compressedSize)
	consumer.Infof("  → Sum (uncompressed): %s (%d bytes)", humanize.IBytes(uint64(uncompressedSize)), uncompressedSize)

	var methods []int
	for m := range foundMethods {
		methods = append(methods, int(m))
	}
	sort.Ints(methods)
	consumer.Infof("Entries: ")
	for _, m := range methods {
		consumer.Infof("  → %d %s entries", foundMethods[uint16(m)], methodName(uint16(m)))
	}
}

func methodName(method uint16) string {
	switch method {
	case itchiozip.Store:
		return "store"
	case itchiozip.Deflate:
		return "deflate"
	case itchiozip.LZMA:
		return "lzma"
	}
	return fmt.Sprintf("method-%d", method)
}
