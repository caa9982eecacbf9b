package ls

import (
	"context"
	"io"
	"strings"

	humanize "github.com/dustin/go-humanize"
	"github.com/itchio/wharf/eos"
	"github.com/itchio/wharf/state"
	"github.com/kbarchive/curator/archive"
	"github.com/kbarchive/curator/comm"
	"github.com/kbarchive/curator/mansion"
	"github.com/kbarchive/curator/stage"
	"github.com/pkg/errors"
)

var args = struct {
	file   *string
	nested *bool
}{}

func Register(ctx *mansion.Context) {
	cmd := ctx.App.Command("ls", "Prints the entries of a package")
	args.file = cmd.Arg("file", "A package you'd like to list the contents of").Required().ExistingFile()
	args.nested = cmd.Flag("nested", "Also list the contents of nested containers").Short('n').Bool()
	ctx.Register(cmd, do)
}

func do(ctx *mansion.Context) {
	ctx.Must(Do(ctx, *args.file, *args.nested))
}

func Do(ctx *mansion.Context, inPath string, nested bool) error {
	consumer := comm.NewStateConsumer()

	var numEntries int
	var totalSize int64
	err := List(&ListParams{
		Context:  context.Background(),
		Path:     inPath,
		Nested:   nested,
		TempDir:  ctx.TempDir,
		Consumer: consumer,
		OnEntry: func(res *mansion.EntryResult) {
			numEntries++
			if res.Size > 0 {
				totalSize += res.Size
			}
			comm.ResultOrPrint(res, func() {
				indent := strings.Repeat("  ", res.Depth)
				size := "?"
				if res.Size >= 0 {
					size = humanize.IBytes(uint64(res.Size))
				}
				comm.Logf("%s%-8s %10s %s", indent, res.Kind, size, res.Path)
			})
		},
	})
	if err != nil {
		return err
	}

	comm.Statf("%d entries (%s)", numEntries, humanize.IBytes(uint64(totalSize)))
	return nil
}

type ListParams struct {
	Context context.Context
	Path    string
	// Nested opens entries that look like containers and lists
	// them too, one level deeper.
	Nested   bool
	TempDir  string
	Consumer *state.Consumer
	OnEntry  func(res *mansion.EntryResult)
}

func List(params *ListParams) error {
	if params.Context == nil {
		params.Context = context.Background()
	}
	if params.Consumer == nil {
		params.Consumer = &state.Consumer{}
	}

	f, err := eos.Open(params.Path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	flavor := archive.ProbeFile(f, params.Consumer)
	if flavor == archive.FlavorNone {
		return errors.Wrapf(archive.ErrUnrecognizedArchiveType, "(%s)", params.Path)
	}
	return list(params, f, flavor, "", 0)
}

func list(params *ListParams, r io.Reader, flavor archive.Flavor, prefix string, depth int) error {
	ar, err := archive.OpenReader(flavor, r)
	if err != nil {
		return errors.Wrapf(err, "opening %s", flavor)
	}
	defer ar.Close()

	for {
		entry, content, err := ar.Next()
		if err != nil {
			if errors.Cause(err) == io.EOF {
				return nil
			}
			return errors.Wrapf(err, "listing %s", flavor)
		}

		name := prefix + archive.EntryName(entry.Name)
		params.OnEntry(&mansion.EntryResult{
			Type:  "entry",
			Path:  name,
			Kind:  entryKind(entry),
			Size:  entry.Size,
			Depth: depth,
		})

		if !params.Nested || entry.IsDir {
			continue
		}
		nestedFlavor := archive.ProbeFlavor(entry.Name)
		if nestedFlavor == archive.FlavorNone {
			continue
		}

		err = listNested(params, entry, content, nestedFlavor, name+"/", depth+1)
		if err != nil {
			return err
		}
	}
}

func listNested(params *ListParams, entry *archive.Entry, content io.Reader, flavor archive.Flavor, prefix string, depth int) error {
	tf, err := stage.ExtractEntry(params.Context, params.TempDir, entry, content)
	if err != nil {
		return err
	}
	defer tf.Close()

	err = list(params, tf, flavor, prefix, depth)
	if err != nil {
		params.Consumer.Warnf("could not list nested %s: %s", strings.TrimSuffix(prefix, "/"), err.Error())
	}
	return nil
}

func entryKind(entry *archive.Entry) string {
	if entry.IsDir {
		return "dir"
	}
	if entry.Type != "" {
		return entry.Type
	}
	return archive.TypeFile
}
