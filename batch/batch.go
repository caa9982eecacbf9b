// Package batch validates many packages concurrently. Each package
// gets its own fact store, so runs never see each other's facts.
package batch

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/itchio/wharf/state"
	"github.com/kbarchive/curator/archive"
	"github.com/kbarchive/curator/engine"
	"github.com/kbarchive/curator/filtering"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type Item struct {
	Path   string
	Flavor archive.Flavor
}

// Scan finds every package under dir, by extension.
func Scan(dir string, consumer *state.Consumer) ([]Item, error) {
	if consumer == nil {
		consumer = &state.Consumer{}
	}

	var items []Item
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !filtering.FilterPaths(info) {
			consumer.Debugf("batch: ignoring (%s)", path)
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}

		flavor := archive.ProbeFlavor(info.Name())
		if flavor == archive.FlavorNone {
			return nil
		}
		items = append(items, Item{Path: path, Flavor: flavor})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scanning (%s)", dir)
	}
	return items, nil
}

type Params struct {
	Context   context.Context
	Items     []Item
	Processor engine.ContainerProcessor
	// Jobs bounds how many packages are processed at once,
	// defaults to the number of CPUs.
	Jobs     int
	Consumer *state.Consumer
}

type Outcome struct {
	Item   Item
	Result *engine.Result
	Err    error
}

// Failed is true when the package could not be processed
func (o *Outcome) Failed() bool {
	return o.Err != nil
}

// Disagreements returns paths with conflicting facts
func (o *Outcome) Disagreements() []string {
	if o.Result == nil {
		return nil
	}
	return o.Result.Facts.Disagreements()
}

// Run processes all items read-only. A failing package doesn't stop
// the others, its error ends up in its Outcome. Outcomes are in the
// same order as Items.
func Run(params *Params) ([]*Outcome, error) {
	ctx := params.Context
	if ctx == nil {
		ctx = context.Background()
	}
	consumer := params.Consumer
	if consumer == nil {
		consumer = &state.Consumer{}
	}
	jobs := params.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	outcomes := make([]*Outcome, len(params.Items))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	var mu sync.Mutex
	done := 0

	for i, item := range params.Items {
		i, item := i, item
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			res, err := engine.Run(&engine.RunParams{
				Context:   ctx,
				InputPath: item.Path,
				Processor: params.Processor,
				Consumer:  consumer,
			})
			outcomes[i] = &Outcome{Item: item, Result: res, Err: err}

			mu.Lock()
			done++
			consumer.Progress(float64(done) / float64(len(params.Items)))
			mu.Unlock()

			if err != nil {
				consumer.Warnf("batch: (%s) failed: %s", item.Path, err.Error())
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return outcomes, nil
}
