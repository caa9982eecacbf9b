package engine

import (
	"context"
	"path/filepath"
	"time"

	"github.com/dchest/safefile"
	"github.com/itchio/wharf/eos"
	"github.com/itchio/wharf/state"
	"github.com/kbarchive/curator/archive"
	"github.com/kbarchive/curator/facts"
	"github.com/kbarchive/curator/scope"
	"github.com/pkg/errors"
)

type RunParams struct {
	Context   context.Context
	InputPath string
	// OutputPath is where the rewritten package goes. Empty means
	// a read-only pass.
	OutputPath string
	Processor  ContainerProcessor
	Consumer   *state.Consumer
}

type Result struct {
	Facts    *facts.Snapshot
	Scope    *scope.Scope
	Flavor   archive.Flavor
	Duration time.Duration
}

// Run processes one top-level package with its own fact store.
// The output, if any, only appears once the whole pass succeeded.
func Run(params *RunParams) (*Result, error) {
	if params.Processor == nil {
		return nil, errors.New("engine.Run: missing processor")
	}
	ctx := params.Context
	if ctx == nil {
		ctx = context.Background()
	}
	consumer := params.Consumer
	if consumer == nil {
		consumer = &state.Consumer{}
	}

	startTime := time.Now()

	file, err := eos.Open(params.InputPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer file.Close()

	name := filepath.Base(params.InputPath)
	flavor := archive.ProbeFile(file, consumer)
	if flavor == archive.FlavorNone {
		return nil, errors.Wrapf(archive.ErrUnrecognizedArchiveType, "(%s)", params.InputPath)
	}
	if archive.ProbeFlavor(name) == archive.FlavorNone {
		// let the processor find the flavor without sniffing again
		name = name + "." + flavor.String()
	}

	var output *safefile.File
	if params.OutputPath != "" {
		outFlavor := archive.ProbeFlavor(params.OutputPath)
		if outFlavor != archive.FlavorNone && outFlavor != flavor {
			return nil, errors.Wrapf(archive.ErrFlavorMismatch, "input is %s, output (%s) is %s", flavor, params.OutputPath, outFlavor)
		}

		output, err = safefile.Create(params.OutputPath, 0644)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		// no-op once committed
		defer output.Close()
	}

	store := facts.NewStore()
	root := scope.NewRoot(params.InputPath, store, consumer)

	containerParams := &ContainerParams{
		Context: ctx,
		Name:    name,
		Input:   file,
		Scope:   root,
	}
	if output != nil {
		containerParams.Output = output
	}

	consumer.Infof("Processing (%s) as %s", params.InputPath, flavor)
	err = params.Processor.Process(containerParams)
	if err != nil {
		return nil, err
	}

	if output != nil {
		err = output.Commit()
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}

	return &Result{
		Facts:    store.Drain(),
		Scope:    root,
		Flavor:   flavor,
		Duration: time.Since(startTime),
	}, nil
}
