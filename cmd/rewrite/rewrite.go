package rewrite

import (
	"context"
	"os"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/kbarchive/curator/comm"
	"github.com/kbarchive/curator/engine"
	"github.com/kbarchive/curator/mansion"
	"github.com/kbarchive/curator/report"
	"github.com/pkg/errors"
)

var args = struct {
	input  *string
	output *string
}{}

func Register(ctx *mansion.Context) {
	cmd := ctx.App.Command("rewrite", "Runs a mutating pass, writing the transformed package to a new file")
	args.input = cmd.Arg("input", "Package to read").Required().ExistingFile()
	args.output = cmd.Arg("output", "Where to write the rewritten package, same container format as input").Required().String()
	ctx.Register(cmd, do)
}

func do(ctx *mansion.Context) {
	_, err := Do(ctx, *args.input, *args.output)
	ctx.Must(err)
}

// Do rewrites input into output. output is left untouched unless
// the whole pass succeeds.
func Do(ctx *mansion.Context, input string, output string) (*engine.Result, error) {
	if input == output {
		return nil, errors.Errorf("refusing to rewrite (%s) in place", input)
	}

	catalog, err := ctx.Catalog()
	if err != nil {
		return nil, err
	}

	res, err := engine.Run(&engine.RunParams{
		Context:    context.Background(),
		InputPath:  input,
		OutputPath: output,
		Processor:  catalog.Root,
		Consumer:   comm.NewStateConsumer(),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "rewriting (%s)", input)
	}

	db, err := ctx.ReportDB()
	if err != nil {
		return nil, err
	}
	var runID string
	if db != nil {
		defer db.Close()
		runID = mansion.SaveRun(db, input, res)
	}

	mansion.EmitFacts(res.Facts, true)

	summary := mansion.PackageSummary(input, res, nil)
	summary.RunID = runID
	comm.ResultOrPrint(summary, func() {
		comm.Notice(input, report.Summarize(res.Facts).Lines())
		comm.Statf("Wrote %s (%s) in %s", output, outputSize(output), res.Duration.Round(time.Millisecond))
	})
	return res, nil
}

func outputSize(path string) string {
	stats, err := os.Stat(path)
	if err != nil {
		return "?"
	}
	return humanize.IBytes(uint64(stats.Size()))
}
