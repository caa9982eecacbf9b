package walk

import (
	"context"
	"time"

	"github.com/kbarchive/curator/comm"
	"github.com/kbarchive/curator/engine"
	"github.com/kbarchive/curator/mansion"
	"github.com/kbarchive/curator/report"
	"github.com/pkg/errors"
)

var args = struct {
	file         *string
	onlyNegative *bool
}{}

func Register(ctx *mansion.Context) {
	cmd := ctx.App.Command("walk", "Runs a read-only pass over a package and prints what was learned")
	args.file = cmd.Arg("file", "Package to walk").Required().ExistingFile()
	args.onlyNegative = cmd.Flag("only-negative", "Only print negative statements").Bool()
	ctx.Register(cmd, do)
}

func do(ctx *mansion.Context) {
	_, err := Do(ctx, *args.file, *args.onlyNegative)
	ctx.Must(err)
}

// Do walks one package and reports its facts. The run is saved to the
// report database if one is configured.
func Do(ctx *mansion.Context, file string, onlyNegative bool) (*engine.Result, error) {
	catalog, err := ctx.Catalog()
	if err != nil {
		return nil, err
	}

	res, err := engine.Run(&engine.RunParams{
		Context:   context.Background(),
		InputPath: file,
		Processor: catalog.Root,
		Consumer:  comm.NewStateConsumer(),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walking (%s)", file)
	}

	db, err := ctx.ReportDB()
	if err != nil {
		return nil, err
	}
	var runID string
	if db != nil {
		defer db.Close()
		runID = mansion.SaveRun(db, file, res)
	}

	mansion.EmitFacts(res.Facts, onlyNegative)

	summary := mansion.PackageSummary(file, res, nil)
	summary.RunID = runID
	comm.ResultOrPrint(summary, func() {
		comm.Notice(file, report.Summarize(res.Facts).Lines())
		comm.Statf("%s walked in %s", res.Flavor, res.Duration.Round(time.Millisecond))
	})
	return res, nil
}
