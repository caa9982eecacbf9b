package batch

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kbarchive/curator/batch"
	"github.com/kbarchive/curator/comm"
	"github.com/kbarchive/curator/mansion"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
)

var args = struct {
	dir    *string
	strict *bool
}{}

func Register(ctx *mansion.Context) {
	cmd := ctx.App.Command("batch", "Walks every package found in a directory, in parallel")
	args.dir = cmd.Arg("dir", "Directory to scan for packages").Required().ExistingDir()
	args.strict = cmd.Flag("strict", "Also fail when a package has disagreeing facts").Bool()
	ctx.Register(cmd, do)
}

func do(ctx *mansion.Context) {
	ctx.Must(Do(ctx, *args.dir, *args.strict))
}

func Do(ctx *mansion.Context, dir string, strict bool) error {
	startTime := time.Now()
	consumer := comm.NewStateConsumer()

	catalog, err := ctx.Catalog()
	if err != nil {
		return err
	}

	items, err := batch.Scan(dir, consumer)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		comm.Opf("No packages found in (%s)", dir)
		return nil
	}
	comm.Opf("Processing %d packages with up to %d jobs", len(items), ctx.Jobs)

	outcomes, err := batch.Run(&batch.Params{
		Context:   context.Background(),
		Items:     items,
		Processor: catalog.Root,
		Jobs:      ctx.Jobs,
		Consumer:  consumer,
	})
	if err != nil {
		return err
	}

	db, err := ctx.ReportDB()
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Package", "Flavor", "Paths", "Disagreements", "Status"})

	var failed, disagreeing int
	for _, o := range outcomes {
		summary := mansion.PackageSummary(o.Item.Path, o.Result, o.Err)
		summary.RunID = mansion.SaveRun(db, o.Item.Path, o.Result)

		status := "ok"
		switch {
		case o.Failed():
			failed++
			status = o.Err.Error()
		case len(o.Disagreements()) > 0:
			disagreeing++
			status = "disagreements"
		}

		comm.ResultOrPrint(summary, func() {
			table.Append([]string{
				o.Item.Path,
				o.Item.Flavor.String(),
				fmt.Sprintf("%d", summary.Paths),
				fmt.Sprintf("%d", len(summary.Disagreements)),
				status,
			})
		})
	}
	if !comm.JsonEnabled() {
		table.Render()
	}

	comm.Statf("%d packages processed in %s, %d failed, %d with disagreements",
		len(outcomes), time.Since(startTime).Round(time.Millisecond), failed, disagreeing)

	if failed > 0 {
		return errors.Errorf("%d packages could not be processed", failed)
	}
	if strict && disagreeing > 0 {
		return errors.Errorf("%d packages have disagreeing facts", disagreeing)
	}
	return nil
}
