package mansion

import (
	"log/slog"
	"os"

	"github.com/kbarchive/curator/comm"
	"github.com/kbarchive/curator/engine"
	"github.com/kbarchive/curator/facts"
	"github.com/kbarchive/curator/report"
	"github.com/kbarchive/curator/reportdb"
)

// ReportDB opens the report database, or returns nil if
// none was asked for.
func (ctx *Context) ReportDB() (*reportdb.DB, error) {
	if ctx.DBPath == "" {
		return nil, nil
	}
	level := slog.LevelInfo
	if ctx.Verbose {
		level = slog.LevelDebug
	}
	return reportdb.Open(ctx.DBPath, comm.NewLogger(level))
}

// SaveRun records res in db if there is one, and returns the run id.
func SaveRun(db *reportdb.DB, pkg string, res *engine.Result) string {
	if db == nil || res == nil {
		return ""
	}
	runID, err := db.SaveRun(pkg, res)
	if err != nil {
		comm.Warnf("could not save run for %s: %s", pkg, err.Error())
		return ""
	}
	comm.Debugf("saved run %s for %s", runID, pkg)
	return runID
}

// EmitFacts prints the facts of a pass, as a table or as
// json lines.
func EmitFacts(snap *facts.Snapshot, onlyNegative bool) {
	if !comm.JsonEnabled() {
		report.Facts(os.Stdout, snap)
		report.Statements(os.Stdout, snap, onlyNegative)
		return
	}

	for _, rec := range snap.Records {
		for _, key := range rec.Keys() {
			for _, value := range rec.Values(key) {
				comm.Result(&FactResult{
					Type:      "fact",
					Path:      rec.Path,
					Key:       key,
					Value:     value,
					Claimants: rec.Claimants(key, value),
				})
			}
		}
	}
	for _, st := range snap.Statements {
		if onlyNegative && st.Polarity != facts.Negative {
			continue
		}
		comm.Result(&StatementResult{
			Type:     "statement",
			Polarity: st.Polarity.String(),
			Path:     st.Path,
			Message:  st.Text,
		})
	}
}

// PackageSummary builds the json summary of one pass
func PackageSummary(path string, res *engine.Result, err error) *PackageResult {
	pr := &PackageResult{
		Type: "package",
		Path: path,
	}
	if err != nil {
		pr.Error = err.Error()
	}
	if res != nil {
		pr.Flavor = res.Flavor.String()
		pr.Paths = len(res.Facts.Records)
		pr.Disagreements = res.Facts.Disagreements()
		pr.DurationMs = res.Duration.Milliseconds()
	}
	return pr
}
