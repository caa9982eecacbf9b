// Package report renders fact snapshots for humans and machines.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	humanize "github.com/dustin/go-humanize"
	"github.com/kbarchive/curator/digest"
	"github.com/kbarchive/curator/facts"
	"github.com/olekukonko/tablewriter"
)

// Facts prints one row per (path, key, value). Disagreeing values
// are marked with a "!".
func Facts(w io.Writer, snap *facts.Snapshot) {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"", "Path", "Key", "Value", "Claimants"})

	for _, r := range snap.Records {
		for _, key := range r.Keys() {
			buckets := r.Buckets(key)
			mark := ""
			if len(buckets) > 1 {
				mark = "!"
			}
			for _, b := range buckets {
				table.Append([]string{mark, r.Path, key, b.Value, strings.Join(b.Claimants, ", ")})
			}
		}
	}
	table.Render()
}

// Statements prints the audit log. With onlyNegative, positive and
// neutral statements are left out.
func Statements(w io.Writer, snap *facts.Snapshot, onlyNegative bool) {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetColWidth(80)
	table.SetHeader([]string{"Polarity", "Path", "Statement"})

	for _, st := range snap.Statements {
		if onlyNegative && st.Polarity != facts.Negative {
			continue
		}
		table.Append([]string{st.Polarity.String(), st.Path, st.Text})
	}
	table.Render()
}

type Summary struct {
	Paths         int
	Disagreements int
	Positive      int
	Neutral       int
	Negative      int
	// Bytes is the total computed content size
	Bytes int64
}

func Summarize(snap *facts.Snapshot) Summary {
	s := Summary{
		Paths:         len(snap.Records),
		Disagreements: len(snap.Disagreements()),
		Positive:      snap.Count(facts.Positive),
		Neutral:       snap.Count(facts.Neutral),
		Negative:      snap.Count(facts.Negative),
	}
	for _, r := range snap.Records {
		for _, b := range r.Buckets(digest.SizeKey) {
			if !hasClaimant(b, facts.Calculated) {
				continue
			}
			size, err := strconv.ParseInt(b.Value, 10, 64)
			if err == nil {
				s.Bytes += size
			}
		}
	}
	return s
}

func hasClaimant(b *facts.Bucket, claimant string) bool {
	for _, c := range b.Claimants {
		if c == claimant {
			return true
		}
	}
	return false
}

// Lines is the summary as short sentences
func (s Summary) Lines() []string {
	lines := []string{
		fmt.Sprintf("%d paths, %s of content", s.Paths, humanize.IBytes(uint64(s.Bytes))),
		fmt.Sprintf("%d confirmed, %d stated, %d contested statements", s.Positive, s.Neutral, s.Negative),
	}
	if s.Disagreements > 0 {
		lines = append(lines, fmt.Sprintf("%d paths with disagreements", s.Disagreements))
	} else {
		lines = append(lines, "no disagreements")
	}
	return lines
}

// JSON turns a snapshot into a value for JSON output
func JSON(snap *facts.Snapshot) map[string]interface{} {
	var records []map[string]interface{}
	for _, r := range snap.Records {
		values := make(map[string]interface{})
		for _, key := range r.Keys() {
			var buckets []map[string]interface{}
			for _, b := range r.Buckets(key) {
				buckets = append(buckets, map[string]interface{}{
					"value":     b.Value,
					"claimants": b.Claimants,
				})
			}
			values[key] = buckets
		}
		records = append(records, map[string]interface{}{
			"path":         r.Path,
			"disagreement": r.Disagreement,
			"facts":        values,
		})
	}

	var statements []map[string]interface{}
	for _, st := range snap.Statements {
		statements = append(statements, map[string]interface{}{
			"path":     st.Path,
			"polarity": st.Polarity.String(),
			"text":     st.Text,
		})
	}

	return map[string]interface{}{
		"records":    records,
		"statements": statements,
		"summary":    Summarize(snap),
	}
}
