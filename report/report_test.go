package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kbarchive/curator/facts"
	"github.com/stretchr/testify/assert"
)

func sample() *facts.Snapshot {
	s := facts.NewStore()
	s.Associate(facts.Calculated, "data/a.txt", "data/a.txt", map[string]string{"size": "2048", "md5": "aa"})
	s.Associate("manifest", "data/a.txt", "data/a.txt", map[string]string{"md5": "bb"})
	s.Associate(facts.Calculated, "data/b.txt", "data/b.txt", map[string]string{"size": "1024"})
	s.Associate("bag-info", "/", "/", map[string]string{"size": "999999"})
	return s.Drain()
}

func TestSummarize(t *testing.T) {
	sum := Summarize(sample())
	assert.Equal(t, 3, sum.Paths)
	assert.Equal(t, 1, sum.Disagreements)
	assert.EqualValues(t, 3072, sum.Bytes)
	assert.Equal(t, 1, sum.Negative)

	lines := sum.Lines()
	assert.Equal(t, "3 paths, 3.0 KiB of content", lines[0])
	assert.Equal(t, "1 paths with disagreements", lines[2])
}

func TestTables(t *testing.T) {
	snap := sample()

	buf := new(bytes.Buffer)
	Facts(buf, snap)
	out := buf.String()
	assert.Contains(t, out, "data/a.txt")
	assert.Contains(t, out, "manifest")
	assert.Equal(t, 2, strings.Count(out, "!"))

	buf.Reset()
	Statements(buf, snap, true)
	out = buf.String()
	assert.Contains(t, out, "NEGATIVE")
	assert.NotContains(t, out, "NEUTRAL")
}

func TestJSON(t *testing.T) {
	j := JSON(sample())
	records := j["records"].([]map[string]interface{})
	assert.Len(t, records, 3)
	assert.Equal(t, true, records[0]["disagreement"])
	assert.Equal(t, 3, j["summary"].(Summary).Paths)
}
