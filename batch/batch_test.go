package batch

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/kbarchive/curator/archive"
	"github.com/kbarchive/curator/engine"
	"github.com/stretchr/testify/assert"
)

func must(t *testing.T, err error) {
	if err != nil {
		assert.NoError(t, err)
		t.FailNow()
	}
}

func writeTar(t *testing.T, path string, entries map[string]string) {
	buf := new(bytes.Buffer)
	w, err := archive.NewWriter(archive.FlavorTar, buf)
	must(t, err)
	for name, data := range entries {
		ew, err := w.Begin(&archive.Entry{Name: name, Size: int64(len(data)), Type: archive.TypeFile})
		must(t, err)
		_, err = io.WriteString(ew, data)
		must(t, err)
		must(t, w.End())
	}
	must(t, w.Close())
	must(t, ioutil.WriteFile(path, buf.Bytes(), 0644))
}

func TestScanAndRun(t *testing.T) {
	dir, err := ioutil.TempDir("", "batch-test")
	must(t, err)
	defer os.RemoveAll(dir)

	must(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	must(t, os.MkdirAll(filepath.Join(dir, "__MACOSX"), 0755))

	writeTar(t, filepath.Join(dir, "a.tar"), map[string]string{"one.txt": "1"})
	writeTar(t, filepath.Join(dir, "nested", "b.tar"), map[string]string{"two.txt": "22", "three.txt": "333"})
	writeTar(t, filepath.Join(dir, "__MACOSX", "c.tar"), map[string]string{"x": "x"})
	must(t, ioutil.WriteFile(filepath.Join(dir, "broken.zip"), []byte("not a zip"), 0644))
	must(t, ioutil.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644))

	items, err := Scan(dir, nil)
	must(t, err)

	var names []string
	for _, item := range items {
		rel, err := filepath.Rel(dir, item.Path)
		must(t, err)
		names = append(names, filepath.ToSlash(rel))
	}
	assert.Equal(t, []string{"a.tar", "broken.zip", "nested/b.tar"}, names)

	outcomes, err := Run(&Params{
		Items:     items,
		Processor: engine.NewPackageProcessor("package", nil),
		Jobs:      2,
	})
	must(t, err)
	if !assert.Len(t, outcomes, 3) {
		return
	}

	assert.False(t, outcomes[0].Failed())
	assert.Len(t, outcomes[0].Result.Facts.Records, 1)

	assert.True(t, outcomes[1].Failed())
	assert.Nil(t, outcomes[1].Disagreements())

	assert.False(t, outcomes[2].Failed())
	assert.Len(t, outcomes[2].Result.Facts.Records, 2)
	assert.Empty(t, outcomes[2].Disagreements())

	// stores are never shared between packages
	assert.Nil(t, outcomes[2].Result.Facts.Record("one.txt"))
}
