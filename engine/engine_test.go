package engine

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/kbarchive/curator/archive"
	"github.com/kbarchive/curator/facts"
	"github.com/kbarchive/curator/scope"
	"github.com/kbarchive/curator/selection"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func must(t *testing.T, err error) {
	if err != nil {
		assert.NoError(t, err)
		t.FailNow()
	}
}

type testEntry struct {
	name string
	dir  bool
	data string
}

func buildContainer(t *testing.T, flavor archive.Flavor, entries []testEntry) []byte {
	buf := new(bytes.Buffer)
	w, err := archive.NewWriter(flavor, buf)
	must(t, err)
	for _, te := range entries {
		entry := &archive.Entry{Name: te.name, IsDir: te.dir, Type: archive.TypeFile}
		if te.dir {
			entry.Type = archive.TypeDir
		} else {
			entry.Size = int64(len(te.data))
		}
		ew, err := w.Begin(entry)
		must(t, err)
		_, err = io.WriteString(ew, te.data)
		must(t, err)
		must(t, w.End())
	}
	must(t, w.Close())
	return buf.Bytes()
}

func listContainer(t *testing.T, flavor archive.Flavor, data []byte) []testEntry {
	r, err := archive.OpenReader(flavor, bytes.NewReader(data))
	must(t, err)
	defer r.Close()

	var res []testEntry
	for {
		entry, er, err := r.Next()
		if err == io.EOF {
			break
		}
		must(t, err)
		content, err := ioutil.ReadAll(er)
		must(t, err)
		res = append(res, testEntry{name: entry.Name, dir: entry.IsDir, data: string(content)})
	}
	return res
}

func selector(t *testing.T, attrs selection.Attributes) *selection.Selector {
	s, err := selection.Compile("test", attrs, nil)
	must(t, err)
	return s
}

func action(t *testing.T, attrs selection.Attributes, target ProcessorRef, method string) *Action {
	a, err := NewAction(selector(t, attrs), target, method)
	must(t, err)
	return a
}

type pass struct {
	root   *scope.Scope
	store  *facts.Store
	output []byte
}

func runPass(t *testing.T, pp ContainerProcessor, name string, input []byte, mutate bool) (*pass, error) {
	store := facts.NewStore()
	root := scope.NewRoot("test", store, nil)
	params := &ContainerParams{
		Context: context.Background(),
		Name:    name,
		Input:   bytes.NewReader(input),
		Scope:   root,
	}
	out := new(bytes.Buffer)
	if mutate {
		params.Output = out
	}
	err := pp.Process(params)
	return &pass{root: root, store: store, output: out.Bytes()}, err
}

type upperProcessor struct{}

func (upperProcessor) Name() string { return "upper" }

func (upperProcessor) Mutates(method string) bool { return method == "rewrite" }

func (upperProcessor) Process(params *FileParams) error {
	data, err := ioutil.ReadAll(params.Input)
	if err != nil {
		return err
	}
	if params.Output != nil {
		_, err = io.WriteString(params.Output, strings.ToUpper(string(data)))
	}
	return err
}

type claimProcessor struct {
	values map[string]string
}

func (claimProcessor) Name() string { return "claim" }

func (claimProcessor) Mutates(method string) bool { return false }

func (cp claimProcessor) Process(params *FileParams) error {
	// read only part of the entry, the engine drains the rest
	buf := make([]byte, 1)
	params.Input.Read(buf)
	params.Scope.Associate("claim", params.Path, params.Path, cp.values)
	return nil
}

type removeProcessor struct {
	target string
}

func (removeProcessor) Name() string { return "remove" }

func (removeProcessor) Mutates(method string) bool { return false }

func (rp removeProcessor) Process(params *FileParams) error {
	params.Frame.Remove(rp.target)
	return nil
}

type brokenRewriter struct{}

func (brokenRewriter) Name() string { return "broken-rewriter" }

func (brokenRewriter) Mutates(method string) bool { return true }

func (brokenRewriter) Process(params *FileParams) error {
	_, err := io.WriteString(params.Output, "partial")
	if err != nil {
		return err
	}
	return errors.New("rewriter gave up halfway")
}

type failProcessor struct{}

func (failProcessor) Name() string { return "fail" }

func (failProcessor) Mutates(method string) bool { return false }

func (failProcessor) Process(params *FileParams) error {
	return errors.New("processor blew up")
}

var sampleEntries = []testEntry{
	{name: "data", dir: true},
	{name: "data/a.txt", data: "alpha"},
	{name: "data/b.bin", data: "\x00\x01\x02"},
	{name: "bagit.txt", data: "BagIt-Version: 1.0\n"},
}

func TestPassthroughIdempotence(t *testing.T) {
	for _, flavor := range []archive.Flavor{archive.FlavorZip, archive.FlavorTar, archive.FlavorTarGz} {
		input := buildContainer(t, flavor, sampleEntries)
		pp := NewPackageProcessor("package", nil)

		p, err := runPass(t, pp, "package."+flavor.String(), input, true)
		must(t, err)
		assert.Equal(t, sampleEntries, listContainer(t, flavor, p.output), flavor.String())
	}
}

func TestWarcPassthroughKeepsHeaders(t *testing.T) {
	input := "WARC/1.1\r\n" +
		"WARC-Type: resource\r\n" +
		"WARC-Target-URI: file:///a.txt\r\n" +
		"WARC-Block-Digest: sha1:AAAA\r\n" +
		"Content-Length: 5\r\n" +
		"\r\n" +
		"hello\r\n\r\n"

	pp := NewPackageProcessor("package", nil)
	p, err := runPass(t, pp, "crawl.warc", []byte(input), true)
	must(t, err)
	assert.Equal(t, input, string(p.output))

	// no WARC-Record-ID, so the record is known by its position
	snap := p.store.Drain()
	assert.Equal(t, "5", snap.Record("record-0").Value("size"))
}

func TestFileProcessMutates(t *testing.T) {
	input := buildContainer(t, archive.FlavorTar, sampleEntries)

	pp := NewPackageProcessor("package", nil)
	pp.AddAction(action(t, selection.Attributes{"name-re": ".*\\.txt"}, FileRef(upperProcessor{}), "rewrite"))

	p, err := runPass(t, pp, "package.tar", input, true)
	must(t, err)

	out := listContainer(t, archive.FlavorTar, p.output)
	assert.Equal(t, []testEntry{
		{name: "data", dir: true},
		{name: "data/a.txt", data: "ALPHA"},
		{name: "data/b.bin", data: "\x00\x01\x02"},
		{name: "bagit.txt", data: "BAGIT-VERSION: 1.0\n"},
	}, out)

	// digests describe the original bytes
	snap := p.store.Drain()
	assert.Equal(t, "2c1743a391305fbf367df8e4f069f9f9", snap.Record("data/a.txt").Value("md5"))
	assert.Nil(t, snap.Record("data"))
}

func TestReadOnlyProcessorInMutatingPass(t *testing.T) {
	input := buildContainer(t, archive.FlavorZip, sampleEntries)

	pp := NewPackageProcessor("package", nil)
	pp.AddAction(action(t, selection.Attributes{"name": "a.txt"}, FileRef(claimProcessor{values: map[string]string{"size": "5"}}), "extract"))

	p, err := runPass(t, pp, "package.zip", input, true)
	must(t, err)
	assert.Equal(t, sampleEntries, listContainer(t, archive.FlavorZip, p.output))

	snap := p.store.Drain()
	r := snap.Record("data/a.txt")
	assert.Equal(t, []string{"claim", facts.Calculated}, r.Claimants("size", "5"))
	assert.Empty(t, snap.Disagreements())
}

func TestFirstMatchWins(t *testing.T) {
	pp := NewPackageProcessor("package", nil)
	pp.AddAction(action(t, selection.Attributes{"name": "a.txt"}, FileRef(claimProcessor{values: map[string]string{"md5": "bogus"}}), "extract"))
	pp.AddAction(action(t, selection.Attributes{"name-re": ".*"}, FileRef(failProcessor{}), "extract"))

	only := buildContainer(t, archive.FlavorTar, []testEntry{{name: "data/a.txt", data: "alpha"}})
	p, err := runPass(t, pp, "package.tar", only, false)
	must(t, err)

	snap := p.store.Drain()
	assert.Equal(t, []string{"data/a.txt"}, snap.Disagreements())
	assert.NotZero(t, snap.Count(facts.Negative))
}

func TestNoDuplicateAfterRecurse(t *testing.T) {
	inner := buildContainer(t, archive.FlavorTar, []testEntry{{name: "note.txt", data: "inner"}})
	outer := buildContainer(t, archive.FlavorTar, []testEntry{
		{name: "x", dir: true},
		{name: "x/y.dat", data: string(inner)},
		{name: "x/y.dat", data: string(inner)},
		{name: "z.txt", data: "zed"},
	})

	nested := NewPackageProcessor("nested", nil)
	nested.AddAction(action(t, selection.Attributes{"name": "note.txt"}, FileRef(upperProcessor{}), "rewrite"))

	pp := NewPackageProcessor("package", nil)
	pp.AddAction(action(t, selection.Attributes{"location": "x", "name": "y.dat"}, ContainerRef(nested), MethodProcess))

	p, err := runPass(t, pp, "package.tar", outer, true)
	must(t, err)

	out := listContainer(t, archive.FlavorTar, p.output)
	var names []string
	for _, e := range out {
		names = append(names, e.name)
	}
	assert.Equal(t, []string{"x", "x/y.dat", "z.txt"}, names)

	rewritten := listContainer(t, archive.FlavorTar, []byte(out[1].data))
	assert.Equal(t, []testEntry{{name: "note.txt", data: "INNER"}}, rewritten)
}

func TestRecurseReadOnly(t *testing.T) {
	inner := buildContainer(t, archive.FlavorZip, []testEntry{{name: "a.txt", data: "alpha"}})
	outer := buildContainer(t, archive.FlavorTar, []testEntry{
		{name: "content/inner.zip", data: string(inner)},
	})

	nested := NewPackageProcessor("nested", nil)
	pp := NewPackageProcessor("package", nil)
	pp.AddAction(action(t, selection.Attributes{"name-re": ".*\\.zip"}, ContainerRef(nested), MethodProcess))

	p, err := runPass(t, pp, "package.tar", outer, false)
	must(t, err)
	assert.Empty(t, p.output)

	snap := p.store.Drain()
	assert.NotNil(t, snap.Record("content/inner.zip"))
	r := snap.Record("content/inner.zip/a.txt")
	if assert.NotNil(t, r) {
		assert.Equal(t, "5", r.Value("size"))
		assert.Equal(t, "2c1743a391305fbf367df8e4f069f9f9", r.Value("md5"))
	}

	packageScope := p.root.Find("package.tar")
	if assert.NotNil(t, packageScope) {
		assert.NotNil(t, packageScope.Find("content/inner.zip"))
	}
}

type recordingContainer struct {
	inner  ContainerProcessor
	caller *Frame
	// whether the caller was the nearest mutating pass at call time
	callerMutating bool
}

func (rc *recordingContainer) Name() string { return "recording" }

func (rc *recordingContainer) Process(params *ContainerParams) error {
	rc.caller = params.Caller
	rc.callerMutating = params.Caller.nearestMutating() == params.Caller
	return rc.inner.Process(params)
}

func TestCallerChain(t *testing.T) {
	inner := buildContainer(t, archive.FlavorTar, []testEntry{{name: "a.txt", data: "alpha"}})
	outer := buildContainer(t, archive.FlavorTar, []testEntry{{name: "inner.tar", data: string(inner)}})

	rc := &recordingContainer{inner: NewPackageProcessor("nested", nil)}
	pp := NewPackageProcessor("package", nil)
	pp.AddAction(action(t, selection.Attributes{"name": "inner.tar"}, ContainerRef(rc), MethodProcess))

	_, err := runPass(t, pp, "package.tar", outer, true)
	must(t, err)

	if assert.NotNil(t, rc.caller) {
		assert.Equal(t, pp, rc.caller.Processor())
		assert.Nil(t, rc.caller.Parent())
		assert.True(t, rc.callerMutating)
		assert.True(t, rc.caller.IsAdded("inner.tar"))
	}
}

func TestRemoveSuppressesPrefix(t *testing.T) {
	input := buildContainer(t, archive.FlavorTar, []testEntry{
		{name: "tmp/marker", data: "x"},
		{name: "tmp/junk.bin", data: "junk"},
		{name: "keep.txt", data: "keep"},
	})

	pp := NewPackageProcessor("package", nil)
	pp.AddAction(action(t, selection.Attributes{"name": "marker"}, FileRef(removeProcessor{target: "tmp/"}), "drop"))

	p, err := runPass(t, pp, "package.tar", input, true)
	must(t, err)
	assert.Equal(t, []testEntry{{name: "keep.txt", data: "keep"}}, listContainer(t, archive.FlavorTar, p.output))

	f := &Frame{removed: map[string]bool{"a/b": true}}
	assert.True(t, f.IsRemoved("a/b"))
	assert.True(t, f.IsRemoved("a/b/c/d"))
	assert.False(t, f.IsRemoved("a/bc"))
	assert.False(t, f.IsRemoved("a"))
}

func TestDirectoryActionFails(t *testing.T) {
	input := buildContainer(t, archive.FlavorTar, sampleEntries)

	pp := NewPackageProcessor("package", nil)
	pp.AddAction(action(t, selection.Attributes{"all": "true"}, FileRef(claimProcessor{}), "extract"))

	_, err := runPass(t, pp, "package.tar", input, false)
	var uoe *UnsupportedOperationError
	assert.True(t, errors.As(err, &uoe))
	assert.Equal(t, "data/", uoe.Path)
}

func TestProcessingErrorWraps(t *testing.T) {
	input := buildContainer(t, archive.FlavorTar, sampleEntries)

	pp := NewPackageProcessor("package", nil)
	pp.AddAction(action(t, selection.Attributes{"name": "b.bin"}, FileRef(failProcessor{}), "extract"))

	p, err := runPass(t, pp, "package.tar", input, false)
	var pe *ProcessingError
	if assert.True(t, errors.As(err, &pe)) {
		assert.Equal(t, "package.tar", pe.Container)
		assert.Equal(t, "data/b.bin", pe.Path)
		assert.Contains(t, err.Error(), "processor blew up")
	}

	// the scope is popped even on failure
	assert.NotNil(t, p.root.Find("package.tar"))
}

func TestUnknownContainerMethod(t *testing.T) {
	_, err := NewAction(selector(t, selection.Attributes{"name": "x.zip"}), ContainerRef(NewPackageProcessor("nested", nil)), "proces")

	var uoe *UnsupportedOperationError
	if assert.True(t, errors.As(err, &uoe)) {
		assert.Equal(t, "process", uoe.Suggestion)
		assert.Equal(t, "nested", uoe.Processor)
	}

	_, err = NewAction(selector(t, selection.Attributes{"name": "x"}), ProcessorRef{Kind: KindFile}, "extract")
	assert.Error(t, err)
	assert.Equal(t, "", Suggest("completely-different", []string{"process"}))
}

func TestSniffsUnnamedContainers(t *testing.T) {
	input := buildContainer(t, archive.FlavorZip, sampleEntries)
	pp := NewPackageProcessor("package", nil)

	p, err := runPass(t, pp, "no-extension", input, false)
	must(t, err)
	assert.Equal(t, 3, p.store.Len())

	_, err = runPass(t, pp, "no-extension", []byte("not a container"), false)
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	dir, err := ioutil.TempDir("", "engine-run")
	must(t, err)
	defer os.RemoveAll(dir)

	inputPath := filepath.Join(dir, "package.tar")
	must(t, ioutil.WriteFile(inputPath, buildContainer(t, archive.FlavorTar, sampleEntries), 0644))

	pp := NewPackageProcessor("package", nil)
	pp.AddAction(action(t, selection.Attributes{"name": "a.txt"}, FileRef(upperProcessor{}), "rewrite"))

	outputPath := filepath.Join(dir, "rewritten.tar")
	res, err := Run(&RunParams{
		InputPath:  inputPath,
		OutputPath: outputPath,
		Processor:  pp,
	})
	must(t, err)
	assert.Equal(t, archive.FlavorTar, res.Flavor)
	assert.Len(t, res.Facts.Records, 3)
	assert.NotNil(t, res.Scope.Find("package.tar"))

	written, err := ioutil.ReadFile(outputPath)
	must(t, err)
	assert.Equal(t, "ALPHA", listContainer(t, archive.FlavorTar, written)[1].data)

	_, err = Run(&RunParams{
		InputPath:  inputPath,
		OutputPath: filepath.Join(dir, "rewritten.zip"),
		Processor:  pp,
	})
	assert.True(t, errors.Is(err, archive.ErrFlavorMismatch))

	failing := NewPackageProcessor("package", nil)
	failing.AddAction(action(t, selection.Attributes{"name": "a.txt"}, FileRef(failProcessor{}), "extract"))
	failedPath := filepath.Join(dir, "failed.tar")
	_, err = Run(&RunParams{
		InputPath:  inputPath,
		OutputPath: failedPath,
		Processor:  failing,
	})
	assert.Error(t, err)
	_, err = os.Stat(failedPath)
	assert.True(t, os.IsNotExist(err))
}

func warcRecord(typ string, id string, uri string, block string) string {
	return "WARC/1.0\r\n" +
		"WARC-Type: " + typ + "\r\n" +
		"WARC-Record-ID: <" + id + ">\r\n" +
		"WARC-Target-URI: " + uri + "\r\n" +
		"Content-Length: " + strconv.Itoa(len(block)) + "\r\n" +
		"\r\n" +
		block + "\r\n\r\n"
}

func TestWarcRecordsSharingURI(t *testing.T) {
	input := warcRecord("request", "urn:uuid:req", "http://example.com/", "get / http/1.1\r\n\r\n") +
		warcRecord("response", "urn:uuid:resp", "http://example.com/", "HTTP/1.1 200 OK\r\n\r\nhi")

	pp := NewPackageProcessor("package", nil)
	pp.AddAction(action(t, selection.Attributes{"type": "request"}, FileRef(upperProcessor{}), "rewrite"))

	p, err := runPass(t, pp, "crawl.warc", []byte(input), false)
	must(t, err)
	snap := p.store.Drain()
	assert.Empty(t, snap.Disagreements())
	assert.NotNil(t, snap.Record("urn:uuid:req"))
	assert.NotNil(t, snap.Record("urn:uuid:resp"))

	p, err = runPass(t, pp, "crawl.warc", []byte(input), true)
	must(t, err)
	assert.Empty(t, p.store.Drain().Disagreements())

	out := listContainer(t, archive.FlavorWarc, p.output)
	assert.Equal(t, []testEntry{
		{name: "http://example.com/", data: "GET / HTTP/1.1\r\n\r\n"},
		{name: "http://example.com/", data: "HTTP/1.1 200 OK\r\n\r\nhi"},
	}, out)
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	leftovers, err := ioutil.ReadDir(dir)
	must(t, err)
	var names []string
	for _, fi := range leftovers {
		names = append(names, fi.Name())
	}
	assert.Empty(t, names)
}

func TestTempFilesRemovedOnFailure(t *testing.T) {
	inner := buildContainer(t, archive.FlavorTar, []testEntry{{name: "a.txt", data: "alpha"}})
	outer := buildContainer(t, archive.FlavorTar, []testEntry{
		{name: "inner.tar", data: string(inner)},
		{name: "b.txt", data: "beta"},
	})

	t.Run("nested container fails", func(t *testing.T) {
		dir, err := ioutil.TempDir("", "engine-temp")
		must(t, err)
		defer os.RemoveAll(dir)
		settings := &Settings{TempDir: dir}

		nested := NewPackageProcessor("nested", settings)
		nested.AddAction(action(t, selection.Attributes{"name": "a.txt"}, FileRef(failProcessor{}), "extract"))
		pp := NewPackageProcessor("package", settings)
		pp.AddAction(action(t, selection.Attributes{"name": "inner.tar"}, ContainerRef(nested), MethodProcess))

		_, err = runPass(t, pp, "package.tar", outer, true)
		assert.Error(t, err)
		assertEmptyDir(t, dir)
	})

	t.Run("mutating file processor fails", func(t *testing.T) {
		dir, err := ioutil.TempDir("", "engine-temp")
		must(t, err)
		defer os.RemoveAll(dir)

		pp := NewPackageProcessor("package", &Settings{TempDir: dir})
		pp.AddAction(action(t, selection.Attributes{"name": "b.txt"}, FileRef(brokenRewriter{}), "rewrite"))

		_, err = runPass(t, pp, "package.tar", outer, true)
		assert.Error(t, err)
		assertEmptyDir(t, dir)
	})

	t.Run("success", func(t *testing.T) {
		dir, err := ioutil.TempDir("", "engine-temp")
		must(t, err)
		defer os.RemoveAll(dir)
		settings := &Settings{TempDir: dir}

		nested := NewPackageProcessor("nested", settings)
		nested.AddAction(action(t, selection.Attributes{"name": "a.txt"}, FileRef(upperProcessor{}), "rewrite"))
		pp := NewPackageProcessor("package", settings)
		pp.AddAction(action(t, selection.Attributes{"name": "inner.tar"}, ContainerRef(nested), MethodProcess))

		_, err = runPass(t, pp, "package.tar", outer, true)
		must(t, err)
		assertEmptyDir(t, dir)
	})
}

func TestAddedNamesAreNormalized(t *testing.T) {
	inner := buildContainer(t, archive.FlavorTar, []testEntry{{name: "note.txt", data: "inner"}})
	outer := buildContainer(t, archive.FlavorTar, []testEntry{
		{name: "./x/y.dat", data: string(inner)},
		{name: "./x/", dir: true},
		{name: "x//y.dat", data: string(inner)},
		{name: "z.txt", data: "zed"},
	})

	nested := NewPackageProcessor("nested", nil)
	pp := NewPackageProcessor("package", nil)
	pp.AddAction(action(t, selection.Attributes{"name": "y.dat"}, ContainerRef(nested), MethodProcess))

	p, err := runPass(t, pp, "package.tar", outer, true)
	must(t, err)

	var names []string
	for _, e := range listContainer(t, archive.FlavorTar, p.output) {
		names = append(names, e.name)
	}
	assert.Equal(t, []string{"./x/y.dat", "z.txt"}, names)

	f := &Frame{added: map[string]bool{}, removed: map[string]bool{}}
	f.markAdded(&archive.Entry{Name: "./x/y.dat"})
	assert.True(t, f.IsAdded("x"))
	assert.True(t, f.IsAdded("./x/"))
	assert.True(t, f.IsAdded("x//y.dat"))
	assert.False(t, f.IsAdded("y.dat"))

	f.Remove("./tmp/")
	assert.True(t, f.IsRemoved("tmp/junk"))
	assert.True(t, f.IsRemoved("./tmp/junk"))

	// records have no hierarchy, only their ID counts
	f.markAdded(&archive.Entry{Name: "http://example.com/a", ID: "urn:uuid:1"})
	assert.True(t, f.isAddedEntry(&archive.Entry{Name: "http://example.com/a", ID: "urn:uuid:1"}))
	assert.False(t, f.isAddedEntry(&archive.Entry{Name: "http://example.com/a", ID: "urn:uuid:2"}))
	assert.False(t, f.IsAdded("http:"))

	f.RemoveEntry(&archive.Entry{Name: "http://example.com/b", ID: "urn:uuid:3"})
	assert.True(t, f.isRemovedEntry(&archive.Entry{Name: "http://example.com/b", ID: "urn:uuid:3"}))
	assert.False(t, f.isRemovedEntry(&archive.Entry{Name: "http://example.com/b", ID: "urn:uuid:4"}))
}

func TestSkippedDuplicatesKeepFacts(t *testing.T) {
	input := buildContainer(t, archive.FlavorTar, []testEntry{
		{name: "a.txt", data: "alpha"},
		{name: "a.txt", data: "beta"},
	})

	pp := NewPackageProcessor("package", nil)
	pp.AddAction(action(t, selection.Attributes{"name": "a.txt"}, FileRef(upperProcessor{}), "rewrite"))

	readOnly, err := runPass(t, pp, "package.tar", input, false)
	must(t, err)
	mutating, err := runPass(t, pp, "package.tar", input, true)
	must(t, err)

	assert.Equal(t, []string{"a.txt"}, readOnly.store.Drain().Disagreements())
	assert.Equal(t, []string{"a.txt"}, mutating.store.Drain().Disagreements())
	assert.Equal(t, []testEntry{{name: "a.txt", data: "ALPHA"}}, listContainer(t, archive.FlavorTar, mutating.output))
}
