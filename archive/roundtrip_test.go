package archive

import (
	"bytes"
	"io"
	"io/ioutil"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type testEntry struct {
	name  string
	dir   bool
	data  string
	typ   string
	extra Header
}

func writeContainer(t *testing.T, flavor Flavor, entries []testEntry) []byte {
	buf := new(bytes.Buffer)
	w, err := NewWriter(flavor, buf)
	must(t, err)

	for _, te := range entries {
		typ := te.typ
		if typ == "" {
			typ = TypeFile
			if te.dir {
				typ = TypeDir
			}
		}
		size := int64(len(te.data))
		if te.dir {
			size = 0
		}
		ew, err := w.Begin(&Entry{
			Name:   te.name,
			IsDir:  te.dir,
			Size:   size,
			Type:   typ,
			Mode:   0644,
			Header: te.extra,
		})
		must(t, err)
		if !te.dir {
			_, err = io.WriteString(ew, te.data)
			must(t, err)
		}
		must(t, w.End())
	}
	must(t, w.Close())
	return buf.Bytes()
}

func readContainer(t *testing.T, flavor Flavor, data []byte) ([]*Entry, []string) {
	r, err := OpenReader(flavor, bytes.NewReader(data))
	must(t, err)
	defer r.Close()

	var entries []*Entry
	var contents []string
	for {
		entry, er, err := r.Next()
		if err == io.EOF {
			break
		}
		must(t, err)
		content, err := ioutil.ReadAll(er)
		must(t, err)
		c := *entry
		entries = append(entries, &c)
		contents = append(contents, string(content))
	}
	return entries, contents
}

func TestRoundTrip(t *testing.T) {
	entries := []testEntry{
		{name: "data", dir: true},
		{name: "data/hello.txt", data: "hello world"},
		{name: "data/empty.txt", data: ""},
		{name: "bagit.txt", data: "BagIt-Version: 1.0\n"},
	}

	for _, flavor := range []Flavor{FlavorZip, FlavorJar, FlavorTar, FlavorTarGz} {
		data := writeContainer(t, flavor, entries)
		got, contents := readContainer(t, flavor, data)

		if !assert.Len(t, got, len(entries), flavor.String()) {
			continue
		}
		for i, te := range entries {
			assert.Equal(t, te.name, got[i].Name, flavor.String())
			assert.Equal(t, te.dir, got[i].IsDir, flavor.String())
			if !te.dir {
				assert.Equal(t, te.data, contents[i], flavor.String())
				assert.EqualValues(t, len(te.data), got[i].Size, flavor.String())
				assert.Equal(t, TypeFile, got[i].Type, flavor.String())
			} else {
				assert.Equal(t, TypeDir, got[i].Type, flavor.String())
				assert.Equal(t, "data/", got[i].MatchPath())
			}
		}
	}
}

func TestWarcRoundTrip(t *testing.T) {
	entries := []testEntry{
		{
			name: "urn:uuid:info", data: "software: curator\r\n", typ: "warcinfo",
			extra: Header{
				{Name: "WARC-Type", Value: "warcinfo"},
				{Name: "WARC-Record-ID", Value: "<urn:uuid:info>"},
			},
		},
		{
			name: "http://example.com/", data: "<html></html>", typ: "response",
			extra: Header{
				{Name: "WARC-Type", Value: "response"},
				{Name: "WARC-Target-URI", Value: "http://example.com/"},
				{Name: "WARC-Date", Value: "2020-01-02T03:04:05Z"},
			},
		},
	}

	for _, flavor := range []Flavor{FlavorWarc, FlavorWarcGz} {
		data := writeContainer(t, flavor, entries)
		got, contents := readContainer(t, flavor, data)

		if !assert.Len(t, got, 2, flavor.String()) {
			continue
		}
		assert.Equal(t, "urn:uuid:info", got[0].Name)
		assert.Equal(t, "urn:uuid:info", got[0].ID)
		assert.Equal(t, "urn:uuid:info", got[0].Key())
		assert.Equal(t, "record-1", got[1].ID)
		assert.Equal(t, "warcinfo", got[0].Type)
		assert.Equal(t, "software: curator\r\n", contents[0])

		assert.Equal(t, "http://example.com/", got[1].Name)
		assert.Equal(t, "response", got[1].Type)
		assert.Equal(t, "<html></html>", contents[1])
		assert.EqualValues(t, 13, got[1].Size)
		assert.Equal(t, "WARC/1.0", got[1].Version)
		assert.Equal(t, "13", got[1].Header.Get("content-length"))
		assert.Equal(t, 2020, got[1].ModTime.Year())
	}
}

func TestWarcSkipsUnreadBlocks(t *testing.T) {
	input := "WARC/1.1\r\n" +
		"WARC-Type: resource\r\n" +
		"WARC-Target-URI: file:///a\r\n" +
		"Content-Length: 3\r\n" +
		"\r\n" +
		"abc\r\n\r\n" +
		"WARC/1.1\r\n" +
		"WARC-Type: metadata\r\n" +
		"WARC-Target-URI: file:///b\r\n" +
		"X-Folded: first\r\n" +
		"  second\r\n" +
		"Content-Length: 2\r\n" +
		"\r\n" +
		"de\r\n\r\n"

	r, err := OpenReader(FlavorWarc, strings.NewReader(input))
	must(t, err)

	entry, _, err := r.Next()
	must(t, err)
	assert.Equal(t, "file:///a", entry.Name)
	assert.Equal(t, "record-0", entry.ID)

	entry, er, err := r.Next()
	must(t, err)
	assert.Equal(t, "file:///b", entry.Name)
	assert.Equal(t, "metadata", entry.Type)
	assert.Equal(t, "first second", entry.Header.Get("X-Folded"))
	content, err := ioutil.ReadAll(er)
	must(t, err)
	assert.Equal(t, "de", string(content))

	_, _, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestWarcRejectsMissingLength(t *testing.T) {
	input := "WARC/1.0\r\nWARC-Type: resource\r\n\r\nabc\r\n\r\n"
	r, err := OpenReader(FlavorWarc, strings.NewReader(input))
	must(t, err)

	_, _, err = r.Next()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Content-Length")
}

func TestWarcWriterChecksLength(t *testing.T) {
	buf := new(bytes.Buffer)
	w, err := NewWriter(FlavorWarc, buf)
	must(t, err)

	ew, err := w.Begin(&Entry{Name: "file:///short", Size: 10})
	must(t, err)
	_, err = io.WriteString(ew, "abc")
	must(t, err)
	assert.Error(t, w.End())

	_, err = w.Begin(&Entry{Name: "file:///unknown", Size: -1})
	assert.Error(t, err)
}

func TestWarcReplacedDropsDigests(t *testing.T) {
	original := &Entry{
		Name: "file:///a",
		Size: 3,
		Header: Header{
			{Name: "WARC-Type", Value: "resource"},
			{Name: "WARC-Block-Digest", Value: "sha1:XXXX"},
		},
	}

	buf := new(bytes.Buffer)
	w, err := NewWriter(FlavorWarc, buf)
	must(t, err)
	ew, err := w.Begin(original.WithSize(5))
	must(t, err)
	_, err = io.WriteString(ew, "hello")
	must(t, err)
	must(t, w.End())
	must(t, w.Close())

	out := buf.String()
	assert.NotContains(t, out, "WARC-Block-Digest")
	assert.Contains(t, out, "Content-Length: 5\r\n")
	assert.Len(t, original.Header, 2)
}

func TestZipNeedsRandomAccess(t *testing.T) {
	_, err := OpenReader(FlavorZip, strings.NewReader("PK"))
	assert.Error(t, err)
}
