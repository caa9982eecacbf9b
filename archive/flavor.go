package archive

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/itchio/wharf/eos"
	"github.com/itchio/wharf/state"
	"github.com/klauspost/compress/gzip"
)

// Flavor is the concrete format of a container
type Flavor int

const (
	FlavorNone Flavor = 0

	FlavorZip Flavor = 100
	FlavorJar Flavor = 101

	FlavorTar   Flavor = 200
	FlavorTarGz Flavor = 201

	FlavorWarc   Flavor = 300
	FlavorWarcGz Flavor = 301
)

func (f Flavor) String() string {
	switch f {
	case FlavorZip:
		return "zip"
	case FlavorJar:
		return "jar"
	case FlavorTar:
		return "tar"
	case FlavorTarGz:
		return "tar.gz"
	case FlavorWarc:
		return "warc"
	case FlavorWarcGz:
		return "warc.gz"
	}
	return "none"
}

// NeedsRandomAccess is true for flavors whose index lives
// at the end of the file.
func (f Flavor) NeedsRandomAccess() bool {
	return f == FlavorZip || f == FlavorJar
}

// ProbeFlavor guesses a container flavor from a file name
func ProbeFlavor(name string) Flavor {
	lowerName := strings.ToLower(name)
	ext := filepath.Ext(lowerName)
	if strings.HasSuffix(lowerName, ".tar"+ext) || strings.HasSuffix(lowerName, ".warc"+ext) {
		ext = filepath.Ext(strings.TrimSuffix(lowerName, ext)) + ext
	}

	switch ext {
	case ".zip":
		return FlavorZip
	case ".jar", ".war", ".ear":
		return FlavorJar
	case ".tar":
		return FlavorTar
	case ".tar.gz", ".tgz":
		return FlavorTarGz
	case ".warc":
		return FlavorWarc
	case ".warc.gz":
		return FlavorWarcGz
	}
	return FlavorNone
}

// ProbeFile determines the flavor of an opened file, by name first,
// then by sniffing its first bytes.
func ProbeFile(file eos.File, consumer *state.Consumer) Flavor {
	stats, err := file.Stat()
	if err != nil {
		consumer.Warnf("archive: Could not stat file, giving up: %s", err.Error())
		return FlavorNone
	}

	if flavor := ProbeFlavor(stats.Name()); flavor != FlavorNone {
		return flavor
	}

	flavor := Sniff(file, stats.Size())
	if flavor == FlavorNone {
		consumer.Warnf("archive: Unfamiliar container (%s)", stats.Name())
	} else {
		consumer.Debugf("archive: (%s) sniffed as %s", stats.Name(), flavor)
	}
	return flavor
}

const sniffLen = 512

var (
	zipMagic  = []byte("PK\x03\x04")
	zipEmpty  = []byte("PK\x05\x06")
	gzipMagic = []byte{0x1f, 0x8b}
	warcMagic = []byte("WARC/")
	tarMagic  = []byte("ustar")
)

// Sniff looks at the first bytes of a container to guess its flavor
func Sniff(ra io.ReaderAt, size int64) Flavor {
	buf := make([]byte, sniffLen)
	n, _ := ra.ReadAt(buf, 0)
	buf = buf[:n]

	if bytes.HasPrefix(buf, gzipMagic) {
		gr, err := gzip.NewReader(io.NewSectionReader(ra, 0, size))
		if err != nil {
			return FlavorNone
		}
		defer gr.Close()

		inner := make([]byte, sniffLen)
		n, _ := io.ReadFull(gr, inner)
		switch sniffPlain(inner[:n]) {
		case FlavorTar:
			return FlavorTarGz
		case FlavorWarc:
			return FlavorWarcGz
		}
		return FlavorNone
	}

	return sniffPlain(buf)
}

func sniffPlain(buf []byte) Flavor {
	switch {
	case bytes.HasPrefix(buf, zipMagic), bytes.HasPrefix(buf, zipEmpty):
		return FlavorZip
	case bytes.HasPrefix(buf, warcMagic):
		return FlavorWarc
	case len(buf) >= 262 && bytes.Equal(buf[257:262], tarMagic):
		return FlavorTar
	}
	return FlavorNone
}
