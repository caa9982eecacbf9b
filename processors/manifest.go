package processors

import (
	"bufio"
	"path"
	"regexp"
	"strings"

	"github.com/kbarchive/curator/archive"
	"github.com/kbarchive/curator/digest"
	"github.com/kbarchive/curator/engine"
	"github.com/pkg/errors"
)

type manifestOptions struct {
	// Algorithm overrides the one guessed from the file name
	Algorithm string `mapstructure:"algorithm"`
}

// manifest reads checksum manifests (BagIt manifest-<alg>.txt,
// md5sum-style *.md5) and claims a digest for every listed path.
type manifest struct {
	name string
	opts manifestOptions
}

var manifestNameRe = regexp.MustCompile(`(?i)^(?:tag)?manifest-([a-z0-9]+)\.txt$`)

func newManifest(name string, options Options) (engine.FileProcessor, error) {
	m := &manifest{name: name}
	err := decodeOptions(name, options, &m.opts)
	if err != nil {
		return nil, err
	}
	if m.opts.Algorithm != "" {
		_, err = digest.New(m.opts.Algorithm)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *manifest) Name() string {
	return m.name
}

func (m *manifest) Mutates(method string) bool {
	return false
}

func (m *manifest) algorithm(entryName string) string {
	if m.opts.Algorithm != "" {
		return strings.ToLower(m.opts.Algorithm)
	}
	base := path.Base(entryName)
	if matches := manifestNameRe.FindStringSubmatch(base); matches != nil {
		return strings.ToLower(matches[1])
	}
	if ext := strings.TrimPrefix(path.Ext(base), "."); ext != "" {
		if _, err := digest.New(ext); err == nil {
			return strings.ToLower(ext)
		}
	}
	return ""
}

func (m *manifest) Process(params *engine.FileParams) error {
	consumer := params.Scope.Consumer()

	alg := m.algorithm(params.Entry.Name)
	if alg == "" {
		return errors.Errorf("%s: cannot tell digest algorithm of manifest (%s)", m.name, params.Entry.Name)
	}

	base := path.Dir(params.Path)
	if base == "." {
		base = ""
	} else {
		base += "/"
	}

	scanner := bufio.NewScanner(params.Input)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lines := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			consumer.Warnf("%s: malformed line in (%s): %s", m.name, params.Path, line)
			continue
		}
		checksum := strings.ToLower(fields[0])
		// md5sum marks binary mode with a star
		listed := strings.TrimPrefix(strings.TrimLeft(fields[1], " "), "*")

		provided := base + listed
		normalized := base + archive.RelativePath(archive.CleanFileName(strings.Replace(listed, `\`, "/", -1)))
		params.Scope.Associate(m.name, normalized, provided, map[string]string{alg: checksum})
		lines++
	}
	err := scanner.Err()
	if err != nil {
		return errors.Wrapf(err, "reading manifest (%s)", params.Path)
	}

	consumer.Debugf("%s: (%s) lists %d %s digests", m.name, params.Path, lines, alg)
	return nil
}
