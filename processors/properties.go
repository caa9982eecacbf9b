package processors

import (
	"bufio"
	"path"
	"strings"

	"github.com/kbarchive/curator/engine"
	"github.com/pkg/errors"
)

type propertiesOptions struct {
	// Target is the path claims are made about. Defaults to the
	// directory holding the properties file.
	Target string `mapstructure:"target"`
	// Prefix is prepended to every key
	Prefix string `mapstructure:"prefix"`
}

// properties reads "key: value" or "key=value" metadata files, like
// bag-info.txt or java .properties
type properties struct {
	name string
	opts propertiesOptions
}

func newProperties(name string, options Options) (engine.FileProcessor, error) {
	p := &properties{name: name}
	err := decodeOptions(name, options, &p.opts)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *properties) Name() string {
	return p.name
}

func (p *properties) Mutates(method string) bool {
	return false
}

func (p *properties) target(params *engine.FileParams) string {
	if p.opts.Target != "" {
		return p.opts.Target
	}
	dir := path.Dir(params.Path)
	if dir == "." {
		return "/"
	}
	return dir
}

// ParseProperties reads key/value lines. Lines starting with
// whitespace continue the previous value.
func ParseProperties(scanner *bufio.Scanner) (map[string]string, []string, error) {
	values := make(map[string]string)
	var order []string
	last := ""

	for scanner.Scan() {
		raw := scanner.Text()
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}

		if (raw[0] == ' ' || raw[0] == '\t') && last != "" {
			values[last] += " " + line
			continue
		}

		i := strings.IndexAny(line, ":=")
		if i <= 0 {
			return nil, nil, errors.Errorf("malformed property line: %s", line)
		}
		key := strings.TrimSpace(line[:i])
		value := strings.TrimSpace(line[i+1:])
		if _, ok := values[key]; ok {
			// repeated keys accumulate, as bag-info allows
			values[key] += ", " + value
		} else {
			values[key] = value
			order = append(order, key)
		}
		last = key
	}
	return values, order, scanner.Err()
}

func (p *properties) Process(params *engine.FileParams) error {
	values, order, err := ParseProperties(bufio.NewScanner(params.Input))
	if err != nil {
		return errors.Wrapf(err, "%s: reading (%s)", p.name, params.Path)
	}

	if p.opts.Prefix != "" {
		prefixed := make(map[string]string, len(values))
		for k, v := range values {
			prefixed[p.opts.Prefix+k] = v
		}
		values = prefixed
	}

	target := p.target(params)
	params.Scope.Associate(p.name, target, target, values)
	params.Scope.Consumer().Debugf("%s: %d properties from (%s) about (%s)", p.name, len(order), params.Path, target)
	return nil
}
