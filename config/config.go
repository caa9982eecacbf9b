// Package config loads processor definitions and binds them
// into a ready-to-run structure engine.
package config

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/kbarchive/curator/processors"
	"github.com/kbarchive/curator/selection"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v3"
)

// KindContainer defines a package processor, which recurses
// through container structures.
const KindContainer = "container"

type Format int

const (
	FormatTOML Format = iota
	FormatYAML
)

// FormatFor picks a format by file extension, TOML being the default
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatTOML
}

type Config struct {
	// Root names the container processor packages are handed to
	Root       string            `mapstructure:"root"`
	TempDir    string            `mapstructure:"temp-dir"`
	Digests    []string          `mapstructure:"digests"`
	Processors []ProcessorConfig `mapstructure:"processor"`
}

type ProcessorConfig struct {
	Name    string             `mapstructure:"name"`
	Kind    string             `mapstructure:"kind"`
	Options processors.Options `mapstructure:"options"`
	Actions []ActionConfig     `mapstructure:"action"`
}

type ActionConfig struct {
	Method string `mapstructure:"method"`
	Target string `mapstructure:"target"`
	// Selector holds every other key: location, name, name-re...
	Selector map[string]interface{} `mapstructure:",remain"`
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.Processors, validation.Required),
	)
}

func (p ProcessorConfig) Validate() error {
	var kinds []interface{}
	for _, k := range append(processors.Kinds(), KindContainer) {
		kinds = append(kinds, k)
	}

	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.Kind, validation.Required, validation.In(kinds...)),
		validation.Field(&p.Actions),
	)
}

func (a ActionConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Method, validation.Required),
		validation.Field(&a.Target, validation.Required),
	)
}

// Attributes turns the leftover action keys into selector attributes
func (a ActionConfig) Attributes() selection.Attributes {
	attrs := make(selection.Attributes, len(a.Selector))
	for k, v := range a.Selector {
		attrs[k] = fmt.Sprintf("%v", v)
	}
	return attrs
}

// Load reads and validates a configuration file
func Load(path string) (*Config, error) {
	format := FormatFor(path)

	var intermediate map[string]interface{}
	switch format {
	case FormatTOML:
		_, err := toml.DecodeFile(path, &intermediate)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing (%s)", path)
		}
	default:
		data, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		err = yaml.Unmarshal(data, &intermediate)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing (%s)", path)
		}
	}

	cfg, err := decode(intermediate)
	if err != nil {
		return nil, errors.Wrapf(err, "loading (%s)", path)
	}
	return cfg, nil
}

// Parse reads and validates configuration from memory
func Parse(data []byte, format Format) (*Config, error) {
	var intermediate map[string]interface{}
	var err error
	switch format {
	case FormatTOML:
		_, err = toml.Decode(string(data), &intermediate)
	default:
		err = yaml.Unmarshal(data, &intermediate)
	}
	if err != nil {
		return nil, errors.Wrap(err, "parsing configuration")
	}
	return decode(intermediate)
}

func decode(intermediate map[string]interface{}) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	err = decoder.Decode(intermediate)
	if err != nil {
		return nil, &selection.ConfigurationError{Reason: err.Error()}
	}

	err = cfg.Validate()
	if err != nil {
		return nil, &selection.ConfigurationError{Reason: err.Error()}
	}
	return cfg, nil
}

// ProcessorNames lists every defined processor, sorted
func (c *Config) ProcessorNames() []string {
	var res []string
	for _, p := range c.Processors {
		res = append(res, p.Name)
	}
	sort.Strings(res)
	return res
}
