// Package processors holds the file processors actions can target.
package processors

import (
	"sort"

	"github.com/kbarchive/curator/engine"
	"github.com/kbarchive/curator/selection"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Options are the raw settings of a processor definition
type Options map[string]interface{}

type factory func(name string, options Options) (engine.FileProcessor, error)

var factories = map[string]factory{
	"manifest":   newManifest,
	"replace":    newReplace,
	"drop":       newDrop,
	"properties": newProperties,
	"identify":   newIdentify,
}

// Kinds lists the file processor kinds, sorted
func Kinds() []string {
	var res []string
	for k := range factories {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}

// New builds a file processor of the given kind.
func New(kind string, name string, options Options) (engine.FileProcessor, error) {
	f, ok := factories[kind]
	if !ok {
		reason := "unknown processor kind"
		if s := engine.Suggest(kind, Kinds()); s != "" {
			reason += ", did you mean " + s + "?"
		}
		return nil, &selection.ConfigurationError{Attribute: kind, Reason: reason}
	}
	return f(name, options)
}

func decodeOptions(name string, options Options, result interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           result,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	err = decoder.Decode(map[string]interface{}(options))
	if err != nil {
		return &selection.ConfigurationError{Attribute: name, Reason: err.Error()}
	}
	return nil
}
