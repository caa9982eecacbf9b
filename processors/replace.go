package processors

import (
	"io"
	"os"

	"github.com/kbarchive/curator/digest"
	"github.com/kbarchive/curator/engine"
	"github.com/kbarchive/curator/selection"
	"github.com/pkg/errors"
)

type replaceOptions struct {
	Resource string `mapstructure:"resource"`
}

// replace swaps an entry's content for a resource file. The action's
// own resource attribute wins over the processor's.
type replace struct {
	name string
	opts replaceOptions
}

func newReplace(name string, options Options) (engine.FileProcessor, error) {
	r := &replace{name: name}
	err := decodeOptions(name, options, &r.opts)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *replace) Name() string {
	return r.name
}

func (r *replace) Mutates(method string) bool {
	return method == selection.MethodProcess
}

func (r *replace) resource(params *engine.FileParams) string {
	if params.Action != nil && params.Action.Selector.Resource != "" {
		return params.Action.Selector.Resource
	}
	return r.opts.Resource
}

func (r *replace) Process(params *engine.FileParams) error {
	consumer := params.Scope.Consumer()

	resourcePath := r.resource(params)
	if resourcePath == "" {
		return &selection.ConfigurationError{Attribute: "resource", Reason: r.name + " needs a resource to replace entries with"}
	}

	f, err := os.Open(resourcePath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	dr, err := digest.NewReader(f, []string{digest.SHA256})
	if err != nil {
		return err
	}

	if params.Output == nil {
		// read-only pass: only describe what would be written
		err = dr.Drain()
		if err != nil {
			return errors.WithStack(err)
		}
	} else {
		_, err = io.Copy(params.Output, dr)
		if err != nil {
			return errors.Wrapf(err, "replacing (%s)", params.Path)
		}
		consumer.Infof("%s: replaced (%s) with (%s)", r.name, params.Path, resourcePath)
	}

	sums := dr.Sum()
	params.Scope.Associate(r.name, params.Path, params.Path, map[string]string{
		"replacement-size":   sums[digest.SizeKey],
		"replacement-sha256": sums[digest.SHA256],
	})
	return nil
}
