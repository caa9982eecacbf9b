package processors

import (
	"github.com/kbarchive/curator/engine"
)

// drop removes matched entries from the output of a mutating pass
type drop struct {
	name string
}

func newDrop(name string, options Options) (engine.FileProcessor, error) {
	var opts struct{}
	err := decodeOptions(name, options, &opts)
	if err != nil {
		return nil, err
	}
	return &drop{name: name}, nil
}

func (d *drop) Name() string {
	return d.name
}

func (d *drop) Mutates(method string) bool {
	return false
}

func (d *drop) Process(params *engine.FileParams) error {
	if !params.Frame.Mutating() {
		params.Scope.Consumer().Debugf("%s: would drop (%s)", d.name, params.Path)
		return nil
	}
	params.Frame.RemoveEntry(params.Entry)
	params.Scope.Consumer().Infof("%s: dropping (%s)", d.name, params.Path)
	return nil
}
