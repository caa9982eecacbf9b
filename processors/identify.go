package processors

import (
	"bytes"
	"io"
	"net/http"

	"github.com/kbarchive/curator/archive"
	"github.com/kbarchive/curator/engine"
	"github.com/pkg/errors"
)

// identify records what kind of entry it sees: its container
// type, media type, and nested container flavor if any.
type identify struct {
	name string
}

func newIdentify(name string, options Options) (engine.FileProcessor, error) {
	var opts struct{}
	err := decodeOptions(name, options, &opts)
	if err != nil {
		return nil, err
	}
	return &identify{name: name}, nil
}

func (id *identify) Name() string {
	return id.name
}

func (id *identify) Mutates(method string) bool {
	return false
}

func (id *identify) Process(params *engine.FileParams) error {
	head := make([]byte, 512)
	n, err := io.ReadFull(params.Input, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return errors.WithStack(err)
	}
	head = head[:n]

	values := map[string]string{
		"entry-type": params.Entry.Type,
		"media-type": http.DetectContentType(head),
	}

	flavor := archive.ProbeFlavor(params.Entry.Name)
	if flavor == archive.FlavorNone {
		flavor = archive.Sniff(bytes.NewReader(head), int64(len(head)))
	}
	if flavor != archive.FlavorNone {
		values["container-flavor"] = flavor.String()
	}

	params.Scope.Associate(id.name, params.Path, params.Path, values)
	return nil
}
