package engine

import (
	"github.com/kbarchive/curator/selection"
	"github.com/pkg/errors"
)

// MethodProcess recurses into a nested container when targeting
// a container processor.
const MethodProcess = selection.MethodProcess

var containerMethods = []string{MethodProcess}

// Action binds a selector to a processor and method.
type Action struct {
	Selector *selection.Selector
	Target   ProcessorRef
	Method   string
}

// NewAction validates the binding: container processors only know
// how to process.
func NewAction(selector *selection.Selector, target ProcessorRef, method string) (*Action, error) {
	if selector == nil {
		return nil, &selection.ConfigurationError{Reason: "action has no selector"}
	}
	if !target.valid() {
		return nil, &selection.ConfigurationError{Attribute: "target", Reason: "action has no valid processor"}
	}
	if method == "" {
		return nil, &selection.ConfigurationError{Attribute: "method", Reason: "action has no method"}
	}

	a := &Action{
		Selector: selector,
		Target:   target,
		Method:   method,
	}
	err := a.checkMethod("")
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Action) checkMethod(path string) error {
	if a.Target.Kind != KindContainer {
		return nil
	}
	for _, m := range containerMethods {
		if a.Method == m {
			return nil
		}
	}
	return errors.WithStack(&UnsupportedOperationError{
		Processor:  a.Target.Name(),
		Method:     a.Method,
		Path:       path,
		Suggestion: Suggest(a.Method, containerMethods),
	})
}

func (a *Action) String() string {
	return a.Method + " " + a.Target.Name() + " " + a.Selector.String()
}
