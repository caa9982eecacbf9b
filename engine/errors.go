package engine

import (
	"fmt"
	"sort"

	"github.com/arbovm/levenshtein"
)

// UnsupportedOperationError is returned for unknown methods on container
// processors, and for actions selecting directory entries.
type UnsupportedOperationError struct {
	Processor  string
	Method     string
	Path       string
	Suggestion string
}

func (e *UnsupportedOperationError) Error() string {
	msg := fmt.Sprintf("processor (%s) does not support method (%s)", e.Processor, e.Method)
	if e.Path != "" {
		msg = fmt.Sprintf("%s on (%s)", msg, e.Path)
	}
	if e.Suggestion != "" {
		msg = fmt.Sprintf("%s, did you mean (%s)?", msg, e.Suggestion)
	}
	return msg
}

// ProcessingError aborts a container pass. Any output produced
// by the pass must be discarded.
type ProcessingError struct {
	Container string
	Path      string
	Err       error
}

func (e *ProcessingError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("processing (%s): %s", e.Container, e.Err.Error())
	}
	return fmt.Sprintf("processing (%s) in (%s): %s", e.Path, e.Container, e.Err.Error())
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

func (e *ProcessingError) Cause() error {
	return e.Err
}

const maxSuggestionDistance = 3

// Suggest returns the known name closest to candidate, or an empty
// string if none is close enough.
func Suggest(candidate string, known []string) string {
	sorted := append([]string(nil), known...)
	sort.Strings(sorted)

	best := ""
	bestDistance := maxSuggestionDistance + 1
	for _, k := range sorted {
		d := levenshtein.Distance(candidate, k)
		if d < bestDistance {
			best, bestDistance = k, d
		}
	}
	return best
}
