package engine

import (
	"strings"

	"github.com/kbarchive/curator/archive"
)

// Frame is the state of one active container pass. Frames point back
// to the pass that recursed into them, never the other way around.
type Frame struct {
	processor *PackageProcessor
	name      string
	prefix    string
	writer    archive.Writer

	added   map[string]bool
	removed map[string]bool

	parent *Frame
}

func newFrame(processor *PackageProcessor, params *ContainerParams) *Frame {
	return &Frame{
		processor: processor,
		name:      params.Name,
		prefix:    params.Prefix,
		added:     make(map[string]bool),
		removed:   make(map[string]bool),
		parent:    params.Caller,
	}
}

// Name is the container name of the pass
func (f *Frame) Name() string {
	return f.name
}

func (f *Frame) Processor() *PackageProcessor {
	return f.processor
}

// Parent is the calling pass, nil at the top level
func (f *Frame) Parent() *Frame {
	return f.parent
}

// Mutating is true when the pass writes an output container
func (f *Frame) Mutating() bool {
	return f.writer != nil
}

// Remove suppresses an entry, and everything under it, from the output.
func (f *Frame) Remove(name string) {
	f.removed[archive.NormalizeName(name)] = true
}

// RemoveEntry is like Remove, for records it only suppresses that record.
func (f *Frame) RemoveEntry(entry *archive.Entry) {
	f.removed[entry.Key()] = true
}

// IsRemoved reports whether name or one of its ancestors was removed
func (f *Frame) IsRemoved(name string) bool {
	name = archive.NormalizeName(name)
	if f.removed[name] {
		return true
	}
	for i := strings.LastIndex(name, "/"); i > 0; i = strings.LastIndex(name, "/") {
		name = name[:i]
		if f.removed[name] {
			return true
		}
	}
	return false
}

// IsAdded reports whether name was already supplied to the output
func (f *Frame) IsAdded(name string) bool {
	return f.added[archive.NormalizeName(name)]
}

func (f *Frame) isRemovedEntry(entry *archive.Entry) bool {
	if entry.ID != "" {
		return f.removed[entry.ID]
	}
	return f.IsRemoved(entry.Name)
}

func (f *Frame) isAddedEntry(entry *archive.Entry) bool {
	return f.added[entry.Key()]
}

// markAdded records an entry supplied to the output. File entries
// also mark their ancestor directories, records have no hierarchy.
func (f *Frame) markAdded(entry *archive.Entry) {
	if entry.ID != "" {
		f.added[entry.ID] = true
		return
	}
	for _, a := range archive.Ancestors(entry.Name) {
		f.added[a] = true
	}
}

// nearestMutating walks the caller chain from f, returning the first
// pass that writes output.
func (f *Frame) nearestMutating() *Frame {
	for c := f; c != nil; c = c.parent {
		if c.Mutating() {
			return c
		}
	}
	return nil
}

// Depth is the number of callers above f
func (f *Frame) Depth() int {
	d := 0
	for c := f.parent; c != nil; c = c.parent {
		d++
	}
	return d
}
