// Package engine walks container structures, dispatching entries to
// processors and composing a rewritten copy of the container.
package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/kbarchive/curator/archive"
	"github.com/kbarchive/curator/scope"
)

type Kind int

const (
	KindFile Kind = iota + 1
	KindContainer
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindContainer:
		return "container"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// FileProcessor operates on the bytes of one non-directory entry.
type FileProcessor interface {
	Name() string
	// Mutates reports whether method rewrites the entry. Only then
	// is an output given to Process.
	Mutates(method string) bool
	Process(params *FileParams) error
}

// ContainerProcessor operates on a whole (possibly nested) container.
type ContainerProcessor interface {
	Name() string
	Process(params *ContainerParams) error
}

// FileParams are passed to a FileProcessor for a single entry.
type FileParams struct {
	Context context.Context
	Entry   *archive.Entry
	// Path is relative to the top-level package
	Path   string
	Method string
	Action *Action

	Input io.Reader
	// Output is nil unless the pass and the method both mutate
	Output io.Writer

	Scope *scope.Scope
	Frame *Frame
}

// ContainerParams are passed to a ContainerProcessor.
type ContainerParams struct {
	Context context.Context
	// Name is used to guess the container flavor
	Name string
	// Prefix is prepended to entry names to get package-relative paths
	Prefix string

	Input io.Reader
	// Output is nil for read-only passes
	Output io.Writer

	Scope *scope.Scope
	// Caller is the frame of the container pass that recursed into
	// this one, nil at the top level.
	Caller *Frame
}

// ProcessorRef is a processor resolved once, when actions are bound.
// Exactly one of File and Container is set, according to Kind.
type ProcessorRef struct {
	Kind      Kind
	File      FileProcessor
	Container ContainerProcessor
}

func FileRef(p FileProcessor) ProcessorRef {
	return ProcessorRef{Kind: KindFile, File: p}
}

func ContainerRef(p ContainerProcessor) ProcessorRef {
	return ProcessorRef{Kind: KindContainer, Container: p}
}

func (r ProcessorRef) Name() string {
	switch r.Kind {
	case KindFile:
		return r.File.Name()
	case KindContainer:
		return r.Container.Name()
	}
	return ""
}

func (r ProcessorRef) valid() bool {
	switch r.Kind {
	case KindFile:
		return r.File != nil && r.Container == nil
	case KindContainer:
		return r.Container != nil && r.File == nil
	}
	return false
}
