// Package scope tracks the nesting of containers being processed.
// Scopes are attached to their parent when popped, which leaves a tree
// mirroring the physical nesting once processing is done.
package scope

import (
	"strings"

	"github.com/itchio/wharf/state"
	"github.com/kbarchive/curator/facts"
	"github.com/pkg/errors"
)

// ErrUnbalancedPop is returned when popping the root scope,
// or a scope that was already popped.
var ErrUnbalancedPop = errors.New("scope popped more times than pushed")

type Scope struct {
	Name     string
	Depth    int
	Children []*Scope

	parent   *Scope
	store    *facts.Store
	consumer *state.Consumer
	popped   bool
}

// NewRoot creates the scope for a top-level invocation. A nil
// consumer is replaced by a silent one.
func NewRoot(name string, store *facts.Store, consumer *state.Consumer) *Scope {
	if consumer == nil {
		consumer = &state.Consumer{}
	}
	return &Scope{
		Name:     name,
		store:    store,
		consumer: consumer,
	}
}

// Push opens a child scope. It only becomes one of s.Children once popped.
func (s *Scope) Push(name string) *Scope {
	return &Scope{
		Name:     name,
		Depth:    s.Depth + 1,
		parent:   s,
		store:    s.store,
		consumer: s.consumer,
	}
}

// Pop closes s, attaches it to its parent and returns the parent.
func (s *Scope) Pop() (*Scope, error) {
	if s.parent == nil {
		return nil, errors.Wrapf(ErrUnbalancedPop, "popping root scope (%s)", s.Name)
	}
	if s.popped {
		return nil, errors.Wrapf(ErrUnbalancedPop, "scope (%s) already popped", s.Path())
	}
	s.popped = true
	s.parent.Children = append(s.parent.Children, s)
	return s.parent, nil
}

// Parent returns the enclosing scope, nil for the root
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Associate records facts in the invocation's store
func (s *Scope) Associate(claimant string, path string, providedPath string, values map[string]string) {
	s.store.Associate(claimant, path, providedPath, values)
}

func (s *Scope) Store() *facts.Store {
	return s.store
}

func (s *Scope) Consumer() *state.Consumer {
	return s.consumer
}

// Find follows child names from s, returning nil if any is missing.
func (s *Scope) Find(names ...string) *Scope {
	current := s
	for _, name := range names {
		var next *Scope
		for _, c := range current.Children {
			if c.Name == name {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		current = next
	}
	return current
}

// Walk visits s and every attached descendant, depth-first.
func (s *Scope) Walk(fn func(s *Scope) error) error {
	err := fn(s)
	if err != nil {
		return err
	}
	for _, c := range s.Children {
		err = c.Walk(fn)
		if err != nil {
			return err
		}
	}
	return nil
}

// Path joins the names from the root down to s
func (s *Scope) Path() string {
	var names []string
	for c := s; c != nil; c = c.parent {
		name := c.Name
		if name == "" {
			name = "(anonymous)"
		}
		names = append([]string{name}, names...)
	}
	return strings.Join(names, " > ")
}
