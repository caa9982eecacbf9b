// Package selection implements the predicates actions use to pick
// container entries by location, name and type.
package selection

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/itchio/wharf/state"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// MethodProcess is the canonical method name for
// single-entry rewrites and recursion.
const MethodProcess = "process"

// ConfigurationError is returned for missing, invalid or
// contradictory selector and action settings.
type ConfigurationError struct {
	Attribute string
	Reason    string
}

func (ce *ConfigurationError) Error() string {
	if ce.Attribute == "" {
		return fmt.Sprintf("configuration error: %s", ce.Reason)
	}
	return fmt.Sprintf("configuration error (%s): %s", ce.Attribute, ce.Reason)
}

// Attributes are the raw, already-parsed selector settings of an action
type Attributes map[string]string

// Keys returns the attribute names, sorted
func (a Attributes) Keys() []string {
	var keys []string
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type selectorSpec struct {
	Location string `mapstructure:"location"`
	Name     string `mapstructure:"name"`
	NameRe   string `mapstructure:"name-re"`
	Type     string `mapstructure:"type"`
	TypeRe   string `mapstructure:"type-re"`
	Resource string `mapstructure:"resource"`
	All      bool   `mapstructure:"all"`
}

// Selector is a compiled entry predicate. It is immutable once compiled.
type Selector struct {
	Location  string
	Name      string
	NameRegex *regexp.Regexp
	Type      string
	TypeRegex *regexp.Regexp
	// Resource is kept for processors that rewrite from a file
	Resource string
	// All is the explicit always-true marker
	All bool
}

// Match is the outcome of a selector evaluation
type Match struct {
	Matched bool
	// ViaRegex is set when the name or type pattern decided the match
	ViaRegex bool
}

// Compile builds a Selector from action attributes.
func Compile(method string, attrs Attributes, consumer *state.Consumer) (*Selector, error) {
	var spec selectorSpec
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &spec,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	err = decoder.Decode(map[string]string(attrs))
	if err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}

	s := &Selector{
		Location: spec.Location,
		Name:     spec.Name,
		Type:     spec.Type,
		Resource: spec.Resource,
		All:      spec.All,
	}

	if method == MethodProcess && s.Name == "" && spec.NameRe == "" && spec.Resource != "" {
		s.Name = path.Base(strings.Replace(spec.Resource, "\\", "/", -1))
		if consumer != nil {
			consumer.Warnf("selection: no name given for %s action, using (%s) from resource", method, s.Name)
		}
	}

	if s.Name == "" && spec.NameRe != "" {
		s.NameRegex, err = compilePattern(spec.NameRe)
		if err != nil {
			return nil, &ConfigurationError{Attribute: "name-re", Reason: err.Error()}
		}
	}
	if s.Type == "" && spec.TypeRe != "" {
		s.TypeRegex, err = compilePattern(spec.TypeRe)
		if err != nil {
			return nil, &ConfigurationError{Attribute: "type-re", Reason: err.Error()}
		}
	}

	if s.All && s.hasConstraint() {
		return nil, &ConfigurationError{Attribute: "all", Reason: "cannot be combined with location, name or type constraints"}
	}

	return s, nil
}

// MustCompile is like Compile but panics on error
func MustCompile(method string, attrs Attributes) *Selector {
	s, err := Compile(method, attrs, nil)
	if err != nil {
		panic(err)
	}
	return s
}

func compilePattern(expr string) (*regexp.Regexp, error) {
	return regexp.Compile(fmt.Sprintf("(?is)^(?:%s)$", expr))
}

// HasNameRegex is false whenever an exact name is configured
func (s *Selector) HasNameRegex() bool {
	return s.NameRegex != nil
}

// HasTypeRegex is false whenever an exact type is configured
func (s *Selector) HasTypeRegex() bool {
	return s.TypeRegex != nil
}

func (s *Selector) hasConstraint() bool {
	return s.Location != "" || s.Name != "" || s.NameRegex != nil || s.Type != "" || s.TypeRegex != nil
}

func (s *Selector) hasNameConstraint() bool {
	return s.Name != "" || s.NameRegex != nil
}

// Matches reports whether candidate is selected, ignoring entry types
func (s *Selector) Matches(candidate string) bool {
	return s.Match(candidate, "").Matched
}

// Match evaluates the selector against a candidate path. Directory
// candidates carry a trailing slash. entryType is the container's
// notion of type for the entry (file, dir, a WARC-Type...).
func (s *Selector) Match(candidate string, entryType string) Match {
	if s.All {
		return Match{Matched: true}
	}
	if !s.hasConstraint() {
		return Match{}
	}

	if strings.HasPrefix(s.Location, "/") && !strings.HasPrefix(candidate, "/") {
		candidate = "/" + candidate
	}

	full := trimSeparator(candidate)
	baseName, entryName := "", full
	if i := strings.LastIndex(full, "/"); i >= 0 {
		baseName, entryName = full[:i], full[i+1:]
	}

	if s.Location != "" {
		location := trimSeparator(s.Location)
		against := full
		if s.hasNameConstraint() {
			against = baseName
		}
		if !strings.EqualFold(location, against) {
			return Match{}
		}
	}

	var viaRegex bool

	if s.Name != "" {
		if !strings.EqualFold(s.Name, entryName) {
			return Match{}
		}
	} else if s.NameRegex != nil {
		if !s.NameRegex.MatchString(entryName) {
			return Match{}
		}
		viaRegex = true
	}

	if s.Type != "" {
		if !strings.EqualFold(s.Type, entryType) {
			return Match{}
		}
	} else if s.TypeRegex != nil {
		if !s.TypeRegex.MatchString(entryType) {
			return Match{}
		}
		viaRegex = true
	}

	return Match{Matched: true, ViaRegex: viaRegex}
}

// trimSeparator drops trailing separators, so the package root "/"
// compares equal to an empty base name.
func trimSeparator(p string) string {
	return strings.TrimRight(p, "/")
}

// String describes the selector for logs
func (s *Selector) String() string {
	if s.All {
		return "(all)"
	}

	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, fmt.Sprintf("%s=%s", k, v))
		}
	}
	add("location", s.Location)
	add("name", s.Name)
	if s.NameRegex != nil {
		add("name-re", s.NameRegex.String())
	}
	add("type", s.Type)
	if s.TypeRegex != nil {
		add("type-re", s.TypeRegex.String())
	}
	if len(parts) == 0 {
		return "(nothing)"
	}
	return strings.Join(parts, " ")
}
