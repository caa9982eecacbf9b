// Package facts records what claimants state about paths inside a
// package, and flags every case where they disagree.
package facts

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// Claimant used for facts computed by the engine itself
const Calculated = "CALCULATED"

type Polarity int

const (
	Positive Polarity = iota
	Neutral
	Negative
)

func (p Polarity) String() string {
	switch p {
	case Positive:
		return "POSITIVE"
	case Neutral:
		return "NEUTRAL"
	case Negative:
		return "NEGATIVE"
	}
	return fmt.Sprintf("Polarity(%d)", int(p))
}

// ParsePolarity is the inverse of Polarity.String
func ParsePolarity(s string) (Polarity, bool) {
	switch strings.ToUpper(s) {
	case "POSITIVE":
		return Positive, true
	case "NEUTRAL":
		return Neutral, true
	case "NEGATIVE":
		return Negative, true
	}
	return Neutral, false
}

// Statement is an audit log entry, never mutated once recorded
type Statement struct {
	Path     string
	Polarity Polarity
	Text     string
}

func (s Statement) String() string {
	return fmt.Sprintf("[%s] %s: %s", s.Polarity, s.Path, s.Text)
}

// Bucket is one value stated for a key, with everyone who stated it
type Bucket struct {
	Value     string
	Claimants []string
}

func (b *Bucket) hasClaimant(claimant string) bool {
	for _, c := range b.Claimants {
		if c == claimant {
			return true
		}
	}
	return false
}

// Record holds all facts stated about one path
type Record struct {
	Path         string
	Disagreement bool

	keys    []string
	buckets map[string][]*Bucket
	// folded key -> canonical key
	folded map[string]string
}

func newRecord(path string) *Record {
	return &Record{
		Path:    path,
		buckets: make(map[string][]*Bucket),
		folded:  make(map[string]string),
	}
}

// Keys returns canonical keys in the order they were first stated
func (r *Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Values returns every value stated for key, in order
func (r *Record) Values(key string) []string {
	var res []string
	for _, b := range r.buckets[key] {
		res = append(res, b.Value)
	}
	return res
}

// Value returns the first value stated for key
func (r *Record) Value(key string) string {
	bs := r.buckets[key]
	if len(bs) == 0 {
		return ""
	}
	return bs[0].Value
}

// Claimants returns who stated value for key
func (r *Record) Claimants(key, value string) []string {
	for _, b := range r.buckets[key] {
		if b.Value == value {
			return append([]string(nil), b.Claimants...)
		}
	}
	return nil
}

// Buckets returns the value buckets of key
func (r *Record) Buckets(key string) []*Bucket {
	return r.buckets[key]
}

func (r *Record) add(key, value, claimant string, fold string) {
	if _, ok := r.buckets[key]; !ok {
		r.keys = append(r.keys, key)
		r.folded[fold] = key
	}
	r.buckets[key] = append(r.buckets[key], &Bucket{Value: value, Claimants: []string{claimant}})
}

func (r *Record) bucket(key, value string) *Bucket {
	for _, b := range r.buckets[key] {
		if b.Value == value {
			return b
		}
	}
	return nil
}

// Store is the fact store of one top-level invocation.
// It is safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	caser      cases.Caser
	records    map[string]*Record
	order      []string
	statements []Statement
}

func NewStore() *Store {
	return &Store{
		caser:   cases.Fold(),
		records: make(map[string]*Record),
	}
}

func (s *Store) state(path string, polarity Polarity, format string, args ...interface{}) {
	s.statements = append(s.statements, Statement{
		Path:     path,
		Polarity: polarity,
		Text:     fmt.Sprintf(format, args...),
	})
}

// Associate records values stated by claimant about path. providedPath
// is the path as the claimant referred to it.
func (s *Store) Associate(claimant string, path string, providedPath string, values map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if path != providedPath {
		s.state(path, Negative, "%s does not correctly refer to %s (as %s)", claimant, path, providedPath)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	record, ok := s.records[path]
	if !ok {
		record = newRecord(path)
		s.records[path] = record
		s.order = append(s.order, path)

		for _, key := range keys {
			value := values[key]
			fold := s.caser.String(key)
			if canonical, ok := record.folded[fold]; ok {
				// two spellings in a single statement
				s.state(path, Negative, "%s states %s, which differs only in case from %s", claimant, key, canonical)
				key = canonical
				if b := record.bucket(key, value); b != nil {
					if !b.hasClaimant(claimant) {
						b.Claimants = append(b.Claimants, claimant)
					}
					continue
				}
				record.Disagreement = true
			}
			record.add(key, value, claimant, fold)
			s.state(path, Neutral, "%s states %s=%s", claimant, key, value)
		}
		return
	}

	for _, key := range keys {
		value := values[key]
		if value == "" {
			continue
		}

		fold := s.caser.String(key)
		canonical, known := record.folded[fold]
		if !known {
			record.add(key, value, claimant, fold)
			s.state(path, Neutral, "%s states %s=%s", claimant, key, value)
			continue
		}

		if canonical != key {
			s.state(path, Negative, "%s states %s, which differs only in case from %s", claimant, key, canonical)
			key = canonical
		}

		if b := record.bucket(key, value); b != nil {
			if !b.hasClaimant(claimant) {
				b.Claimants = append(b.Claimants, claimant)
			}
			s.state(path, Positive, "%s confirms %s=%s", claimant, key, value)
			continue
		}

		record.buckets[key] = append(record.buckets[key], &Bucket{Value: value, Claimants: []string{claimant}})
		record.Disagreement = true
		s.state(path, Neutral, "%s states %s=%s", claimant, key, value)
		s.state(path, Negative, "conflicting values for %s: %s", key, describeBuckets(record.buckets[key]))
	}
}

func describeBuckets(buckets []*Bucket) string {
	var parts []string
	for _, b := range buckets {
		parts = append(parts, fmt.Sprintf("%q by %s", b.Value, strings.Join(b.Claimants, ", ")))
	}
	return strings.Join(parts, "; ")
}

// Note appends a free-form statement about path
func (s *Store) Note(path string, polarity Polarity, format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state(path, polarity, format, args...)
}

// Len returns the number of paths with facts
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Drain returns everything recorded so far and resets the store,
// in a single step.
func (s *Store) Drain() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{
		Statements: s.statements,
		byPath:     s.records,
	}
	for _, p := range s.order {
		snap.Records = append(snap.Records, s.records[p])
	}

	s.records = make(map[string]*Record)
	s.order = nil
	s.statements = nil
	return snap
}

// Snapshot is the drained content of a Store
type Snapshot struct {
	// Records are in the order paths were first seen
	Records    []*Record
	Statements []Statement

	byPath map[string]*Record
}

// Record returns the facts for path, or nil
func (sn *Snapshot) Record(path string) *Record {
	return sn.byPath[path]
}

// Disagreements lists paths for which claimants disagreed
func (sn *Snapshot) Disagreements() []string {
	var res []string
	for _, r := range sn.Records {
		if r.Disagreement {
			res = append(res, r.Path)
		}
	}
	return res
}

// StatementsFor returns statements about path, in order
func (sn *Snapshot) StatementsFor(path string) []Statement {
	var res []Statement
	for _, st := range sn.Statements {
		if st.Path == path {
			res = append(res, st)
		}
	}
	return res
}

// Count returns how many statements have the given polarity
func (sn *Snapshot) Count(polarity Polarity) int {
	n := 0
	for _, st := range sn.Statements {
		if st.Polarity == polarity {
			n++
		}
	}
	return n
}
