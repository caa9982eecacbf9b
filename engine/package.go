package engine

import (
	"context"
	"io"
	"io/ioutil"

	"github.com/kbarchive/curator/archive"
	"github.com/kbarchive/curator/digest"
	"github.com/kbarchive/curator/facts"
	"github.com/kbarchive/curator/scope"
	"github.com/kbarchive/curator/stage"
	"github.com/pkg/errors"
)

// Settings are shared by all passes of a PackageProcessor
type Settings struct {
	// TempDir holds staged entries, the system default when empty
	TempDir string
	// Algorithms are the digests computed for every entry
	Algorithms []string
}

// PackageProcessor is the structure engine: it walks a container's
// entries in stream order and dispatches them to its actions.
type PackageProcessor struct {
	name     string
	actions  []*Action
	settings Settings
}

var _ ContainerProcessor = (*PackageProcessor)(nil)

func NewPackageProcessor(name string, settings *Settings) *PackageProcessor {
	pp := &PackageProcessor{name: name}
	if settings != nil {
		pp.settings = *settings
	}
	if len(pp.settings.Algorithms) == 0 {
		pp.settings.Algorithms = digest.DefaultAlgorithms
	}
	return pp
}

func (pp *PackageProcessor) Name() string {
	return pp.name
}

// AddAction appends an action. Actions are tried in the order
// they were added.
func (pp *PackageProcessor) AddAction(a *Action) {
	pp.actions = append(pp.actions, a)
}

func (pp *PackageProcessor) Actions() []*Action {
	return pp.actions
}

func (pp *PackageProcessor) Settings() Settings {
	return pp.settings
}

// Process runs one pass over a container.
func (pp *PackageProcessor) Process(params *ContainerParams) (retErr error) {
	ctx := params.Context
	if ctx == nil {
		ctx = context.Background()
	}

	sc := params.Scope.Push(params.Name)
	consumer := sc.Consumer()
	defer func() {
		_, err := sc.Pop()
		if retErr == nil && err != nil {
			retErr = err
		}
	}()

	reader, err := pp.open(ctx, params)
	if err != nil {
		return &ProcessingError{Container: params.Name, Err: err}
	}
	defer reader.Close()

	frame := newFrame(pp, params)
	if params.Output != nil {
		frame.writer, err = archive.NewWriter(reader.Flavor(), params.Output)
		if err != nil {
			return &ProcessingError{Container: params.Name, Err: err}
		}
		defer func() {
			if frame.writer != nil {
				// aborted pass, output is unusable anyway
				frame.writer.Close()
			}
		}()
	}

	consumer.Debugf("engine: opened (%s) as %s at depth %d", params.Name, reader.Flavor(), frame.Depth())

	numEntries := 0
	for {
		entry, r, err := reader.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return &ProcessingError{Container: params.Name, Err: err}
		}

		err = pp.processEntry(ctx, frame, sc, entry, r)
		if err != nil {
			if pe, ok := err.(*ProcessingError); ok {
				return pe
			}
			return &ProcessingError{Container: params.Name, Path: entry.Name, Err: err}
		}
		numEntries++
	}

	if frame.writer != nil {
		w := frame.writer
		frame.writer = nil
		err = w.Close()
		if err != nil {
			return &ProcessingError{Container: params.Name, Err: err}
		}
	}

	consumer.Debugf("engine: done with (%s), %d entries", params.Name, numEntries)
	return nil
}

type stagedReader struct {
	archive.Reader
	staged *stage.TempFile
}

func (sr *stagedReader) Close() error {
	err := sr.Reader.Close()
	sr.staged.Close()
	return err
}

// open guesses the flavor from the name, sniffing the content if needed,
// and stages the whole input when the flavor needs random access.
func (pp *PackageProcessor) open(ctx context.Context, params *ContainerParams) (archive.Reader, error) {
	input := params.Input
	var staged *stage.TempFile

	stageInput := func() error {
		tf, err := stage.ExtractEntry(ctx, pp.settings.TempDir, &archive.Entry{Name: params.Name, Size: -1}, input)
		if err != nil {
			return err
		}
		staged = tf
		input = tf
		return nil
	}

	flavor := archive.ProbeFlavor(params.Name)
	if flavor == archive.FlavorNone {
		if _, _, ok := archive.RandomAccess(input); !ok {
			err := stageInput()
			if err != nil {
				return nil, err
			}
		}
		ra, size, _ := archive.RandomAccess(input)
		flavor = archive.Sniff(ra, size)
		if flavor == archive.FlavorNone {
			if staged != nil {
				staged.Close()
			}
			return nil, errors.Wrapf(archive.ErrUnrecognizedArchiveType, "(%s)", params.Name)
		}
	}

	if flavor.NeedsRandomAccess() && staged == nil {
		if _, _, ok := archive.RandomAccess(input); !ok {
			err := stageInput()
			if err != nil {
				return nil, err
			}
		}
	}

	reader, err := archive.OpenReader(flavor, input)
	if err != nil {
		if staged != nil {
			staged.Close()
		}
		return nil, err
	}
	if staged != nil {
		return &stagedReader{Reader: reader, staged: staged}, nil
	}
	return reader, nil
}

// match returns the first action whose selector matches
func (pp *PackageProcessor) match(entry *archive.Entry) (*Action, bool) {
	candidate := entry.MatchPath()
	for _, a := range pp.actions {
		m := a.Selector.Match(candidate, entry.Type)
		if m.Matched {
			return a, m.ViaRegex
		}
	}
	return nil, false
}

type entryParams struct {
	ctx    context.Context
	frame  *Frame
	scope  *scope.Scope
	entry  *archive.Entry
	path   string
	input  io.Reader
	digest *digest.Reader
	action *Action
}

func (pp *PackageProcessor) processEntry(ctx context.Context, frame *Frame, sc *scope.Scope, entry *archive.Entry, r io.Reader) error {
	consumer := sc.Consumer()

	// suppressed entries still get their facts, so read-only and
	// mutating passes agree.
	skip := ""
	if frame.Mutating() {
		switch {
		case frame.isAddedEntry(entry):
			skip = "already supplied, skipping original"
		case frame.isRemovedEntry(entry):
			skip = "removed, skipping"
		}
	}

	ep := &entryParams{
		ctx:   ctx,
		frame: frame,
		scope: sc,
		entry: entry,
		path:  entryPath(frame, entry),
		input: r,
	}

	if !entry.IsDir {
		dr, err := digest.NewReader(r, pp.settings.Algorithms)
		if err != nil {
			return err
		}
		ep.digest = dr
		ep.input = dr
	}

	var err error
	if skip != "" {
		consumer.Debugf("engine: (%s) %s", entry.Name, skip)
	} else if action, viaRegex := pp.match(entry); action == nil {
		err = pp.passthrough(ep)
	} else {
		how := "exact"
		if viaRegex {
			how = "pattern"
		}
		consumer.Debugf("engine: (%s) selected by %s match for %s", entry.MatchPath(), how, action)
		ep.action = action

		err = pp.dispatch(ep)
	}
	if err != nil {
		return err
	}

	if ep.digest != nil {
		err = ep.digest.Drain()
		if err != nil {
			return &stage.TransferError{Path: entry.Name, Op: "reading entry", Err: err}
		}
		sc.Associate(facts.Calculated, ep.path, ep.path, ep.digest.Sum())
	}
	return nil
}

// entryPath is the package-relative path facts are recorded under.
// Records are known by their ID, their names aren't unique.
func entryPath(frame *Frame, entry *archive.Entry) string {
	if entry.ID != "" {
		return frame.prefix + entry.ID
	}
	return frame.prefix + archive.RelativePath(entry.Name)
}

func (pp *PackageProcessor) dispatch(ep *entryParams) error {
	action := ep.action
	if ep.entry.IsDir {
		return errors.WithStack(&UnsupportedOperationError{
			Processor: action.Target.Name(),
			Method:    action.Method,
			Path:      ep.entry.MatchPath(),
		})
	}

	switch action.Target.Kind {
	case KindContainer:
		err := action.checkMethod(ep.entry.Name)
		if err != nil {
			return err
		}
		return pp.recurse(ep)
	case KindFile:
		return pp.processFile(ep)
	}
	return errors.Errorf("action (%s) has no processor", action)
}

// recurse stages the entry and runs the target container processor on it.
func (pp *PackageProcessor) recurse(ep *entryParams) error {
	in, err := stage.ExtractEntry(ep.ctx, pp.settings.TempDir, ep.entry, ep.input)
	if err != nil {
		return err
	}
	defer in.Close()

	child := &ContainerParams{
		Context: ep.ctx,
		Name:    ep.entry.Name,
		Prefix:  ep.path + "/",
		Input:   in,
		Scope:   ep.scope,
		Caller:  ep.frame,
	}

	var out *stage.TempFile
	if ep.frame.Mutating() {
		out, err = stage.New(pp.settings.TempDir, "curator-output-")
		if err != nil {
			return err
		}
		defer out.Close()
		child.Output = out
	}

	err = ep.action.Target.Container.Process(child)
	if err != nil {
		return err
	}

	if out != nil {
		target := ep.frame.nearestMutating()
		err = stage.AddEntry(ep.ctx, target.writer, ep.entry, out)
		if err != nil {
			return err
		}
		target.markAdded(ep.entry)
	}
	return nil
}

// processFile hands the live entry stream to a file processor.
func (pp *PackageProcessor) processFile(ep *entryParams) error {
	fp := ep.action.Target.File
	frame := ep.frame
	mutates := frame.Mutating() && fp.Mutates(ep.action.Method)

	params := &FileParams{
		Context: ep.ctx,
		Entry:   ep.entry,
		Path:    ep.path,
		Method:  ep.action.Method,
		Action:  ep.action,
		Input:   ep.input,
		Scope:   ep.scope,
		Frame:   frame,
	}

	// out receives the replacement when mutating, or a copy of
	// the original entry for the output otherwise.
	var out *stage.TempFile
	if frame.Mutating() {
		var err error
		out, err = stage.New(pp.settings.TempDir, "curator-file-")
		if err != nil {
			return err
		}
		defer out.Close()

		if mutates {
			params.Output = out
		} else {
			params.Input = io.TeeReader(ep.input, out)
		}
	}

	err := fp.Process(params)
	if err != nil {
		return err
	}

	if !frame.Mutating() {
		return nil
	}

	if !mutates {
		_, err = io.Copy(ioutil.Discard, params.Input)
		if err != nil {
			return &stage.TransferError{Path: ep.entry.Name, Op: "reading entry", Err: err}
		}
	}

	if frame.isRemovedEntry(ep.entry) {
		return nil
	}

	if mutates {
		err = stage.AddEntry(ep.ctx, frame.writer, ep.entry, out)
		if err != nil {
			return err
		}
		frame.markAdded(ep.entry)
		return nil
	}

	err = out.Rewind()
	if err != nil {
		return err
	}
	return stage.CopyEntry(ep.ctx, pp.settings.TempDir, frame.writer, ep.entry, out)
}

// passthrough copies the entry unchanged when mutating.
func (pp *PackageProcessor) passthrough(ep *entryParams) error {
	if !ep.frame.Mutating() {
		return nil
	}
	return stage.CopyEntry(ep.ctx, pp.settings.TempDir, ep.frame.writer, ep.entry, ep.input)
}
