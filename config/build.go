package config

import (
	"fmt"

	"github.com/itchio/wharf/state"
	"github.com/kbarchive/curator/digest"
	"github.com/kbarchive/curator/engine"
	"github.com/kbarchive/curator/processors"
	"github.com/kbarchive/curator/selection"
	"github.com/pkg/errors"
)

// Catalog is a bound set of processors
type Catalog struct {
	Root       *engine.PackageProcessor
	Containers map[string]*engine.PackageProcessor
	Files      map[string]engine.FileProcessor
	Settings   engine.Settings
}

// Build instantiates every processor and binds actions to their
// targets. Anything unresolvable is a ConfigurationError.
func (c *Config) Build(consumer *state.Consumer) (*Catalog, error) {
	if consumer == nil {
		consumer = &state.Consumer{}
	}

	settings := engine.Settings{
		TempDir:    c.TempDir,
		Algorithms: c.Digests,
	}
	for _, alg := range settings.Algorithms {
		_, err := digest.New(alg)
		if err != nil {
			return nil, &selection.ConfigurationError{Attribute: "digests", Reason: fmt.Sprintf("%s (known: %v)", err.Error(), digest.Known())}
		}
	}

	cat := &Catalog{
		Containers: make(map[string]*engine.PackageProcessor),
		Files:      make(map[string]engine.FileProcessor),
	}

	for _, pc := range c.Processors {
		if _, ok := cat.Containers[pc.Name]; ok {
			return nil, duplicate(pc.Name)
		}
		if _, ok := cat.Files[pc.Name]; ok {
			return nil, duplicate(pc.Name)
		}

		if pc.Kind == KindContainer {
			if len(pc.Options) > 0 {
				return nil, &selection.ConfigurationError{Attribute: pc.Name, Reason: "container processors take no options"}
			}
			cat.Containers[pc.Name] = engine.NewPackageProcessor(pc.Name, &settings)
			continue
		}

		if len(pc.Actions) > 0 {
			return nil, &selection.ConfigurationError{Attribute: pc.Name, Reason: "only container processors have actions"}
		}
		fp, err := processors.New(pc.Kind, pc.Name, pc.Options)
		if err != nil {
			return nil, err
		}
		cat.Files[pc.Name] = fp
	}

	for _, pc := range c.Processors {
		pp, ok := cat.Containers[pc.Name]
		if !ok {
			continue
		}

		for i, ac := range pc.Actions {
			ref, err := cat.resolve(c, ac.Target)
			if err != nil {
				return nil, err
			}

			sel, err := selection.Compile(ac.Method, ac.Attributes(), consumer)
			if err != nil {
				return nil, err
			}

			a, err := engine.NewAction(sel, ref, ac.Method)
			if err != nil {
				return nil, errors.Wrapf(err, "%s, action %d", pc.Name, i+1)
			}
			pp.AddAction(a)
		}
	}

	root, ok := cat.Containers[c.Root]
	if !ok {
		reason := "root must name a container processor"
		if _, isFile := cat.Files[c.Root]; !isFile {
			if s := engine.Suggest(c.Root, c.ProcessorNames()); s != "" {
				reason += ", did you mean " + s + "?"
			}
		}
		return nil, &selection.ConfigurationError{Attribute: "root", Reason: reason}
	}
	cat.Root = root
	cat.Settings = root.Settings()

	consumer.Debugf("config: %d container and %d file processors, root is (%s)", len(cat.Containers), len(cat.Files), c.Root)
	return cat, nil
}

func (cat *Catalog) resolve(c *Config, target string) (engine.ProcessorRef, error) {
	if pp, ok := cat.Containers[target]; ok {
		return engine.ContainerRef(pp), nil
	}
	if fp, ok := cat.Files[target]; ok {
		return engine.FileRef(fp), nil
	}

	reason := "unknown processor"
	if s := engine.Suggest(target, c.ProcessorNames()); s != "" {
		reason += ", did you mean " + s + "?"
	}
	return engine.ProcessorRef{}, &selection.ConfigurationError{Attribute: target, Reason: reason}
}

func duplicate(name string) error {
	return &selection.ConfigurationError{Attribute: name, Reason: "processor defined twice"}
}
