package mansion

import (
	"runtime"

	"github.com/kbarchive/curator/comm"
	"github.com/kbarchive/curator/config"
	"github.com/pkg/errors"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
)

type DoCommand func(ctx *Context)

type Context struct {
	App      *kingpin.Application
	Commands map[string]DoCommand

	// VersionString is the complete version string
	VersionString string

	// Quiet silences all output
	Quiet bool

	// Verbose enables chatty output
	Verbose bool

	// Verbose enables JSON output
	JSON bool

	// Path to the processor configuration, TOML or YAML.
	// Empty means the built-in configuration.
	ConfigPath string

	// Path to the local sqlite report database, empty disables it
	DBPath string

	// Where entries get staged, defaults to the system temp dir
	TempDir string

	// How many packages are processed at once in batch mode
	Jobs int
}

func NewContext(app *kingpin.Application) *Context {
	return &Context{
		App:      app,
		Commands: make(map[string]DoCommand),
		Jobs:     runtime.NumCPU(),
	}
}

func (ctx *Context) Register(clause *kingpin.CmdClause, do DoCommand) {
	ctx.Commands[clause.FullCommand()] = do
}

func (ctx *Context) Must(err error) {
	if err != nil {
		if ctx.Verbose || ctx.JSON {
			comm.Dief("%+v", err)
		} else {
			comm.Dief("%s", err)
		}
	}
}

// Catalog loads the configuration and binds its processors.
func (ctx *Context) Catalog() (*config.Catalog, error) {
	var cfg *config.Config
	if ctx.ConfigPath == "" {
		cfg = config.Default()
	} else {
		var err error
		cfg, err = config.Load(ctx.ConfigPath)
		if err != nil {
			return nil, errors.Wrapf(err, "loading config (%s)", ctx.ConfigPath)
		}
	}
	if ctx.TempDir != "" {
		cfg.TempDir = ctx.TempDir
	}

	catalog, err := cfg.Build(comm.NewStateConsumer())
	if err != nil {
		return nil, err
	}
	return catalog, nil
}
