package main

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/kbarchive/curator/comm"
	"github.com/kbarchive/curator/mansion"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	version = "head" // set by command-line on CI release builds
	builtAt = ""     // set by command-line on CI release builds
	commit  = ""     // set by command-line on CI release builds
	app     = kingpin.New("curator", "Checks and rewrites archived packages, one nested container at a time")
)

var appArgs = struct {
	json       *bool
	quiet      *bool
	verbose    *bool
	timestamps *bool
	config     *string
	db         *string
	tempDir    *string
	jobs       *int
}{
	app.Flag("json", "Enable machine-readable JSON-lines output").Short('j').Bool(),
	app.Flag("quiet", "Hide progress indicators & other extra info").Short('q').Bool(),
	app.Flag("verbose", "Display as much extra info as possible").Short('v').Bool(),
	app.Flag("timestamps", "Prefix all output by timestamps (for logging purposes)").Bool(),
	app.Flag("config", "Processor configuration (.toml or .yaml), defaults to the built-in one").Short('c').ExistingFile(),
	app.Flag("db", "Record every run in this sqlite database").String(),
	app.Flag("tempdir", "Where to stage entries, defaults to the system temp dir").String(),
	app.Flag("jobs", "How many packages to process at once in batch mode").Default(strconv.Itoa(runtime.NumCPU())).Int(),
}

func versionString() string {
	res := fmt.Sprintf("%s, no build date", version)
	if builtAt != "" {
		epoch, err := strconv.ParseInt(builtAt, 10, 64)
		if err != nil {
			res = fmt.Sprintf("%s, invalid build date", version)
		} else {
			res = fmt.Sprintf("%s, built on %s", version, time.Unix(epoch, 0).Format("Jan _2 2006 @ 15:04:05"))
		}
	}
	if commit != "" {
		res = fmt.Sprintf("%s, ref %s", res, commit)
	}
	return res
}

func main() {
	ctx := mansion.NewContext(app)
	ctx.VersionString = versionString()
	registerCommands(ctx)

	app.HelpFlag.Short('h')
	app.Version(ctx.VersionString)
	app.VersionFlag.Short('V')

	cmd, err := app.Parse(os.Args[1:])
	if *appArgs.timestamps {
		log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	} else {
		log.SetFlags(0)
	}

	ctx.Quiet = *appArgs.quiet
	ctx.Verbose = *appArgs.verbose
	ctx.JSON = *appArgs.json
	ctx.ConfigPath = *appArgs.config
	ctx.DBPath = *appArgs.db
	ctx.TempDir = *appArgs.tempDir
	if *appArgs.jobs > 0 {
		ctx.Jobs = *appArgs.jobs
	}

	comm.Configure(ctx.Quiet, ctx.Verbose, ctx.JSON, false)

	fullCmd := kingpin.MustParse(cmd, err)
	do := ctx.Commands[fullCmd]
	if do == nil {
		comm.Dief("unknown command: %s", fullCmd)
	}
	do(ctx)
}
