package main

import (
	"github.com/kbarchive/curator/cmd/audit"
	"github.com/kbarchive/curator/cmd/batch"
	"github.com/kbarchive/curator/cmd/ls"
	"github.com/kbarchive/curator/cmd/rewrite"
	"github.com/kbarchive/curator/cmd/validate"
	"github.com/kbarchive/curator/cmd/version"
	"github.com/kbarchive/curator/cmd/walk"
	"github.com/kbarchive/curator/mansion"
)

// Each of these specify their own arguments and flags in
// their own package.
func registerCommands(ctx *mansion.Context) {
	walk.Register(ctx)
	validate.Register(ctx)
	rewrite.Register(ctx)
	batch.Register(ctx)

	ls.Register(ctx)
	audit.Register(ctx)

	version.Register(ctx)
}
