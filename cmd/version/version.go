package version

import (
	"log"

	"github.com/kbarchive/curator/comm"
	"github.com/kbarchive/curator/mansion"
)

func Register(ctx *mansion.Context) {
	cmd := ctx.App.Command("version", "Prints the current version of curator")
	ctx.Register(cmd, do)
}

type VersionData struct {
	VersionString string `json:"versionString"`
}

func do(ctx *mansion.Context) {
	if ctx.JSON {
		comm.Result(VersionData{
			VersionString: ctx.VersionString,
		})
	} else {
		log.Println(ctx.VersionString)
	}
}
