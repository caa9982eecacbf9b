package validate

import (
	"fmt"

	"github.com/kbarchive/curator/cmd/walk"
	"github.com/kbarchive/curator/comm"
	"github.com/kbarchive/curator/mansion"
	"github.com/pkg/errors"
)

var args = struct {
	file *string
}{}

func Register(ctx *mansion.Context) {
	cmd := ctx.App.Command("validate", "Walks a package and fails if any of its facts disagree")
	args.file = cmd.Arg("file", "Package to validate").Required().ExistingFile()
	ctx.Register(cmd, doValidate)
}

func doValidate(ctx *mansion.Context) {
	ctx.Must(Validate(ctx, *args.file))
}

// ErrDisagreements is returned when a package's facts don't
// agree with each other.
var ErrDisagreements = errors.New("package has disagreeing facts")

func Validate(ctx *mansion.Context, file string) error {
	res, err := walk.Do(ctx, file, true)
	if err != nil {
		return err
	}

	paths := res.Facts.Disagreements()
	if len(paths) == 0 {
		comm.Opf("%s is consistent", file)
		return nil
	}

	lines := make([]string, 0, len(paths))
	for _, p := range paths {
		lines = append(lines, fmt.Sprintf("- %s", p))
	}
	if !comm.JsonEnabled() {
		comm.Notice("Disagreements", lines)
	}
	return errors.Wrapf(ErrDisagreements, "%s: %d path(s)", file, len(paths))
}
