package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/inkfold-io/rebind/cli/render"
	"github.com/inkfold-io/rebind/cli/tui"
	"github.com/inkfold-io/rebind/epub"
)

// InspectCommand returns the inspect command. Inspect lists the entries
// of an EPUB archive without modifying it.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "List the entries of an EPUB archive",
		ArgsUsage: "<path-to-epub>",
		Flags:     ReadOnlyFlags(),
		Action:    inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("epub path required", 1)
	}
	path := c.Args().First()

	data, err := os.ReadFile(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot read %s: %v", path, err), 1)
	}
	manifest, err := epub.Decode(data)
	if err != nil {
		return cli.Exit(fmt.Sprintf("not a valid archive: %v", err), 1)
	}

	rows := tui.RowsFromManifest(manifest)

	if c.Bool("tui") {
		return tui.RunInspectTUI(filepath.Base(path), rows)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(inspectRows(rows))
}

// inspectRow is the render-facing shape of one archive entry.
type inspectRow struct {
	Path  string `json:"path"`
	Size  int    `json:"size"`
	Kind  string `json:"kind"`
	Cover bool   `json:"cover"`
}

func inspectRows(rows []tui.EntryRow) []inspectRow {
	out := make([]inspectRow, 0, len(rows))
	for _, r := range rows {
		row := inspectRow{Path: r.Path, Size: r.Size, Kind: string(r.Kind), Cover: r.Cover}
		if r.IsDir {
			row.Kind = "dir"
		}
		out = append(out, row)
	}
	return out
}
