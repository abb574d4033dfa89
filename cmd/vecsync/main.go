// Command vecsync compiles scene fixtures into the flat vector format and
// inspects, diffs, replays and renders the results.
package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/gogpu/vecsync"

	// Register the rendering backends.
	_ "github.com/gogpu/vecsync/backend/raster"
	_ "github.com/gogpu/vecsync/backend/svg"
)

// Globals are flags shared by every command.
type Globals struct {
	Verbose bool     `short:"v" help:"Log debug output to stderr"`
	Config  string   `short:"c" help:"YAML session configuration" type:"existingfile"`
	Font    []string `help:"Additional font files for text and glyph outlines" type:"existingfile"`
}

// CLI defines the command-line interface for vecsync.
type CLI struct {
	Globals

	Compile CompileCmd `cmd:"" help:"Lower a YAML scene into a flat module"`
	Diff    DiffCmd    `cmd:"" help:"Encode the patch between two scenes or modules"`
	Inspect InspectCmd `cmd:"" help:"Describe an encoded module or patch"`
	Render  RenderCmd  `cmd:"" help:"Render one page of a scene or module"`
	Replay  ReplayCmd  `cmd:"" help:"Compile scenes as successive edits and write each update"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

func newParser(cli *CLI, out io.Writer, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("vecsync"),
		kong.Description("Content-addressed vector IR tool"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Bind(&cli.Globals),
		kong.BindTo(out, (*io.Writer)(nil)),
	}, options...)
	return kong.New(cli, options...)
}

func setupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	vecsync.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func main() {
	var cli CLI
	parser, err := newParser(&cli, os.Stdout)
	if err != nil {
		panic(err)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	setupLogging(cli.Verbose)
	err = ctx.Run()
	ctx.FatalIfErrorf(err)
}
