package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/gogpu/vecsync"
	"github.com/gogpu/vecsync/backend"
	"github.com/gogpu/vecsync/compiler"
	"github.com/gogpu/vecsync/diff"
	"github.com/gogpu/vecsync/flat"
	"github.com/gogpu/vecsync/vector"
)

// CompileCmd lowers a scene into a module.
type CompileCmd struct {
	Scene string `arg:"" help:"YAML scene fixture" type:"existingfile"`
	Out   string `short:"o" required:"" help:"Output module path" type:"path"`
	XZ    bool   `name:"xz" help:"Compress the output with xz"`
}

func (c *CompileCmd) Run(g *Globals, out io.Writer) error {
	s, err := g.session()
	if err != nil {
		return err
	}
	doc, err := loadScene(c.Scene)
	if err != nil {
		return err
	}
	gen, data, err := compiler.CompileGeneration(context.Background(), s.lower, s.store, doc, nil)
	if err != nil {
		return err
	}
	if err := writeArtifact(c.Out, data, c.XZ || s.cfg.Compress); err != nil {
		return err
	}
	fmt.Fprintf(out, "module %s: %d pages, %d items, %d bytes\n",
		gen.ID(), len(gen.Module.Pages), len(gen.Module.Items), len(data))
	return nil
}

// DiffCmd encodes the patch from one scene or module to another.
type DiffCmd struct {
	Old string `arg:"" help:"Base scene or module" type:"existingfile"`
	New string `arg:"" help:"Target scene or module" type:"existingfile"`
	Out string `short:"o" required:"" help:"Output patch path" type:"path"`
	XZ  bool   `name:"xz" help:"Compress the output with xz"`
}

func (c *DiffCmd) Run(g *Globals, out io.Writer) error {
	ctx := context.Background()
	s, err := g.session()
	if err != nil {
		return err
	}
	prev, err := s.generation(ctx, c.Old, 1)
	if err != nil {
		return err
	}
	cur, err := s.generation(ctx, c.New, 2)
	if err != nil {
		return err
	}
	p := diff.Diff(prev, cur)
	data, err := flat.EncodePatch(p, flat.WithPayloads(s.store))
	if err != nil {
		return err
	}
	if err := writeArtifact(c.Out, data, c.XZ || s.cfg.Compress); err != nil {
		return err
	}
	fmt.Fprintf(out, "patch %s -> %s: %s, %d added, %d stale, %d bytes\n",
		p.Base, p.Target, opSummary(p), len(p.Added), len(p.Stale), len(data))
	return nil
}

// opSummary counts the patch's page ops by kind.
func opSummary(p *vector.Patch) string {
	var n [vector.PageRemoved + 1]int
	for _, op := range p.Ops {
		n[op.Kind]++
	}
	return fmt.Sprintf("%d unchanged, %d replaced, %d inserted, %d removed",
		n[vector.PageUnchanged], n[vector.PageReplaced], n[vector.PageInserted], n[vector.PageRemoved])
}

// InspectCmd prints the structure of an encoded buffer.
type InspectCmd struct {
	File string `arg:"" help:"Module or patch, optionally xz-compressed" type:"existingfile"`
}

func (c *InspectCmd) Run(g *Globals, out io.Writer) error {
	s, err := g.session()
	if err != nil {
		return err
	}
	data, err := readArtifact(c.File)
	if err != nil {
		return err
	}
	format, err := flat.Sniff(data)
	if err != nil {
		return err
	}
	if format == flat.FormatPatch {
		p, err := flat.DecodePatch(data, s.cfg.DecodeOptions()...)
		if err != nil {
			return err
		}
		inspectPatch(out, p, len(data))
		return nil
	}

	v, err := flat.Open(data, s.cfg.DecodeOptions()...)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "module %s\n", v.ID())
	fmt.Fprintf(out, "size:    %d bytes (%d payload)\n", len(data), v.PayloadBytes())
	fmt.Fprintf(out, "items:   %d\n", v.Len())
	kinds := v.Kinds()
	keys := make([]vector.Kind, 0, len(kinds))
	for k := range kinds {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  %-10s %d\n", k, kinds[k])
	}
	fmt.Fprintf(out, "pages:   %d\n", v.PageCount())
	for i := range v.PageCount() {
		pg, err := v.Page(i)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %d: %gx%g root %s\n", i, vector.ToFloat(pg.Width), vector.ToFloat(pg.Height), pg.Root.Short())
	}
	return nil
}

func inspectPatch(out io.Writer, p *vector.Patch, size int) {
	fmt.Fprintf(out, "patch %s -> %s\n", p.Base, p.Target)
	fmt.Fprintf(out, "size:    %d bytes\n", size)
	fmt.Fprintf(out, "added:   %d\n", len(p.Added))
	fmt.Fprintf(out, "stale:   %d\n", len(p.Stale))
	fmt.Fprintf(out, "ops:     %s\n", opSummary(p))
	for _, op := range p.Ops {
		switch op.Kind {
		case vector.PageReplaced, vector.PageInserted:
			fmt.Fprintf(out, "  %d: %s root %s\n", op.Index, op.Kind, op.Page.Root.Short())
		case vector.PageRemoved:
			fmt.Fprintf(out, "  %d: %s\n", op.Index, op.Kind)
		}
	}
}

// RenderCmd renders one page with a registered backend.
type RenderCmd struct {
	File   string  `arg:"" help:"Scene or module, optionally xz-compressed" type:"existingfile"`
	Page   int     `help:"Zero-based page index" default:"0"`
	Format string  `help:"Output format" enum:"png,svg" default:"png"`
	Scale  float64 `help:"Output pixels per point" default:"1"`
	Out    string  `short:"o" required:"" help:"Output path, - for stdout"`
}

// backends maps output formats to backend names.
var backends = map[string]string{
	"png": "raster",
	"svg": "svg",
}

func (c *RenderCmd) Run(g *Globals, out io.Writer) error {
	s, err := g.session()
	if err != nil {
		return err
	}
	gen, err := s.generation(context.Background(), c.File, 1)
	if err != nil {
		return err
	}
	b, err := backend.New(backends[c.Format], backend.Options{
		Fonts:   s.fonts,
		Scale:   c.Scale,
		Workers: s.cfg.Workers,
	})
	if err != nil {
		return err
	}
	if cl, ok := b.(io.Closer); ok {
		defer cl.Close()
	}
	if err := b.ApplyFull(gen.Module); err != nil {
		return err
	}

	if c.Out == "-" {
		return b.Render(c.Page, out)
	}
	f, err := os.Create(c.Out)
	if err != nil {
		return err
	}
	if err := b.Render(c.Page, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(out io.Writer) error {
	fmt.Fprintf(out, "vecsync %s\n", vecsync.Version)
	return nil
}
