package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gogpu/vecsync/compiler"
)

// ReplayCmd feeds scenes through a compiler actor as successive edits and
// writes every update it emits, acknowledging each one as a consumer
// would.
type ReplayCmd struct {
	Scenes []string `arg:"" help:"YAML scenes, one edit each" type:"existingfile"`
	Out    string   `short:"o" required:"" help:"Output directory" type:"path"`
	XZ     bool     `name:"xz" help:"Compress the outputs with xz"`
}

func (c *ReplayCmd) Run(g *Globals, out io.Writer) error {
	s, err := g.session()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.Out, 0o755); err != nil {
		return err
	}

	comp := compiler.New(s.lower, s.store, s.cfg.Options()...)
	msgs := make(chan compiler.Message, 1)
	failures := make(chan error, 1)
	a := compiler.NewActor(comp, func(m compiler.Message) { msgs <- m }, s.cfg.Queue)
	a.OnError(func(err error) { failures <- err })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	for _, path := range c.Scenes {
		doc, err := loadScene(path)
		if err != nil {
			return err
		}
		if err := a.Edit(ctx, doc); err != nil {
			return err
		}

		var msg compiler.Message
		select {
		case msg = <-msgs:
		case err := <-failures:
			return fmt.Errorf("%s: %w", path, err)
		}

		ext, kind := ".vsyp", "patch"
		if msg.Full() {
			ext, kind = ".vsym", "module"
		}
		name := filepath.Join(c.Out, fmt.Sprintf("%03d%s", msg.Seq, ext))
		if err := writeArtifact(name, msg.Bytes, c.XZ || s.cfg.Compress); err != nil {
			return err
		}
		if err := a.Ack(ctx, msg.Target); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s %s, %d bytes\n", filepath.Base(name), kind, msg.Target, len(msg.Bytes))
	}
	fmt.Fprintf(out, "store: %d items\n", comp.Store().Len())
	return nil
}
