package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ulikunitz/xz"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/gogpu/vecsync/compiler"
	"github.com/gogpu/vecsync/flat"
	"github.com/gogpu/vecsync/frame"
	"github.com/gogpu/vecsync/lower"
	"github.com/gogpu/vecsync/store"
	"github.com/gogpu/vecsync/text"
	"github.com/gogpu/vecsync/vector"
)

// xzMagic starts every xz stream.
var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

// readArtifact reads path, decompressing it if it is an xz stream.
func readArtifact(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, xzMagic) {
		return data, nil
	}
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// writeArtifact writes data to path, xz-compressed if compress is set.
func writeArtifact(path string, data []byte, compress bool) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if !compress {
		_, err = f.Write(data)
		return err
	}
	w, err := xz.NewWriter(f)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Close()
}

// session is the producer state of one command invocation.
type session struct {
	cfg   *compiler.Config
	fonts *text.Library
	store *store.Store
	lower *lower.Lowerer
}

func (g *Globals) session() (*session, error) {
	cfg := compiler.DefaultConfig()
	if g.Config != "" {
		var err error
		if cfg, err = compiler.LoadConfigFile(g.Config); err != nil {
			return nil, err
		}
	}

	fonts := text.NewLibrary()
	if _, _, err := fonts.Add(goregular.TTF); err != nil {
		return nil, err
	}
	for _, path := range g.Font {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if _, _, err := fonts.Add(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	st := store.New()
	opts := append(cfg.LowerOptions(), lower.WithFonts(fonts))
	return &session{cfg: cfg, fonts: fonts, store: st, lower: lower.New(st, opts...)}, nil
}

// loadScene reads a YAML scene; relative paths in it resolve against its
// directory.
func loadScene(path string) (*frame.Document, error) {
	doc, err := frame.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("%s: scene has no pages", path)
	}
	return doc, nil
}

var errPatchInput = errors.New("input is a patch, not a module or scene")

// generation loads path as generation seq. Encoded modules are decoded;
// anything else is read as a YAML scene and lowered.
func (s *session) generation(ctx context.Context, path string, seq uint64) (*vector.Generation, error) {
	data, err := readArtifact(path)
	if err != nil {
		return nil, err
	}
	switch format, _ := flat.Sniff(data); format {
	case flat.FormatModule:
		m, err := flat.DecodeModule(data, s.cfg.DecodeOptions()...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return vector.NewGeneration(seq, m), nil
	case flat.FormatPatch:
		return nil, fmt.Errorf("%s: %w", path, errPatchInput)
	}

	doc, err := loadScene(path)
	if err != nil {
		return nil, err
	}
	m, err := s.lower.Lower(ctx, doc)
	if err != nil {
		return nil, err
	}
	return vector.NewGeneration(seq, m), nil
}
