package lower

import (
	"runtime"

	"github.com/gogpu/vecsync/text"
)

// Option configures a Lowerer.
type Option func(*options)

type options struct {
	workers int
	fonts   *text.Library
}

func defaultOptions() options {
	return options{workers: runtime.GOMAXPROCS(0)}
}

// WithWorkers bounds the number of pages lowered concurrently.
// Values below 1 mean one worker.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = 1
		}
		o.workers = n
	}
}

// WithFonts sets the font library used to describe embedded fonts, resolve
// fonts by family and shape unshaped text. Without a library, text items
// must carry glyphs and fonts are described from their data alone.
func WithFonts(l *text.Library) Option {
	return func(o *options) {
		o.fonts = l
	}
}
