package flat

import "github.com/gogpu/vecsync/fingerprint"

// PayloadSource supplies canonical payloads that were already computed,
// such as store.Store.
type PayloadSource interface {
	Payload(fp fingerprint.Fingerprint) ([]byte, bool)
}

// Option configures encoding or decoding.
type Option func(*config)

type config struct {
	verify   bool
	payloads PayloadSource
}

func newConfig(opts []Option) config {
	c := config{verify: true}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithoutVerify skips recomputing item fingerprints while decoding. Use it
// only for buffers produced by a trusted encoder; a cycle check still runs
// so a bad buffer cannot send a renderer into a loop.
func WithoutVerify() Option {
	return func(c *config) { c.verify = false }
}

// WithPayloads makes the encoder take canonical payloads from src instead
// of re-encoding items. Items missing from src are encoded as usual.
func WithPayloads(src PayloadSource) Option {
	return func(c *config) { c.payloads = src }
}
