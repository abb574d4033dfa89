package backend

import (
	"errors"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/gogpu/vecsync"
	"github.com/gogpu/vecsync/flat"
	"github.com/gogpu/vecsync/mirror"
)

// Receiver decodes encoded modules and patches and applies them to a
// backend. It is safe for concurrent use; buffers are applied one at a
// time in the order Receive is called.
type Receiver struct {
	backend Backend
	resync  func(error)
	ack     func(ulid.ULID)
	decode  []flat.Option

	mu      sync.Mutex
	applied ulid.ULID
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver)

// OnResync sets the function called when a buffer cannot be applied and
// the producer must send a full module. The backend is unchanged when fn
// is called.
func OnResync(fn func(err error)) ReceiverOption {
	return func(r *Receiver) { r.resync = fn }
}

// OnAcknowledge sets the function called with the generation id of every
// buffer applied successfully.
func OnAcknowledge(fn func(id ulid.ULID)) ReceiverOption {
	return func(r *Receiver) { r.ack = fn }
}

// WithDecodeOptions passes opts to the flat decoder.
func WithDecodeOptions(opts ...flat.Option) ReceiverOption {
	return func(r *Receiver) { r.decode = append(r.decode, opts...) }
}

// NewReceiver returns a Receiver feeding b.
func NewReceiver(b Backend, opts ...ReceiverOption) *Receiver {
	r := &Receiver{backend: b}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Backend returns the backend the receiver feeds.
func (r *Receiver) Backend() Backend { return r.backend }

// Applied returns the generation id of the last buffer applied.
func (r *Receiver) Applied() ulid.ULID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applied
}

// Receive decodes buf and applies it. Decode failures and patches that do
// not fit the current state trigger the resync callback and are returned.
func (r *Receiver) Receive(buf []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.apply(buf)
	if err != nil {
		if needsResync(err) {
			vecsync.Logger().Warn("backend: update rejected, requesting resync",
				"backend", r.backend.Name(), "bytes", len(buf), "err", err)
			if r.resync != nil {
				r.resync(err)
			}
		}
		return err
	}
	r.applied = id
	if r.ack != nil {
		r.ack(id)
	}
	return nil
}

func (r *Receiver) apply(buf []byte) (ulid.ULID, error) {
	format, err := flat.Sniff(buf)
	if err != nil {
		return ulid.ULID{}, err
	}
	switch format {
	case flat.FormatModule:
		m, err := flat.DecodeModule(buf, r.decode...)
		if err != nil {
			return ulid.ULID{}, err
		}
		if err := r.backend.ApplyFull(m); err != nil {
			return ulid.ULID{}, fmt.Errorf("backend: apply module: %w", err)
		}
		return m.ID, nil
	default:
		p, err := flat.DecodePatch(buf, r.decode...)
		if err != nil {
			return ulid.ULID{}, err
		}
		if err := r.backend.ApplyPatch(p); err != nil {
			return ulid.ULID{}, fmt.Errorf("backend: apply patch: %w", err)
		}
		return p.Target, nil
	}
}

// needsResync reports whether err means the consumer state and the
// producer's view of it have diverged.
func needsResync(err error) bool {
	var de *flat.DecodeError
	return errors.As(err, &de) ||
		errors.Is(err, mirror.ErrBaseMismatch) ||
		errors.Is(err, mirror.ErrInvalidPatch)
}
