// Package txid mints merchant transaction identifiers.
//
// An id is "TXN", the 13-digit Unix millisecond timestamp, and ten random
// base-36 characters: 26 upper-case alphanumerics, well under the gateway's
// field limit and safe in URLs without escaping. Randomness makes collisions
// improbable, not impossible, so callers reserve each id before use.
package txid

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	Prefix = "TXN"
	// MaxLength is the gateway's limit for merchantTransactionId.
	MaxLength = 38
	// MaxAttempts bounds regeneration when a reservation collides.
	MaxAttempts = 5

	suffixLen = 10
	alphabet  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// Largest multiple of 36 below 256; bytes at or above it are rejected
	// so every character is equally likely.
	rejectFrom = 252
)

// ErrExhausted is returned when MaxAttempts reservations all collided.
var ErrExhausted = errors.New("could not reserve a unique transaction id")

// Reserver claims an id with insert-if-absent semantics. It returns false
// when the id is already taken.
type Reserver interface {
	Reserve(ctx context.Context, id string) (bool, error)
}

// Generator mints ids. It is safe for concurrent use.
type Generator struct {
	mu   sync.Mutex
	rand io.Reader
	now  func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithRandom replaces crypto/rand, for deterministic tests.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) { g.rand = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func New(opts ...Option) *Generator {
	g := &Generator{rand: rand.Reader, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewID returns a fresh id without reserving it.
func (g *Generator) NewID() (string, error) {
	ms := g.now().UnixMilli()
	buf := make([]byte, 0, len(Prefix)+13+suffixLen)
	buf = append(buf, Prefix...)
	buf = append(buf, fmt.Sprintf("%013d", ms)...)

	var scratch [16]byte
	g.mu.Lock()
	defer g.mu.Unlock()
	for n := 0; n < suffixLen; {
		if _, err := io.ReadFull(g.rand, scratch[:]); err != nil {
			return "", fmt.Errorf("read randomness: %w", err)
		}
		for _, b := range scratch {
			if b >= rejectFrom {
				continue
			}
			buf = append(buf, alphabet[b%36])
			n++
			if n == suffixLen {
				break
			}
		}
	}
	return string(buf), nil
}

// NewUnique mints ids until r accepts one, up to MaxAttempts.
func (g *Generator) NewUnique(ctx context.Context, r Reserver) (string, error) {
	for range MaxAttempts {
		id, err := g.NewID()
		if err != nil {
			return "", err
		}
		ok, err := r.Reserve(ctx, id)
		if err != nil {
			return "", fmt.Errorf("reserve transaction id: %w", err)
		}
		if ok {
			return id, nil
		}
	}
	return "", ErrExhausted
}

// Sanitize reports whether an externally supplied id is safe to look up:
// non-empty, within MaxLength, and alphanumeric.
func Sanitize(id string) bool {
	if id == "" || len(id) > MaxLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') && c != '_' && c != '-' {
			return false
		}
	}
	return true
}

// Minter binds a Generator to a Reserver.
type Minter struct {
	gen      *Generator
	reserver Reserver
}

func NewMinter(gen *Generator, r Reserver) *Minter {
	return &Minter{gen: gen, reserver: r}
}

// Next returns a freshly reserved id. Every call reserves a new one, so a
// retried payment never reuses an earlier id.
func (m *Minter) Next(ctx context.Context) (string, error) {
	return m.gen.NewUnique(ctx, m.reserver)
}
