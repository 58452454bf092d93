// Package ledger records which anniversary notifications were already sent.
//
// A record is keyed by (event identity, target date, notification type) and
// is never updated, expired or deleted by this package. Stores must offer an
// atomic insert-if-absent so concurrent writers cannot both win the same key.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrLedger wraps every store failure surfaced by Client.
var ErrLedger = errors.New("ledger: store unavailable")

// Key identifies one notification.
type Key struct {
	EventUID   string `json:"event_uid"`
	TargetDate string `json:"target_date"` // YYYY-MM-DD
	Type       string `json:"type"`
}

// NewKey builds a Key from a target date in the configured timezone.
func NewKey(eventUID string, target time.Time, typ string) Key {
	return Key{EventUID: eventUID, TargetDate: target.Format(time.DateOnly), Type: typ}
}

func (k Key) String() string {
	return k.EventUID + "|" + k.TargetDate + "|" + k.Type
}

// Store is the persisted set of sent keys.
type Store interface {
	Exists(ctx context.Context, k Key) (bool, error)
	// InsertIfAbsent adds k and reports whether this call inserted it.
	InsertIfAbsent(ctx context.Context, k Key) (bool, error)
	Close() error
}

// Client is the ledger API used by the orchestrator.
type Client struct {
	store Store
}

func NewClient(store Store) *Client {
	return &Client{store: store}
}

// IsAlreadyNotified reports whether k has been marked.
func (c *Client) IsAlreadyNotified(ctx context.Context, k Key) (bool, error) {
	ok, err := c.store.Exists(ctx, k)
	if err != nil {
		return false, fmt.Errorf("%w: exists %s: %w", ErrLedger, k, err)
	}
	return ok, nil
}

// MarkNotified records k. Marking an existing key is not an error; inserted
// is false in that case.
func (c *Client) MarkNotified(ctx context.Context, k Key) (inserted bool, err error) {
	inserted, err = c.store.InsertIfAbsent(ctx, k)
	if err != nil {
		return false, fmt.Errorf("%w: insert %s: %w", ErrLedger, k, err)
	}
	return inserted, nil
}

func (c *Client) Close() error {
	return c.store.Close()
}

const (
	DriverFile     = "file"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Options selects a store backend.
type Options struct {
	Driver string

	// file
	Path string

	// redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string

	// postgres
	PostgresDSN string
}

// Open connects the configured store.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverFile:
		return OpenFileStore(opts.Path)
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverRedis:
		return OpenRedisStore(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.KeyPrefix)
	case DriverPostgres:
		return OpenPostgresStore(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("ledger: unknown driver %q", opts.Driver)
	}
}
