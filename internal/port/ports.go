// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/pj-ledger-go/internal/domain"
)

// LedgerStore persists accounts and their append-only transaction history.
// Implemented by the bbolt adapter (or any other persistence layer).
//
// The caller guarantees per-account serialization around every
// load-mutate-save cycle; the store guarantees that Apply commits its
// whole effect set atomically.
type LedgerStore interface {
	// Accounts
	CreateAccount(ctx context.Context, acct *domain.Account) error
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	ListAccounts(ctx context.Context, page, pageSize int) ([]domain.Account, bool, error)
	UpdateAccount(ctx context.Context, acct *domain.Account) error
	DeleteAccount(ctx context.Context, id string) error

	// Transactions (read side; writes happen only through Apply)
	ListTransactions(ctx context.Context, accountID string) ([]domain.Transaction, error)

	// Apply commits one ledger operation's full effect set — updated
	// account snapshot(s) plus new transaction record(s) — as a single
	// all-or-nothing unit.
	Apply(ctx context.Context, accounts []domain.Account, transactions []domain.Transaction) error

	// Ping reports whether the store is reachable (health checks).
	Ping(ctx context.Context) error
}

// Clock supplies the current time. Injected so that "today" for the
// daily-limit tracker is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// Cache provides generic caching with TTL. SetIfAbsent stores the value
// only when no live entry exists and reports whether it did, atomically;
// idempotency-key reservation depends on that.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	SetIfAbsent(key string, value T) bool
	Delete(key string)
}
