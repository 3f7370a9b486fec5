// Package store decorates a port.LedgerStore with circuit breaking and
// retry with backoff, so transient persistence failures are absorbed
// before they reach the service layer.
package store

import (
	"context"
	"errors"

	"github.com/boddenberg/pj-ledger-go/internal/domain"
	"github.com/boddenberg/pj-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pj-ledger-go/internal/infra/resilience"
	"github.com/boddenberg/pj-ledger-go/internal/port"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Resilient wraps an inner LedgerStore. Transient failures are retried
// with exponential backoff, repeated failures trip the circuit breaker,
// and business rejections (not found, duplicate) pass through untouched
// without counting against either.
type Resilient struct {
	inner   port.LedgerStore
	cb      *gobreaker.CircuitBreaker
	retry   resilience.Config
	metrics *observability.Metrics
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewResilient builds the decorator around inner.
func NewResilient(inner port.LedgerStore, cb *gobreaker.CircuitBreaker, retry resilience.Config, metrics *observability.Metrics, logger *zap.Logger) *Resilient {
	return &Resilient{
		inner:   inner,
		cb:      cb,
		retry:   retry,
		metrics: metrics,
		logger:  logger,
		tracer:  otel.Tracer("pj-ledger/store"),
	}
}

// isRejection reports whether err is a business outcome rather than a
// store failure.
func isRejection(err error) bool {
	var notFound *domain.ErrNotFound
	var duplicate *domain.ErrDuplicate
	return errors.As(err, &notFound) || errors.As(err, &duplicate)
}

func (r *Resilient) execute(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := r.tracer.Start(ctx, "store."+op)
	defer span.End()
	span.SetAttributes(attribute.String("store.op", op))

	var rejection error
	_, err := r.cb.Execute(func() (interface{}, error) {
		err := resilience.RetryWithBackoff(ctx, r.retry, func() error {
			err := fn(ctx)
			if isRejection(err) {
				return resilience.Permanent(err)
			}
			return err
		})
		if isRejection(err) {
			rejection = err
			return nil, nil
		}
		return nil, err
	})

	if rejection != nil {
		return rejection
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			r.logger.Warn("store circuit open", zap.String("op", op))
			return &domain.ErrCircuitOpen{Service: "store"}
		}
		r.metrics.IncrStoreError()
		r.logger.Error("store operation failed", zap.String("op", op), zap.Error(err))
		return &domain.ErrStore{Op: op, Err: err}
	}
	return nil
}

func (r *Resilient) CreateAccount(ctx context.Context, acct *domain.Account) error {
	return r.execute(ctx, "create_account", func(ctx context.Context) error {
		return r.inner.CreateAccount(ctx, acct)
	})
}

func (r *Resilient) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	var acct *domain.Account
	err := r.execute(ctx, "get_account", func(ctx context.Context) error {
		var err error
		acct, err = r.inner.GetAccount(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func (r *Resilient) ListAccounts(ctx context.Context, page, pageSize int) ([]domain.Account, bool, error) {
	var accounts []domain.Account
	var hasMore bool
	err := r.execute(ctx, "list_accounts", func(ctx context.Context) error {
		var err error
		accounts, hasMore, err = r.inner.ListAccounts(ctx, page, pageSize)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return accounts, hasMore, nil
}

func (r *Resilient) UpdateAccount(ctx context.Context, acct *domain.Account) error {
	return r.execute(ctx, "update_account", func(ctx context.Context) error {
		return r.inner.UpdateAccount(ctx, acct)
	})
}

func (r *Resilient) DeleteAccount(ctx context.Context, id string) error {
	return r.execute(ctx, "delete_account", func(ctx context.Context) error {
		return r.inner.DeleteAccount(ctx, id)
	})
}

func (r *Resilient) ListTransactions(ctx context.Context, accountID string) ([]domain.Transaction, error) {
	var transactions []domain.Transaction
	err := r.execute(ctx, "list_transactions", func(ctx context.Context) error {
		var err error
		transactions, err = r.inner.ListTransactions(ctx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

func (r *Resilient) Apply(ctx context.Context, accounts []domain.Account, transactions []domain.Transaction) error {
	return r.execute(ctx, "apply", func(ctx context.Context) error {
		return r.inner.Apply(ctx, accounts, transactions)
	})
}

func (r *Resilient) Ping(ctx context.Context) error {
	return r.execute(ctx, "ping", func(ctx context.Context) error {
		return r.inner.Ping(ctx)
	})
}
