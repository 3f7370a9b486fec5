package service

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/pj-ledger-go/internal/domain"
	"github.com/boddenberg/pj-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pj-ledger-go/internal/infra/resilience"
	"github.com/boddenberg/pj-ledger-go/internal/ledger"
	"github.com/boddenberg/pj-ledger-go/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var ledgerTracer = otel.Tracer("service/ledger")

// LedgerService applies deposits, withdrawals, and transfers. Each
// operation is a serialized load-mutate-save cycle: engine functions
// compute the effect set against fresh snapshots, and the store commits
// it atomically.
type LedgerService struct {
	store       port.LedgerStore
	clock       port.Clock
	idempotency port.Cache[string]
	bulkhead    *resilience.Bulkhead
	locks       *AccountLocks
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewLedgerService creates a new ledger service. locks must be the same
// set the account service mutates through.
func NewLedgerService(store port.LedgerStore, clock port.Clock, idempotency port.Cache[string], bulkhead *resilience.Bulkhead, locks *AccountLocks, metrics *observability.Metrics, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		store:       store,
		clock:       clock,
		idempotency: idempotency,
		bulkhead:    bulkhead,
		locks:       locks,
		metrics:     metrics,
		logger:      logger,
	}
}

// Deposit credits amount to the account.
func (s *LedgerService) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, idempotencyKey string) (*domain.Account, *domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Deposit")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID), attribute.String("amount", amount.String()))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration(observability.OpDeposit, time.Since(start)) }()

	result, err := s.mutate(ctx, observability.OpDeposit, idempotencyKey, []string{accountID}, func(accounts map[string]*domain.Account) (*ledger.Result, error) {
		return ledger.Deposit(*accounts[accountID], amount, s.clock.Now())
	})
	if err != nil {
		return nil, nil, err
	}
	return &result.Accounts[0], &result.Transactions[0], nil
}

// Withdraw debits amount from the account, subject to the balance and the
// remaining daily allowance.
func (s *LedgerService) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, idempotencyKey string) (*domain.Account, *domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Withdraw")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID), attribute.String("amount", amount.String()))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration(observability.OpWithdraw, time.Since(start)) }()

	result, err := s.mutate(ctx, observability.OpWithdraw, idempotencyKey, []string{accountID}, func(accounts map[string]*domain.Account) (*ledger.Result, error) {
		return ledger.Withdraw(*accounts[accountID], amount, s.clock.Now())
	})
	if err != nil {
		return nil, nil, err
	}
	return &result.Accounts[0], &result.Transactions[0], nil
}

// Transfer moves amount between two accounts. The daily withdrawal limit
// does not apply; only direct withdrawals are limited.
func (s *LedgerService) Transfer(ctx context.Context, fromAccountID, toAccountID string, amount decimal.Decimal, idempotencyKey string) (*domain.TransferResult, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Transfer")
	defer span.End()
	span.SetAttributes(
		attribute.String("account.from", fromAccountID),
		attribute.String("account.to", toAccountID),
		attribute.String("amount", amount.String()),
	)

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration(observability.OpTransfer, time.Since(start)) }()

	ids := []string{fromAccountID, toAccountID}
	result, err := s.mutate(ctx, observability.OpTransfer, idempotencyKey, ids, func(accounts map[string]*domain.Account) (*ledger.Result, error) {
		if fromAccountID == toAccountID {
			acct := accounts[fromAccountID]
			return ledger.Transfer(*acct, *acct, amount, s.clock.Now())
		}
		return ledger.Transfer(*accounts[fromAccountID], *accounts[toAccountID], amount, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}

	transfer := &domain.TransferResult{}
	for i := range result.Accounts {
		acct := &result.Accounts[i]
		if acct.ID == fromAccountID {
			transfer.FromAccount = acct
		}
		if acct.ID == toAccountID {
			transfer.ToAccount = acct
		}
	}
	return transfer, nil
}

// RemainingAllowance reports how much the account may still withdraw today.
func (s *LedgerService) RemainingAllowance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.RemainingAllowance")
	defer span.End()

	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	day := s.clock.Now().Format(domain.DayFormat)
	return ledger.RemainingAllowance(*acct, day), nil
}

// mutate runs one serialized load-mutate-save cycle over the given
// accounts. apply receives fresh snapshots keyed by ID and returns the
// effect set, which is committed in a single store write.
//
// The idempotency key is reserved atomically before any work so two
// concurrent requests carrying the same key cannot both apply; the
// reservation is released again if the operation does not commit, so a
// rejected attempt may be retried with the same key.
func (s *LedgerService) mutate(ctx context.Context, op, idempotencyKey string, accountIDs []string, apply func(map[string]*domain.Account) (*ledger.Result, error)) (result *ledger.Result, err error) {
	if idempotencyKey != "" {
		if !s.idempotency.SetIfAbsent(idempotencyKey, "") {
			s.metrics.IncrIdempotentReplay()
			s.metrics.IncrCacheHit("idempotency")
			return nil, &domain.ErrDuplicate{Key: idempotencyKey}
		}
		s.metrics.IncrCacheMiss("idempotency")
		defer func() {
			if err != nil {
				s.idempotency.Delete(idempotencyKey)
			}
		}()
	}

	if err := s.bulkhead.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.bulkhead.Release()

	unlock := s.locks.lock(accountIDs...)
	defer unlock()

	accounts := make(map[string]*domain.Account, len(accountIDs))
	for _, id := range accountIDs {
		if _, ok := accounts[id]; ok {
			continue
		}
		acct, err := s.store.GetAccount(ctx, id)
		if err != nil {
			s.metrics.IncrRejected(op, rejectionReason(err))
			return nil, err
		}
		accounts[id] = acct
	}

	result, err = apply(accounts)
	if err != nil {
		s.metrics.IncrRejected(op, rejectionReason(err))
		s.logger.Warn("ledger operation rejected",
			zap.String("operation", op),
			zap.Strings("account_ids", accountIDs),
			zap.Error(err),
		)
		return nil, err
	}

	if err := s.store.Apply(ctx, result.Accounts, result.Transactions); err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		s.idempotency.Set(idempotencyKey, result.Transactions[0].ID)
	}
	s.metrics.IncrApplied(op)
	s.logger.Info("ledger operation applied",
		zap.String("operation", op),
		zap.Strings("account_ids", accountIDs),
	)
	return result, nil
}

// rejectionReason maps a domain error to a stable metrics label.
func rejectionReason(err error) string {
	var validation *domain.ErrValidation
	var insufficient *domain.ErrInsufficientFunds
	var limit *domain.ErrLimitExceeded
	var notFound *domain.ErrNotFound

	switch {
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &insufficient):
		return "insufficient_funds"
	case errors.As(err, &limit):
		return "daily_limit"
	case errors.As(err, &notFound):
		return "not_found"
	default:
		return "other"
	}
}
