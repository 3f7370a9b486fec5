// Package service provides the business logic layer (use cases).
// AccountService manages the account lifecycle; LedgerService applies
// balance mutations through the ledger engine.
package service

import (
	"context"
	"time"

	"github.com/boddenberg/pj-ledger-go/internal/domain"
	"github.com/boddenberg/pj-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pj-ledger-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var acctTracer = otel.Tracer("service/accounts")

// AccountService manages accounts and their read paths.
type AccountService struct {
	store   port.LedgerStore
	clock   port.Clock
	locks   *AccountLocks
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewAccountService creates a new account service. locks must be the
// same set the ledger service mutates through, so that an account update
// cannot interleave with a balance mutation on the same account.
func NewAccountService(store port.LedgerStore, clock port.Clock, locks *AccountLocks, metrics *observability.Metrics, logger *zap.Logger) *AccountService {
	return &AccountService{store: store, clock: clock, locks: locks, metrics: metrics, logger: logger}
}

// CreateAccount validates the request and persists a new account with a
// zero balance and untouched withdrawal tracking.
func (s *AccountService) CreateAccount(ctx context.Context, req *domain.CreateAccountRequest) (*domain.Account, error) {
	ctx, span := acctTracer.Start(ctx, "AccountService.CreateAccount")
	defer span.End()
	span.SetAttributes(attribute.String("account.number", req.AccountNumber))

	if err := validateCreateAccountRequest(req); err != nil {
		return nil, err
	}

	acct := &domain.Account{
		ID:                   uuid.New().String(),
		AccountNumber:        req.AccountNumber,
		FirstName:            req.FirstName,
		LastName:             req.LastName,
		DailyWithdrawalLimit: req.DailyWithdrawalLimit,
		CreatedAt:            s.clock.Now(),
	}

	if err := s.store.CreateAccount(ctx, acct); err != nil {
		return nil, err
	}

	s.logger.Info("account created",
		zap.String("account_id", acct.ID),
		zap.String("account_number", acct.AccountNumber),
	)
	return acct, nil
}

func (s *AccountService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	ctx, span := acctTracer.Start(ctx, "AccountService.GetAccount")
	defer span.End()

	return s.store.GetAccount(ctx, accountID)
}

func (s *AccountService) ListAccounts(ctx context.Context, page, pageSize int) (*domain.ListResponse[domain.Account], error) {
	ctx, span := acctTracer.Start(ctx, "AccountService.ListAccounts")
	defer span.End()

	accounts, hasMore, err := s.store.ListAccounts(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	return &domain.ListResponse[domain.Account]{
		Data:     accounts,
		Page:     page,
		PageSize: pageSize,
		HasMore:  hasMore,
	}, nil
}

// UpdateAccount changes account metadata and the daily withdrawal limit.
// Balance and withdrawal tracking are never touched through this path.
func (s *AccountService) UpdateAccount(ctx context.Context, accountID string, req *domain.UpdateAccountRequest) (*domain.Account, error) {
	ctx, span := acctTracer.Start(ctx, "AccountService.UpdateAccount")
	defer span.End()

	if req.DailyWithdrawalLimit != nil && req.DailyWithdrawalLimit.IsNegative() {
		return nil, &domain.ErrValidation{Field: "dailyWithdrawalLimit", Message: "must not be negative"}
	}

	// The update writes the whole snapshot back, so it must hold the
	// account's lock: an unserialized save here could overwrite a balance
	// mutation committed between the load and the save.
	unlock := s.locks.lock(accountID)
	defer unlock()

	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if req.FirstName != "" {
		acct.FirstName = req.FirstName
	}
	if req.LastName != "" {
		acct.LastName = req.LastName
	}
	if req.DailyWithdrawalLimit != nil {
		acct.DailyWithdrawalLimit = *req.DailyWithdrawalLimit
	}

	if err := s.store.UpdateAccount(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// DeleteAccount removes the account. Its transaction history is retained.
func (s *AccountService) DeleteAccount(ctx context.Context, accountID string) error {
	ctx, span := acctTracer.Start(ctx, "AccountService.DeleteAccount")
	defer span.End()

	if err := s.store.DeleteAccount(ctx, accountID); err != nil {
		return err
	}
	s.logger.Info("account deleted", zap.String("account_id", accountID))
	return nil
}

// ListTransactions returns the account's history in creation order.
// The account must exist; history of deleted accounts is not exposed.
func (s *AccountService) ListTransactions(ctx context.Context, accountID string) ([]domain.Transaction, error) {
	ctx, span := acctTracer.Start(ctx, "AccountService.ListTransactions")
	defer span.End()

	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	transactions, err := s.store.ListTransactions(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if transactions == nil {
		transactions = []domain.Transaction{}
	}
	return transactions, nil
}

// GetStatement loads the account and its history concurrently and returns
// them as one document.
func (s *AccountService) GetStatement(ctx context.Context, accountID string) (*domain.AccountStatement, error) {
	ctx, span := acctTracer.Start(ctx, "AccountService.GetStatement")
	defer span.End()

	var (
		acct         *domain.Account
		transactions []domain.Transaction
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		acct, err = s.store.GetAccount(gctx, accountID)
		return err
	})
	g.Go(func() error {
		var err error
		transactions, err = s.store.ListTransactions(gctx, accountID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if transactions == nil {
		transactions = []domain.Transaction{}
	}
	return &domain.AccountStatement{Account: acct, Transactions: transactions}, nil
}

// Health checks the store and reports overall service health.
func (s *AccountService) Health(ctx context.Context) *domain.HealthStatus {
	ctx, span := acctTracer.Start(ctx, "AccountService.Health")
	defer span.End()

	start := time.Now()
	err := s.store.Ping(ctx)
	latency := time.Since(start)

	storeHealth := domain.ServiceHealth{
		Name:        "store",
		Status:      "healthy",
		LatencyMs:   latency.Milliseconds(),
		LastChecked: s.clock.Now().Format(time.RFC3339),
	}
	overall := "healthy"
	if err != nil {
		storeHealth.Status = "unhealthy"
		overall = "unhealthy"
	}

	return &domain.HealthStatus{
		Status:   overall,
		Services: []domain.ServiceHealth{storeHealth},
	}
}

func validateCreateAccountRequest(req *domain.CreateAccountRequest) error {
	if req.AccountNumber == "" {
		return &domain.ErrValidation{Field: "accountNumber", Message: "required"}
	}
	if req.FirstName == "" {
		return &domain.ErrValidation{Field: "firstName", Message: "required"}
	}
	if req.LastName == "" {
		return &domain.ErrValidation{Field: "lastName", Message: "required"}
	}
	if req.DailyWithdrawalLimit.IsNegative() {
		return &domain.ErrValidation{Field: "dailyWithdrawalLimit", Message: "must not be negative"}
	}
	return nil
}
