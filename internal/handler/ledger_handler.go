package handler

import (
	"encoding/json"
	"net/http"

	"github.com/boddenberg/pj-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pj-ledger-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Ledger mutations — deposit, withdraw, transfer
// ============================================================

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type transferRequest struct {
	FromAccountID string          `json:"fromAccountId"`
	ToAccountID   string          `json:"toAccountId"`
	Amount        decimal.Decimal `json:"amount"`
}

// mutationResponse is the body for applied deposits and withdrawals.
type mutationResponse struct {
	Account     any `json:"account"`
	Transaction any `json:"transaction"`
}

func depositHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/accounts/{accountId}/deposit")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		var req amountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		span.SetAttributes(attribute.String("account.id", accountID))

		acct, record, err := svc.Deposit(ctx, accountID, req.Amount, idempotencyKey(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, mutationResponse{Account: acct, Transaction: record})
	}
}

func withdrawHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/accounts/{accountId}/withdraw")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		var req amountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		span.SetAttributes(attribute.String("account.id", accountID))

		acct, record, err := svc.Withdraw(ctx, accountID, req.Amount, idempotencyKey(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, mutationResponse{Account: acct, Transaction: record})
	}
}

func transferHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transfers")
		defer span.End()

		var req transferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.FromAccountID == "" {
			writeError(w, http.StatusBadRequest, "fromAccountId is required")
			return
		}
		if req.ToAccountID == "" {
			writeError(w, http.StatusBadRequest, "toAccountId is required")
			return
		}
		span.SetAttributes(
			attribute.String("account.from", req.FromAccountID),
			attribute.String("account.to", req.ToAccountID),
		)

		result, err := svc.Transfer(ctx, req.FromAccountID, req.ToAccountID, req.Amount, idempotencyKey(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// getAllowanceHandler reports the account's remaining daily withdrawal
// allowance.
func getAllowanceHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountId}/allowance")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		remaining, err := svc.RemainingAllowance(ctx, accountID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"account_id":          accountID,
			"remaining_allowance": remaining,
		})
	}
}

func ledgerMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetLedgerSnapshot())
	}
}
