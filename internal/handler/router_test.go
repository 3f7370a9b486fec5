package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/boddenberg/pj-ledger-go/internal/domain"
	"github.com/boddenberg/pj-ledger-go/internal/handler"
	"github.com/boddenberg/pj-ledger-go/internal/infra/cache"
	"github.com/boddenberg/pj-ledger-go/internal/infra/clock"
	"github.com/boddenberg/pj-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pj-ledger-go/internal/infra/resilience"
	"github.com/boddenberg/pj-ledger-go/internal/infra/store/bolt"
	"github.com/boddenberg/pj-ledger-go/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var testNow = time.Date(2025, 7, 15, 10, 30, 0, 0, time.UTC)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	clk := clock.Fixed{T: testNow}

	locks := service.NewAccountLocks()
	accountSvc := service.NewAccountService(store, clk, locks, metrics, logger)
	ledgerSvc := service.NewLedgerService(
		store, clk,
		cache.New[string](time.Minute),
		resilience.NewBulkhead(10),
		locks,
		metrics, logger,
	)
	return handler.NewRouter(accountSvc, ledgerSvc, metrics, logger)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createAccount(t *testing.T, router http.Handler, number, limit string) domain.Account {
	t.Helper()

	rec := doJSON(t, router, http.MethodPost, "/v1/accounts", map[string]any{
		"accountNumber":        number,
		"firstName":            "Ada",
		"lastName":             "Lovelace",
		"dailyWithdrawalLimit": limit,
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account: status %d, body %s", rec.Code, rec.Body.String())
	}
	var acct domain.Account
	if err := json.NewDecoder(rec.Body).Decode(&acct); err != nil {
		t.Fatalf("decode account: %v", err)
	}
	return acct
}

func TestOperationalEndpoints(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/healthz", "/readyz", "/ping", "/metrics"} {
		rec := doJSON(t, router, http.MethodGet, path, nil, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestCreateAccount_Statuses(t *testing.T) {
	router := newTestRouter(t)

	createAccount(t, router, "12345-6", "500")

	// Duplicate account number.
	rec := doJSON(t, router, http.MethodPost, "/v1/accounts", map[string]any{
		"accountNumber": "12345-6", "firstName": "Ada", "lastName": "Lovelace",
	}, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate number: expected 409, got %d", rec.Code)
	}

	// Missing fields.
	rec = doJSON(t, router, http.MethodPost, "/v1/accounts", map[string]any{
		"firstName": "Ada",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing fields: expected 400, got %d", rec.Code)
	}
}

func TestGetAccount_NotFound(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/v1/accounts/nope", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestDepositWithdrawFlow(t *testing.T) {
	router := newTestRouter(t)
	acct := createAccount(t, router, "11111-1", "200")

	rec := doJSON(t, router, http.MethodPost, "/v1/accounts/"+acct.ID+"/deposit",
		map[string]any{"amount": "100"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/accounts/"+acct.ID+"/withdraw",
		map[string]any{"amount": "50"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("withdraw: status %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Account domain.Account `json:"account"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Account.Balance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("balance = %s, want 50", resp.Account.Balance)
	}
	if !resp.Account.WithdrawalAmountToday.Equal(decimal.NewFromInt(50)) {
		t.Errorf("withdrawal amount today = %s, want 50", resp.Account.WithdrawalAmountToday)
	}

	// Over the remaining daily allowance.
	rec = doJSON(t, router, http.MethodPost, "/v1/accounts/"+acct.ID+"/withdraw",
		map[string]any{"amount": "151"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("over limit: expected 400, got %d", rec.Code)
	}

	// More than the balance (within limit).
	rec = doJSON(t, router, http.MethodPost, "/v1/accounts/"+acct.ID+"/withdraw",
		map[string]any{"amount": "149"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("insufficient funds: expected 400, got %d", rec.Code)
	}

	// Non-positive amount.
	rec = doJSON(t, router, http.MethodPost, "/v1/accounts/"+acct.ID+"/deposit",
		map[string]any{"amount": "0"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero amount: expected 400, got %d", rec.Code)
	}
}

func TestIdempotencyKeyConflict(t *testing.T) {
	router := newTestRouter(t)
	acct := createAccount(t, router, "22222-2", "500")

	headers := map[string]string{"Idempotency-Key": "dep-1"}
	rec := doJSON(t, router, http.MethodPost, "/v1/accounts/"+acct.ID+"/deposit",
		map[string]any{"amount": "10"}, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("first deposit: status %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/accounts/"+acct.ID+"/deposit",
		map[string]any{"amount": "10"}, headers)
	if rec.Code != http.StatusConflict {
		t.Errorf("replay: expected 409, got %d", rec.Code)
	}
}

func TestTransferEndpoint(t *testing.T) {
	router := newTestRouter(t)
	from := createAccount(t, router, "33333-3", "10")
	to := createAccount(t, router, "44444-4", "10")

	rec := doJSON(t, router, http.MethodPost, "/v1/accounts/"+from.ID+"/deposit",
		map[string]any{"amount": "100"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("seed deposit: status %d", rec.Code)
	}

	// Amount above the daily limit; transfers are not limited.
	rec = doJSON(t, router, http.MethodPost, "/v1/transfers", map[string]any{
		"fromAccountId": from.ID,
		"toAccountId":   to.ID,
		"amount":        "30",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("transfer: status %d, body %s", rec.Code, rec.Body.String())
	}

	var result domain.TransferResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.FromAccount.Balance.Equal(decimal.NewFromInt(70)) {
		t.Errorf("from balance = %s, want 70", result.FromAccount.Balance)
	}
	if !result.ToAccount.Balance.Equal(decimal.NewFromInt(30)) {
		t.Errorf("to balance = %s, want 30", result.ToAccount.Balance)
	}

	// Missing destination.
	rec = doJSON(t, router, http.MethodPost, "/v1/transfers", map[string]any{
		"fromAccountId": from.ID, "amount": "1",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing toAccountId: expected 400, got %d", rec.Code)
	}

	// Unknown source.
	rec = doJSON(t, router, http.MethodPost, "/v1/transfers", map[string]any{
		"fromAccountId": "ghost", "toAccountId": to.ID, "amount": "1",
	}, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown source: expected 404, got %d", rec.Code)
	}
}

func TestTransactionsAndStatement(t *testing.T) {
	router := newTestRouter(t)
	acct := createAccount(t, router, "55555-5", "500")

	for i := 0; i < 3; i++ {
		rec := doJSON(t, router, http.MethodPost, "/v1/accounts/"+acct.ID+"/deposit",
			map[string]any{"amount": fmt.Sprintf("%d", 10*(i+1))}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("deposit %d: status %d", i, rec.Code)
		}
	}

	rec := doJSON(t, router, http.MethodGet, "/v1/accounts/"+acct.ID+"/transactions", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("transactions: status %d", rec.Code)
	}
	var txResp struct {
		Transactions []domain.Transaction `json:"transactions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&txResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(txResp.Transactions) != 3 {
		t.Errorf("transactions = %d, want 3", len(txResp.Transactions))
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/accounts/"+acct.ID+"/statement", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("statement: status %d", rec.Code)
	}
	var statement domain.AccountStatement
	if err := json.NewDecoder(rec.Body).Decode(&statement); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if statement.Account == nil || len(statement.Transactions) != 3 {
		t.Errorf("unexpected statement: %+v", statement)
	}

	// Transactions of a missing account are not exposed.
	rec = doJSON(t, router, http.MethodGet, "/v1/accounts/ghost/transactions", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing account transactions: expected 404, got %d", rec.Code)
	}
}

func TestUpdateAndDeleteAccount(t *testing.T) {
	router := newTestRouter(t)
	acct := createAccount(t, router, "66666-6", "500")

	rec := doJSON(t, router, http.MethodPut, "/v1/accounts/"+acct.ID, map[string]any{
		"firstName":            "Grace",
		"dailyWithdrawalLimit": "900",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d, body %s", rec.Code, rec.Body.String())
	}
	var updated domain.Account
	if err := json.NewDecoder(rec.Body).Decode(&updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.FirstName != "Grace" || !updated.DailyWithdrawalLimit.Equal(decimal.NewFromInt(900)) {
		t.Errorf("unexpected update result: %+v", updated)
	}

	rec = doJSON(t, router, http.MethodDelete, "/v1/accounts/"+acct.ID, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/accounts/"+acct.ID, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("deleted account: expected 404, got %d", rec.Code)
	}
}

func TestLedgerMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t)
	acct := createAccount(t, router, "77777-7", "500")

	doJSON(t, router, http.MethodPost, "/v1/accounts/"+acct.ID+"/deposit",
		map[string]any{"amount": "10"}, nil)
	doJSON(t, router, http.MethodPost, "/v1/accounts/"+acct.ID+"/withdraw",
		map[string]any{"amount": "999"}, nil)

	rec := doJSON(t, router, http.MethodGet, "/v1/metrics/ledger", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: status %d", rec.Code)
	}
	var snapshot domain.LedgerMetrics
	if err := json.NewDecoder(rec.Body).Decode(&snapshot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snapshot.AppliedOperations != 1 || snapshot.RejectedOperations != 1 {
		t.Errorf("applied=%d rejected=%d, want 1/1", snapshot.AppliedOperations, snapshot.RejectedOperations)
	}
}

func TestAllowanceEndpoint(t *testing.T) {
	router := newTestRouter(t)
	acct := createAccount(t, router, "88888-8", "200")

	doJSON(t, router, http.MethodPost, "/v1/accounts/"+acct.ID+"/deposit",
		map[string]any{"amount": "500"}, nil)
	doJSON(t, router, http.MethodPost, "/v1/accounts/"+acct.ID+"/withdraw",
		map[string]any{"amount": "80"}, nil)

	rec := doJSON(t, router, http.MethodGet, "/v1/accounts/"+acct.ID+"/allowance", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("allowance: status %d", rec.Code)
	}
	var resp struct {
		RemainingAllowance decimal.Decimal `json:"remaining_allowance"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.RemainingAllowance.Equal(decimal.NewFromInt(120)) {
		t.Errorf("remaining = %s, want 120", resp.RemainingAllowance)
	}
}
