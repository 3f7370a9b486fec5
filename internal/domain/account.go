// Package domain defines the core business entities for the ledger.
// These models are independent of storage and transport and represent the
// canonical data structures used throughout the service.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DayFormat is the calendar-date layout used for daily-limit tracking.
// The date is always computed in the single timezone the process was
// configured with; transaction wall-clock ordering is never consulted.
const DayFormat = "2006-01-02"

// ============================================================
// Accounts
// ============================================================

// Account represents a bank account and its daily-withdrawal tracking state.
//
// Invariants (enforced by the ledger engine, persisted atomically):
//   - Balance >= 0
//   - 0 <= WithdrawalAmountToday <= DailyWithdrawalLimit
type Account struct {
	ID                    string          `json:"id"`
	AccountNumber         string          `json:"account_number"`
	FirstName             string          `json:"first_name"`
	LastName              string          `json:"last_name"`
	Balance               decimal.Decimal `json:"balance"`
	DailyWithdrawalLimit  decimal.Decimal `json:"daily_withdrawal_limit"`
	WithdrawalAmountToday decimal.Decimal `json:"withdrawal_amount_today"`
	// LastWithdrawalDay is the calendar date (DayFormat) that
	// WithdrawalAmountToday applies to. Empty until the first withdrawal.
	LastWithdrawalDay string    `json:"last_withdrawal_day,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// CreateAccountRequest is the input for POST /v1/accounts.
type CreateAccountRequest struct {
	AccountNumber        string          `json:"accountNumber"`
	FirstName            string          `json:"firstName"`
	LastName             string          `json:"lastName"`
	DailyWithdrawalLimit decimal.Decimal `json:"dailyWithdrawalLimit"`
}

// UpdateAccountRequest is the input for PUT /v1/accounts/{accountId}.
// Balance and withdrawal tracking are never updatable through this path.
type UpdateAccountRequest struct {
	FirstName            string           `json:"firstName"`
	LastName             string           `json:"lastName"`
	DailyWithdrawalLimit *decimal.Decimal `json:"dailyWithdrawalLimit,omitempty"`
}

// AccountStatement bundles an account with its full transaction history.
type AccountStatement struct {
	Account      *Account      `json:"account"`
	Transactions []Transaction `json:"transactions"`
}
