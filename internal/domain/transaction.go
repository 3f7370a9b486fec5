package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Transactions (append-only ledger records)
// ============================================================

// TransactionType discriminates the two legs a ledger mutation can record.
type TransactionType string

const (
	TransactionDeposit    TransactionType = "Deposit"
	TransactionWithdrawal TransactionType = "Withdrawal"
)

// Transaction is an immutable record of a single balance-affecting event.
// It is created only as a side effect of a ledger mutation and is never
// updated or deleted afterwards. A transfer records one Withdrawal leg on
// the source account and one Deposit leg on the destination account.
type Transaction struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Type      TransactionType `json:"type"`
	Amount    decimal.Decimal `json:"amount"` // always positive
	Timestamp time.Time       `json:"timestamp"`
}

// TransferResult is returned by POST /v1/transfers: both updated accounts.
type TransferResult struct {
	FromAccount *Account `json:"from_account"`
	ToAccount   *Account `json:"to_account"`
}
