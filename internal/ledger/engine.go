// Package ledger implements the ledger mutation engine: pure,
// non-blocking computations that turn an account snapshot plus a requested
// operation into the full effect set to persist (updated snapshots and the
// transaction records for each leg), or into a typed rejection that leaves
// every input unchanged.
//
// The engine performs no I/O. Loading snapshots, serializing access per
// account and committing the effect set atomically are the caller's job
// (see internal/service and port.LedgerStore).
package ledger

import (
	"time"

	"github.com/boddenberg/pj-ledger-go/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Result is the complete effect set of one applied ledger operation.
// Everything in it must be committed as a single atomic unit: the updated
// account snapshot(s) and the new transaction record(s).
type Result struct {
	Accounts     []domain.Account
	Transactions []domain.Transaction
}

// Deposit credits amount to the account and records one Deposit
// transaction. Deposits never interact with the daily withdrawal limit.
func Deposit(acct domain.Account, amount decimal.Decimal, now time.Time) (*Result, error) {
	if !amount.IsPositive() {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be positive"}
	}

	acct.Balance = acct.Balance.Add(amount)

	return &Result{
		Accounts:     []domain.Account{acct},
		Transactions: []domain.Transaction{newTransaction(acct.ID, domain.TransactionDeposit, amount, now)},
	}, nil
}

// Withdraw debits amount from the account, accumulates it against the
// daily withdrawal allowance and records one Withdrawal transaction.
//
// Precondition order is significant and deliberate: the daily-limit check
// runs before the balance check, so an over-limit request on an empty
// account reports the limit, not the funds.
func Withdraw(acct domain.Account, amount decimal.Decimal, now time.Time) (*Result, error) {
	if !amount.IsPositive() {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be positive"}
	}

	day := now.Format(domain.DayFormat)

	if RemainingAllowance(acct, day).LessThan(amount) {
		return nil, &domain.ErrLimitExceeded{
			LimitType: "daily_withdrawal",
			Limit:     acct.DailyWithdrawalLimit,
			Current:   spentToday(acct, day).Add(amount),
		}
	}
	if acct.Balance.LessThan(amount) {
		return nil, &domain.ErrInsufficientFunds{Available: acct.Balance, Required: amount}
	}

	// Day rollover: the reset is part of the same effect set as the
	// balance change, so it is persisted atomically with it.
	if acct.LastWithdrawalDay != day {
		acct.WithdrawalAmountToday = decimal.Zero
		acct.LastWithdrawalDay = day
	}

	acct.Balance = acct.Balance.Sub(amount)
	acct.WithdrawalAmountToday = acct.WithdrawalAmountToday.Add(amount)

	return &Result{
		Accounts:     []domain.Account{acct},
		Transactions: []domain.Transaction{newTransaction(acct.ID, domain.TransactionWithdrawal, amount, now)},
	}, nil
}

// Transfer atomically moves amount between two accounts, recording a
// Withdrawal leg on the source and a Deposit leg on the destination.
//
// Transfers do NOT consult the source account's daily withdrawal limit;
// only direct withdrawals are limited. A transfer where source and
// destination are the same account is permitted: both legs are applied to
// a single snapshot, so the net balance change is zero and both
// transaction records are still appended.
func Transfer(from, to domain.Account, amount decimal.Decimal, now time.Time) (*Result, error) {
	if !amount.IsPositive() {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be positive"}
	}
	if from.Balance.LessThan(amount) {
		return nil, &domain.ErrInsufficientFunds{Available: from.Balance, Required: amount}
	}

	legs := []domain.Transaction{
		newTransaction(from.ID, domain.TransactionWithdrawal, amount, now),
		newTransaction(to.ID, domain.TransactionDeposit, amount, now),
	}

	if from.ID == to.ID {
		return &Result{Accounts: []domain.Account{from}, Transactions: legs}, nil
	}

	from.Balance = from.Balance.Sub(amount)
	to.Balance = to.Balance.Add(amount)

	return &Result{Accounts: []domain.Account{from, to}, Transactions: legs}, nil
}

func newTransaction(accountID string, t domain.TransactionType, amount decimal.Decimal, now time.Time) domain.Transaction {
	return domain.Transaction{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Type:      t,
		Amount:    amount,
		Timestamp: now,
	}
}
