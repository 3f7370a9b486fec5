package ledger

import (
	"github.com/boddenberg/pj-ledger-go/internal/domain"

	"github.com/shopspring/decimal"
)

// RemainingAllowance returns how much the account may still withdraw
// directly on the given calendar day (domain.DayFormat). If the account's
// last tracked withdrawal day differs from day, the day has rolled over
// and the full limit is available again.
//
// The day is computed once, in the timezone the process was configured
// with; the tracker never looks at wall-clock ordering of transactions.
func RemainingAllowance(acct domain.Account, day string) decimal.Decimal {
	remaining := acct.DailyWithdrawalLimit.Sub(spentToday(acct, day))
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// spentToday is the effective withdrawal amount accumulated for day:
// zero when the tracked day differs (rollover pending).
func spentToday(acct domain.Account, day string) decimal.Decimal {
	if acct.LastWithdrawalDay != day {
		return decimal.Zero
	}
	return acct.WithdrawalAmountToday
}
