// Package bolt implements port.LedgerStore on top of an embedded bbolt
// database. One ledger operation's full effect set is committed inside a
// single db.Update, which is the atomic all-or-nothing unit the engine's
// contract requires.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sort"

	"github.com/boddenberg/pj-ledger-go/internal/domain"

	bolt "go.etcd.io/bbolt"
)

var (
	accountsBucketName       = []byte("accounts")
	accountNumbersBucketName = []byte("accountNumbers")
	transactionsBucketName   = []byte("transactions")
	byAccountBucketName      = []byte("byAccount")
)

// Store is a bbolt-backed ledger store.
//
// Layout:
//
//	accounts/<accountID>                  -> JSON account snapshot
//	accountNumbers/<accountNumber>        -> accountID (uniqueness index)
//	transactions/byAccount/<accountID>/<seq> -> JSON transaction
//
// Transaction keys come from the bucket's NextSequence, so iteration order
// is creation order.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(accountsBucketName); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(accountNumbersBucketName); err != nil {
			return err
		}
		tBucket, err := tx.CreateBucketIfNotExists(transactionsBucketName)
		if err != nil {
			return err
		}
		_, err = tBucket.CreateBucketIfNotExists(byAccountBucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateAccount persists a new account and claims its account number.
func (s *Store) CreateAccount(_ context.Context, acct *domain.Account) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		numbers := tx.Bucket(accountNumbersBucketName)
		if numbers.Get([]byte(acct.AccountNumber)) != nil {
			return &domain.ErrDuplicate{Key: "account_number " + acct.AccountNumber}
		}

		raw, err := json.Marshal(acct)
		if err != nil {
			return err
		}
		if err := tx.Bucket(accountsBucketName).Put([]byte(acct.ID), raw); err != nil {
			return err
		}
		return numbers.Put([]byte(acct.AccountNumber), []byte(acct.ID))
	})
}

// GetAccount loads one account snapshot by ID.
func (s *Store) GetAccount(_ context.Context, id string) (*domain.Account, error) {
	var acct domain.Account
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(accountsBucketName).Get([]byte(id))
		if raw == nil {
			return &domain.ErrNotFound{Resource: "account", ID: id}
		}
		return json.Unmarshal(raw, &acct)
	})
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// ListAccounts returns one page of accounts ordered by creation time, and
// whether more pages follow.
func (s *Store) ListAccounts(_ context.Context, page, pageSize int) ([]domain.Account, bool, error) {
	var all []domain.Account
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(accountsBucketName).ForEach(func(_, v []byte) error {
			var acct domain.Account
			if err := json.Unmarshal(v, &acct); err != nil {
				return err
			}
			all = append(all, acct)
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].AccountNumber < all[j].AccountNumber
	})

	offset := (page - 1) * pageSize
	if offset >= len(all) {
		return nil, false, nil
	}
	end := offset + pageSize
	hasMore := end < len(all)
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], hasMore, nil
}

// UpdateAccount overwrites an existing account snapshot. The account
// number is immutable, so the uniqueness index needs no maintenance here.
func (s *Store) UpdateAccount(_ context.Context, acct *domain.Account) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		accounts := tx.Bucket(accountsBucketName)
		if accounts.Get([]byte(acct.ID)) == nil {
			return &domain.ErrNotFound{Resource: "account", ID: acct.ID}
		}
		raw, err := json.Marshal(acct)
		if err != nil {
			return err
		}
		return accounts.Put([]byte(acct.ID), raw)
	})
}

// DeleteAccount removes the account and releases its number. Transaction
// records are retained: the ledger history is append-only, and the read
// path guards on account existence.
func (s *Store) DeleteAccount(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		accounts := tx.Bucket(accountsBucketName)
		raw := accounts.Get([]byte(id))
		if raw == nil {
			return &domain.ErrNotFound{Resource: "account", ID: id}
		}
		var acct domain.Account
		if err := json.Unmarshal(raw, &acct); err != nil {
			return err
		}
		if err := accounts.Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(accountNumbersBucketName).Delete([]byte(acct.AccountNumber))
	})
}

// ListTransactions returns an account's transactions in creation order.
func (s *Store) ListTransactions(_ context.Context, accountID string) ([]domain.Transaction, error) {
	var transactions []domain.Transaction
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(transactionsBucketName).Bucket(byAccountBucketName).Bucket([]byte(accountID))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, v []byte) error {
			var record domain.Transaction
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			transactions = append(transactions, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// Apply commits updated account snapshot(s) plus new transaction record(s)
// in one bbolt transaction. Either everything below is durably written or
// nothing is.
func (s *Store) Apply(_ context.Context, accounts []domain.Account, transactions []domain.Transaction) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		accountsBucket := tx.Bucket(accountsBucketName)
		for i := range accounts {
			if accountsBucket.Get([]byte(accounts[i].ID)) == nil {
				return &domain.ErrNotFound{Resource: "account", ID: accounts[i].ID}
			}
			raw, err := json.Marshal(&accounts[i])
			if err != nil {
				return err
			}
			if err := accountsBucket.Put([]byte(accounts[i].ID), raw); err != nil {
				return err
			}
		}

		byAccount := tx.Bucket(transactionsBucketName).Bucket(byAccountBucketName)
		for i := range transactions {
			bucket, err := byAccount.CreateBucketIfNotExists([]byte(transactions[i].AccountID))
			if err != nil {
				return err
			}
			seq, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			raw, err := json.Marshal(&transactions[i])
			if err != nil {
				return err
			}
			if err := bucket.Put(itob(seq), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// Ping verifies the database is readable.
func (s *Store) Ping(_ context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(accountsBucketName) == nil {
			return bolt.ErrBucketNotFound
		}
		return nil
	})
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
