// Package memory implements the repository interfaces in process memory.
// It backs the service tests and single-process local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"telegram-image-bot/internal/model"
	"telegram-image-bot/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// Store keeps all data in maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex
	// txMu serializes WithinTx callers
	txMu sync.Mutex

	accounts     map[int64]*model.Account
	referrals    map[string]*model.ReferralCode
	creditCodes  map[string]*model.CreditCode
	transactions []*model.Transaction
	nextTxID     int64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts:    make(map[int64]*model.Account),
		referrals:   make(map[string]*model.ReferralCode),
		creditCodes: make(map[string]*model.CreditCode),
	}
}

// journal collects undo steps for the running transaction.
type journal struct {
	undo []func()
}

type journalKey struct{}

// record registers an inverse operation; must be called with s.mu held.
func (s *Store) record(ctx context.Context, undo func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.undo = append(j.undo, undo)
	}
}

// WithinTx runs fn and reverts every mutation it made when fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(journalKey{}).(*journal); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	j := &journal{}
	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		s.mu.Lock()
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Account Store implementation

// GetAccount returns a copy of the account or ErrAccountNotFound.
func (s *Store) GetAccount(_ context.Context, userID int64) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[userID]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, repository.ErrAccountNotFound
}

// CreateAccount inserts acc, returning ErrAccountExists on a duplicate id.
func (s *Store) CreateAccount(ctx context.Context, acc *model.Account) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[acc.UserID]; exists {
		return nil, repository.ErrAccountExists
	}
	now := time.Now()
	stored := *acc
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.accounts[acc.UserID] = &stored
	s.record(ctx, func() { delete(s.accounts, acc.UserID) })

	cp := stored
	return &cp, nil
}

// AdjustCredits adds delta to the account's credits.
func (s *Store) AdjustCredits(ctx context.Context, userID, delta int64) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	a.TotalCredits += delta
	a.UpdatedAt = time.Now()
	s.record(ctx, func() { a.TotalCredits -= delta })

	cp := *a
	return &cp, nil
}

// SpendCredit takes one credit when the balance is positive and reports whether it did.
func (s *Store) SpendCredit(ctx context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok || a.TotalCredits <= 0 {
		return false, nil
	}
	a.TotalCredits--
	a.UpdatedAt = time.Now()
	s.record(ctx, func() { a.TotalCredits++ })
	return true, nil
}

// RollDailyCounterIfStale zeroes the daily counter when LastReset is not today.
func (s *Store) RollDailyCounterIfStale(ctx context.Context, userID int64, today string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok || a.LastReset == today {
		return false, nil
	}
	prevCount, prevReset := a.DailyCount, a.LastReset
	a.DailyCount = 0
	a.LastReset = today
	a.UpdatedAt = time.Now()
	s.record(ctx, func() { a.DailyCount, a.LastReset = prevCount, prevReset })
	return true, nil
}

// IncrementDailyCount counts one generation against today's quota.
func (s *Store) IncrementDailyCount(ctx context.Context, userID int64) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	a.DailyCount++
	a.UpdatedAt = time.Now()
	s.record(ctx, func() { a.DailyCount-- })

	cp := *a
	return &cp, nil
}

// SetRole sets the role of seed.UserID, inserting seed when the account is absent.
func (s *Store) SetRole(ctx context.Context, seed *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.accounts[seed.UserID]; ok {
		prev := a.Role
		a.Role = seed.Role
		a.UpdatedAt = time.Now()
		s.record(ctx, func() { a.Role = prev })
		return nil
	}

	now := time.Now()
	s.accounts[seed.UserID] = &model.Account{
		UserID:       seed.UserID,
		Username:     seed.Username,
		Role:         seed.Role,
		TotalCredits: seed.TotalCredits,
		LastReset:    seed.LastReset,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.record(ctx, func() { delete(s.accounts, seed.UserID) })
	return nil
}

// UpdateRole changes the role of an existing account.
func (s *Store) UpdateRole(ctx context.Context, userID int64, role model.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok {
		return repository.ErrAccountNotFound
	}
	prev := a.Role
	a.Role = role
	a.UpdatedAt = time.Now()
	s.record(ctx, func() { a.Role = prev })
	return nil
}

// MarkReferralClaimed sets the claimed flag and reports whether this call set it.
func (s *Store) MarkReferralClaimed(ctx context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok || a.HasClaimedReferral {
		return false, nil
	}
	a.HasClaimedReferral = true
	s.record(ctx, func() { a.HasClaimedReferral = false })
	return true, nil
}

// UpdateUsername stores the latest Telegram username.
func (s *Store) UpdateUsername(ctx context.Context, userID int64, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok {
		return repository.ErrAccountNotFound
	}
	prev := a.Username
	a.Username = username
	s.record(ctx, func() { a.Username = prev })
	return nil
}

// ListAccounts returns a summary of every account, ordered by id.
func (s *Store) ListAccounts(_ context.Context) ([]model.AccountSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.AccountSummary, 0, len(s.accounts))
	for _, a := range s.accounts {
		result = append(result, model.AccountSummary{UserID: a.UserID, Username: a.Username, Role: a.Role})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result, nil
}

// CountByRole returns the number of accounts per role.
func (s *Store) CountByRole(_ context.Context) (map[model.Role]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[model.Role]int64)
	for _, a := range s.accounts {
		counts[a.Role]++
	}
	return counts, nil
}

// Referral Store implementation

// CreateReferralCode stores rc, returning ErrCodeExists on a duplicate code.
func (s *Store) CreateReferralCode(ctx context.Context, rc *model.ReferralCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.referrals[rc.Code]; exists {
		return repository.ErrCodeExists
	}
	stored := *rc
	s.referrals[rc.Code] = &stored
	s.record(ctx, func() { delete(s.referrals, rc.Code) })
	return nil
}

// GetReferralCode returns a copy of the referral code or ErrCodeNotFound.
func (s *Store) GetReferralCode(_ context.Context, code string) (*model.ReferralCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rc, ok := s.referrals[code]; ok {
		cp := *rc
		return &cp, nil
	}
	return nil, repository.ErrCodeNotFound
}

// MarkReferralUsed consumes an unused, unexpired referral code.
func (s *Store) MarkReferralUsed(ctx context.Context, code string, usedBy int64, now time.Time) (*model.ReferralCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rc, ok := s.referrals[code]
	switch {
	case !ok:
		return nil, repository.ErrCodeNotFound
	case rc.Used:
		return nil, repository.ErrCodeUsed
	case rc.Expired(now):
		return nil, repository.ErrCodeExpired
	}
	rc.Used = true
	rc.UsedBy = &usedBy
	s.record(ctx, func() { rc.Used, rc.UsedBy = false, nil })

	cp := *rc
	return &cp, nil
}

// PurgeExpiredReferralCodes deletes codes that expired before the given time.
func (s *Store) PurgeExpiredReferralCodes(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for code, rc := range s.referrals {
		if rc.Expired(before) {
			delete(s.referrals, code)
			n++
		}
	}
	return n, nil
}

// Credit Code Store implementation

// CreateCreditCode stores cc, returning ErrCodeExists on a duplicate code.
func (s *Store) CreateCreditCode(ctx context.Context, cc *model.CreditCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.creditCodes[cc.Code]; exists {
		return repository.ErrCodeExists
	}
	stored := *cc
	s.creditCodes[cc.Code] = &stored
	s.record(ctx, func() { delete(s.creditCodes, cc.Code) })
	return nil
}

// GetCreditCode returns a copy of the credit code or ErrCodeNotFound.
func (s *Store) GetCreditCode(_ context.Context, code string) (*model.CreditCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cc, ok := s.creditCodes[code]; ok {
		cp := *cc
		return &cp, nil
	}
	return nil, repository.ErrCodeNotFound
}

// MarkCreditCodeUsed consumes an unused credit code.
func (s *Store) MarkCreditCodeUsed(ctx context.Context, code string, usedBy int64, now time.Time) (*model.CreditCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cc, ok := s.creditCodes[code]
	if !ok {
		return nil, repository.ErrCodeNotFound
	}
	if cc.Used {
		return nil, repository.ErrCodeUsed
	}
	cc.Used = true
	cc.UsedBy = &usedBy
	cc.UsedAt = &now
	s.record(ctx, func() { cc.Used, cc.UsedBy, cc.UsedAt = false, nil, nil })

	cp := *cc
	return &cp, nil
}

// Transaction Store implementation

// CreateTransaction appends an entry to the credit log.
func (s *Store) CreateTransaction(ctx context.Context, userID, amount int64, txType string, description *string) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTxID++
	tx := &model.Transaction{
		ID:          s.nextTxID,
		UserID:      userID,
		Amount:      amount,
		Type:        txType,
		Description: description,
		CreatedAt:   time.Now(),
	}
	s.transactions = append(s.transactions, tx)
	s.record(ctx, func() {
		for i, t := range s.transactions {
			if t == tx {
				s.transactions = append(s.transactions[:i], s.transactions[i+1:]...)
				return
			}
		}
	})

	cp := *tx
	return &cp, nil
}

// ListTransactions returns the newest entries of a user, at most limit.
func (s *Store) ListTransactions(_ context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.Transaction
	for i := len(s.transactions) - 1; i >= 0 && len(result) < limit; i-- {
		if t := s.transactions[i]; t.UserID == userID {
			cp := *t
			result = append(result, &cp)
		}
	}
	return result, nil
}

// CountTransactionsSince counts entries of txType created at or after since.
func (s *Store) CountTransactionsSince(_ context.Context, txType string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, t := range s.transactions {
		if t.Type == txType && !t.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}
