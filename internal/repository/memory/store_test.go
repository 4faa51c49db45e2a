package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"telegram-image-bot/internal/model"
	"telegram-image-bot/internal/repository"
)

func seed(t *testing.T, s *Store, id, credits int64) {
	t.Helper()
	_, err := s.CreateAccount(context.Background(), &model.Account{
		UserID: id, Role: model.RoleUser, TotalCredits: credits, LastReset: "2024-01-01",
	})
	require.NoError(t, err)
}

// TestAdjustCreditsSumProperty verifies that concurrent adjustments are never lost.
// *For any* list of deltas applied concurrently, the final credits equal the
// initial credits plus the sum of the deltas.
func TestAdjustCreditsSumProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		initial := rapid.Int64Range(0, 1000).Draw(rt, "initial")
		deltas := rapid.SliceOfN(rapid.Int64Range(-50, 50), 1, 40).Draw(rt, "deltas")

		s := New()
		_, err := s.CreateAccount(context.Background(), &model.Account{UserID: 1, TotalCredits: initial})
		if err != nil {
			rt.Fatalf("create: %v", err)
		}

		var wg sync.WaitGroup
		want := initial
		for _, d := range deltas {
			want += d
			wg.Add(1)
			go func(d int64) {
				defer wg.Done()
				_, _ = s.AdjustCredits(context.Background(), 1, d)
			}(d)
		}
		wg.Wait()

		acc, _ := s.GetAccount(context.Background(), 1)
		if acc.TotalCredits != want {
			rt.Fatalf("credits = %d, want %d", acc.TotalCredits, want)
		}
	})
}

// TestSpendCreditNeverNegativeProperty verifies that *for any* number of
// concurrent spenders, exactly min(spenders, credits) succeed.
func TestSpendCreditNeverNegativeProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		credits := rapid.Int64Range(0, 20).Draw(rt, "credits")
		spenders := rapid.IntRange(1, 40).Draw(rt, "spenders")

		s := New()
		_, _ = s.CreateAccount(context.Background(), &model.Account{UserID: 1, TotalCredits: credits})

		var ok atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < spenders; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if spent, _ := s.SpendCredit(context.Background(), 1); spent {
					ok.Add(1)
				}
			}()
		}
		wg.Wait()

		want := min(int64(spenders), credits)
		acc, _ := s.GetAccount(context.Background(), 1)
		if ok.Load() != want || acc.TotalCredits != credits-want {
			rt.Fatalf("spent %d (want %d), left %d", ok.Load(), want, acc.TotalCredits)
		}
	})
}

func TestMarkReferralUsed_ExactlyOneWinner(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.CreateReferralCode(ctx, &model.ReferralCode{
		Code: "abc", GeneratedBy: 1, ExpiresAt: now.Add(15 * time.Minute),
	}))

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := int64(0); i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := s.MarkReferralUsed(ctx, "abc", id, now); err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, repository.ErrCodeUsed)
			}
		}(100 + i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins.Load())
}

func TestMarkReferralUsed_ExpiryBoundary(t *testing.T) {
	s := New()
	ctx := context.Background()
	expires := time.Date(2024, 1, 1, 12, 15, 0, 0, time.UTC)

	require.NoError(t, s.CreateReferralCode(ctx, &model.ReferralCode{Code: "edge", GeneratedBy: 1, ExpiresAt: expires}))

	_, err := s.MarkReferralUsed(ctx, "edge", 2, expires)
	assert.ErrorIs(t, err, repository.ErrCodeExpired, "expiresAt == now is no longer claimable")

	_, err = s.MarkReferralUsed(ctx, "edge", 2, expires.Add(-time.Nanosecond))
	assert.NoError(t, err)
}

func TestWithinTx_RollsBackEveryMutation(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, 1, 10)
	require.NoError(t, s.CreateCreditCode(ctx, &model.CreditCode{Code: "X", Amount: 5}))

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.MarkCreditCodeUsed(ctx, "X", 1, time.Now()); err != nil {
			return err
		}
		if _, err := s.AdjustCredits(ctx, 1, 5); err != nil {
			return err
		}
		if _, err := s.MarkReferralClaimed(ctx, 1); err != nil {
			return err
		}
		if _, err := s.CreateAccount(ctx, &model.Account{UserID: 2}); err != nil {
			return err
		}
		if _, err := s.CreateTransaction(ctx, 1, 5, model.TxTypeCreditCode, nil); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	acc, err := s.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), acc.TotalCredits)
	assert.False(t, acc.HasClaimedReferral)

	cc, err := s.GetCreditCode(ctx, "X")
	require.NoError(t, err)
	assert.False(t, cc.Used)
	assert.Nil(t, cc.UsedBy)

	_, err = s.GetAccount(ctx, 2)
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)

	list, err := s.ListTransactions(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestWithinTx_CommitsOnSuccess(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, 1, 10)

	err := s.WithinTx(ctx, func(ctx context.Context) error {
		_, err := s.AdjustCredits(ctx, 1, 20)
		return err
	})
	require.NoError(t, err)

	acc, err := s.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(30), acc.TotalCredits)
}

func TestSetRole_UpsertKeepsCredits(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SetRole(ctx, &model.Account{UserID: 3, Role: model.RoleWhitelist, TotalCredits: 10, LastReset: "2024-01-01"}))
	_, err := s.AdjustCredits(ctx, 3, 5)
	require.NoError(t, err)
	require.NoError(t, s.SetRole(ctx, &model.Account{UserID: 3, Role: model.RoleAdmin, TotalCredits: 10}))

	acc, err := s.GetAccount(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, acc.Role)
	assert.Equal(t, int64(15), acc.TotalCredits)
}

func TestPurgeExpiredReferralCodes(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.CreateReferralCode(ctx, &model.ReferralCode{Code: "old", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, s.CreateReferralCode(ctx, &model.ReferralCode{Code: "new", ExpiresAt: now.Add(time.Minute)}))

	n, err := s.PurgeExpiredReferralCodes(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetReferralCode(ctx, "new")
	assert.NoError(t, err)
}
