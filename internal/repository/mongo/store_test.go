package mongo

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"telegram-image-bot/internal/model"
	"telegram-image-bot/internal/repository"
)

func checkDockerAvailable() bool {
	return exec.Command("docker", "info").Run() == nil
}

// setupTestStore starts a single-node replica set so transactions work.
func setupTestStore(t *testing.T) *Store {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7", mongodb.WithReplicaSet("rs0"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(ctx) })

	store := New(client, client.Database("image_bot_test"))
	require.NoError(t, store.Migrate(ctx))
	return store
}

func seedAccount(t *testing.T, s *Store, id, credits int64) {
	t.Helper()
	_, err := s.CreateAccount(context.Background(), &model.Account{
		UserID:       id,
		Username:     "user",
		Role:         model.RoleUser,
		TotalCredits: credits,
		LastReset:    "2024-01-01",
	})
	require.NoError(t, err)
}

func TestStore_AccountLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	seedAccount(t, s, 1, 10)

	_, err := s.CreateAccount(ctx, &model.Account{UserID: 1, Role: model.RoleUser})
	assert.ErrorIs(t, err, repository.ErrAccountExists)

	acc, err := s.AdjustCredits(ctx, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(30), acc.TotalCredits)

	rolled, err := s.RollDailyCounterIfStale(ctx, 1, "2024-01-02")
	require.NoError(t, err)
	assert.True(t, rolled)

	acc, err = s.IncrementDailyCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), acc.DailyCount)

	first, err := s.MarkReferralClaimed(ctx, 1)
	require.NoError(t, err)
	second, err := s.MarkReferralClaimed(ctx, 1)
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)

	_, err = s.GetAccount(ctx, 2)
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)
}

func TestStore_SpendCreditConcurrent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	seedAccount(t, s, 1, 2)

	var spent atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.SpendCredit(ctx, 1)
			assert.NoError(t, err)
			if ok {
				spent.Add(1)
			}
		}()
	}
	wg.Wait()

	acc, err := s.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), spent.Load())
	assert.Equal(t, int64(0), acc.TotalCredits)
}

func TestStore_SetRoleUpsert(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetRole(ctx, &model.Account{UserID: 9, Role: model.RoleAdmin, TotalCredits: 10, LastReset: "2024-01-01"}))
	acc, err := s.GetAccount(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, acc.Role)
	assert.Equal(t, int64(10), acc.TotalCredits)

	require.NoError(t, s.UpdateRole(ctx, 9, model.RoleUser))
	assert.ErrorIs(t, s.UpdateRole(ctx, 10, model.RoleUser), repository.ErrAccountNotFound)

	counts, err := s.CountByRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[model.RoleUser])

	list, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(9), list[0].UserID)
}

func TestStore_ReferralCodes(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	rc := &model.ReferralCode{Code: "a1b2c3d4", GeneratedBy: 1, ExpiresAt: now.Add(15 * time.Minute), CreatedAt: now}
	require.NoError(t, s.CreateReferralCode(ctx, rc))
	assert.ErrorIs(t, s.CreateReferralCode(ctx, rc), repository.ErrCodeExists)

	used, err := s.MarkReferralUsed(ctx, "a1b2c3d4", 2, now)
	require.NoError(t, err)
	assert.True(t, used.Used)

	_, err = s.MarkReferralUsed(ctx, "a1b2c3d4", 3, now)
	assert.ErrorIs(t, err, repository.ErrCodeUsed)

	_, err = s.MarkReferralUsed(ctx, "a1b2c3d4", 3, now.Add(time.Hour))
	assert.ErrorIs(t, err, repository.ErrCodeUsed)

	expired := &model.ReferralCode{Code: "e5f6a7b8", GeneratedBy: 1, ExpiresAt: now.Add(-time.Minute), CreatedAt: now.Add(-16 * time.Minute)}
	require.NoError(t, s.CreateReferralCode(ctx, expired))
	_, err = s.MarkReferralUsed(ctx, "e5f6a7b8", 2, now)
	assert.ErrorIs(t, err, repository.ErrCodeExpired)

	n, err := s.PurgeExpiredReferralCodes(ctx, now)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
}

func TestStore_CreditCodes(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	cc := &model.CreditCode{Code: "GIFT10", Amount: 10, GeneratedBy: 1, CreatedAt: time.Now()}
	require.NoError(t, s.CreateCreditCode(ctx, cc))
	assert.ErrorIs(t, s.CreateCreditCode(ctx, cc), repository.ErrCodeExists)

	_, err := s.MarkCreditCodeUsed(ctx, "GIFT10", 5, time.Now())
	require.NoError(t, err)
	_, err = s.MarkCreditCodeUsed(ctx, "GIFT10", 6, time.Now())
	assert.ErrorIs(t, err, repository.ErrCodeUsed)
	_, err = s.MarkCreditCodeUsed(ctx, "NONE", 6, time.Now())
	assert.ErrorIs(t, err, repository.ErrCodeNotFound)
}

func TestStore_WithinTxRollback(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	seedAccount(t, s, 1, 10)

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.AdjustCredits(ctx, 1, 20); err != nil {
			return err
		}
		if _, err := s.CreateTransaction(ctx, 1, 20, model.TxTypeReferralBonus, nil); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	acc, err := s.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), acc.TotalCredits)

	list, err := s.ListTransactions(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_Transactions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	seedAccount(t, s, 1, 10)

	first, err := s.CreateTransaction(ctx, 1, -1, model.TxTypeGeneration, nil)
	require.NoError(t, err)
	second, err := s.CreateTransaction(ctx, 1, 0, model.TxTypeGeneration, nil)
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)

	list, err := s.ListTransactions(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	n, err := s.CountTransactionsSince(ctx, model.TxTypeGeneration, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
