package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-image-bot/internal/audit"
	"telegram-image-bot/internal/model"
)

func TestCreditCodeScenario_RedeemOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustAccount(t, 200)

	cc, err := f.codes.Issue(ctx, " PROMO ", 50, testOwnerID)
	require.NoError(t, err)
	assert.Equal(t, "PROMO", cc.Code)

	amount, err := f.codes.Redeem(ctx, "PROMO", 200)
	require.NoError(t, err)
	assert.Equal(t, int64(50), amount)

	acc, err := f.store.GetAccount(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(testInitial+50), acc.TotalCredits)

	_, err = f.codes.Redeem(ctx, "PROMO", 200)
	assert.ErrorIs(t, err, ErrAlreadyUsed)

	acc, err = f.store.GetAccount(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(testInitial+50), acc.TotalCredits)

	txs, err := f.store.ListTransactions(ctx, 200, 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, model.TxTypeCreditCode, txs[0].Type)
	assert.Equal(t, int64(50), txs[0].Amount)

	kinds := f.audit.Kinds()
	assert.Contains(t, kinds, audit.KindCreditCodeGenerated)
	assert.Contains(t, kinds, audit.KindCodeRedeemed)
}

func TestCreditCodeIssue_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		code   string
		amount int64
		want   error
	}{
		{"empty code", "   ", 10, ErrInvalidCode},
		{"zero amount", "FREE", 0, ErrInvalidAmount},
		{"negative amount", "FREE", -5, ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.codes.Issue(ctx, tt.code, tt.amount, testOwnerID)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := f.codes.Issue(ctx, "DUP", 5, testOwnerID)
	require.NoError(t, err)
	_, err = f.codes.Issue(ctx, "DUP", 7, testOwnerID)
	assert.ErrorIs(t, err, ErrDuplicateCode)
}

func TestCreditCodeRedeem_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustAccount(t, 200)

	_, err := f.codes.Redeem(ctx, "MISSING", 200)
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = f.codes.Issue(ctx, "X", 5, testOwnerID)
	require.NoError(t, err)
	_, err = f.codes.Redeem(ctx, "X", 999)
	assert.ErrorIs(t, err, ErrNotStarted)

	// The failed attempt left the code redeemable.
	_, err = f.codes.Redeem(ctx, "X", 200)
	assert.NoError(t, err)
}

func TestCreditCodeRedeem_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const redeemers = 15
	for i := 0; i < redeemers; i++ {
		f.mustAccount(t, int64(500+i))
	}
	_, err := f.codes.Issue(ctx, "RACE", 30, testOwnerID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, redeemers)
	for i := 0; i < redeemers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.codes.Redeem(ctx, "RACE", int64(500+i))
		}(i)
	}
	wg.Wait()

	var wins int
	var total int64
	for i, err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrAlreadyUsed) {
			t.Errorf("unexpected error: %v", err)
		}
		acc, err := f.store.GetAccount(ctx, int64(500+i))
		require.NoError(t, err)
		total += acc.TotalCredits
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, int64(redeemers*testInitial+30), total)
}
