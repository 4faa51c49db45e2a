package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-image-bot/internal/audit"
	"telegram-image-bot/internal/model"
	"telegram-image-bot/internal/pkg/lock"
	"telegram-image-bot/internal/provider"
)

// fakeImages returns a fixed result and counts calls.
type fakeImages struct {
	url   string
	err   error
	calls int
	// hook runs inside Generate before returning
	hook func()
}

func (f *fakeImages) Generate(_ context.Context, _ string) (*provider.Image, error) {
	f.calls++
	if f.hook != nil {
		f.hook()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Image{URL: f.url}, nil
}

func newGeneration(f *fixture, images ImageProvider) *GenerationService {
	return NewGenerationService(images, f.quota, f.store, lock.NewUserLock(), f.audit)
}

func TestGenerate_SuccessChargesCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustAccount(t, 7)
	svc := newGeneration(f, &fakeImages{url: "https://img/1.png"})

	var delivered string
	res, err := svc.Generate(ctx, 7, "carol", "  a cat  ", func(url string) error {
		delivered = url
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "https://img/1.png", delivered)
	assert.Equal(t, ConsumedCredit, res.Consumed)

	acc, err := f.store.GetAccount(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(testInitial-1), acc.TotalCredits)

	txs, err := f.store.ListTransactions(ctx, 7, 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, model.TxTypeGeneration, txs[0].Type)
	assert.Equal(t, int64(-1), txs[0].Amount)
	require.NotNil(t, txs[0].Description)
	assert.Equal(t, "a cat", *txs[0].Description)

	assert.Contains(t, f.audit.Kinds(), audit.KindImageGenerated)
}

func TestGenerate_ProviderFailureConsumesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustAccount(t, 7)
	svc := newGeneration(f, &fakeImages{err: &provider.Error{Kind: provider.KindRejected, Err: errors.New("nsfw")}})

	delivered := false
	_, err := svc.Generate(ctx, 7, "", "x", func(string) error {
		delivered = true
		return nil
	})
	require.ErrorIs(t, err, ErrUpstreamFailure)
	assert.Equal(t, provider.KindRejected, provider.KindOf(err))
	assert.False(t, delivered)

	acc, err := f.store.GetAccount(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(testInitial), acc.TotalCredits)
	assert.Zero(t, acc.DailyCount)
	assert.Contains(t, f.audit.Kinds(), audit.KindGenerationFailed)
}

func TestGenerate_DeliveryFailureConsumesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustAccount(t, 7)
	svc := newGeneration(f, &fakeImages{url: "https://img/1.png"})

	_, err := svc.Generate(ctx, 7, "", "x", func(string) error {
		return errors.New("chat gone")
	})
	require.Error(t, err)

	acc, err := f.store.GetAccount(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(testInitial), acc.TotalCredits)
}

func TestGenerate_Denials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	images := &fakeImages{url: "u"}
	svc := newGeneration(f, images)
	noop := func(string) error { return nil }

	_, err := svc.Generate(ctx, 7, "", "   ", noop)
	assert.ErrorIs(t, err, ErrEmptyPrompt)

	_, err = svc.Generate(ctx, 7, "", "cat", noop)
	assert.ErrorIs(t, err, ErrNotStarted)

	f.mustAccount(t, 7)
	f.setCredits(t, 7, 0)
	for i := 0; i < testDailyLimit; i++ {
		_, err := svc.Generate(ctx, 7, "", "cat", noop)
		require.NoError(t, err)
	}
	_, err = svc.Generate(ctx, 7, "", "cat", noop)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, testDailyLimit, images.calls)
}

func TestGenerate_InProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustAccount(t, 7)

	images := &fakeImages{url: "u"}
	svc := newGeneration(f, images)

	var nested error
	images.hook = func() {
		_, nested = svc.Generate(ctx, 7, "", "again", func(string) error { return nil })
	}

	_, err := svc.Generate(ctx, 7, "", "cat", func(string) error { return nil })
	require.NoError(t, err)
	assert.ErrorIs(t, nested, ErrGenerationInProgress)
	assert.Equal(t, 1, images.calls)
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "abc", shorten("abc", 5))
	assert.Equal(t, "ab…", shorten("abcdef", 2))
	assert.Equal(t, "日本…", shorten("日本語です", 2))
}
