package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"telegram-image-bot/internal/audit"
	"telegram-image-bot/internal/model"
	"telegram-image-bot/internal/repository/memory"
)

// testClock is a settable clock for Calendar.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// auditLog captures recorded event kinds.
type auditLog struct {
	mu     sync.Mutex
	events []audit.Event
}

func (l *auditLog) Record(kind audit.Kind, fields ...audit.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, audit.Event{Kind: kind, Fields: fields})
}

func (l *auditLog) Kinds() []audit.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	kinds := make([]audit.Kind, 0, len(l.events))
	for _, ev := range l.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

// tb is the subset of testing.TB that *rapid.T also satisfies.
type tb interface {
	Helper()
	Errorf(format string, args ...any)
	FailNow()
}

// fixture wires every service over one memory store.
type fixture struct {
	store    *memory.Store
	clock    *testClock
	cal      *Calendar
	audit    *auditLog
	accounts *AccountService
	quota    *QuotaPolicy
	referral *ReferralService
	codes    *CreditCodeService
	access   *AccessControl
}

const (
	testOwnerID     = 1
	testDailyLimit  = 10
	testInitial     = 10
	testReferred    = 20
	testReferralBon = 20
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.New(),
		clock: newTestClock(),
		audit: &auditLog{},
	}
	f.cal = NewCalendar(time.UTC, f.clock.Now)
	f.accounts = NewAccountService(f.store, f.cal, f.audit, testInitial, testReferred)
	f.quota = NewQuotaPolicy(f.store, f.cal, testDailyLimit)
	f.referral = NewReferralService(f.store, f.cal, f.audit, ReferralConfig{
		Bonus:      testReferralBon,
		TTL:        15 * time.Minute,
		CodeLength: 8,
	})
	f.codes = NewCreditCodeService(f.store, f.cal, f.audit)
	f.access = NewAccessControl(f.store, f.cal, f.audit, testOwnerID, testInitial)
	return f
}

// mustAccount creates an account through the account service.
func (f *fixture) mustAccount(t tb, userID int64) *model.Account {
	t.Helper()
	acc, created, err := f.accounts.EnsureAccount(context.Background(), userID, "", 0)
	require.NoError(t, err)
	require.True(t, created)
	return acc
}

// setCredits forces an account's balance.
func (f *fixture) setCredits(t tb, userID, credits int64) {
	t.Helper()
	acc, err := f.store.GetAccount(context.Background(), userID)
	require.NoError(t, err)
	_, err = f.store.AdjustCredits(context.Background(), userID, credits-acc.TotalCredits)
	require.NoError(t, err)
}
