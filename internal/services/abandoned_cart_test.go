package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-sales-platform/internal/models"
)

// MockReminderStore is an in-memory reminder candidate store
type MockReminderStore struct {
	mu         sync.Mutex
	candidates []*models.TempRegistration
	reminded   map[string]time.Time
	expiries   map[string]time.Time
	cleanupErr error
	detached   int
	deleted    int
}

func NewMockReminderStore() *MockReminderStore {
	return &MockReminderStore{
		reminded: make(map[string]time.Time),
		expiries: make(map[string]time.Time),
	}
}

func (m *MockReminderStore) ReminderCandidates(ctx context.Context, createdBefore time.Time, limit int) ([]*models.TempRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.TempRegistration
	for _, reg := range m.candidates {
		if reg.CreatedAt.Before(createdBefore) && reg.ReminderEmailSentAt == nil {
			out = append(out, reg)
		}
	}
	return out, nil
}

func (m *MockReminderStore) MarkReminderSent(ctx context.Context, sessionID string, sentAt, newExpiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reminded[sessionID] = sentAt
	m.expiries[sessionID] = newExpiry
	return nil
}

func (m *MockReminderStore) CleanupExpired(ctx context.Context, now time.Time) (int, int, error) {
	if m.cleanupErr != nil {
		return 0, 0, m.cleanupErr
	}
	return m.detached, m.deleted, nil
}

// MockConversionChecker marks emails as already converted
type MockConversionChecker struct {
	converted map[string]bool
	err       error
}

func (m *MockConversionChecker) HasPaidOrderForEmail(ctx context.Context, eventID int, email string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.converted[email], nil
}

// MockEventConfigs disables reminders for listed events
type MockEventConfigs struct {
	disabled map[int]bool
}

func (m *MockEventConfigs) RemindersEnabled(ctx context.Context, eventID int) (bool, error) {
	return !m.disabled[eventID], nil
}

// MockReminderSender records reminder emails, optionally failing for some
type MockReminderSender struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]bool
}

func NewMockReminderSender() *MockReminderSender {
	return &MockReminderSender{failFor: make(map[string]bool)}
}

func (m *MockReminderSender) SendAbandonedCartReminder(ctx context.Context, reg *models.TempRegistration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[reg.SessionID] {
		return fmt.Errorf("delivery failed for %s", reg.SessionID)
	}
	m.sent = append(m.sent, reg.SessionID)
	return nil
}

func abandonedDraft(sessionID string, age time.Duration) *models.TempRegistration {
	return &models.TempRegistration{
		SessionID:    sessionID,
		EventID:      1,
		TotalAmount:  3000,
		BillingEmail: sessionID + "@example.com",
		CreatedAt:    time.Now().Add(-age),
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func TestSendReminders_SendsToEligibleCandidates(t *testing.T) {
	store := NewMockReminderStore()
	store.candidates = []*models.TempRegistration{
		abandonedDraft("sess-old", 2 * time.Hour),
		abandonedDraft("sess-older", 3 * time.Hour),
	}
	sender := NewMockReminderSender()
	svc := NewAbandonedCartService(store, &MockConversionChecker{}, nil, sender, time.Hour)

	run, err := svc.SendReminders(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, run.Candidates)
	assert.Equal(t, 2, run.Sent)
	assert.Equal(t, 0, run.Skipped)
	assert.Equal(t, 0, run.Errors)
	assert.Len(t, store.reminded, 2)

	// Reminded sessions get their expiry pushed out a week
	expiry := store.expiries["sess-old"]
	assert.True(t, expiry.After(time.Now().Add(6*24*time.Hour)))
}

func TestSendReminders_FreshSessionNotReminded(t *testing.T) {
	store := NewMockReminderStore()
	store.candidates = []*models.TempRegistration{
		abandonedDraft("sess-fresh", 30 * time.Minute),
	}
	sender := NewMockReminderSender()
	svc := NewAbandonedCartService(store, &MockConversionChecker{}, nil, sender, time.Hour)

	run, err := svc.SendReminders(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, run.Sent)
	assert.Empty(t, store.reminded)
}

func TestSendReminders_SixtyOneMinuteSessionQualifies(t *testing.T) {
	store := NewMockReminderStore()
	store.candidates = []*models.TempRegistration{
		abandonedDraft("sess-61", 61 * time.Minute),
	}
	sender := NewMockReminderSender()
	svc := NewAbandonedCartService(store, &MockConversionChecker{}, nil, sender, time.Hour)

	run, err := svc.SendReminders(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, run.Sent)
}

func TestSendReminders_ConvertedVisitorSkipped(t *testing.T) {
	store := NewMockReminderStore()
	store.candidates = []*models.TempRegistration{
		abandonedDraft("sess-bought", 2 * time.Hour),
	}
	checker := &MockConversionChecker{converted: map[string]bool{"sess-bought@example.com": true}}
	sender := NewMockReminderSender()
	svc := NewAbandonedCartService(store, checker, nil, sender, time.Hour)

	run, err := svc.SendReminders(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, run.Sent)
	assert.Equal(t, 1, run.Skipped)
	assert.Empty(t, sender.sent)
}

func TestSendReminders_EventOptOutSkipped(t *testing.T) {
	store := NewMockReminderStore()
	draft := abandonedDraft("sess-optout", 2*time.Hour)
	draft.EventID = 42
	store.candidates = []*models.TempRegistration{draft}

	events := &MockEventConfigs{disabled: map[int]bool{42: true}}
	sender := NewMockReminderSender()
	svc := NewAbandonedCartService(store, &MockConversionChecker{}, events, sender, time.Hour)

	run, err := svc.SendReminders(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, run.Skipped)
	assert.Empty(t, sender.sent)
	assert.Empty(t, store.reminded)
}

func TestSendReminders_PartialFailureDoesNotAbortRun(t *testing.T) {
	store := NewMockReminderStore()
	store.candidates = []*models.TempRegistration{
		abandonedDraft("sess-ok", 2 * time.Hour),
		abandonedDraft("sess-bad", 2 * time.Hour),
		abandonedDraft("sess-ok2", 2 * time.Hour),
	}
	sender := NewMockReminderSender()
	sender.failFor["sess-bad"] = true
	svc := NewAbandonedCartService(store, &MockConversionChecker{}, nil, sender, time.Hour)

	run, err := svc.SendReminders(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, run.Sent)
	assert.Equal(t, 1, run.Errors)

	// The failed session must remain unmarked so the next run retries it
	_, reminded := store.reminded["sess-bad"]
	assert.False(t, reminded)
}

func TestSendReminders_NoCandidates(t *testing.T) {
	store := NewMockReminderStore()
	svc := NewAbandonedCartService(store, &MockConversionChecker{}, nil, NewMockReminderSender(), time.Hour)

	run, err := svc.SendReminders(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, run.Candidates)
}

func TestCleanupExpired_ReportsError(t *testing.T) {
	store := NewMockReminderStore()
	store.cleanupErr = fmt.Errorf("db down")
	svc := NewAbandonedCartService(store, &MockConversionChecker{}, nil, NewMockReminderSender(), time.Hour)

	err := svc.CleanupExpired(context.Background())

	assert.Error(t, err)
}

func TestCleanupExpired_Success(t *testing.T) {
	store := NewMockReminderStore()
	store.detached = 3
	store.deleted = 2
	svc := NewAbandonedCartService(store, &MockConversionChecker{}, nil, NewMockReminderSender(), time.Hour)

	err := svc.CleanupExpired(context.Background())

	assert.NoError(t, err)
}
