package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"event-sales-platform/internal/models"
)

// ReminderStore defines the draft checkout operations the abandoned-cart
// service needs
type ReminderStore interface {
	ReminderCandidates(ctx context.Context, createdBefore time.Time, limit int) ([]*models.TempRegistration, error)
	MarkReminderSent(ctx context.Context, sessionID string, sentAt, newExpiry time.Time) error
	CleanupExpired(ctx context.Context, now time.Time) (attendeesDetached, sessionsDeleted int, err error)
}

// ConversionChecker reports whether a buyer already completed a purchase
type ConversionChecker interface {
	HasPaidOrderForEmail(ctx context.Context, eventID int, email string) (bool, error)
}

// EventConfigs exposes per-event settings relevant to reminders
type EventConfigs interface {
	RemindersEnabled(ctx context.Context, eventID int) (bool, error)
}

// ReminderSender sends the abandoned-cart reminder email
type ReminderSender interface {
	SendAbandonedCartReminder(ctx context.Context, reg *models.TempRegistration) error
}

// ReminderRun summarizes one reminder sweep
type ReminderRun struct {
	Candidates int
	Sent       int
	Skipped    int
	Errors     int
}

// AbandonedCartService nudges buyers who started a checkout but never paid,
// and removes sessions that expired without converting.
type AbandonedCartService struct {
	store      ReminderStore
	orders     ConversionChecker
	events     EventConfigs
	email      ReminderSender
	minAge     time.Duration
	batchLimit int
	workers    int
}

// NewAbandonedCartService creates a new abandoned cart service. minAge is how
// long a session must sit untouched before it counts as abandoned.
func NewAbandonedCartService(store ReminderStore, orders ConversionChecker, events EventConfigs, email ReminderSender, minAge time.Duration) *AbandonedCartService {
	if minAge <= 0 {
		minAge = time.Hour
	}
	return &AbandonedCartService{
		store:      store,
		orders:     orders,
		events:     events,
		email:      email,
		minAge:     minAge,
		batchLimit: 200,
		workers:    5,
	}
}

// SendReminders runs one reminder sweep. Every candidate is attempted even
// when some fail; the run report counts outcomes instead of aborting on the
// first error.
func (s *AbandonedCartService) SendReminders(ctx context.Context) (*ReminderRun, error) {
	cutoff := time.Now().Add(-s.minAge)

	candidates, err := s.store.ReminderCandidates(ctx, cutoff, s.batchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load reminder candidates: %w", err)
	}

	run := &ReminderRun{Candidates: len(candidates)}
	if len(candidates) == 0 {
		return run, nil
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.workers)

	for _, reg := range candidates {
		wg.Add(1)
		sem <- struct{}{}
		go func(reg *models.TempRegistration) {
			defer wg.Done()
			defer func() { <-sem }()

			sent, err := s.remind(ctx, reg)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				run.Errors++
				log.Printf("abandoned cart reminder for session %s failed: %v", reg.SessionID, err)
			case sent:
				run.Sent++
			default:
				run.Skipped++
			}
		}(reg)
	}

	wg.Wait()

	log.Printf("abandoned cart sweep: %d candidates, %d sent, %d skipped, %d errors",
		run.Candidates, run.Sent, run.Skipped, run.Errors)

	return run, nil
}

// remind handles one candidate, returning whether a reminder went out
func (s *AbandonedCartService) remind(ctx context.Context, reg *models.TempRegistration) (bool, error) {
	if !reg.NeedsReminder(time.Now(), s.minAge) {
		return false, nil
	}

	if s.events != nil {
		enabled, err := s.events.RemindersEnabled(ctx, reg.EventID)
		if err != nil {
			return false, fmt.Errorf("failed to load event settings: %w", err)
		}
		if !enabled {
			return false, nil
		}
	}

	// A buyer who already bought through another session is converted, not
	// abandoned
	converted, err := s.orders.HasPaidOrderForEmail(ctx, reg.EventID, reg.PrimaryEmail())
	if err != nil {
		return false, fmt.Errorf("failed to check conversion: %w", err)
	}
	if converted {
		return false, nil
	}

	if err := s.email.SendAbandonedCartReminder(ctx, reg); err != nil {
		return false, fmt.Errorf("failed to send reminder: %w", err)
	}

	// Reminded sessions get a week before cleanup removes them
	now := time.Now()
	if err := s.store.MarkReminderSent(ctx, reg.SessionID, now, now.Add(7*24*time.Hour)); err != nil {
		return true, fmt.Errorf("reminder sent but not recorded: %w", err)
	}

	return true, nil
}

// CleanupExpired removes sessions past their expiry, detaching attendee rows
// first
func (s *AbandonedCartService) CleanupExpired(ctx context.Context) error {
	detached, deleted, err := s.store.CleanupExpired(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("failed to clean up expired sessions: %w", err)
	}

	if deleted > 0 {
		log.Printf("expired session cleanup: %d sessions removed, %d attendees detached", deleted, detached)
	}

	return nil
}
