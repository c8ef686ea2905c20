// Package broadcast fans an admin announcement out to every known user
// and keeps an audit record of each run.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/admit-hub/admission-calc-bot/internal/domain/shared"
	"github.com/admit-hub/admission-calc-bot/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// Sender delivers one message to one chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Record is the audit row written after every broadcast run.
type Record struct {
	// ID is the broadcast identifier (UUID in string form).
	ID string

	// AdminID is who triggered the broadcast.
	AdminID int64

	// Message is the original text, without the announcement header.
	Message string

	// Recipients, Delivered and Failed count the fan-out outcome.
	Recipients int
	Delivered  int
	Failed     int

	// CreatedAt is when the run finished.
	CreatedAt time.Time
}

// Repository persists broadcast audit records.
type Repository interface {
	// Save stores one audit record.
	Save(ctx context.Context, rec *Record) error

	// List returns the most recent records, newest first.
	List(ctx context.Context, limit int) ([]*Record, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// DefaultConcurrency bounds parallel deliveries unless configured.
const DefaultConcurrency = 10

// announcementHeader precedes every broadcast message.
const announcementHeader = "📢 Message from Admin:\n"

// Result summarizes one broadcast run.
type Result struct {
	BroadcastID string
	Recipients  int
	Delivered   int
	Failed      int
	Duration    time.Duration
}

// Service sends announcements to the whole user base.
type Service struct {
	users       user.Repository
	sender      Sender
	records     Repository
	logger      *slog.Logger
	concurrency int
}

// NewService creates a broadcast service.
func NewService(users user.Repository, sender Sender, records Repository, logger *slog.Logger, concurrency int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	return &Service{
		users:       users,
		sender:      sender,
		records:     records,
		logger:      logger,
		concurrency: concurrency,
	}
}

// Send delivers the message to every user. Individual delivery failures
// are counted, logged and never abort the run; blocked bots and dead
// chats are a fact of life at fan-out time.
func (s *Service) Send(ctx context.Context, adminID user.TelegramID, message string) (*Result, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, shared.ErrBroadcastEmpty
	}

	ids, err := s.users.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("broadcast: failed to list recipients: %w", err)
	}

	startedAt := time.Now()
	text := announcementHeader + message

	var (
		wg        sync.WaitGroup
		semaphore = make(chan struct{}, s.concurrency)
		mu        sync.Mutex
		delivered int
		failed    int
	)

	for _, id := range ids {
		select {
		case <-ctx.Done():
			s.logger.Warn("broadcast interrupted", "sent", delivered, "total", len(ids))
			return nil, ctx.Err()
		default:
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(chatID int64) {
			defer wg.Done()
			defer func() { <-semaphore }()

			err := s.sender.SendMessage(ctx, chatID, text)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				failed++
				s.logger.Warn("failed to deliver broadcast", "chat_id", chatID, "error", err)
				return
			}
			delivered++
		}(id.Int64())
	}

	wg.Wait()

	result := &Result{
		BroadcastID: uuid.NewString(),
		Recipients:  len(ids),
		Delivered:   delivered,
		Failed:      failed,
		Duration:    time.Since(startedAt),
	}

	rec := &Record{
		ID:         result.BroadcastID,
		AdminID:    adminID.Int64(),
		Message:    message,
		Recipients: result.Recipients,
		Delivered:  result.Delivered,
		Failed:     result.Failed,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.records.Save(ctx, rec); err != nil {
		// Log but don't fail: the announcement already went out.
		s.logger.Error("failed to save broadcast record", "broadcast_id", rec.ID, "error", err)
	}

	s.logger.Info("broadcast completed",
		"broadcast_id", result.BroadcastID,
		"recipients", result.Recipients,
		"delivered", result.Delivered,
		"failed", result.Failed,
		"duration", result.Duration.String(),
	)

	return result, nil
}

// History returns recent broadcast runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]*Record, error) {
	recs, err := s.records.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("broadcast: failed to list records: %w", err)
	}
	return recs, nil
}
