package broadcast

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admit-hub/admission-calc-bot/internal/domain/shared"
	"github.com/admit-hub/admission-calc-bot/internal/domain/user"
)

type fakeUsers struct {
	user.Repository
	ids []user.TelegramID
}

func (f *fakeUsers) ListIDs(context.Context) ([]user.TelegramID, error) {
	return f.ids, nil
}

type fakeSender struct {
	mu       sync.Mutex
	sent     map[int64]string
	failFor  map[int64]bool
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[int64]string), failFor: make(map[int64]bool)}
}

func (f *fakeSender) SendMessage(_ context.Context, chatID int64, text string) error {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if cur <= seen || f.maxSeen.CompareAndSwap(seen, cur) {
			break
		}
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[chatID] {
		return errors.New("chat blocked")
	}
	f.sent[chatID] = text
	return nil
}

type fakeRecords struct {
	mu      sync.Mutex
	saved   []*Record
	saveErr error
}

func (f *fakeRecords) Save(_ context.Context, rec *Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, rec)
	return nil
}

func (f *fakeRecords) List(_ context.Context, limit int) ([]*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Record, 0, limit)
	for i := len(f.saved) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.saved[i])
	}
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ids(n int) []user.TelegramID {
	out := make([]user.TelegramID, n)
	for i := range out {
		out[i] = user.TelegramID(i + 1)
	}
	return out
}

func TestSendDeliversToAllUsers(t *testing.T) {
	sender := newFakeSender()
	records := &fakeRecords{}
	svc := NewService(&fakeUsers{ids: ids(5)}, sender, records, testLogger(), 0)

	result, err := svc.Send(context.Background(), 7, "New session dates are out!")
	require.NoError(t, err)

	assert.Equal(t, 5, result.Recipients)
	assert.Equal(t, 5, result.Delivered)
	assert.Zero(t, result.Failed)
	assert.NotEmpty(t, result.BroadcastID)

	text := sender.sent[3]
	assert.True(t, strings.HasPrefix(text, announcementHeader))
	assert.Contains(t, text, "New session dates are out!")

	require.Len(t, records.saved, 1)
	rec := records.saved[0]
	assert.Equal(t, result.BroadcastID, rec.ID)
	assert.Equal(t, int64(7), rec.AdminID)
	assert.Equal(t, "New session dates are out!", rec.Message)
	assert.Equal(t, 5, rec.Delivered)
}

func TestSendCountsFailuresWithoutAborting(t *testing.T) {
	sender := newFakeSender()
	sender.failFor[2] = true
	sender.failFor[4] = true
	records := &fakeRecords{}
	svc := NewService(&fakeUsers{ids: ids(5)}, sender, records, testLogger(), 0)

	result, err := svc.Send(context.Background(), 7, "hello")
	require.NoError(t, err)

	assert.Equal(t, 3, result.Delivered)
	assert.Equal(t, 2, result.Failed)

	require.Len(t, records.saved, 1)
	assert.Equal(t, 2, records.saved[0].Failed)
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	svc := NewService(&fakeUsers{}, newFakeSender(), &fakeRecords{}, testLogger(), 0)

	for _, msg := range []string{"", "   ", "\n\t"} {
		_, err := svc.Send(context.Background(), 7, msg)
		assert.ErrorIs(t, err, shared.ErrBroadcastEmpty)
		assert.ErrorIs(t, err, shared.ErrEmptyValue)
	}
}

func TestSendBoundsConcurrency(t *testing.T) {
	sender := newFakeSender()
	sender.delay = 2 * time.Millisecond
	svc := NewService(&fakeUsers{ids: ids(40)}, sender, &fakeRecords{}, testLogger(), 4)

	result, err := svc.Send(context.Background(), 7, "hello")
	require.NoError(t, err)

	assert.Equal(t, 40, result.Delivered)
	assert.LessOrEqual(t, sender.maxSeen.Load(), int32(4))
}

func TestSendSurvivesAuditFailure(t *testing.T) {
	records := &fakeRecords{saveErr: errors.New("db down")}
	svc := NewService(&fakeUsers{ids: ids(2)}, newFakeSender(), records, testLogger(), 0)

	result, err := svc.Send(context.Background(), 7, "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Delivered)
}

func TestSendWithNobodyToNotify(t *testing.T) {
	records := &fakeRecords{}
	svc := NewService(&fakeUsers{}, newFakeSender(), records, testLogger(), 0)

	result, err := svc.Send(context.Background(), 7, "hello")
	require.NoError(t, err)
	assert.Zero(t, result.Recipients)
	require.Len(t, records.saved, 1)
}

func TestHistoryReturnsNewestFirst(t *testing.T) {
	records := &fakeRecords{}
	svc := NewService(&fakeUsers{ids: ids(1)}, newFakeSender(), records, testLogger(), 0)

	_, err := svc.Send(context.Background(), 7, "first")
	require.NoError(t, err)
	_, err = svc.Send(context.Background(), 7, "second")
	require.NoError(t, err)

	recs, err := svc.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "second", recs[0].Message)
	assert.Equal(t, "first", recs[1].Message)
}
