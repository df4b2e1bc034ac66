package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/valter-silva-au/devflow/pkg/models"
)

// ThreadSentinel prefixes every daily check-in root message. Thread
// discovery depends on it, so it is fixed rather than templated.
const ThreadSentinel = ":sunrise: Daily Check-in - "

// DateLabelLayout formats the calendar date that names a daily thread.
const DateLabelLayout = "2006-01-02"

const defaultHistoryLimit = 100

// DateLabel returns the thread date label for t.
func DateLabel(t time.Time) string {
	return t.Format(DateLabelLayout)
}

// ThreadMarker returns the literal text that identifies the daily thread for
// dateLabel inside a root message.
func ThreadMarker(dateLabel string) string {
	return ThreadSentinel + dateLabel
}

// ThreadLocator finds the conversation thread that represents one day.
type ThreadLocator interface {
	// FindTodayThread returns ErrNotFound when no message in recent history
	// carries the marker for dateLabel.
	FindTodayThread(ctx context.Context, channelID, dateLabel string) (*models.Thread, error)
}

type threadLocator struct {
	messenger    Messenger
	historyLimit int
	timeout      time.Duration
	logger       *slog.Logger
}

// NewThreadLocator creates a ThreadLocator that scans at most historyLimit
// recent messages.
func NewThreadLocator(messenger Messenger, historyLimit int, timeout time.Duration, logger *slog.Logger) ThreadLocator {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &threadLocator{
		messenger:    messenger,
		historyLimit: historyLimit,
		timeout:      timeout,
		logger:       loggerOrDiscard(logger),
	}
}

// FindTodayThread scans history newest first. If a duplicate root was
// posted by accident, the most recent one wins.
func (l *threadLocator) FindTodayThread(ctx context.Context, channelID, dateLabel string) (*models.Thread, error) {
	if channelID == "" {
		return nil, fmt.Errorf("finding thread: channel ID is empty")
	}
	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	history, err := l.messenger.History(callCtx, channelID, l.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("finding thread for %s: reading history: %w", dateLabel, err)
	}

	marker := ThreadMarker(dateLabel)
	for _, msg := range history {
		if !strings.Contains(msg.Text, marker) {
			continue
		}
		ts := msg.TimestampID
		if ts == "" {
			ts = msg.ID
		}
		l.logger.Debug("found daily thread", "channel", channelID, "date", dateLabel, "thread_ts", ts)
		return &models.Thread{ChannelID: channelID, TimestampID: ts, DateLabel: dateLabel}, nil
	}
	return nil, fmt.Errorf("thread for %s in %s: %w", dateLabel, channelID, ErrNotFound)
}
