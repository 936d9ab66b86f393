// Package syncer runs the fixed-interval reconciliation that makes
// independent session processes sharing one store behave like one chat.
// Each tick reloads the message log (replace wholesale when the content
// diverges) and the presence table (replace wholesale always). Divergence
// between two sessions writing in the same tick resolves as last store
// write wins, at whole-log granularity.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"localchat/chat"
	"localchat/presence"
	"localchat/store"
)

type Loop struct {
	store    *store.Store
	log      *chat.Log
	tracker  *presence.Tracker
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(st *store.Store, log *chat.Log, tracker *presence.Tracker, interval time.Duration, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		store:    st,
		log:      log,
		tracker:  tracker,
		interval: interval,
		logger:   logger,
	}
}

// Start begins ticking. Starting an already running loop is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.run(ctx, l.done)
}

// Stop cancels the loop and waits until no further tick can run.
// Idempotent: stopping a stopped (or never started) loop is a no-op.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick()
		}
	}
}

// tick runs both reconciliation steps. A table that cannot be read or
// parsed is skipped for this tick and retried on the next one; a bad
// blob must never kill the loop.
func (l *Loop) tick() {
	messages, err := l.store.Messages()
	switch {
	case err == nil:
		if l.log.ReplaceIfChanged(messages) {
			l.logger.Debug("message log reconciled", zap.Int("messages", len(messages)))
		}
	case errors.Is(err, store.ErrNotFound):
		// Nothing persisted yet.
	case errors.Is(err, store.ErrMalformed):
		l.logger.Warn("skipping malformed message log", zap.Error(err))
	default:
		l.logger.Warn("failed to read message log", zap.Error(err))
	}

	activity, err := l.store.Activity()
	switch {
	case err == nil:
		l.tracker.Replace(activity)
	case errors.Is(err, store.ErrNotFound):
	case errors.Is(err, store.ErrMalformed):
		l.logger.Warn("skipping malformed presence table", zap.Error(err))
	default:
		l.logger.Warn("failed to read presence table", zap.Error(err))
	}
}
