package service

import (
	"sync"
	"time"

	"github.com/ledgerkeep/ledgersync/internal/logger"
	"github.com/ledgerkeep/ledgersync/models"
)

type statusBroadcaster struct {
	logger *logger.Logger

	mu        sync.Mutex
	status    models.SyncStatus
	listeners map[uint64]StatusListener
	nextID    uint64
}

// NewStatusBroadcaster builds the broadcaster with all-false initial state:
// offline, disconnected, empty queue, no sync yet.
func NewStatusBroadcaster(logger *logger.Logger) StatusBroadcaster {
	return &statusBroadcaster{
		logger:    logger,
		listeners: make(map[uint64]StatusListener),
	}
}

func (b *statusBroadcaster) Subscribe(listener StatusListener) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = listener
	snapshot := b.status
	b.mu.Unlock()

	// New observers get the current snapshot up front instead of waiting
	// for the next transition.
	listener(snapshot)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

func (b *statusBroadcaster) Current() models.SyncStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *statusBroadcaster) SetOnline(online bool) {
	b.update(func(s *models.SyncStatus) bool {
		if s.IsOnline == online {
			return false
		}
		s.IsOnline = online
		return true
	})
}

func (b *statusBroadcaster) SetChannelConnected(connected bool) {
	b.update(func(s *models.SyncStatus) bool {
		if s.IsChannelConnected == connected {
			return false
		}
		s.IsChannelConnected = connected
		return true
	})
}

func (b *statusBroadcaster) SetPendingCount(count int) {
	b.update(func(s *models.SyncStatus) bool {
		if s.PendingCount == count {
			return false
		}
		s.PendingCount = count
		return true
	})
}

func (b *statusBroadcaster) MarkSynced(at time.Time) {
	b.update(func(s *models.SyncStatus) bool {
		stamp := at
		s.LastSuccessfulSyncAt = &stamp
		s.LastError = ""
		return true
	})
}

func (b *statusBroadcaster) RecordError(msg string) {
	b.logger.Warn().
		Str("func", "statusBroadcaster.RecordError").
		Msg(msg)

	b.update(func(s *models.SyncStatus) bool {
		s.LastError = msg
		return true
	})
}

// update applies mutate under the lock and, when it reports a change,
// notifies listeners outside the lock so a listener may call Current or
// Subscribe without deadlocking.
func (b *statusBroadcaster) update(mutate func(*models.SyncStatus) bool) {
	b.mu.Lock()
	if !mutate(&b.status) {
		b.mu.Unlock()
		return
	}
	snapshot := b.status
	targets := make([]StatusListener, 0, len(b.listeners))
	for _, l := range b.listeners {
		targets = append(targets, l)
	}
	b.mu.Unlock()

	for _, l := range targets {
		l(snapshot)
	}
}
