// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ledgerkeep/ledgersync/internal/adapter"
	"github.com/ledgerkeep/ledgersync/internal/logger"
	"github.com/ledgerkeep/ledgersync/models"
)

// subscription is the registry entry for one Subscribe call. The entry
// survives a dropped transport channel: reopening swaps ch in place while
// the caller's teardown token stays valid.
type subscription struct {
	id      uint64
	table   models.TableIdentity
	filter  string
	handler ChangeHandler

	ch   adapter.Channel
	dead bool
}

type subscriptionManager struct {
	logger   *logger.Logger
	backend  adapter.BackendAdapter
	identity *Identity
	status   StatusBroadcaster
	monitor  ConnectionMonitor
	clock    Clock

	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
}

// NewSubscriptionManager builds the manager. The monitor receives channel
// health signals from it and calls ReopenAll back on reconnect.
func NewSubscriptionManager(
	backend adapter.BackendAdapter,
	identity *Identity,
	status StatusBroadcaster,
	monitor ConnectionMonitor,
	clock Clock,
	logger *logger.Logger,
) *subscriptionManager {
	return &subscriptionManager{
		logger:   logger,
		backend:  backend,
		identity: identity,
		status:   status,
		monitor:  monitor,
		clock:    clock,
		subs:     make(map[uint64]*subscription),
	}
}

func (m *subscriptionManager) Subscribe(ctx context.Context, table models.TableIdentity, filter string, handler ChangeHandler) Teardown {
	log := logger.FromContext(ctx)

	if err := table.Validate(); err != nil {
		log.Warn().
			Str("func", "subscriptionManager.Subscribe").
			Err(err).
			Msg("subscription rejected; returning inert teardown")
		return func() {}
	}
	if m.identity.Get() == "" {
		// A subscription without identity cannot be scoped to an owner.
		// UI callers race sign-in, so this degrades instead of failing.
		log.Warn().
			Str("func", "subscriptionManager.Subscribe").
			Str("table", string(table)).
			Msg("subscription requested before sign-in; returning inert teardown")
		return func() {}
	}

	sub := &subscription{
		table:   table,
		filter:  filter,
		handler: handler,
	}

	ch, err := m.backend.OpenChannel(ctx, table, filter)
	switch {
	case err == nil:
		sub.ch = ch
	case adapter.Retryable(err):
		// Register the subscription dead so the monitor's reconnect path
		// revives it once the backend is reachable again.
		sub.dead = true
	default:
		log.Warn().
			Str("func", "subscriptionManager.Subscribe").
			Str("table", string(table)).
			Err(err).
			Msg("failed to open push channel; returning inert teardown")
		return func() {}
	}

	m.mu.Lock()
	sub.id = m.nextID
	m.nextID++
	m.subs[sub.id] = sub
	m.mu.Unlock()

	if sub.dead {
		m.monitor.OnChannelError(err)
	} else {
		go m.pump(sub, ch)
		m.monitor.OnChannelConnected()
	}

	return m.teardownFor(sub.id)
}

func (m *subscriptionManager) teardownFor(id uint64) Teardown {
	return func() {
		m.mu.Lock()
		sub, ok := m.subs[id]
		if !ok {
			m.mu.Unlock()
			return
		}
		delete(m.subs, id)
		ch := sub.ch
		m.mu.Unlock()

		if ch != nil {
			ch.Close()
		}
	}
}

// pump forwards decoded events to the handler until the channel stream
// ends, then decides whether the ending was a teardown or a drop.
func (m *subscriptionManager) pump(sub *subscription, ch adapter.Channel) {
	for change := range ch.Events() {
		event, err := decodeChange(sub.table, change, m.clock.Now())
		if err != nil {
			m.logger.Warn().
				Str("func", "subscriptionManager.pump").
				Str("table", string(sub.table)).
				Err(err).
				Msg("dropping undecodable push event")
			continue
		}

		sub.handler(event)
		m.status.MarkSynced(m.clock.Now())
	}

	streamErr := ch.Err()

	m.mu.Lock()
	current, registered := m.subs[sub.id]
	dropped := registered && current == sub && current.ch == ch
	if dropped {
		current.dead = true
		current.ch = nil
	}
	m.mu.Unlock()

	if !dropped {
		// Torn down by the caller; nothing to revive.
		return
	}

	if streamErr == nil {
		streamErr = errors.New("push channel closed by backend")
	}
	m.monitor.OnChannelError(streamErr)
}

// decodeChange turns a raw pushed event into a typed ChangeEvent scoped to
// the subscription's table.
func decodeChange(table models.TableIdentity, rc adapter.RowChange, at time.Time) (models.ChangeEvent, error) {
	event := models.ChangeEvent{Table: table, ObservedAt: at}

	switch models.ChangeKind(rc.Kind) {
	case models.ChangeInsert:
		event.Kind = models.ChangeInsert
	case models.ChangeUpdate:
		event.Kind = models.ChangeUpdate
	case models.ChangeDelete:
		event.Kind = models.ChangeDelete
	default:
		return models.ChangeEvent{}, fmt.Errorf("unknown change kind %q", rc.Kind)
	}

	if len(rc.New) > 0 {
		row, err := models.DecodeRow(table, rc.New)
		if err != nil {
			return models.ChangeEvent{}, err
		}
		event.NewRow = &row
	}
	if len(rc.Old) > 0 {
		row, err := models.DecodeRow(table, rc.Old)
		if err != nil {
			return models.ChangeEvent{}, err
		}
		event.OldRow = &row
	}

	if event.NewRow == nil && event.OldRow == nil {
		return models.ChangeEvent{}, errors.New("push event carries no row")
	}
	return event, nil
}

func (m *subscriptionManager) ReopenAll(ctx context.Context) {
	m.mu.Lock()
	var dead []*subscription
	for _, sub := range m.subs {
		if sub.dead {
			dead = append(dead, sub)
		}
	}
	m.mu.Unlock()

	if len(dead) == 0 {
		return
	}

	reopened := 0
	for _, sub := range dead {
		ch, err := m.backend.OpenChannel(ctx, sub.table, sub.filter)
		if err != nil {
			m.logger.Warn().
				Str("func", "subscriptionManager.ReopenAll").
				Str("table", string(sub.table)).
				Err(err).
				Msg("failed to reopen push channel")
			// One unreachable backend fails them all; let the backoff
			// schedule the next pass instead of hammering per channel.
			m.monitor.OnChannelError(err)
			return
		}

		m.mu.Lock()
		if current, ok := m.subs[sub.id]; ok && current == sub && current.dead {
			sub.ch = ch
			sub.dead = false
			m.mu.Unlock()
			go m.pump(sub, ch)
			reopened++
			continue
		}
		m.mu.Unlock()

		// Torn down, or already revived by an overlapping pass.
		ch.Close()
	}

	if reopened > 0 {
		m.logger.Info().
			Str("func", "subscriptionManager.ReopenAll").
			Int("reopened", reopened).
			Msg("push channels reopened")
		m.monitor.OnChannelConnected()
	}
}

func (m *subscriptionManager) CloseAll() {
	m.mu.Lock()
	subs := make([]*subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.subs = make(map[uint64]*subscription)
	m.mu.Unlock()

	for _, sub := range subs {
		if sub.ch != nil {
			sub.ch.Close()
		}
	}
}

func (m *subscriptionManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}
