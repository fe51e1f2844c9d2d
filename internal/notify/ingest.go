package notify

import (
	"context"
	"sync"
	"time"

	"github.com/tocata/tocata/internal/bus"
	"github.com/tocata/tocata/internal/socket"
	"github.com/tocata/tocata/internal/store"
	"go.uber.org/zap"
)

// Ingestor turns raw inbound socket events into normalized, deduplicated,
// persisted notifications. It subscribes to "socket." events on the bus and
// processes them on a single goroutine, so store writes and dispatches
// happen in transport-delivery order.
type Ingestor struct {
	db         *store.DB
	bus        *bus.Bus
	dispatcher *Dispatcher
	identity   string
	logger     *zap.Logger
	cancel     context.CancelFunc

	mu              sync.Mutex
	duplicates      int
	persistFailures int
}

// NewIngestor creates an ingestor scoped to one identity.
func NewIngestor(db *store.DB, b *bus.Bus, dispatcher *Dispatcher, identity string, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		db:         db,
		bus:        b,
		dispatcher: dispatcher,
		identity:   identity,
		logger:     logger,
	}
}

// Start subscribes to inbound socket events on the bus.
func (e *Ingestor) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.SubscribeBlocking("socket.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				if payload, ok := evt.Payload.(socket.InboundEvent); ok {
					e.IngestAt(payload, evt.Timestamp)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the ingestor.
func (e *Ingestor) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// IngestAt processes one raw inbound event. Returns the stored notification
// when the event produced one, or nil for match events and duplicates.
// A persistence failure is logged and counted but the notification is still
// dispatched, so the user sees the alert even if durability failed.
func (e *Ingestor) IngestAt(evt socket.InboundEvent, receivedAt time.Time) *store.Notification {
	typ, title, message, related, ok := normalize(evt.Evt)
	if !ok {
		return nil
	}

	n := &store.Notification{
		ID:               DeriveID(typ, related, dedupContent(evt.Raw, title, message)),
		Identity:         e.identity,
		Type:             typ,
		Title:            title,
		Message:          message,
		RelatedRequestID: related,
		RawPayload:       string(evt.Raw),
		ReceivedAt:       receivedAt.UnixMilli(),
	}

	inserted, err := e.db.Append(n)
	if err != nil {
		e.mu.Lock()
		e.persistFailures++
		e.mu.Unlock()
		e.logger.Error("notification persist failed, dispatching anyway",
			zap.String("notification_id", n.ID), zap.Error(err))
		e.dispatcher.Dispatch(*n)
		return n
	}
	if !inserted {
		// Duplicate delivery: expected on reconnect, counted, not surfaced.
		e.mu.Lock()
		e.duplicates++
		e.mu.Unlock()
		e.logger.Info("duplicate event ignored", zap.String("notification_id", n.ID))
		return nil
	}

	e.dispatcher.Dispatch(*n)
	return n
}

// DuplicateCount returns how many duplicate deliveries have been collapsed.
func (e *Ingestor) DuplicateCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duplicates
}

// PersistFailureCount returns how many store writes failed and are pending
// retry by the embedding application.
func (e *Ingestor) PersistFailureCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.persistFailures
}
