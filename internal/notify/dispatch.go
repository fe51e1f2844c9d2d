package notify

import (
	"sync"
	"time"

	"github.com/tocata/tocata/internal/bus"
	"github.com/tocata/tocata/internal/store"
	"go.uber.org/zap"
)

// Handler receives every non-duplicate notification exactly once, in
// ingestion order. Handlers run on the ingestion goroutine and must return
// quickly; heavy UI work belongs on the consumer's own queue.
type Handler func(store.Notification)

// Alerter raises the platform-level user-visible alert. Invoked exactly
// once per distinct notification, never per raw event, so a duplicate
// delivery can never produce a duplicate alert.
type Alerter interface {
	Alert(n store.Notification)
}

// BusAlerter publishes alert requests on the bus; the embedding UI layer
// turns them into actual platform alerts.
type BusAlerter struct {
	bus    *bus.Bus
	logger *zap.Logger
}

// NewBusAlerter creates the default alerter.
func NewBusAlerter(b *bus.Bus, logger *zap.Logger) *BusAlerter {
	return &BusAlerter{bus: b, logger: logger}
}

// Alert publishes the notification under alert.notification.
func (a *BusAlerter) Alert(n store.Notification) {
	a.logger.Info("alert", zap.String("notification_id", n.ID), zap.String("title", n.Title))
	a.bus.Publish(bus.Event{
		Kind:      "alert.notification",
		Timestamp: time.Now(),
		Payload:   n,
	})
}

// Dispatcher fans ingested notifications out to UI subscribers (badge
// counters, toasts, lists) and triggers the platform alert.
type Dispatcher struct {
	alerter Alerter
	logger  *zap.Logger

	mu   sync.Mutex
	subs map[int]Handler
	next int
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(alerter Alerter, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		alerter: alerter,
		logger:  logger,
		subs:    make(map[int]Handler),
	}
}

// Subscribe registers a handler. Returns the unsubscribe function.
func (d *Dispatcher) Subscribe(h Handler) func() {
	d.mu.Lock()
	id := d.next
	d.next++
	d.subs[id] = h
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}

// Dispatch delivers one notification to every subscriber and raises the
// platform alert. Called only for non-duplicate notifications.
func (d *Dispatcher) Dispatch(n store.Notification) {
	d.mu.Lock()
	handlers := make([]Handler, 0, len(d.subs))
	for _, h := range d.subs {
		handlers = append(handlers, h)
	}
	d.mu.Unlock()

	for _, h := range handlers {
		h(n)
	}
	if d.alerter != nil {
		d.alerter.Alert(n)
	}
}
