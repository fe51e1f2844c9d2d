package notify

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tocata/tocata/internal/bus"
	"github.com/tocata/tocata/internal/socket"
	"github.com/tocata/tocata/internal/store"
	"github.com/tocata/tocata/internal/wire"
	"go.uber.org/zap"
)

type countingAlerter struct {
	mu    sync.Mutex
	count int
}

func (a *countingAlerter) Alert(store.Notification) {
	a.mu.Lock()
	a.count++
	a.mu.Unlock()
}

func (a *countingAlerter) alerts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func acceptedEvent() socket.InboundEvent {
	raw := []byte(`{"event":"musician_accepted","data":{"requestId":"E1","musician":{"name":"Ana"}}}`)
	return socket.InboundEvent{
		Name: wire.EvtMusicianAccepted,
		Evt: wire.MusicianAccepted{
			Event:    wire.EventSummary{RequestID: "E1"},
			Musician: wire.Musician{Name: "Ana"},
		},
		Raw: raw,
	}
}

func newIngestor(t *testing.T, db *store.DB) (*Ingestor, *Dispatcher, *countingAlerter) {
	t.Helper()
	alerter := &countingAlerter{}
	dispatcher := NewDispatcher(alerter, zap.NewNop())
	ing := NewIngestor(db, bus.New(), dispatcher, "ana@example.com", zap.NewNop())
	return ing, dispatcher, alerter
}

func TestIngestDedupIdempotence(t *testing.T) {
	db := testDB(t)
	ing, dispatcher, alerter := newIngestor(t, db)

	var dispatched []store.Notification
	unsub := dispatcher.Subscribe(func(n store.Notification) {
		dispatched = append(dispatched, n)
	})
	defer unsub()

	receivedAt := time.Unix(1700000000, 0)
	first := ing.IngestAt(acceptedEvent(), receivedAt)
	if first == nil {
		t.Fatal("first ingest returned nil")
	}
	if first.Type != store.TypeMusicianAccepted || first.RelatedRequestID != "E1" {
		t.Errorf("notification = %+v", first)
	}

	// Reconnect replay: the identical raw event redelivered seconds later.
	second := ing.IngestAt(acceptedEvent(), receivedAt.Add(2*time.Second))
	if second != nil {
		t.Errorf("replayed ingest returned %+v, want nil", second)
	}

	list, err := db.List("ana@example.com", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("stored notifications = %d, want 1", len(list))
	}
	if len(dispatched) != 1 {
		t.Errorf("dispatch calls = %d, want 1", len(dispatched))
	}
	if alerter.alerts() != 1 {
		t.Errorf("alerts = %d, want 1", alerter.alerts())
	}
	if ing.DuplicateCount() != 1 {
		t.Errorf("DuplicateCount = %d, want 1", ing.DuplicateCount())
	}
}

func TestUnknownEventBecomesGeneral(t *testing.T) {
	db := testDB(t)
	ing, _, alerter := newIngestor(t, db)

	raw := []byte(`{"event":"promo_blast","data":{"foo":1}}`)
	n := ing.IngestAt(socket.InboundEvent{
		Name: "promo_blast",
		Evt:  wire.Unknown{Event: "promo_blast", Raw: json.RawMessage(`{"foo":1}`)},
		Raw:  raw,
	}, time.Now())

	if n == nil {
		t.Fatal("unknown event was dropped")
	}
	if n.Type != store.TypeGeneral {
		t.Errorf("type = %s, want general", n.Type)
	}
	if n.Title == "" || n.Message == "" {
		t.Errorf("title/message empty: %+v", n)
	}
	if n.RawPayload != string(raw) {
		t.Errorf("raw payload not retained: %q", n.RawPayload)
	}
	if alerter.alerts() != 1 {
		t.Errorf("alerts = %d, want 1", alerter.alerts())
	}
}

func TestMatchResultsAreNotNotifications(t *testing.T) {
	db := testDB(t)
	ing, _, alerter := newIngestor(t, db)

	n := ing.IngestAt(socket.InboundEvent{
		Name: wire.EvtMusicianFound,
		Evt:  wire.MusicianFound{RequestID: "R1", Musician: wire.Musician{Name: "Juan"}},
	}, time.Now())

	if n != nil {
		t.Errorf("match result produced a notification: %+v", n)
	}
	list, err := db.List("ana@example.com", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("stored notifications = %d, want 0", len(list))
	}
	if alerter.alerts() != 0 {
		t.Errorf("alerts = %d, want 0", alerter.alerts())
	}
}

func TestNoticeUsesPayloadFields(t *testing.T) {
	db := testDB(t)
	ing, _, _ := newIngestor(t, db)

	n := ing.IngestAt(socket.InboundEvent{
		Name: wire.EvtNotification,
		Evt:  wire.Notice{Title: "Hola", Message: "Bienvenido a tocata"},
		Raw:  []byte(`{"event":"notification"}`),
	}, time.Now())

	if n == nil {
		t.Fatal("notice was dropped")
	}
	if n.Title != "Hola" || n.Message != "Bienvenido a tocata" {
		t.Errorf("notification = %+v", n)
	}
}

func TestPersistFailureStillDispatches(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	ing, dispatcher, alerter := newIngestor(t, db)

	dispatched := 0
	unsub := dispatcher.Subscribe(func(store.Notification) { dispatched++ })
	defer unsub()

	// Force store writes to fail.
	_ = db.Close()

	n := ing.IngestAt(acceptedEvent(), time.Now())
	if n == nil {
		t.Fatal("ingest returned nil on persist failure")
	}
	if dispatched != 1 {
		t.Errorf("dispatch calls = %d, want 1", dispatched)
	}
	if alerter.alerts() != 1 {
		t.Errorf("alerts = %d, want 1", alerter.alerts())
	}
	if ing.PersistFailureCount() != 1 {
		t.Errorf("PersistFailureCount = %d, want 1", ing.PersistFailureCount())
	}
}

func TestIngestorConsumesBusEvents(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	alerter := &countingAlerter{}
	dispatcher := NewDispatcher(alerter, zap.NewNop())
	ing := NewIngestor(db, b, dispatcher, "ana@example.com", zap.NewNop())
	ing.Start(context.Background())
	defer ing.Stop()

	evt := acceptedEvent()
	b.Publish(bus.Event{Kind: "socket.musician_accepted", Timestamp: time.Now(), Payload: evt})

	deadline := time.After(5 * time.Second)
	for {
		list, err := db.List("ana@example.com", nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("notification never ingested from the bus")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDeriveIDContentBased(t *testing.T) {
	a := DeriveID(store.TypeMusicianAccepted, "E1", "payload-a")
	if DeriveID(store.TypeMusicianAccepted, "E1", "payload-a") != a {
		t.Error("identical inputs should produce the same id")
	}
	if DeriveID(store.TypeRequestDeleted, "E1", "payload-a") == a {
		t.Error("different types should not collide")
	}
	if DeriveID(store.TypeMusicianAccepted, "E2", "payload-a") == a {
		t.Error("different requests should not collide")
	}
	if DeriveID(store.TypeMusicianAccepted, "E1", "payload-b") == a {
		t.Error("different payloads should not collide")
	}
}

func TestDedupContentPrefersServerMarker(t *testing.T) {
	withMarker := []byte(`{"event":"notification","data":{"notificationId":"srv-7","title":"Hola","message":"uno"}}`)
	if got := dedupContent(withMarker, "Hola", "uno"); got != "nid:srv-7" {
		t.Errorf("dedupContent = %q, want nid:srv-7", got)
	}

	// Without a marker the payload bytes themselves are the content, so
	// distinct payloads never collide.
	one := dedupContent([]byte(`{"event":"notification","data":{"title":"Hola","message":"uno"}}`), "Hola", "uno")
	two := dedupContent([]byte(`{"event":"notification","data":{"title":"Hola","message":"dos"}}`), "Hola", "dos")
	if one == two {
		t.Error("distinct payloads should produce distinct content")
	}
}

func TestDistinctNoticesSameSecondBothStored(t *testing.T) {
	db := testDB(t)
	ing, _, _ := newIngestor(t, db)

	at := time.Unix(1700000000, 0)
	one := ing.IngestAt(socket.InboundEvent{
		Name: wire.EvtNotification,
		Evt:  wire.Notice{Title: "Hola", Message: "uno"},
		Raw:  []byte(`{"event":"notification","data":{"title":"Hola","message":"uno"}}`),
	}, at)
	two := ing.IngestAt(socket.InboundEvent{
		Name: wire.EvtNotification,
		Evt:  wire.Notice{Title: "Hola", Message: "dos"},
		Raw:  []byte(`{"event":"notification","data":{"title":"Hola","message":"dos"}}`),
	}, at)

	if one == nil || two == nil {
		t.Fatal("distinct notices were collapsed")
	}
	list, err := db.List("ana@example.com", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Errorf("stored notifications = %d, want 2", len(list))
	}
}

func TestDispatcherUnsubscribe(t *testing.T) {
	dispatcher := NewDispatcher(nil, zap.NewNop())

	calls := 0
	unsub := dispatcher.Subscribe(func(store.Notification) { calls++ })
	dispatcher.Dispatch(store.Notification{ID: "n1"})
	unsub()
	dispatcher.Dispatch(store.Notification{ID: "n2"})

	if calls != 1 {
		t.Errorf("handler calls = %d, want 1", calls)
	}
}
