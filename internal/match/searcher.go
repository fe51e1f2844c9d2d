package match

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tocata/tocata/internal/bus"
	"github.com/tocata/tocata/internal/socket"
	"github.com/tocata/tocata/internal/wire"
	"go.uber.org/zap"
)

// Causes recorded on a search that terminated in error state.
const (
	CauseTimeout    = "timeout"
	CauseConnection = "connection"
)

// Emitter sends outbound frames. Satisfied by *socket.Manager; the searcher
// is a read-only consumer of the connection and never closes or resets it.
type Emitter interface {
	Send(frame []byte) error
}

// Request is a read-only snapshot of one musician search.
type Request struct {
	ID           string
	Payload      wire.SearchPayload
	State        SearchState
	Musician     *wire.Musician
	Cause        string // set when State is error
	StartedAt    time.Time
	TerminatedAt time.Time
}

// Searcher drives the musician-search state machine for the single active
// search of a session. Outbound transitions (submit, cancel, retry) come from
// the UI; inbound ones arrive via the bus from the socket read loop.
// Snapshots are published as match.state_changed after every transition.
type Searcher struct {
	emitter Emitter
	bus     *bus.Bus
	timeout time.Duration
	logger  *zap.Logger
	cancel  context.CancelFunc

	mu     sync.Mutex
	active *Request
	run    int // searching-run token, invalidates stale timeout timers
}

// NewSearcher creates a searcher. timeout bounds how long a search may stay
// in searching before it fails with a timeout cause.
func NewSearcher(emitter Emitter, b *bus.Bus, timeout time.Duration, logger *zap.Logger) *Searcher {
	return &Searcher{
		emitter: emitter,
		bus:     b,
		timeout: timeout,
		logger:  logger,
	}
}

// Start subscribes to inbound match events on the bus.
func (s *Searcher) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	sockCh, unsubSock := s.bus.Subscribe("socket.", 256)
	connCh, unsubConn := s.bus.Subscribe("conn.error", 16)

	go func() {
		defer unsubSock()
		defer unsubConn()
		for {
			select {
			case evt := <-sockCh:
				s.handleSocketEvent(evt)
			case <-connCh:
				s.handleConnectionError()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the searcher.
func (s *Searcher) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Submit starts a new search for the given event payload. Rejected with
// ConcurrentSearchError while another search is non-terminal; the running
// search is left untouched. Returns immediately after emitting the request;
// the terminal result arrives via match.state_changed.
func (s *Searcher) Submit(p wire.SearchPayload) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil && !Terminal(s.active.State) {
		return Request{}, &ConcurrentSearchError{ActiveRequestID: s.active.ID}
	}

	req := &Request{
		ID:        uuid.NewString(),
		Payload:   p,
		State:     Idle,
		StartedAt: time.Now(),
	}
	s.active = req
	s.beginSearchLocked(req)
	return *req, nil
}

// Cancel terminates the active search. Client-authoritative: the instance
// moves to cancelled locally even when the connection is down, and the
// upstream cancel message is fire-and-forget so the server can release the
// matching attempt. Cancelling with no active search is a no-op.
func (s *Searcher) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil || Terminal(s.active.State) {
		return nil
	}

	if frame, err := wire.CancelRequest(s.active.ID); err == nil {
		if err := s.emitter.Send(frame); err != nil {
			s.logger.Warn("cancel not delivered upstream", zap.Error(err))
		}
	}
	s.transitionLocked(Cancelled, nil, "")
	return nil
}

// Retry restarts a search that ended in not_found or error, reusing the
// payload under a fresh request id.
func (s *Searcher) Retry() (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil || (s.active.State != NotFound && s.active.State != StateError) {
		return Request{}, ErrNoRetryableSearch
	}

	req := &Request{
		ID:        uuid.NewString(),
		Payload:   s.active.Payload,
		State:     s.active.State,
		StartedAt: time.Now(),
	}
	s.active = req
	s.beginSearchLocked(req)
	return *req, nil
}

// Active returns a snapshot of the current search, if any.
func (s *Searcher) Active() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return Request{}, false
	}
	return *s.active, true
}

// beginSearchLocked moves the active request into searching, emits the wire
// request and arms the timeout. Callers hold s.mu.
func (s *Searcher) beginSearchLocked(req *Request) {
	s.transitionLocked(Searching, nil, "")

	frame, err := wire.MusicianRequest(req.ID, req.Payload)
	if err == nil {
		err = s.emitter.Send(frame)
	}
	if err != nil {
		// The search still runs its course; a dead connection surfaces as
		// conn.error and terminates it through the usual path.
		s.logger.Warn("search request not delivered upstream", zap.Error(err))
	}

	s.run++
	run := s.run
	time.AfterFunc(s.timeout, func() {
		s.timeoutFired(run)
	})
}

func (s *Searcher) timeoutFired(run int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != run || s.active == nil || s.active.State != Searching {
		return
	}
	s.logger.Warn("search timed out", zap.String("request_id", s.active.ID))
	s.transitionLocked(StateError, nil, CauseTimeout)
}

func (s *Searcher) handleSocketEvent(evt bus.Event) {
	payload, ok := evt.Payload.(socket.InboundEvent)
	if !ok {
		return
	}

	switch e := payload.Evt.(type) {
	case wire.MusicianFound:
		s.applyResult(e.RequestID, Found, &e.Musician, "")
	case wire.MusicianNotFound:
		s.applyResult(e.RequestID, NotFound, nil, "")
	}
}

func (s *Searcher) handleConnectionError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.State != Searching {
		return
	}
	s.transitionLocked(StateError, nil, CauseConnection)
}

// applyResult reduces an inbound terminal event into the active search.
// Events for other request ids and events arriving after a terminal state
// are ignored.
func (s *Searcher) applyResult(requestID string, to SearchState, musician *wire.Musician, cause string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil || Terminal(s.active.State) {
		return
	}
	if requestID != "" && requestID != s.active.ID {
		return
	}
	s.transitionLocked(to, musician, cause)
}

// transitionLocked applies one transition on the active request and
// publishes the snapshot. Callers hold s.mu.
func (s *Searcher) transitionLocked(to SearchState, musician *wire.Musician, cause string) {
	req := s.active
	if !canTransition(req.State, to) {
		s.logger.Warn("ignoring invalid search transition",
			zap.String("from", string(req.State)),
			zap.String("to", string(to)))
		return
	}
	req.State = to
	req.Musician = musician
	req.Cause = cause
	if Terminal(to) {
		req.TerminatedAt = time.Now()
	}

	s.bus.Publish(bus.Event{
		Kind:      "match.state_changed",
		Timestamp: time.Now(),
		Payload:   *req,
	})
}
