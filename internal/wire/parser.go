package wire

import "encoding/json"

// Inbound is the closed set of typed inbound events. The socket read loop
// classifies every received frame into exactly one variant; unrecognized
// event names become Unknown so no information is silently dropped.
type Inbound interface {
	inboundEvent()
}

// Musician is the public profile carried by match and acceptance events.
// Fields the server omits stay zero-valued; consumers render those as
// "not available" rather than treating them as protocol errors.
type Musician struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Instrument string   `json:"instrument"`
	Rating     *float64 `json:"rating"`
}

// EventSummary describes the organizer's event attached to push notifications.
type EventSummary struct {
	RequestID     string `json:"requestId"`
	EventType     string `json:"eventType"`
	EventDate     string `json:"eventDate"`
	Location      string `json:"location"`
	OrganizerName string `json:"organizerName"`
}

// MusicianFound terminates a search successfully.
type MusicianFound struct {
	RequestID string
	Musician  Musician
}

// MusicianNotFound terminates a search without a match.
type MusicianNotFound struct {
	RequestID string
}

// NewEventRequest is a push event about a freshly posted event.
type NewEventRequest struct {
	Event EventSummary
}

// MusicianAccepted is a push event that a musician accepted the event.
type MusicianAccepted struct {
	Event    EventSummary
	Musician Musician
}

// RequestCancelled is a push event that the organizer's request was cancelled.
type RequestCancelled struct {
	Event EventSummary
}

// RequestCancelledByMusician is a push event that the matched musician backed out.
type RequestCancelledByMusician struct {
	Event EventSummary
}

// RequestDeleted is a push event that the request was removed server-side.
type RequestDeleted struct {
	Event EventSummary
}

// Notice is the generic server notification.
type Notice struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// AuthError reports that the register handshake was rejected.
type AuthError struct {
	Reason string `json:"reason"`
}

// Unknown wraps an unrecognized event name with its raw payload retained.
type Unknown struct {
	Event string
	Raw   json.RawMessage
}

func (MusicianFound) inboundEvent()              {}
func (MusicianNotFound) inboundEvent()           {}
func (NewEventRequest) inboundEvent()            {}
func (MusicianAccepted) inboundEvent()           {}
func (RequestCancelled) inboundEvent()           {}
func (RequestCancelledByMusician) inboundEvent() {}
func (RequestDeleted) inboundEvent()             {}
func (Notice) inboundEvent()                     {}
func (AuthError) inboundEvent()                  {}
func (Unknown) inboundEvent()                    {}

type matchResultPayload struct {
	RequestID string    `json:"requestId"`
	Musician  *Musician `json:"musician"`
}

type acceptedPayload struct {
	EventSummary
	Musician *Musician `json:"musician"`
}

// Parse classifies a decoded frame into a typed inbound event. Parse never
// fails: payloads that cannot be unmarshalled yield the variant with zero
// fields, and unknown event names yield Unknown with the raw data retained.
func Parse(f Frame) Inbound {
	switch f.Event {
	case EvtMusicianFound, EvtMusicianFoundES:
		var p matchResultPayload
		_ = json.Unmarshal(f.Data, &p)
		m := p.Musician
		if m == nil {
			// Flat profile fields on the payload itself.
			var flat Musician
			_ = json.Unmarshal(f.Data, &flat)
			m = &flat
		}
		return MusicianFound{RequestID: p.RequestID, Musician: *m}
	case EvtMusicianNotFound, EvtMusicianNotFoundES:
		var p matchResultPayload
		_ = json.Unmarshal(f.Data, &p)
		return MusicianNotFound{RequestID: p.RequestID}
	case EvtNewEventRequest:
		var s EventSummary
		_ = json.Unmarshal(f.Data, &s)
		return NewEventRequest{Event: s}
	case EvtMusicianAccepted:
		var p acceptedPayload
		_ = json.Unmarshal(f.Data, &p)
		evt := MusicianAccepted{Event: p.EventSummary}
		if p.Musician != nil {
			evt.Musician = *p.Musician
		}
		return evt
	case EvtRequestCancelled:
		var s EventSummary
		_ = json.Unmarshal(f.Data, &s)
		return RequestCancelled{Event: s}
	case EvtRequestCancelledByMus:
		var s EventSummary
		_ = json.Unmarshal(f.Data, &s)
		return RequestCancelledByMusician{Event: s}
	case EvtRequestDeleted:
		var s EventSummary
		_ = json.Unmarshal(f.Data, &s)
		return RequestDeleted{Event: s}
	case EvtNotification:
		var n Notice
		_ = json.Unmarshal(f.Data, &n)
		return n
	case EvtAuthError:
		var a AuthError
		_ = json.Unmarshal(f.Data, &a)
		return a
	default:
		return Unknown{Event: f.Event, Raw: f.Data}
	}
}
