package wire

// Outbound event names.
const (
	EvtRegister        = "register"
	EvtMusicianRequest = "musician_request"
	EvtCancelRequest   = "cancel_request"
)

// Inbound event names. The backend historically emitted Spanish aliases for
// the match results; both spellings are accepted.
const (
	EvtMusicianFound         = "musician_found"
	EvtMusicianFoundES       = "encontrado"
	EvtMusicianNotFound      = "musician_not_found"
	EvtMusicianNotFoundES    = "no_encontrado"
	EvtNewEventRequest       = "new_event_request"
	EvtMusicianAccepted      = "musician_accepted"
	EvtRequestCancelled      = "request_cancelled"
	EvtRequestCancelledByMus = "request_cancelled_by_musician"
	EvtRequestDeleted        = "request_deleted"
	EvtNotification          = "notification"
	EvtAuthError             = "auth_error"
)

// SearchPayload is the event description sent with a musician_request.
type SearchPayload struct {
	EventType  string `json:"eventType"`
	EventDate  string `json:"eventDate,omitempty"`
	Location   string `json:"location,omitempty"`
	Instrument string `json:"instrument"`
	Comments   string `json:"comments,omitempty"`
}

type registerPayload struct {
	Identity string `json:"identity"`
}

type requestPayload struct {
	RequestID string `json:"requestId"`
	SearchPayload
}

type cancelPayload struct {
	RequestID string `json:"requestId"`
}

// Register builds the identity-binding control frame sent right after the
// transport opens.
func Register(identity string) ([]byte, error) {
	return Encode(EvtRegister, registerPayload{Identity: identity})
}

// MusicianRequest builds the search-submit frame for one MatchRequest.
func MusicianRequest(requestID string, p SearchPayload) ([]byte, error) {
	return Encode(EvtMusicianRequest, requestPayload{RequestID: requestID, SearchPayload: p})
}

// CancelRequest builds the cancel control frame so the server can release
// the matching attempt.
func CancelRequest(requestID string) ([]byte, error) {
	return Encode(EvtCancelRequest, cancelPayload{RequestID: requestID})
}
