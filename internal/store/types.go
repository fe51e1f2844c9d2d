package store

// Type is the closed set of notification kinds.
type Type string

const (
	TypeRequestCancelled           Type = "request_cancelled"
	TypeRequestCancelledByMusician Type = "request_cancelled_by_musician"
	TypeRequestDeleted             Type = "request_deleted"
	TypeMusicianAccepted           Type = "musician_accepted"
	TypeNewEventRequest            Type = "new_event_request"
	TypeGeneral                    Type = "general"
)

// Notification is the canonical normalized record of a server-pushed event.
// The store owns it once ingested; UI layers hold read-only copies.
type Notification struct {
	ID               string `json:"id"`
	Identity         string `json:"identity"`
	Type             Type   `json:"type"`
	Title            string `json:"title"`
	Message          string `json:"message"`
	RelatedRequestID string `json:"related_request_id,omitempty"`
	RawPayload       string `json:"raw_payload,omitempty"` // original server payload, retained for replay/debug
	ReceivedAt       int64  `json:"received_at"` // client receipt time, unix millis
	Read             bool   `json:"read"`
}

// ListFilter restricts List results. Nil fields mean no restriction.
type ListFilter struct {
	Type  *Type
	Read  *bool
	Limit int
}
