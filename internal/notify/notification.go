package notify

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/tocata/tocata/internal/store"
	"github.com/tocata/tocata/internal/wire"
)

// DeriveID builds the deterministic dedup id for a notification:
// hash of (type, related request, stable content). The local clock never
// participates, so a reconnect replay arriving seconds after the original
// still collapses to the same id and is swallowed by the store's
// idempotent append.
func DeriveID(typ store.Type, relatedRequestID, content string) string {
	h := sha256.Sum256([]byte(string(typ) + "|" + relatedRequestID + "|" + content))
	return hex.EncodeToString(h[:16])
}

// dedupContent extracts the stable content component for DeriveID from the
// raw frame. A server-assigned marker (notification id, timestamp,
// sequence) wins when the payload carries one; otherwise the payload bytes
// themselves, which a replay resends verbatim. Distinct notifications with
// different payloads therefore never collide, markers or not.
func dedupContent(raw []byte, title, message string) string {
	var f wire.Frame
	if len(raw) > 0 && json.Unmarshal(raw, &f) == nil && len(f.Data) > 0 {
		var marker struct {
			NotificationID string      `json:"notificationId"`
			SentAt         string      `json:"sentAt"`
			Timestamp      json.Number `json:"timestamp"`
			Seq            json.Number `json:"seq"`
		}
		if json.Unmarshal(f.Data, &marker) == nil {
			switch {
			case marker.NotificationID != "":
				return "nid:" + marker.NotificationID
			case marker.SentAt != "":
				return "at:" + marker.SentAt
			case marker.Timestamp.String() != "":
				return "ts:" + marker.Timestamp.String()
			case marker.Seq.String() != "":
				return "seq:" + marker.Seq.String()
			}
		}
		return string(f.Data)
	}
	return title + "|" + message
}

// normalize maps a typed inbound event to notification fields via the fixed
// per-type table. Returns ok=false for events that are not notifications
// (match results drive the search machine instead). Unknown events map to
// the general type so the user is never silently denied information.
func normalize(evt wire.Inbound) (typ store.Type, title, message, related string, ok bool) {
	switch e := evt.(type) {
	case wire.NewEventRequest:
		return store.TypeNewEventRequest,
			"Nueva solicitud de evento",
			eventLine("Se publicó un nuevo evento", e.Event),
			e.Event.RequestID, true
	case wire.MusicianAccepted:
		title := "Músico confirmado"
		msg := "Un músico aceptó tocar en tu evento"
		if e.Musician.Name != "" {
			msg = fmt.Sprintf("%s aceptó tocar en tu evento", e.Musician.Name)
		}
		return store.TypeMusicianAccepted, title, msg, e.Event.RequestID, true
	case wire.RequestCancelled:
		return store.TypeRequestCancelled,
			"Solicitud cancelada",
			eventLine("Tu solicitud fue cancelada", e.Event),
			e.Event.RequestID, true
	case wire.RequestCancelledByMusician:
		return store.TypeRequestCancelledByMusician,
			"El músico canceló",
			eventLine("El músico canceló su participación", e.Event),
			e.Event.RequestID, true
	case wire.RequestDeleted:
		return store.TypeRequestDeleted,
			"Solicitud eliminada",
			eventLine("Tu solicitud fue eliminada", e.Event),
			e.Event.RequestID, true
	case wire.Notice:
		title := e.Title
		if title == "" {
			title = "Notificación"
		}
		msg := e.Message
		if msg == "" {
			msg = "Tienes una nueva notificación"
		}
		return store.TypeGeneral, title, msg, "", true
	case wire.Unknown:
		// Best-effort mapping rather than dropping information.
		return store.TypeGeneral,
			"Notificación",
			fmt.Sprintf("Has recibido una actualización (%s)", e.Event),
			"", true
	default:
		return "", "", "", "", false
	}
}

func eventLine(prefix string, e wire.EventSummary) string {
	if e.EventType == "" {
		return prefix
	}
	return fmt.Sprintf("%s: %s", prefix, e.EventType)
}
