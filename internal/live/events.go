package live

import (
	"encoding/json"

	"eventguard.org/internal/auth"
)

// Wire event names, identical in both directions of the socket.
const (
	EventAuthenticate    = "authenticate"
	EventAuthenticated   = "authenticated"
	EventAuthError       = "auth-error"
	EventSendAlert       = "send-alert"
	EventReceiveAlert    = "receive-alert"
	EventNewIncident     = "new-incident"
	EventIncidentDeleted = "incident-deleted"
)

// Envelope frames every message on the socket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// AuthAck confirms a successful handshake and tells the client who it is.
type AuthAck struct {
	Status bool          `json:"status"`
	User   auth.Identity `json:"user"`
}

// AuthFailure explains a rejected handshake before the connection drops.
type AuthFailure struct {
	Message string `json:"message"`
}

type authenticatePayload struct {
	Token string `json:"token"`
}

// decodeToken accepts both handshake shapes seen from clients: a bare
// JSON string and an object with a token field.
func decodeToken(data json.RawMessage) string {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare
	}
	var p authenticatePayload
	if err := json.Unmarshal(data, &p); err == nil {
		return p.Token
	}
	return ""
}
