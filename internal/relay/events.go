package relay

import "encoding/json"

// Inbound event names accepted from clients.
const (
	EventIdentity       = "identity"
	EventJoin           = "join"
	EventSendMessage    = "send-message"
	EventTyping         = "typing"
	EventStopTyping     = "stop-typing"
	EventCheckPresence  = "check-presence"
	EventUpdateLocation = "update-location"
	EventCallUser       = "call-user"
	EventAnswerCall     = "answer-call"
	EventEndCall        = "end-call"
)

// Outbound event names pushed to clients.
const (
	EventRoomJoined         = "room-joined"
	EventNewMessageAlert    = "new-message-notification"
	EventPresenceChanged    = "presence-changed"
	EventCourierLocation    = "update-deliveryBoy-location"
	EventIncomingCallAlert  = "incoming-call-alert"
	EventCallReceived       = "call-received"
	EventCallAccepted       = "call-accepted"
	EventErrorNotification  = "error-notification"
)

// Envelope is the wire frame: an event name plus its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type identityPayload struct {
	UserID string `json:"userId"`
	Token  string `json:"token,omitempty"`
}

type joinPayload struct {
	PeerID string `json:"peerId"`
}

type roomJoinedPayload struct {
	RoomID string `json:"roomId"`
	PeerID string `json:"peerId"`
}

type chatMessagePayload struct {
	RoomID string `json:"roomId"`
	FromID string `json:"fromId,omitempty"`
	Text   string `json:"text"`
	Time   string `json:"time,omitempty"`
}

type typingPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId,omitempty"`
}

type presencePayload struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

type locationPayload struct {
	RoomID string  `json:"roomId,omitempty"`
	UserID string  `json:"userId,omitempty"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
}

type callPayload struct {
	RoomID string          `json:"roomId"`
	FromID string          `json:"fromId,omitempty"`
	Signal json.RawMessage `json:"signal,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
