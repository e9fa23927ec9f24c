package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/milletlink/milletlink-backend/internal/chat"
	pkgerrors "github.com/milletlink/milletlink-backend/pkg/errors"
	"github.com/milletlink/milletlink-backend/pkg/logger"
	"github.com/milletlink/milletlink-backend/pkg/metrics"
	"github.com/milletlink/milletlink-backend/pkg/types"
)

type chatLog interface {
	EnsureRoom(ctx context.Context, a, b uuid.UUID) (string, error)
	Enqueue(ctx context.Context, message chat.Message) bool
}

type locationIndex interface {
	UpdateCourierLocation(ctx context.Context, courierID uuid.UUID, point types.Point) error
}

// TokenVerifier resolves a bearer token to a user id. Optional: when nil the
// hub trusts the client-sent identity, which is only acceptable in dev.
type TokenVerifier func(token string) (uuid.UUID, error)

// Hub routes relay events between live sessions. It holds only in-memory
// state; everything durable goes through the chat log and the location index,
// both off the delivery path.
type Hub struct {
	presence *PresenceTracker
	rooms    *RoomRegistry
	calls    *CallBridge

	chat    chatLog
	geo     locationIndex
	verify  TokenVerifier
	metrics *metrics.RelayMetrics
	logg    *logger.Logger
}

func NewHub(chatSvc chatLog, geo locationIndex, verify TokenVerifier, m *metrics.RelayMetrics, logg *logger.Logger) *Hub {
	return &Hub{
		presence: NewPresenceTracker(),
		rooms:    NewRoomRegistry(),
		calls:    NewCallBridge(),
		chat:     chatSvc,
		geo:      geo,
		verify:   verify,
		metrics:  m,
		logg:     logg,
	}
}

// PushToUser delivers an event to every live session of a user. Returns the
// number of sessions reached.
func (h *Hub) PushToUser(_ context.Context, userID uuid.UUID, event string, data any) int {
	reached := 0
	for _, sess := range h.presence.Sessions(userID) {
		if sess.Send(event, data) {
			reached++
			h.metrics.EventDelivered(event)
		}
	}
	return reached
}

// HandleEvent dispatches one inbound frame. Client mistakes come back as
// error-notification events; they never tear down the connection.
func (h *Hub) HandleEvent(ctx context.Context, sess session, env Envelope) {
	started := time.Now()
	h.metrics.EventReceived(env.Event)

	var err error
	switch env.Event {
	case EventIdentity:
		err = h.handleIdentity(ctx, sess, env.Data)
	case EventJoin:
		err = h.handleJoin(ctx, sess, env.Data)
	case EventSendMessage:
		err = h.handleSendMessage(ctx, sess, env.Data)
	case EventTyping, EventStopTyping:
		err = h.handleTyping(ctx, sess, env.Event, env.Data)
	case EventCheckPresence:
		err = h.handleCheckPresence(ctx, sess, env.Data)
	case EventUpdateLocation:
		err = h.handleUpdateLocation(ctx, sess, env.Data)
	case EventCallUser:
		err = h.handleCallUser(ctx, sess, env.Data)
	case EventAnswerCall:
		err = h.handleAnswerCall(ctx, sess, env.Data)
	case EventEndCall:
		err = h.handleEndCall(ctx, sess, env.Data)
	default:
		err = pkgerrors.New(pkgerrors.CodeValidation, "unknown event")
	}

	if err != nil {
		h.fail(ctx, sess, env.Event, err)
		return
	}
	h.metrics.ObserveDelivery(time.Since(started))
}

func (h *Hub) fail(ctx context.Context, sess session, event string, err error) {
	typed := pkgerrors.As(err)
	sess.Send(EventErrorNotification, errorPayload{
		Code:    string(typed.Code()),
		Message: typed.Message(),
	})
	if h.logg != nil {
		logCtx := h.logg.WithConnID(ctx, sess.ID().String())
		logCtx = h.logg.WithField(logCtx, "event", event)
		h.logg.Warn(logCtx, "relay event rejected")
	}
}

func (h *Hub) boundUser(sess session) (uuid.UUID, error) {
	userID, ok := sess.User()
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "identity required")
	}
	return userID, nil
}

func (h *Hub) handleIdentity(ctx context.Context, sess session, raw json.RawMessage) error {
	var payload identityPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "malformed identity payload")
	}

	var userID uuid.UUID
	switch {
	case h.verify != nil:
		if payload.Token == "" {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "token required")
		}
		verified, err := h.verify(payload.Token)
		if err != nil {
			return err
		}
		userID = verified
	default:
		parsed, err := uuid.Parse(payload.UserID)
		if err != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid user id")
		}
		userID = parsed
	}

	if existing, bound := sess.User(); bound {
		if existing == userID {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeConflict, "connection already identified")
	}

	sess.BindUser(userID)
	if h.presence.Add(userID, sess) {
		// First live connection: tell the rooms this user belongs to.
		for _, roomID := range h.rooms.RoomsOf(userID) {
			h.rooms.Broadcast(roomID, sess.ID(), EventPresenceChanged, presencePayload{
				UserID: userID.String(),
				Online: true,
			})
		}
	}
	if h.logg != nil {
		logCtx := h.logg.WithConnID(ctx, sess.ID().String())
		logCtx = h.logg.WithUserID(logCtx, userID.String())
		h.logg.Info(logCtx, "session identified")
	}
	return nil
}

func (h *Hub) handleJoin(ctx context.Context, sess session, raw json.RawMessage) error {
	userID, err := h.boundUser(sess)
	if err != nil {
		return err
	}
	var payload joinPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "malformed join payload")
	}
	peerID, err := uuid.Parse(payload.PeerID)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid peer id")
	}
	if peerID == userID {
		return pkgerrors.New(pkgerrors.CodeValidation, "cannot open a room with yourself")
	}

	roomID, err := h.chat.EnsureRoom(ctx, userID, peerID)
	if err != nil {
		return err
	}
	h.rooms.Join(roomID, userID, peerID, sess)

	sess.Send(EventRoomJoined, roomJoinedPayload{RoomID: roomID, PeerID: peerID.String()})
	sess.Send(EventPresenceChanged, presencePayload{UserID: peerID.String(), Online: h.presence.Online(peerID)})
	return nil
}

func (h *Hub) handleSendMessage(ctx context.Context, sess session, raw json.RawMessage) error {
	userID, err := h.boundUser(sess)
	if err != nil {
		return err
	}
	var payload chatMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "malformed message payload")
	}
	if payload.RoomID == "" || payload.Text == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "roomId and text are required")
	}
	if !h.rooms.UserInRoom(payload.RoomID, userID) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "join the room before sending")
	}

	sentAt := time.Now().UTC()
	outbound := chatMessagePayload{
		RoomID: payload.RoomID,
		FromID: userID.String(),
		Text:   payload.Text,
		Time:   sentAt.Format(time.RFC3339),
	}

	// Live delivery first; the durable log is strictly best effort from the
	// relay's point of view.
	h.rooms.Broadcast(payload.RoomID, sess.ID(), EventSendMessage, outbound)
	h.metrics.EventDelivered(EventSendMessage)

	h.chat.Enqueue(ctx, chat.Message{
		RoomID:   payload.RoomID,
		SenderID: userID,
		Body:     payload.Text,
		SentAt:   sentAt,
	})

	if peerID, ok := h.rooms.Peer(payload.RoomID, userID); ok {
		if h.presence.Online(peerID) && !h.rooms.UserInRoom(payload.RoomID, peerID) {
			h.PushToUser(ctx, peerID, EventNewMessageAlert, outbound)
		}
	}
	return nil
}

func (h *Hub) handleTyping(_ context.Context, sess session, event string, raw json.RawMessage) error {
	userID, err := h.boundUser(sess)
	if err != nil {
		return err
	}
	var payload typingPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "malformed typing payload")
	}
	if payload.RoomID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "roomId is required")
	}
	h.rooms.Broadcast(payload.RoomID, sess.ID(), event, typingPayload{
		RoomID: payload.RoomID,
		UserID: userID.String(),
	})
	return nil
}

func (h *Hub) handleCheckPresence(_ context.Context, sess session, raw json.RawMessage) error {
	var payload presencePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "malformed presence payload")
	}
	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid user id")
	}
	sess.Send(EventPresenceChanged, presencePayload{
		UserID: userID.String(),
		Online: h.presence.Online(userID),
	})
	return nil
}

func (h *Hub) handleUpdateLocation(ctx context.Context, sess session, raw json.RawMessage) error {
	userID, err := h.boundUser(sess)
	if err != nil {
		return err
	}
	var payload locationPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "malformed location payload")
	}
	point := types.Point{Lat: payload.Lat, Lng: payload.Lon}
	if err := point.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid coordinates")
	}

	// Index write happens off the relay path.
	if h.geo != nil {
		go func() {
			if err := h.geo.UpdateCourierLocation(context.WithoutCancel(ctx), userID, point); err != nil && h.logg != nil {
				h.logg.Error(ctx, "courier location index update failed", err)
			}
		}()
	}

	if payload.RoomID != "" {
		h.rooms.Broadcast(payload.RoomID, sess.ID(), EventCourierLocation, locationPayload{
			RoomID: payload.RoomID,
			UserID: userID.String(),
			Lat:    payload.Lat,
			Lon:    payload.Lon,
		})
	}
	return nil
}

func (h *Hub) handleCallUser(ctx context.Context, sess session, raw json.RawMessage) error {
	userID, err := h.boundUser(sess)
	if err != nil {
		return err
	}
	var payload callPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "malformed call payload")
	}
	if payload.RoomID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "roomId is required")
	}
	peerID, ok := h.rooms.Peer(payload.RoomID, userID)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, "caller is not part of this room")
	}

	if _, err := h.calls.Start(payload.RoomID, userID); err != nil {
		return err
	}

	outbound := callPayload{RoomID: payload.RoomID, FromID: userID.String(), Signal: payload.Signal}
	h.PushToUser(ctx, peerID, EventIncomingCallAlert, outbound)
	h.PushToUser(ctx, peerID, EventCallReceived, outbound)
	return nil
}

func (h *Hub) handleAnswerCall(ctx context.Context, sess session, raw json.RawMessage) error {
	userID, err := h.boundUser(sess)
	if err != nil {
		return err
	}
	var payload callPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "malformed call payload")
	}
	call, err := h.calls.Answer(payload.RoomID)
	if err != nil {
		return err
	}
	h.PushToUser(ctx, call.CallerID, EventCallAccepted, callPayload{
		RoomID: payload.RoomID,
		FromID: userID.String(),
		Signal: payload.Signal,
	})
	return nil
}

func (h *Hub) handleEndCall(ctx context.Context, sess session, raw json.RawMessage) error {
	userID, err := h.boundUser(sess)
	if err != nil {
		return err
	}
	var payload callPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "malformed call payload")
	}

	// Ending an already-ended call is a no-op.
	if _, ended := h.calls.End(payload.RoomID); !ended {
		return nil
	}

	// Everyone in the room gets the release, including the ender's other
	// sessions; a peer not currently joined is reached directly.
	released := callPayload{RoomID: payload.RoomID, FromID: userID.String()}
	h.rooms.Broadcast(payload.RoomID, sess.ID(), EventEndCall, released)
	if peerID, ok := h.rooms.Peer(payload.RoomID, userID); ok && !h.rooms.UserInRoom(payload.RoomID, peerID) {
		h.PushToUser(ctx, peerID, EventEndCall, released)
	}
	return nil
}

// Disconnect tears down everything the session held: room membership,
// presence, and any call left dangling in a room the user fully left.
func (h *Hub) Disconnect(ctx context.Context, sess session) {
	left := h.rooms.LeaveAll(sess.ID())

	userID, bound := sess.User()
	if !bound {
		return
	}

	wentOffline := h.presence.Remove(userID, sess.ID())

	for _, roomID := range left {
		if h.rooms.UserInRoom(roomID, userID) {
			continue
		}
		if call, active := h.calls.Active(roomID); active {
			if call.CallerID == userID || h.rooms.Participant(roomID, userID) {
				h.calls.End(roomID)
				released := callPayload{RoomID: roomID, FromID: userID.String()}
				h.rooms.Broadcast(roomID, sess.ID(), EventEndCall, released)
				if peerID, ok := h.rooms.Peer(roomID, userID); ok && !h.rooms.UserInRoom(roomID, peerID) {
					h.PushToUser(ctx, peerID, EventEndCall, released)
				}
			}
		}
		if wentOffline {
			h.rooms.Broadcast(roomID, sess.ID(), EventPresenceChanged, presencePayload{
				UserID: userID.String(),
				Online: false,
			})
		}
	}

	if wentOffline && h.logg != nil {
		logCtx := h.logg.WithUserID(ctx, userID.String())
		h.logg.Info(logCtx, "user went offline")
	}
}
