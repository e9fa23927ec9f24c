package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milletlink/milletlink-backend/internal/chat"
	pkgerrors "github.com/milletlink/milletlink-backend/pkg/errors"
	"github.com/milletlink/milletlink-backend/pkg/types"
)

type sentEvent struct {
	event string
	data  any
}

type fakeSession struct {
	id uuid.UUID

	mu     sync.Mutex
	user   *uuid.UUID
	events []sentEvent
}

func newFakeSession() *fakeSession {
	return &fakeSession{id: uuid.New()}
}

func (s *fakeSession) ID() uuid.UUID { return s.id }

func (s *fakeSession) User() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return uuid.Nil, false
	}
	return *s.user, true
}

func (s *fakeSession) BindUser(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &userID
}

func (s *fakeSession) Send(event string, data any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sentEvent{event: event, data: data})
	return true
}

func (s *fakeSession) received(event string) []sentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sentEvent
	for _, entry := range s.events {
		if entry.event == event {
			out = append(out, entry)
		}
	}
	return out
}

type fakeChat struct {
	mu       sync.Mutex
	enqueued []chat.Message
}

func (f *fakeChat) EnsureRoom(_ context.Context, a, b uuid.UUID) (string, error) {
	return chat.PairKey(a, b), nil
}

func (f *fakeChat) Enqueue(_ context.Context, message chat.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, message)
	return true
}

func (f *fakeChat) queued() []chat.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.Message(nil), f.enqueued...)
}

type fakeGeo struct {
	mu      sync.Mutex
	updates map[uuid.UUID]types.Point
}

func (f *fakeGeo) UpdateCourierLocation(_ context.Context, courierID uuid.UUID, point types.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = map[uuid.UUID]types.Point{}
	}
	f.updates[courierID] = point
	return nil
}

func newTestHub() (*Hub, *fakeChat) {
	chatLog := &fakeChat{}
	return NewHub(chatLog, &fakeGeo{}, nil, nil, nil), chatLog
}

func identify(t *testing.T, h *Hub, sess *fakeSession, userID uuid.UUID) {
	t.Helper()
	payload, err := json.Marshal(identityPayload{UserID: userID.String()})
	require.NoError(t, err)
	h.HandleEvent(context.Background(), sess, Envelope{Event: EventIdentity, Data: payload})
	bound, ok := sess.User()
	require.True(t, ok)
	require.Equal(t, userID, bound)
}

func join(t *testing.T, h *Hub, sess *fakeSession, peerID uuid.UUID) string {
	t.Helper()
	payload, err := json.Marshal(joinPayload{PeerID: peerID.String()})
	require.NoError(t, err)
	h.HandleEvent(context.Background(), sess, Envelope{Event: EventJoin, Data: payload})
	joined := sess.received(EventRoomJoined)
	require.NotEmpty(t, joined)
	return joined[len(joined)-1].data.(roomJoinedPayload).RoomID
}

func event(t *testing.T, name string, payload any) Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return Envelope{Event: name, Data: raw}
}

func TestEventsBeforeIdentityAreUnauthorized(t *testing.T) {
	h, _ := newTestHub()
	sess := newFakeSession()

	h.HandleEvent(context.Background(), sess, event(t, EventJoin, joinPayload{PeerID: uuid.NewString()}))

	failures := sess.received(EventErrorNotification)
	require.Len(t, failures, 1)
	assert.Equal(t, string(pkgerrors.CodeUnauthorized), failures[0].data.(errorPayload).Code)
}

func TestSendMessageReachesRoomAndDurableLog(t *testing.T) {
	h, chatLog := newTestHub()
	farmer, buyer := uuid.New(), uuid.New()

	farmerSess, buyerSess := newFakeSession(), newFakeSession()
	identify(t, h, farmerSess, farmer)
	identify(t, h, buyerSess, buyer)
	roomID := join(t, h, farmerSess, buyer)
	require.Equal(t, roomID, join(t, h, buyerSess, farmer))

	h.HandleEvent(context.Background(), farmerSess, event(t, EventSendMessage, chatMessagePayload{
		RoomID: roomID,
		Text:   "price is 42 per kg",
	}))

	delivered := buyerSess.received(EventSendMessage)
	require.Len(t, delivered, 1)
	message := delivered[0].data.(chatMessagePayload)
	assert.Equal(t, farmer.String(), message.FromID)
	assert.Equal(t, "price is 42 per kg", message.Text)

	// sender does not get an echo
	assert.Empty(t, farmerSess.received(EventSendMessage))

	queued := chatLog.queued()
	require.Len(t, queued, 1)
	assert.Equal(t, roomID, queued[0].RoomID)
	assert.Equal(t, farmer, queued[0].SenderID)
}

func TestSendMessageToOnlinePeerOutsideRoomRaisesAlert(t *testing.T) {
	h, _ := newTestHub()
	farmer, buyer := uuid.New(), uuid.New()

	farmerSess, buyerSess := newFakeSession(), newFakeSession()
	identify(t, h, farmerSess, farmer)
	identify(t, h, buyerSess, buyer)
	roomID := join(t, h, farmerSess, buyer) // buyer online but never joined

	h.HandleEvent(context.Background(), farmerSess, event(t, EventSendMessage, chatMessagePayload{
		RoomID: roomID,
		Text:   "hello",
	}))

	assert.Empty(t, buyerSess.received(EventSendMessage))
	alerts := buyerSess.received(EventNewMessageAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, "hello", alerts[0].data.(chatMessagePayload).Text)
}

func TestSendMessageRequiresRoomMembership(t *testing.T) {
	h, _ := newTestHub()
	outsider := newFakeSession()
	identify(t, h, outsider, uuid.New())

	h.HandleEvent(context.Background(), outsider, event(t, EventSendMessage, chatMessagePayload{
		RoomID: chat.PairKey(uuid.New(), uuid.New()),
		Text:   "hi",
	}))

	failures := outsider.received(EventErrorNotification)
	require.Len(t, failures, 1)
	assert.Equal(t, string(pkgerrors.CodeForbidden), failures[0].data.(errorPayload).Code)
}

func TestTypingRelaysToPeer(t *testing.T) {
	h, _ := newTestHub()
	farmer, buyer := uuid.New(), uuid.New()
	farmerSess, buyerSess := newFakeSession(), newFakeSession()
	identify(t, h, farmerSess, farmer)
	identify(t, h, buyerSess, buyer)
	roomID := join(t, h, farmerSess, buyer)
	join(t, h, buyerSess, farmer)

	h.HandleEvent(context.Background(), farmerSess, event(t, EventTyping, typingPayload{RoomID: roomID}))
	h.HandleEvent(context.Background(), farmerSess, event(t, EventStopTyping, typingPayload{RoomID: roomID}))

	require.Len(t, buyerSess.received(EventTyping), 1)
	require.Len(t, buyerSess.received(EventStopTyping), 1)
	assert.Equal(t, farmer.String(), buyerSess.received(EventTyping)[0].data.(typingPayload).UserID)
}

func TestCheckPresenceAnswersRequester(t *testing.T) {
	h, _ := newTestHub()
	online, offline := uuid.New(), uuid.New()

	onlineSess := newFakeSession()
	identify(t, h, onlineSess, online)

	asker := newFakeSession()
	identify(t, h, asker, uuid.New())

	h.HandleEvent(context.Background(), asker, event(t, EventCheckPresence, presencePayload{UserID: online.String()}))
	h.HandleEvent(context.Background(), asker, event(t, EventCheckPresence, presencePayload{UserID: offline.String()}))

	answers := asker.received(EventPresenceChanged)
	require.Len(t, answers, 2)
	assert.True(t, answers[0].data.(presencePayload).Online)
	assert.False(t, answers[1].data.(presencePayload).Online)
}

func TestSecondCallInRoomIsConflict(t *testing.T) {
	h, _ := newTestHub()
	farmer, buyer := uuid.New(), uuid.New()
	farmerSess, buyerSess := newFakeSession(), newFakeSession()
	identify(t, h, farmerSess, farmer)
	identify(t, h, buyerSess, buyer)
	roomID := join(t, h, farmerSess, buyer)
	join(t, h, buyerSess, farmer)

	h.HandleEvent(context.Background(), farmerSess, event(t, EventCallUser, callPayload{RoomID: roomID}))
	require.Len(t, buyerSess.received(EventCallReceived), 1)
	require.Len(t, buyerSess.received(EventIncomingCallAlert), 1)

	h.HandleEvent(context.Background(), buyerSess, event(t, EventCallUser, callPayload{RoomID: roomID}))
	failures := buyerSess.received(EventErrorNotification)
	require.Len(t, failures, 1)
	assert.Equal(t, string(pkgerrors.CodeConflict), failures[0].data.(errorPayload).Code)
}

func TestAnswerCallSignalsCaller(t *testing.T) {
	h, _ := newTestHub()
	farmer, buyer := uuid.New(), uuid.New()
	farmerSess, buyerSess := newFakeSession(), newFakeSession()
	identify(t, h, farmerSess, farmer)
	identify(t, h, buyerSess, buyer)
	roomID := join(t, h, farmerSess, buyer)
	join(t, h, buyerSess, farmer)

	h.HandleEvent(context.Background(), farmerSess, event(t, EventCallUser, callPayload{RoomID: roomID}))
	h.HandleEvent(context.Background(), buyerSess, event(t, EventAnswerCall, callPayload{RoomID: roomID}))

	accepted := farmerSess.received(EventCallAccepted)
	require.Len(t, accepted, 1)
	assert.Equal(t, buyer.String(), accepted[0].data.(callPayload).FromID)
}

func TestEndCallIsIdempotentAndFreesRoom(t *testing.T) {
	h, _ := newTestHub()
	farmer, buyer := uuid.New(), uuid.New()
	farmerSess, buyerSess := newFakeSession(), newFakeSession()
	identify(t, h, farmerSess, farmer)
	identify(t, h, buyerSess, buyer)
	roomID := join(t, h, farmerSess, buyer)
	join(t, h, buyerSess, farmer)

	h.HandleEvent(context.Background(), farmerSess, event(t, EventCallUser, callPayload{RoomID: roomID}))
	h.HandleEvent(context.Background(), farmerSess, event(t, EventEndCall, callPayload{RoomID: roomID}))
	h.HandleEvent(context.Background(), farmerSess, event(t, EventEndCall, callPayload{RoomID: roomID}))

	require.Len(t, buyerSess.received(EventEndCall), 1)
	assert.Empty(t, farmerSess.received(EventErrorNotification))

	// the room is free for a fresh call
	h.HandleEvent(context.Background(), buyerSess, event(t, EventCallUser, callPayload{RoomID: roomID}))
	assert.Len(t, farmerSess.received(EventCallReceived), 1)
}

func TestDisconnectBroadcastsOfflineToRooms(t *testing.T) {
	h, _ := newTestHub()
	farmer, buyer := uuid.New(), uuid.New()
	farmerSess, buyerSess := newFakeSession(), newFakeSession()
	identify(t, h, farmerSess, farmer)
	identify(t, h, buyerSess, buyer)
	join(t, h, farmerSess, buyer)
	join(t, h, buyerSess, farmer)

	h.Disconnect(context.Background(), farmerSess)

	changes := buyerSess.received(EventPresenceChanged)
	require.NotEmpty(t, changes)
	last := changes[len(changes)-1].data.(presencePayload)
	assert.Equal(t, farmer.String(), last.UserID)
	assert.False(t, last.Online)
}

func onlineEdges(sess *fakeSession, userID uuid.UUID) int {
	count := 0
	for _, change := range sess.received(EventPresenceChanged) {
		payload := change.data.(presencePayload)
		if payload.UserID == userID.String() && payload.Online {
			count++
		}
	}
	return count
}

func TestReidentifyBroadcastsOnlineEdgeOnce(t *testing.T) {
	h, _ := newTestHub()
	farmer, buyer := uuid.New(), uuid.New()
	farmerSess, buyerSess := newFakeSession(), newFakeSession()
	identify(t, h, farmerSess, farmer)
	identify(t, h, buyerSess, buyer)
	join(t, h, farmerSess, buyer)
	join(t, h, buyerSess, farmer)

	h.Disconnect(context.Background(), farmerSess)
	baseline := onlineEdges(buyerSess, farmer)

	// First connection back flips 0->1 and must announce it to the room.
	phone := newFakeSession()
	identify(t, h, phone, farmer)
	require.Equal(t, baseline+1, onlineEdges(buyerSess, farmer))

	// A second device is 1->2: no edge, no re-announcement.
	laptop := newFakeSession()
	identify(t, h, laptop, farmer)
	assert.Equal(t, baseline+1, onlineEdges(buyerSess, farmer))
}

func TestIncomingCallAlertCarriesSignal(t *testing.T) {
	h, _ := newTestHub()
	farmer, buyer := uuid.New(), uuid.New()
	farmerSess, buyerSess := newFakeSession(), newFakeSession()
	identify(t, h, farmerSess, farmer)
	identify(t, h, buyerSess, buyer)
	roomID := join(t, h, farmerSess, buyer)
	join(t, h, buyerSess, farmer)

	h.HandleEvent(context.Background(), farmerSess, event(t, EventCallUser, callPayload{
		RoomID: roomID,
		Signal: json.RawMessage(`"offer-sdp"`),
	}))

	alerts := buyerSess.received(EventIncomingCallAlert)
	require.Len(t, alerts, 1)
	payload := alerts[0].data.(callPayload)
	assert.Equal(t, roomID, payload.RoomID)
	assert.Equal(t, json.RawMessage(`"offer-sdp"`), payload.Signal)
}

func TestEndCallReachesEndersOtherSessions(t *testing.T) {
	h, _ := newTestHub()
	farmer, buyer := uuid.New(), uuid.New()
	phone, laptop := newFakeSession(), newFakeSession()
	identify(t, h, phone, farmer)
	identify(t, h, laptop, farmer)
	buyerSess := newFakeSession()
	identify(t, h, buyerSess, buyer)

	roomID := join(t, h, phone, buyer)
	join(t, h, laptop, buyer)
	join(t, h, buyerSess, farmer)

	h.HandleEvent(context.Background(), phone, event(t, EventCallUser, callPayload{RoomID: roomID}))
	h.HandleEvent(context.Background(), phone, event(t, EventEndCall, callPayload{RoomID: roomID}))

	// The whole room hears the release: the peer and the ender's other device.
	require.Len(t, buyerSess.received(EventEndCall), 1)
	require.Len(t, laptop.received(EventEndCall), 1)
	assert.Empty(t, phone.received(EventEndCall))
}

func TestRoomRegistryResolvesPeerWithoutParsingRoomID(t *testing.T) {
	registry := NewRoomRegistry()
	farmer, buyer := uuid.New(), uuid.New()
	farmerSess := newFakeSession()

	// The room id is opaque; peer resolution comes from the registered pair.
	registry.Join("negotiation-7", farmer, buyer, farmerSess)

	peer, ok := registry.Peer("negotiation-7", farmer)
	require.True(t, ok)
	assert.Equal(t, buyer, peer)
	assert.True(t, registry.Participant("negotiation-7", buyer))
	assert.Equal(t, []string{"negotiation-7"}, registry.RoomsOf(buyer))

	// The pair survives the last member leaving.
	registry.LeaveAll(farmerSess.ID())
	peer, ok = registry.Peer("negotiation-7", buyer)
	require.True(t, ok)
	assert.Equal(t, farmer, peer)

	_, ok = registry.Peer("negotiation-7", uuid.New())
	assert.False(t, ok)
}

func TestDisconnectWithSecondSessionKeepsUserOnline(t *testing.T) {
	h, _ := newTestHub()
	farmer, buyer := uuid.New(), uuid.New()
	phone, laptop := newFakeSession(), newFakeSession()
	identify(t, h, phone, farmer)
	identify(t, h, laptop, farmer)

	buyerSess := newFakeSession()
	identify(t, h, buyerSess, buyer)
	join(t, h, phone, buyer)
	join(t, h, buyerSess, farmer)

	h.Disconnect(context.Background(), phone)

	for _, change := range buyerSess.received(EventPresenceChanged) {
		payload := change.data.(presencePayload)
		if payload.UserID == farmer.String() {
			assert.True(t, payload.Online, "user with a live session must not flap offline")
		}
	}
}

func TestUpdateLocationRelaysToRoom(t *testing.T) {
	h, _ := newTestHub()
	courier, buyer := uuid.New(), uuid.New()
	courierSess, buyerSess := newFakeSession(), newFakeSession()
	identify(t, h, courierSess, courier)
	identify(t, h, buyerSess, buyer)
	roomID := join(t, h, courierSess, buyer)
	join(t, h, buyerSess, courier)

	h.HandleEvent(context.Background(), courierSess, event(t, EventUpdateLocation, locationPayload{
		RoomID: roomID,
		Lat:    12.97,
		Lon:    77.59,
	}))

	updates := buyerSess.received(EventCourierLocation)
	require.Len(t, updates, 1)
	payload := updates[0].data.(locationPayload)
	assert.Equal(t, courier.String(), payload.UserID)
	assert.Equal(t, 12.97, payload.Lat)
}

func TestUpdateLocationRejectsBadCoordinates(t *testing.T) {
	h, _ := newTestHub()
	courierSess := newFakeSession()
	identify(t, h, courierSess, uuid.New())

	h.HandleEvent(context.Background(), courierSess, event(t, EventUpdateLocation, locationPayload{
		Lat: 123.0,
		Lon: 0,
	}))

	failures := courierSess.received(EventErrorNotification)
	require.Len(t, failures, 1)
	assert.Equal(t, string(pkgerrors.CodeValidation), failures[0].data.(errorPayload).Code)
}

func TestPushToUserReachesAllSessions(t *testing.T) {
	h, _ := newTestHub()
	courier := uuid.New()
	phone, laptop := newFakeSession(), newFakeSession()
	identify(t, h, phone, courier)
	identify(t, h, laptop, courier)

	reached := h.PushToUser(context.Background(), courier, "new-assignment", map[string]string{"orderId": uuid.NewString()})

	assert.Equal(t, 2, reached)
	assert.Len(t, phone.received("new-assignment"), 1)
	assert.Len(t, laptop.received("new-assignment"), 1)
}
