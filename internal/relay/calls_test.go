package relay

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/milletlink/milletlink-backend/pkg/errors"
)

func TestBridgeAllowsOneCallPerRoom(t *testing.T) {
	bridge := NewCallBridge()
	caller := uuid.New()

	call, err := bridge.Start("room", caller)
	require.NoError(t, err)
	assert.Equal(t, caller, call.CallerID)
	assert.False(t, call.Answered)

	_, err = bridge.Start("room", uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	// a different room is unaffected
	_, err = bridge.Start("other-room", uuid.New())
	assert.NoError(t, err)
}

func TestBridgeAnswerMarksCallPickedUp(t *testing.T) {
	bridge := NewCallBridge()
	_, err := bridge.Start("room", uuid.New())
	require.NoError(t, err)

	call, err := bridge.Answer("room")
	require.NoError(t, err)
	assert.True(t, call.Answered)

	_, err = bridge.Answer("empty-room")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestBridgeEndIsIdempotent(t *testing.T) {
	bridge := NewCallBridge()
	_, err := bridge.Start("room", uuid.New())
	require.NoError(t, err)

	_, ended := bridge.End("room")
	assert.True(t, ended)
	_, ended = bridge.End("room")
	assert.False(t, ended)

	_, err = bridge.Start("room", uuid.New())
	assert.NoError(t, err)
}

// An unanswered call stays open until a client ends it; the bridge itself
// never times a call out.
func TestBridgeKeepsUnansweredCallOpen(t *testing.T) {
	bridge := NewCallBridge()
	_, err := bridge.Start("room", uuid.New())
	require.NoError(t, err)

	call, active := bridge.Active("room")
	require.True(t, active)
	assert.False(t, call.Answered)
}
