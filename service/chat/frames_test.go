package chat

import (
	"testing"

	"chatcore/module/chat/model"
	"chatcore/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	env, err := Decode([]byte(`{"kind":"MESSAGE","receiverId":"bob","content":"hi","messageType":"IMAGE","extra":1}`))
	require.NoError(t, err)
	assert.Equal(t, KindMessage, env.Kind)
	assert.Equal(t, "bob", env.ReceiverID)
	assert.Equal(t, "IMAGE", env.MessageType)

	_, err = Decode([]byte(`not json`))
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = Decode([]byte(`{"content":"hi"}`))
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestFrames(t *testing.T) {
	c := ConnectFrame("alice")
	assert.Equal(t, KindConnect, c.Kind)
	assert.Equal(t, "Connected successfully", c.Content)
	assert.NotZero(t, c.Timestamp)

	m := &model.Message{ID: "0000000000000000001", RoomID: "a_b", SenderID: "a", ReceiverID: "b", Content: "hi", Kind: model.KindText}
	env, err := Decode(MessageFrame(m).Encode())
	require.NoError(t, err)
	assert.Equal(t, KindMessage, env.Kind)
	require.NotNil(t, env.Message)
	assert.Equal(t, m.ID, env.Message.ID)
	assert.Equal(t, "TEXT", env.MessageType)

	rr := ReadReceiptFrame("a_b", "b")
	assert.Equal(t, "b", rr.SenderID)
	assert.Equal(t, "a_b", rr.RoomID)

	e := ErrorFrame(reason(errs.ErrSelfRoom.WrapMsg("", "userId", "a")))
	assert.Equal(t, KindError, e.Kind)
	assert.Equal(t, "SelfRoom: userId=a", e.Content)
}
