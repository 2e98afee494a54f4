package room_test

import (
	"testing"

	"chatcore/module/chat/room"

	"github.com/stretchr/testify/assert"
)

func TestID_IsCommutative(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"42", "7"},
		{"user-1", "user-10"},
		{"Zed", "abe"},
	}
	for _, p := range pairs {
		assert.Equal(t, room.ID(p[0], p[1]), room.ID(p[1], p[0]), p)
	}
}

func TestID_SortsBytewise(t *testing.T) {
	assert.Equal(t, "alice_bob", room.ID("bob", "alice"))
	assert.Equal(t, "42_7", room.ID("7", "42"), "not numeric order")
	assert.Equal(t, "Zed_abe", room.ID("abe", "Zed"), "upper case sorts first")
}

func TestParticipants(t *testing.T) {
	a, b, ok := room.Participants(room.ID("bob", "alice"))
	assert.True(t, ok)
	assert.Equal(t, "alice", a)
	assert.Equal(t, "bob", b)

	_, _, ok = room.Participants("nounderscore")
	assert.False(t, ok)
	_, _, ok = room.Participants("_bob")
	assert.False(t, ok)
}
