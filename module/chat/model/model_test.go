package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoom_OtherAndHas(t *testing.T) {
	r := &Room{ID: "alice_bob", ParticipantA: "alice", ParticipantB: "bob"}

	other, ok := r.Other("alice")
	assert.True(t, ok)
	assert.Equal(t, "bob", other)

	other, ok = r.Other("bob")
	assert.True(t, ok)
	assert.Equal(t, "alice", other)

	_, ok = r.Other("carol")
	assert.False(t, ok)

	assert.True(t, r.Has("bob"))
	assert.False(t, r.Has(""))
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("")
	assert.True(t, ok)
	assert.Equal(t, KindText, k)

	k, ok = ParseKind("image")
	assert.True(t, ok)
	assert.Equal(t, KindImage, k)

	_, ok = ParseKind("VIDEO")
	assert.False(t, ok)
}
