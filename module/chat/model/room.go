package model

import "time"

const RoomTableName = "chat_room"

// Room is the one-to-one conversation between two users.
// ParticipantA and ParticipantB are kept in sorted order.
type Room struct {
	ID            string     `bson:"_id" json:"id"`                                          // ID(a, b)
	ParticipantA  string     `bson:"participant_a" json:"participantA"`                      // 较小的用户ID
	ParticipantB  string     `bson:"participant_b" json:"participantB"`                      // 较大的用户ID
	CreatedAt     time.Time  `bson:"created_at" json:"createdAt"`                            // 创建时间
	LastMessageAt *time.Time `bson:"last_message_at,omitempty" json:"lastMessageAt,omitempty"` // 最近一条消息时间，无消息为空
}

// Has reports whether userID is one of the two participants.
func (r *Room) Has(userID string) bool {
	return userID != "" && (r.ParticipantA == userID || r.ParticipantB == userID)
}

// Other returns the participant that is not userID.
func (r *Room) Other(userID string) (string, bool) {
	switch userID {
	case r.ParticipantA:
		return r.ParticipantB, true
	case r.ParticipantB:
		return r.ParticipantA, true
	}
	return "", false
}

// RoomSummary is one row of a user's room list.
type RoomSummary struct {
	*Room
	OtherUserID   string   `json:"otherUserId"`
	OtherUserName string   `json:"otherUserName"`
	UnreadCount   int64    `json:"unreadCount"`
	LastMessage   *Message `json:"lastMessage,omitempty"`
}
