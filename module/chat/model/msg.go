package model

import (
	"strings"
	"time"
)

const MsgTableName = "chat_message"

type MessageKind string

const (
	KindText   MessageKind = "TEXT"
	KindImage  MessageKind = "IMAGE"
	KindFile   MessageKind = "FILE"
	KindSystem MessageKind = "SYSTEM"
)

// ParseKind returns the kind named by s (case-insensitive). Empty means TEXT.
func ParseKind(s string) (MessageKind, bool) {
	if s == "" {
		return KindText, true
	}
	k := MessageKind(strings.ToUpper(s))
	switch k {
	case KindText, KindImage, KindFile, KindSystem:
		return k, true
	}
	return "", false
}

// Message is one persisted chat message.
type Message struct {
	ID         string      `bson:"_id" json:"id"`                // 雪花ID，定长字符串，按创建顺序排序
	RoomID     string      `bson:"room_id" json:"roomId"`        // 所属房间
	SenderID   string      `bson:"sender_id" json:"senderId"`    // 发送者
	ReceiverID string      `bson:"receiver_id" json:"receiverId"` // 接收者
	Content    string      `bson:"content" json:"content"`
	Kind       MessageKind `bson:"kind" json:"messageType"`
	IsRead     bool        `bson:"is_read" json:"isRead"`     // 只会从 false 变为 true
	CreatedAt  time.Time   `bson:"created_at" json:"createdAt"`
}
