package chat

import (
	"encoding/json"
	"strings"
	"time"

	"chatcore/module/chat/model"
	"chatcore/tools/errs"
)

type Kind string

const (
	KindMessage     Kind = "MESSAGE"
	KindTyping      Kind = "TYPING"
	KindReadReceipt Kind = "READ_RECEIPT"
	KindConnect     Kind = "CONNECT"
	KindDisconnect  Kind = "DISCONNECT"
	KindError       Kind = "ERROR"
)

// Envelope is the JSON text frame exchanged on the socket in both directions.
type Envelope struct {
	Kind        Kind           `json:"kind"`
	RoomID      string         `json:"roomId,omitempty"`
	SenderID    string         `json:"senderId,omitempty"`
	ReceiverID  string         `json:"receiverId,omitempty"`
	Content     string         `json:"content,omitempty"`
	MessageType string         `json:"messageType,omitempty"`
	Message     *model.Message `json:"message,omitempty"`
	Timestamp   int64          `json:"timestamp"` // unix millis
}

// Decode parses one inbound frame. Only the kind is checked here; required
// fields are checked per kind by the dispatcher.
func Decode(raw []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := json.Unmarshal(raw, env); err != nil {
		return nil, errs.ErrInvalidArgument.WrapMsg("undecodable frame: " + err.Error())
	}
	env.Kind = Kind(strings.TrimSpace(string(env.Kind)))
	if env.Kind == "" {
		return nil, errs.ErrInvalidArgument.WrapMsg("frame without kind")
	}
	return env, nil
}

// Encode never fails for envelopes built by this package.
func (e *Envelope) Encode() []byte {
	b, _ := json.Marshal(e)
	return b
}

func now() int64 { return time.Now().UnixMilli() }

// ---- 服务端下发帧 ----

func ConnectFrame(userID string) *Envelope {
	return &Envelope{Kind: KindConnect, ReceiverID: userID, Content: "Connected successfully", Timestamp: now()}
}

func MessageFrame(m *model.Message) *Envelope {
	return &Envelope{
		Kind:        KindMessage,
		RoomID:      m.RoomID,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		Content:     m.Content,
		MessageType: string(m.Kind),
		Message:     m,
		Timestamp:   now(),
	}
}

func TypingFrame(roomID, from, to string) *Envelope {
	return &Envelope{Kind: KindTyping, RoomID: roomID, SenderID: from, ReceiverID: to, Timestamp: now()}
}

// ReadReceiptFrame tells the other participant that reader has read roomID.
func ReadReceiptFrame(roomID, reader string) *Envelope {
	return &Envelope{Kind: KindReadReceipt, RoomID: roomID, SenderID: reader, Timestamp: now()}
}

func ErrorFrame(reason string) *Envelope {
	return &Envelope{Kind: KindError, Content: reason, Timestamp: now()}
}

// reason renders err for an ERROR frame.
func reason(err error) string {
	ce := errs.From(err)
	if ce.Detail == "" {
		return ce.Msg
	}
	return ce.Msg + ": " + ce.Detail
}
