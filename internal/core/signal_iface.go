package core

import (
	"encoding/json"

	"github.com/phuocnguyenncc/mezon-sub000/internal/domain"
)

// Frame is a raw binary payload.
type Frame []byte

// SignalConnection abstracts a single bidirectional messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MessageType enumerates the signaling payloads exchanged between peers.
type MessageType string

const (
	MsgSDPOffer          MessageType = "SDP_OFFER"
	MsgSDPAnswer         MessageType = "SDP_ANSWER"
	MsgICECandidate      MessageType = "ICE_CANDIDATE"
	MsgStatusRemoteMedia MessageType = "SDP_STATUS_REMOTE_MEDIA"
	MsgSDPInit           MessageType = "SDP_INIT"
	MsgSDPQuit           MessageType = "SDP_QUIT"

	// Push wake-ups travel on the same socket as signaling. The relay stores
	// them for offline receivers; a receiver turns a delivered invite back
	// into the offer it carries.
	MsgPushInvite MessageType = "PUSH_INVITE"
	MsgPushCancel MessageType = "PUSH_CANCEL"
)

// Envelope is one routed signaling message. Receiver addressing lives here,
// the payload stays opaque to the transport.
type Envelope struct {
	Channel  domain.ChannelID `json:"channel_id"`
	Sender   domain.UserID    `json:"sender_id"`
	Receiver domain.UserID    `json:"receiver_id"`
	Type     MessageType      `json:"type"`
	Payload  json.RawMessage  `json:"payload,omitempty"`
}

// SignalSender delivers typed signaling payloads to a target user.
// Delivery is best-effort; retry/redelivery belongs to the transport.
type SignalSender interface {
	Send(target domain.UserID, t MessageType, payload []byte, channel domain.ChannelID, sender domain.UserID) error
}

// PushInvite is the out-of-band wake-up for a receiver that is not actively
// connected: the compressed offer plus caller display metadata.
type PushInvite struct {
	Channel    domain.ChannelID `json:"channel_id"`
	Caller     domain.UserID    `json:"caller_id"`
	CallerName string           `json:"caller_name"`
	Offer      string           `json:"offer"`
}

// PushNotifier carries the parallel push channel. CancelPush suppresses a
// stale native ring once the call is answered or cancelled.
type PushNotifier interface {
	Push(target domain.UserID, invite PushInvite) error
	CancelPush(target domain.UserID, channel domain.ChannelID) error
}
