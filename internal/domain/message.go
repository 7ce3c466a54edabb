package domain

import "encoding/json"

// MessageType tags the signaling envelope. The relay branches on the tag
// and never looks inside Payload.
type MessageType string

const (
	TypeIdentify  MessageType = "identify"
	TypeJoin      MessageType = "join"
	TypeOffer     MessageType = "offer"
	TypeAnswer    MessageType = "answer"
	TypeCandidate MessageType = "candidate"
	TypeFxChange  MessageType = "fx-change"
	TypePing      MessageType = "ping"

	// Server-originated types.
	TypePeerJoined MessageType = "peer-joined"
	TypePeerLeft   MessageType = "peer-left"
	TypePong       MessageType = "pong"
)

// Envelope is the wire format for every signaling frame, both directions.
// Exactly one of Target or RoomID selects the addressing mode on relayed
// messages; Target wins when both are set.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Sender  ClientID        `json:"sender,omitempty"`
	Target  ClientID        `json:"target,omitempty"`
	RoomID  RoomID          `json:"roomId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
