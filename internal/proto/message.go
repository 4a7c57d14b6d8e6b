package proto

import "github.com/relaywire/relayd/internal/core"

// Frame payloads exchanged over the relay socket. Everything is JSON text
// frames; binary frames are a protocol violation.

const (
	// UpdateTypeMessage marks a forwarded channel message.
	UpdateTypeMessage = "MESSAGE"

	// CommandAll subscribes the connection to every channel.
	CommandAll = "ALL"
	// CommandNone clears the connection's subscription.
	CommandNone = "NONE"

	// MaxChannelNameBytes caps a subscription command payload. 30 code
	// points at the widest UTF-8 encoding, measured in bytes so the check
	// stays O(1) on the raw frame.
	MaxChannelNameBytes = 4 * 30
)

// StatusReply is the handshake response: either a welcome or a rejection.
type StatusReply struct {
	Error bool   `json:"error"`
	Value string `json:"value"`
}

// Welcome is sent after a successful token handshake.
func Welcome() StatusReply {
	return StatusReply{Error: false, Value: "welcome"}
}

// InvalidToken is sent before closing a connection that failed the handshake.
func InvalidToken() StatusReply {
	return StatusReply{Error: true, Value: "invalid token"}
}

// CommandReply acknowledges (or rejects) a subscription command.
// Value carries the accepted command payload, or null on error.
type CommandReply struct {
	Error   bool    `json:"error"`
	Content string  `json:"content"`
	Value   *string `json:"value"`
}

// ChannelChanged acknowledges a successful filter switch.
func ChannelChanged(payload string) CommandReply {
	return CommandReply{
		Error:   false,
		Content: "successfully changed channel",
		Value:   &payload,
	}
}

// ChannelNameTooLong rejects an oversize subscription command.
func ChannelNameTooLong() CommandReply {
	return CommandReply{
		Error:   true,
		Content: "channel name too long in bytes, max is 120",
		Value:   nil,
	}
}

// Update is a message delivered to a subscribed connection.
type Update struct {
	MessageType string         `json:"message_type"`
	Content     string         `json:"content"`
	Sender      *core.Identity `json:"sender"`
}

// MessageUpdate wraps a bus envelope for delivery.
func MessageUpdate(env core.Envelope) Update {
	sender := env.Sender
	return Update{
		MessageType: UpdateTypeMessage,
		Content:     env.Content,
		Sender:      &sender,
	}
}
