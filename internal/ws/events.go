package ws

// Event names pushed to clients.
const (
	EventOnlineUsers = "getOnlineUsers"
	EventNewMessage  = "newMessage"
)

// Envelope is the wire format for server-initiated events.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}
