package registry

import (
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Conn is a single client's live presence on the server. The ID is the
// transient connection handle; the stable identity it maps to lives in the
// Registry, not here. Outgoing messages are queued on OutChan and drained by
// the connection's write pump.
type Conn struct {
	ID      uuid.UUID
	Cancel  func()
	OutChan chan map[string]interface{}
}

// NewConn allocates a connection with a fresh handle.
func NewConn() *Conn {
	return &Conn{
		ID:      uuid.New(),
		OutChan: make(chan map[string]interface{}, 32),
	}
}

// Write pushes a message onto the connection's OutChan non-blockingly.
// Logs if the channel is closed or full and the message is dropped.
func (c *Conn) Write(msg map[string]interface{}) {
	select {
	case c.OutChan <- msg:
	default:
		msgType, _ := msg["type"].(string)
		log.Warnf("conn %s: OutChan closed or full, dropped message type '%s'", c.ID, msgType)
	}
}

// WriteError is a convenience to send a room_error event to this connection.
func (c *Conn) WriteError(message string) {
	c.Write(map[string]interface{}{
		"type":    "room_error",
		"message": message,
	})
}
