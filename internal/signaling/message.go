// Package signaling defines the message exchanged over the pub/sub channel
// to bootstrap a peer connection, its binary codec and the topic layout.
package signaling

// Session is one negotiation attempt: a session description plus the local
// candidates gathered for it.
type Session struct {
	Description string
	Candidates  []string
}

// Message is the signaling payload published once per gathering cycle.
// Only Sessions[0] is ever populated or consumed; decoders keep any extra
// entries but nothing reads them.
type Message struct {
	DeviceID string
	Sessions []Session
}

// NewMessage returns a message for deviceID with its single session entry
// allocated.
func NewMessage(deviceID string) *Message {
	return &Message{DeviceID: deviceID, Sessions: make([]Session, 1)}
}

// First returns the first session entry, allocating it if needed.
func (m *Message) First() *Session {
	if len(m.Sessions) == 0 {
		m.Sessions = append(m.Sessions, Session{})
	}
	return &m.Sessions[0]
}

// Reset clears the description and candidates of the first entry. The
// message itself, and its device id, stay in place for the next cycle.
func (m *Message) Reset() {
	s := m.First()
	s.Description = ""
	s.Candidates = s.Candidates[:0]
}

// Empty reports whether the first entry carries nothing to send.
func (m *Message) Empty() bool {
	if len(m.Sessions) == 0 {
		return true
	}
	s := m.Sessions[0]
	return s.Description == "" && len(s.Candidates) == 0
}
