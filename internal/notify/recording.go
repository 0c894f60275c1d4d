package notify

import (
	"context"
	"sync"
)

// RecordingMailer keeps sent messages in memory. Used by tests and local runs
// without provider credentials.
type RecordingMailer struct {
	mu       sync.Mutex
	messages []Message
	// Err, when set, is returned by Send and nothing is recorded.
	Err          error
	Unconfigured bool
}

func (m *RecordingMailer) Send(_ context.Context, msg Message) error {
	if m.Unconfigured {
		return ErrNotConfigured
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *RecordingMailer) Configured() bool {
	return !m.Unconfigured
}

// Messages returns a copy of the sent messages.
func (m *RecordingMailer) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}
