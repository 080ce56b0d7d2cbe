// Package progress streams a run's observable state (log lines,
// screenshot frames, the final done event) to an observer without ever
// blocking the run. A slow or disconnected observer loses messages, not
// the verification.
package progress

import (
	"encoding/base64"
	"encoding/json"
	"sync"

	"polistep/internal/logging"
	"polistep/internal/types"
)

// DoneEvent is the terminal message of one run.
type DoneEvent struct {
	Status         types.VerificationStatus `json:"status"`
	FinalURL       string                   `json:"final_url,omitempty"`
	Criteria       types.Criteria           `json:"criteria"`
	EvidenceText   string                   `json:"evidence_text,omitempty"`
	NavigationPath []types.NavigationStep   `json:"navigation_path,omitempty"`
	Error          string                   `json:"error,omitempty"`
}

// Sink receives run progress. Implementations must be safe for
// concurrent use; the run and the frame capturer both publish.
type Sink interface {
	Log(line string)
	Frame(png []byte)
	Done(ev DoneEvent)
}

// Message is the wire shape handed to external observers.
type Message struct {
	Type    string     `json:"type"` // log, screenshot, done
	Message string     `json:"message,omitempty"`
	Image   string     `json:"image,omitempty"` // base64 png
	Done    *DoneEvent `json:"done,omitempty"`
}

// Channel is a bounded in-memory Sink. When the queue is full new
// messages are dropped (drop-newest) so the producer never stalls.
type Channel struct {
	mu      sync.Mutex
	out     chan Message
	closed  bool
	dropped int
}

// NewChannel returns a channel sink with the given queue size.
func NewChannel(queueSize int) *Channel {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Channel{out: make(chan Message, queueSize)}
}

// Messages exposes the observer side of the queue. Closed after Done.
func (c *Channel) Messages() <-chan Message { return c.out }

// Dropped reports how many messages were discarded.
func (c *Channel) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Log publishes a log line.
func (c *Channel) Log(line string) {
	c.publish(Message{Type: "log", Message: line})
}

// Frame publishes one screenshot.
func (c *Channel) Frame(png []byte) {
	c.publish(Message{Type: "screenshot", Image: base64.StdEncoding.EncodeToString(png)})
}

// Done publishes the terminal event and closes the queue. Messages
// after Done are dropped.
func (c *Channel) Done(ev DoneEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.out <- Message{Type: "done", Done: &ev}:
	default:
		// Make room for the terminal event: it must not be lost.
		select {
		case <-c.out:
			c.dropped++
		default:
		}
		c.out <- Message{Type: "done", Done: &ev}
	}
	c.closed = true
	close(c.out)
	if c.dropped > 0 {
		logging.Progress("observer queue dropped %d messages", c.dropped)
	}
}

func (c *Channel) publish(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.dropped++
		return
	}
	select {
	case c.out <- m:
	default:
		c.dropped++
	}
}

// Encode renders a message for an external observer stream.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Discard is a Sink that ignores everything.
type Discard struct{}

func (Discard) Log(string)     {}
func (Discard) Frame([]byte)   {}
func (Discard) Done(DoneEvent) {}
