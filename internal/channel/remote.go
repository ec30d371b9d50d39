// ABOUTME: Remote transfer channel over a WebSocket connection
// ABOUTME: Ships buffers to a sink process and maps its acks to completions
package channel

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"

	"github.com/dmastream/dmastream-go/pkg/dma"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Remote streams submissions to a sink over WebSocket. Each binary message
// carries the 16-byte submission id followed by the packed transfer words;
// the sink acks consumption by echoing the id, which becomes the
// completion. Control operations travel as small JSON text messages.
type Remote struct {
	conn *websocket.Conn

	mu         sync.Mutex
	onComplete func(dma.SubmissionID)
	connected  bool
}

// controlMsg is the JSON envelope for non-data traffic.
type controlMsg struct {
	Type string `json:"type"`
}

// DialRemote connects to a sink at host:port.
func DialRemote(addr string) (*Remote, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/stream"}
	log.Printf("channel: connecting to sink at %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	r := &Remote{conn: conn, connected: true}
	go r.readAcks()
	return r, nil
}

// SetOnComplete registers the completion callback.
func (r *Remote) SetOnComplete(fn func(dma.SubmissionID)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onComplete = fn
}

// Submit ships the buffer to the sink.
func (r *Remote) Submit(data []byte, length int, addr dma.BusAddr) (dma.SubmissionID, error) {
	id := uuid.New()

	msg := make([]byte, 16+length)
	copy(msg[:16], id[:])
	copy(msg[16:], data[:length])

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return dma.SubmissionID{}, fmt.Errorf("sink connection closed")
	}
	if err := r.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		return dma.SubmissionID{}, fmt.Errorf("submit failed: %w", err)
	}
	return id, nil
}

// readAcks turns sink acknowledgements into completions.
func (r *Remote) readAcks() {
	for {
		msgType, data, err := r.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("channel: sink connection lost: %v", err)
			}
			r.mu.Lock()
			r.connected = false
			r.mu.Unlock()
			return
		}
		if msgType != websocket.BinaryMessage || len(data) != 16 {
			continue
		}

		var id dma.SubmissionID
		copy(id[:], data)

		r.mu.Lock()
		fn := r.onComplete
		r.mu.Unlock()
		if fn != nil {
			fn(id)
		}
	}
}

// Terminate tells the sink to drop everything outstanding.
func (r *Remote) Terminate() error {
	return r.control("terminate")
}

// Pause suspends consumption at the sink.
func (r *Remote) Pause() error {
	return r.control("pause")
}

// Resume continues consumption at the sink.
func (r *Remote) Resume() error {
	return r.control("resume")
}

func (r *Remote) control(kind string) error {
	data, err := json.Marshal(controlMsg{Type: kind})
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		// Nothing can be outstanding on a dead connection.
		return nil
	}
	return r.conn.WriteMessage(websocket.TextMessage, data)
}

// Close shuts the connection down.
func (r *Remote) Close() error {
	r.mu.Lock()
	r.connected = false
	r.mu.Unlock()
	return r.conn.Close()
}
