// ABOUTME: Standalone WebSocket sink for the remote transfer channel
// ABOUTME: Consumes submitted buffers at a fixed drain rate and acks each one
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmastream/dmastream-go/internal/version"
	"github.com/dmastream/dmastream-go/pkg/pcm"
)

var (
	port    = flag.Int("port", 8930, "WebSocket sink port")
	logFile = flag.String("log-file", "dmastream-sink.log", "Log file path")
	drop    = flag.Bool("drop", false, "Discard audio instead of pacing at the stream rate")
)

// controlMsg mirrors the player's JSON control envelope.
type controlMsg struct {
	Type string `json:"type"`
}

// sinkConn drains one player connection.
type sinkConn struct {
	conn *websocket.Conn

	mu      sync.Mutex
	paused  bool
	pending [][]byte // raw messages, 16-byte id then words
	wake    chan struct{}
	done    chan struct{}
}

func main() {
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, f))

	log.Printf("Starting %s sink %s on port %d", version.Product, version.Version, *port)

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade error: %v", err)
			return
		}
		log.Printf("New player connection from %s", r.RemoteAddr)

		s := &sinkConn{
			conn: conn,
			wake: make(chan struct{}, 1),
			done: make(chan struct{}),
		}
		go s.drain()
		s.read()
	})

	if err := http.ListenAndServe(fmt.Sprintf(":%d", *port), mux); err != nil {
		log.Fatalf("Sink error: %v", err)
	}
}

// read consumes messages until the connection drops.
func (s *sinkConn) read() {
	defer func() {
		close(s.done)
		s.conn.Close()
		log.Printf("Player connection closed")
	}()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Read error: %v", err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if len(data) < 16 || (len(data)-16)%pcm.WordBytes != 0 {
				log.Printf("Dropping malformed submission of %d bytes", len(data))
				continue
			}
			s.mu.Lock()
			s.pending = append(s.pending, data)
			s.mu.Unlock()
			s.signal()

		case websocket.TextMessage:
			var msg controlMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Printf("Bad control message: %v", err)
				continue
			}
			s.control(msg.Type)
		}
	}
}

// control applies a player control request.
func (s *sinkConn) control(kind string) {
	s.mu.Lock()
	switch kind {
	case "pause":
		s.paused = true
	case "resume":
		s.paused = false
	case "terminate":
		// Outstanding buffers are dropped without acks; the player has
		// already reclaimed them.
		dropped := len(s.pending)
		s.pending = nil
		s.paused = false
		if dropped > 0 {
			log.Printf("Terminate dropped %d pending buffers", dropped)
		}
	default:
		log.Printf("Unknown control type %q", kind)
	}
	s.mu.Unlock()
	s.signal()
}

func (s *sinkConn) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// drain consumes pending buffers in order, pacing each one at the time its
// frames represent, and acks by echoing the submission id.
func (s *sinkConn) drain() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if s.paused || len(s.pending) == 0 {
				s.mu.Unlock()
				break
			}
			data := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()

			frames := (len(data) - 16) / pcm.WordBytes
			if !*drop {
				rate := pcm.DefaultFormat().SampleRate
				time.Sleep(time.Duration(frames) * time.Second / time.Duration(rate))
			}

			if err := s.conn.WriteMessage(websocket.BinaryMessage, data[:16]); err != nil {
				log.Printf("Ack failed: %v", err)
				return
			}
		}
	}
}
