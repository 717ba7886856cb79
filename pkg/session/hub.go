/*
Copyright 2024 The Rojo Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package session

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rojo-rbx/rojo/pkg/queue"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 10 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans AppliedPatchSets out of a queue.Queue to every connected
// websocket subscriber, one goroutine-pair per connection so a slow
// client never backs up another's delivery.
type Hub struct {
	q          *queue.Queue
	register   chan *conn
	unregister chan *conn
}

// NewHub creates a Hub over q. Run must be started in its own goroutine
// before any connection is served.
func NewHub(q *queue.Queue) *Hub {
	return &Hub{
		q:          q,
		register:   make(chan *conn),
		unregister: make(chan *conn),
	}
}

// Run owns the connection set and the queue-tailing goroutine per
// connection; it blocks until done is closed.
func (h *Hub) Run(done <-chan struct{}) {
	conns := make(map[*conn]struct{})
	for {
		select {
		case <-done:
			for c := range conns {
				close(c.send)
			}
			return
		case c := <-h.register:
			conns[c] = struct{}{}
		case c := <-h.unregister:
			if _, ok := conns[c]; ok {
				delete(conns, c)
				close(c.send)
			}
		}
	}
}

// ServeWS upgrades req to a websocket and streams every AppliedPatchSet
// published to the Hub's queue from this point on, encoded with
// EncodePatchSet. The client's cursor starts at the queue's current length,
// not zero: a newly-connected subscriber sees only what happens next.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[session] websocket upgrade: %v", err)
		return
	}
	c := &conn{ws: ws, send: make(chan []byte, 256), closed: make(chan struct{})}
	h.register <- c
	go c.writePump()
	go h.tailQueue(c)
	c.readPump(h)
}

// tailQueue blocks on h.q.Wait and forwards every newly published entry to
// c.send until the connection's readPump tears it down.
func (h *Hub) tailQueue(c *conn) {
	cursor := h.q.Len()
	for {
		select {
		case <-c.closed:
			return
		default:
		}
		h.q.Wait(cursor)
		entries, next := h.q.Since(cursor)
		cursor = next
		for _, e := range entries {
			wire, err := EncodePatchSet(e.Patch)
			if err != nil {
				log.Printf("[session] encoding queue entry %d: %v", e.Cursor, err)
				continue
			}
			payload, err := json.Marshal(wire)
			if err != nil {
				log.Printf("[session] marshaling queue entry %d: %v", e.Cursor, err)
				continue
			}
			select {
			case c.send <- payload:
			case <-c.closed:
				return
			}
		}
	}
}

type conn struct {
	ws     *websocket.Conn
	send   chan []byte
	closed chan struct{}
}

func (c *conn) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.closeOnce()
		c.ws.Close()
	}()
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}

func (c *conn) closeOnce() {
	if c.closed == nil {
		return
	}
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
}
