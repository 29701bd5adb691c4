// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"spectrum/internal/log"
)

const (
	broadcastQueue = 256
	writeTimeout   = 2 * time.Second
)

// WebSocketTransport broadcasts frames as JSON to every client connected
// on /ws. Send never blocks: when the broadcast queue is full the message
// is dropped.
type WebSocketTransport struct {
	addr      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]struct{}
	clientsMu sync.Mutex // also serialises writes to each conn
	hello     any        // sent to each client on connect, guarded by clientsMu
	broadcast chan any
	server    *http.Server
	log       *log.Logger

	dropped   atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWebSocketTransport creates a transport that will listen on addr when
// Start is called. The broadcast loop runs from construction until Close.
func NewWebSocketTransport(addr string) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // local viewers are served from other origins
			},
		},
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan any, broadcastQueue),
		log:       log.WithComponent("transport.ws"),
		done:      make(chan struct{}),
	}

	wst.wg.Add(1)
	go wst.handleBroadcasts()
	return wst
}

// Handler returns the HTTP handler serving the /ws endpoint.
func (wst *WebSocketTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wst.handleWebSocket)
	return mux
}

// Start binds addr and serves the /ws endpoint in the background. Binding
// errors are returned; later serve errors are logged.
func (wst *WebSocketTransport) Start() error {
	ln, err := net.Listen("tcp", wst.addr)
	if err != nil {
		return err
	}
	wst.server = &http.Server{
		Handler:           wst.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	wst.wg.Add(1)
	go func() {
		defer wst.wg.Done()
		wst.log.Infof("serving websocket clients on ws://%s/ws", ln.Addr())
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			wst.log.Errorf("server error: %v", err)
		}
	}()
	return nil
}

// SetHello sets the message each client receives when it connects.
// Clients already connected are not sent it.
func (wst *WebSocketTransport) SetHello(msg any) {
	wst.clientsMu.Lock()
	wst.hello = msg
	wst.clientsMu.Unlock()
}

func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wst.log.Warnf("upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	select {
	case <-wst.done:
		wst.clientsMu.Unlock()
		conn.Close()
		return
	default:
	}
	if wst.hello != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(wst.hello); err != nil {
			wst.clientsMu.Unlock()
			conn.Close()
			return
		}
	}
	wst.clients[conn] = struct{}{}
	total := len(wst.clients)
	wst.wg.Add(1) // under clientsMu so Close cannot be waiting yet
	wst.clientsMu.Unlock()
	wst.log.Infof("client connected, total: %d", total)

	// Clients never send anything meaningful; a read error means they left.
	go func() {
		defer wst.wg.Done()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		wst.clientsMu.Lock()
		delete(wst.clients, conn)
		total := len(wst.clients)
		wst.clientsMu.Unlock()
		conn.Close()
		wst.log.Infof("client disconnected, total: %d", total)
	}()
}

// handleBroadcasts sends queued messages to all connected clients.
func (wst *WebSocketTransport) handleBroadcasts() {
	defer wst.wg.Done()
	for {
		select {
		case <-wst.done:
			return
		case data := <-wst.broadcast:
			wst.clientsMu.Lock()
			for client := range wst.clients {
				_ = client.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := client.WriteJSON(data); err != nil {
					wst.log.Warnf("error sending to client: %v", err)
					client.Close()
					delete(wst.clients, client)
				}
			}
			wst.clientsMu.Unlock()
		}
	}
}

// Send queues data for broadcast.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case <-wst.done:
		return errors.New("websocket transport is closed")
	default:
	}
	select {
	case wst.broadcast <- data:
	default:
		wst.dropped.Add(1)
	}
	return nil
}

// Dropped returns the number of messages discarded on a full queue.
func (wst *WebSocketTransport) Dropped() int64 {
	return wst.dropped.Load()
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// Close disconnects every client, shuts the server down and waits for the
// transport's goroutines.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		wst.clientsMu.Lock()
		close(wst.done)
		for client := range wst.clients {
			client.Close()
		}
		wst.clientsMu.Unlock()

		if wst.server != nil {
			err = wst.server.Close()
		}
		wst.wg.Wait()
		wst.log.Debugf("closed, %d messages dropped", wst.dropped.Load())
	})
	return err
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
