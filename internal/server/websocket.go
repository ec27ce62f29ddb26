package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

func (s *PreviewServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.allowedOrigins(r),
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, 256),
		server: s,
	}

	go client.writePump()
	go client.readPump()

	select {
	case s.register <- client:
	case <-s.hubDone:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (s *PreviewServer) allowedOrigins(r *http.Request) []string {
	return []string{
		r.Host,
		s.opts.Addr(),
		fmt.Sprintf("localhost:%d", s.opts.Port),
		fmt.Sprintf("127.0.0.1:%d", s.opts.Port),
	}
}

// checkOrigin only admits http(s) pages served by this server.
func (s *PreviewServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	for _, allowed := range s.allowedOrigins(r) {
		if originURL.Host == allowed {
			return true
		}
	}
	return false
}

func (s *PreviewServer) runWebSocketHub(ctx context.Context) {
	defer close(s.hubDone)

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-s.register:
			if client == nil || client.conn == nil {
				continue
			}
			s.clientsMutex.Lock()
			s.clients[client.conn] = client
			clientCount := len(s.clients)
			s.clientsMutex.Unlock()
			s.logger.Debug(ctx, "live reload client connected", "clients", clientCount)

		case conn := <-s.unregister:
			s.dropClient(conn)

		case message := <-s.broadcast:
			s.clientsMutex.RLock()
			var failed []*websocket.Conn
			for conn, client := range s.clients {
				select {
				case client.send <- message:
				default:
					failed = append(failed, conn)
				}
			}
			s.clientsMutex.RUnlock()

			for _, conn := range failed {
				s.dropClient(conn)
			}
		}
	}
}

func (s *PreviewServer) dropClient(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()

	if client, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		close(client.send)
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

// readPump waits for the peer to go away. The client never sends data,
// so reads are discarded while control frames are still answered.
func (c *Client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	closed := c.conn.CloseRead(context.Background())

	select {
	case <-closed.Done():
	case <-c.server.hubDone:
		return
	}

	select {
	case c.server.unregister <- c.conn:
	case <-c.server.hubDone:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
