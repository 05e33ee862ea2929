package ws

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait   = 10 * time.Second
	idleTimeout = 60 * time.Second
	pingEvery   = idleTimeout * 9 / 10
	outboxSize  = 16
	maxInbound  = 512
)

// peer is one dashboard connection. The hub owns out and closes it when the
// peer leaves; writeLoop then sends a close frame and exits.
type peer struct {
	conn *websocket.Conn
	out  chan []byte
}

func newPeer(conn *websocket.Conn) *peer {
	return &peer{conn: conn, out: make(chan []byte, outboxSize)}
}

func (p *peer) remote() string { return p.conn.RemoteAddr().String() }

// offer queues frame without blocking and reports whether it fit.
func (p *peer) offer(frame []byte) bool {
	select {
	case p.out <- frame:
		return true
	default:
		return false
	}
}

func (p *peer) writeLoop() {
	ping := time.NewTicker(pingEvery)
	defer func() {
		ping.Stop()
		p.conn.Close()
	}()

	for {
		var kind int
		var payload []byte

		select {
		case frame, open := <-p.out:
			if !open {
				kind = websocket.CloseMessage
			} else {
				kind, payload = websocket.TextMessage, frame
			}
		case <-ping.C:
			kind = websocket.PingMessage
		}

		p.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
		if err := p.conn.WriteMessage(kind, payload); err != nil || kind == websocket.CloseMessage {
			return
		}
	}
}

// readLoop discards client frames and keeps the read deadline fresh on
// pongs. It returns once the connection is gone.
func (p *peer) readLoop() {
	defer p.conn.Close()
	p.conn.SetReadLimit(maxInbound)
	p.conn.SetReadDeadline(time.Now().Add(idleTimeout)) //nolint:errcheck
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})
	for {
		if _, _, err := p.conn.NextReader(); err != nil {
			return
		}
	}
}
