package devserver

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GoCodeAlone/watchreload/command"
)

const writeWait = 10 * time.Second

// peer is one connected client.
type peer struct {
	conn *websocket.Conn

	mu   sync.Mutex // serializes writes
	name string
}

func (p *peer) send(msgType string, data interface{}) error {
	msg := command.Message{Type: msgType}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		msg.Data = raw
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.TextMessage, payload)
}

func (p *peer) setName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
}

func (p *peer) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

// hub is the set of connected clients.
type hub struct {
	mu    sync.RWMutex
	peers map[*peer]struct{}
}

func newHub() *hub {
	return &hub{peers: make(map[*peer]struct{})}
}

func (h *hub) add(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p] = struct{}{}
}

func (h *hub) remove(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, p)
}

func (h *hub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// broadcast sends to every client and returns the peers that failed.
func (h *hub) broadcast(msgType string, data interface{}) []*peer {
	h.mu.RLock()
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	var failed []*peer
	for _, p := range peers {
		if err := p.send(msgType, data); err != nil {
			failed = append(failed, p)
		}
	}
	return failed
}
