package server

import (
	"sync"
	"sync/atomic"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/bluemods/deceive-proxy/connection"
)

var (
	// uint32 has 4.2B limit,
	// a game client reconnects nowhere near that often
	currentConnId = &atomic.Uint32{}
)

// Holds the live sessions in the order they connected.
// Broadcasts and presence replays walk the sessions in that order.
type SessionPool struct {
	sessions *orderedmap.OrderedMap[uint32, *connection.ProxiedConnection]
	mutex    *sync.Mutex
}

func NewSessionPool() *SessionPool {
	return &SessionPool{
		sessions: orderedmap.New[uint32, *connection.ProxiedConnection](),
		mutex:    &sync.Mutex{},
	}
}

func nextSessionId() uint32 {
	return currentConnId.Add(1)
}

func (p *SessionPool) Add(c *connection.ProxiedConnection) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.sessions.Set(c.Id, c)
}

// Returns nil when the session is not live.
func (p *SessionPool) Get(id uint32) *connection.ProxiedConnection {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	c, _ := p.sessions.Get(id)
	return c
}

// Removes the session and returns how many are left.
func (p *SessionPool) Remove(id uint32) int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.sessions.Delete(id)
	return p.sessions.Len()
}

func (p *SessionPool) Len() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.sessions.Len()
}

// Copy of the live sessions, oldest first.
// Callers iterate the copy so no lock is held while writing to a session.
func (p *SessionPool) Snapshot() []*connection.ProxiedConnection {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	ret := make([]*connection.ProxiedConnection, 0, p.sessions.Len())
	for pair := p.sessions.Oldest(); pair != nil; pair = pair.Next() {
		ret = append(ret, pair.Value)
	}
	return ret
}

// Disconnects all sessions
func (p *SessionPool) DisconnectAll() {
	for _, c := range p.Snapshot() {
		c.Close()
	}
}
