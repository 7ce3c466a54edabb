package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/relay/internal/domain"
)

// ClientRegistry maps a declared client id to its live transport.
// It only mutates the mapping; closing a displaced transport is the
// caller's job.
type ClientRegistry struct {
	mu    sync.RWMutex
	conns map[domain.ClientID]SignalConn
}

func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{conns: make(map[domain.ClientID]SignalConn)}
}

// Register binds id to conn. If the id was already bound to a different
// connection, that connection is returned so the caller can close it.
func (r *ClientRegistry) Register(id domain.ClientID, conn SignalConn) SignalConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.conns[id]
	r.conns[id] = conn
	if old == conn {
		old = nil
	}
	log.Info().Str("module", "core.clients").Str("id", string(id)).Bool("displaced", old != nil).Msg("registered client")
	return old
}

func (r *ClientRegistry) Lookup(id domain.ClientID) (SignalConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// Release removes the mapping for id, but only while it still points at
// conn. A session that was displaced by a newer connection with the same
// id must not tear down its successor's entry. Reports whether the
// mapping was owned (and removed).
func (r *ClientRegistry) Release(id domain.ClientID, conn SignalConn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[id] != conn {
		return false
	}
	delete(r.conns, id)
	log.Info().Str("module", "core.clients").Str("id", string(id)).Msg("released client")
	return true
}

func (r *ClientRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
