package app

import (
	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
)

// SessionState tracks where a connection is in its lifecycle.
type SessionState int

const (
	StateUnidentified SessionState = iota
	StateIdentified
	StateInRoom
	StateTerminated
)

// Session binds one transport to the identity and room it has declared.
// All fields are owned by the session's read loop; the dispatcher mutates
// them only from that loop, so no lock is needed here.
type Session struct {
	ConnID core.ConnID
	Conn   core.SignalConn

	id    domain.ClientID
	room  domain.RoomID
	state SessionState
}

func NewSession(connID core.ConnID, conn core.SignalConn) *Session {
	return &Session{ConnID: connID, Conn: conn, state: StateUnidentified}
}

func (s *Session) ID() domain.ClientID { return s.id }
func (s *Session) Room() domain.RoomID { return s.room }
func (s *Session) State() SessionState { return s.state }

func (s *Session) identified() bool { return s.id != "" }
