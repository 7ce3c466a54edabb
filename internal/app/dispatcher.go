package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
)

// Dispatcher routes every inbound frame against the two registries and
// runs the session lifecycle. Each session feeds it from a single read
// loop, so per-message handling stays serial per sender; the registries
// carry their own locks for cross-session safety.
type Dispatcher struct {
	Clients *core.ClientRegistry
	Rooms   *core.RoomRegistry
}

func NewDispatcher(clients *core.ClientRegistry, rooms *core.RoomRegistry) *Dispatcher {
	return &Dispatcher{Clients: clients, Rooms: rooms}
}

// HandleFrame classifies one inbound frame and applies it. Malformed or
// unknown frames are dropped; the connection stays open no matter what.
func (d *Dispatcher) HandleFrame(s *Session, data core.Frame) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "app.dispatch").Str("conn", string(s.ConnID)).Msg("malformed frame dropped")
		return
	}

	switch env.Type {
	case domain.TypeIdentify:
		d.handleIdentify(s, env)
	case domain.TypeJoin:
		d.handleJoin(s, env)
	case domain.TypeOffer, domain.TypeAnswer, domain.TypeCandidate, domain.TypeFxChange:
		d.relay(s, env)
	case domain.TypePing:
		d.send(s.Conn, domain.Envelope{Type: domain.TypePong})
	default:
		log.Warn().Str("module", "app.dispatch").Str("type", string(env.Type)).Str("conn", string(s.ConnID)).Msg("unknown message type")
	}
}

func (d *Dispatcher) handleIdentify(s *Session, env domain.Envelope) {
	if env.Sender == "" {
		log.Warn().Str("module", "app.dispatch").Str("conn", string(s.ConnID)).Msg("identify without sender")
		return
	}
	// Re-identifying under a new name abandons the old identity and its
	// room membership.
	if s.id != "" && s.id != env.Sender {
		if s.room != "" {
			d.leaveRoom(s)
		}
		d.Clients.Release(s.id, s.Conn)
	}
	// An id collision closes the displaced transport; its own cleanup
	// then finds the mapping no longer owned and leaves it alone.
	if displaced := d.Clients.Register(env.Sender, s.Conn); displaced != nil {
		displaced.Close()
	}
	s.id = env.Sender
	s.state = StateIdentified
	// The id may still be a member of a room, left behind by a displaced
	// predecessor. Membership follows the id, so this session takes it
	// over; otherwise the room entry could never be cleaned up.
	if room, ok := d.Rooms.RoomOf(s.id); ok {
		s.room = room
		s.state = StateInRoom
	}
	log.Info().Str("module", "app.dispatch").Str("conn", string(s.ConnID)).Str("id", string(s.id)).Msg("client identified")
}

func (d *Dispatcher) handleJoin(s *Session, env domain.Envelope) {
	if !s.identified() {
		log.Warn().Str("module", "app.dispatch").Str("conn", string(s.ConnID)).Msg("join before identify rejected")
		return
	}
	if env.RoomID == "" {
		log.Warn().Str("module", "app.dispatch").Str("id", string(s.id)).Msg("join without room id")
		return
	}
	// At most one room per session: switching rooms leaves the old one
	// and tells its survivors.
	if s.room != "" && s.room != env.RoomID {
		d.leaveRoom(s)
	}

	existing := d.Rooms.Join(env.RoomID, s.id)
	note := domain.Envelope{Type: domain.TypePeerJoined, Sender: s.id, RoomID: env.RoomID}
	for _, peer := range existing {
		if peer == s.id {
			continue
		}
		d.sendTo(peer, note)
	}
	s.room = env.RoomID
	s.state = StateInRoom
	log.Info().Str("module", "app.dispatch").Str("id", string(s.id)).Str("room", string(env.RoomID)).Int("peers", len(existing)).Msg("joined room")
}

// relay forwards offer/answer/candidate/fx-change without touching the
// payload. Target addressing wins over room broadcast; with neither set
// the frame has nowhere to go and is dropped.
func (d *Dispatcher) relay(s *Session, env domain.Envelope) {
	out := domain.Envelope{Type: env.Type, Sender: env.Sender, Payload: env.Payload}

	if env.Target != "" {
		if !d.sendTo(env.Target, out) {
			log.Warn().Str("module", "app.dispatch").Str("type", string(env.Type)).Str("target", string(env.Target)).Msg("unknown target, dropped")
		}
		return
	}

	if env.RoomID != "" {
		members, ok := d.Rooms.Members(env.RoomID)
		if !ok {
			log.Warn().Str("module", "app.dispatch").Str("type", string(env.Type)).Str("room", string(env.RoomID)).Msg("unknown room, dropped")
			return
		}
		for _, peer := range members {
			if peer == env.Sender {
				continue
			}
			d.sendTo(peer, out)
		}
		return
	}

	log.Warn().Str("module", "app.dispatch").Str("type", string(env.Type)).Str("conn", string(s.ConnID)).Msg("relay frame without target or room")
}

// Disconnect runs termination cleanup. Safe to call more than once; only
// the first call mutates the registries. An unidentified session only
// releases its transport.
func (d *Dispatcher) Disconnect(s *Session) {
	if s.state == StateTerminated {
		return
	}
	s.state = StateTerminated

	if s.identified() {
		owned := d.Clients.Release(s.id, s.Conn)
		// A displaced session's id and room now belong to its
		// successor; leave them be.
		if owned && s.room != "" {
			d.leaveRoom(s)
		}
		log.Info().Str("module", "app.dispatch").Str("id", string(s.id)).Bool("owned", owned).Msg("session terminated")
	} else {
		log.Info().Str("module", "app.dispatch").Str("conn", string(s.ConnID)).Msg("unidentified session terminated")
	}
	s.Conn.Close()
}

func (d *Dispatcher) leaveRoom(s *Session) {
	survivors := d.Rooms.Leave(s.room, s.id)
	note := domain.Envelope{Type: domain.TypePeerLeft, Sender: s.id}
	for _, peer := range survivors {
		d.sendTo(peer, note)
	}
	s.room = ""
}

// sendTo resolves id via the client registry and queues the envelope on
// its transport. Reports whether the recipient was known; delivery itself
// stays best-effort.
func (d *Dispatcher) sendTo(id domain.ClientID, env domain.Envelope) bool {
	conn, ok := d.Clients.Lookup(id)
	if !ok {
		return false
	}
	d.send(conn, env)
	return true
}

func (d *Dispatcher) send(conn core.SignalConn, env domain.Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("module", "app.dispatch").Msg("marshal outbound")
		return
	}
	if err := conn.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "app.dispatch").Str("type", string(env.Type)).Msg("send skipped")
	}
}
