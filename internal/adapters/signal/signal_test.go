package signal_test

import (
	"context"
	"encoding/json"
	"net"
	nethttp "net/http"
	"os"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	router "github.com/dkeye/relay/internal/adapters/http"
	"github.com/dkeye/relay/internal/app"
	"github.com/dkeye/relay/internal/config"
	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

const readWait = 2 * time.Second

// silenceWait bounds the "nothing arrives" assertions; long enough to
// catch a stray frame, short enough to keep the suite fast.
const silenceWait = 200 * time.Millisecond

func startRelay(t *testing.T) (wsURL string, dispatch *app.Dispatcher) {
	t.Helper()

	cfg := &config.Config{
		Mode:         "release",
		ReadLimit:    32768,
		WriteTimeout: 2 * time.Second,
		SendBuffer:   8,
		Secret:       "test-secret",
	}
	dispatch = app.NewDispatcher(core.NewClientRegistry(), core.NewRoomRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	srv := &nethttp.Server{Handler: router.SetupRouter(ctx, cfg, dispatch)}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = srv.Serve(ln) }()

	t.Cleanup(func() {
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	})

	return "ws://" + ln.Addr().String() + "/ws", dispatch
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, env domain.Envelope) {
	t.Helper()
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func recv(t *testing.T, conn *websocket.Conn) domain.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return env
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(silenceWait))
	if _, data, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected silence, got %q", data)
	} else if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
		t.Fatalf("expected read timeout, got %v", err)
	}
}

// barrier uses the ping/pong round trip to make sure the server has
// processed everything this connection sent so far.
func barrier(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	send(t, conn, domain.Envelope{Type: domain.TypePing})
	if env := recv(t, conn); env.Type != domain.TypePong {
		t.Fatalf("barrier got %v, want pong", env)
	}
}

func identifyAndJoin(t *testing.T, conn *websocket.Conn, id, room string) {
	t.Helper()
	send(t, conn, domain.Envelope{Type: domain.TypeIdentify, Sender: domain.ClientID(id)})
	send(t, conn, domain.Envelope{Type: domain.TypeJoin, Sender: domain.ClientID(id), RoomID: domain.RoomID(room)})
	barrier(t, conn)
}

func TestJoinFanOut(t *testing.T) {
	wsURL, _ := startRelay(t)

	a := dial(t, wsURL)
	identifyAndJoin(t, a, "A", "r1")

	b := dial(t, wsURL)
	identifyAndJoin(t, b, "B", "r1")

	env := recv(t, a)
	if env.Type != domain.TypePeerJoined || env.Sender != "B" || env.RoomID != "r1" {
		t.Fatalf("A got %v, want peer-joined from B in r1", env)
	}
	expectSilence(t, b)
}

func TestTargetedOfferOverWire(t *testing.T) {
	wsURL, _ := startRelay(t)

	a := dial(t, wsURL)
	send(t, a, domain.Envelope{Type: domain.TypeIdentify, Sender: "A"})
	b := dial(t, wsURL)
	send(t, b, domain.Envelope{Type: domain.TypeIdentify, Sender: "B"})
	barrier(t, b)

	payload := json.RawMessage(`{"sdp":"v=0"}`)
	send(t, a, domain.Envelope{Type: domain.TypeOffer, Sender: "A", Target: "B", Payload: payload})

	env := recv(t, b)
	if env.Type != domain.TypeOffer || env.Sender != "A" || string(env.Payload) != string(payload) {
		t.Fatalf("B got %v, want offer from A with payload intact", env)
	}

	// Unknown target: nobody hears anything.
	send(t, a, domain.Envelope{Type: domain.TypeOffer, Sender: "A", Target: "C", Payload: payload})
	expectSilence(t, a)
	expectSilence(t, b)
}

func TestRoomBroadcastOverWire(t *testing.T) {
	wsURL, _ := startRelay(t)

	a := dial(t, wsURL)
	identifyAndJoin(t, a, "A", "r1")
	b := dial(t, wsURL)
	identifyAndJoin(t, b, "B", "r1")
	if env := recv(t, a); env.Type != domain.TypePeerJoined {
		t.Fatalf("A got %v, want peer-joined first", env)
	}

	payload := json.RawMessage(`{"candidate":"host"}`)
	send(t, a, domain.Envelope{Type: domain.TypeCandidate, Sender: "A", RoomID: "r1", Payload: payload})

	env := recv(t, b)
	if env.Type != domain.TypeCandidate || env.Sender != "A" || string(env.Payload) != string(payload) {
		t.Fatalf("B got %v, want candidate from A", env)
	}
	expectSilence(t, a)
}

func TestDisconnectCleanupOverWire(t *testing.T) {
	wsURL, dispatch := startRelay(t)

	a := dial(t, wsURL)
	identifyAndJoin(t, a, "A", "r1")
	b := dial(t, wsURL)
	identifyAndJoin(t, b, "B", "r1")
	if env := recv(t, a); env.Type != domain.TypePeerJoined {
		t.Fatalf("A got %v, want peer-joined first", env)
	}

	_ = a.Close()

	env := recv(t, b)
	if env.Type != domain.TypePeerLeft || env.Sender != "A" {
		t.Fatalf("B got %v, want peer-left from A", env)
	}

	members, ok := dispatch.Rooms.Members("r1")
	if !ok || len(members) != 1 || members[0] != "B" {
		t.Fatalf("members=%v ok=%v, want only B", members, ok)
	}

	_ = b.Close()
	deadline := time.Now().Add(readWait)
	for {
		if _, ok := dispatch.Rooms.Members("r1"); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("room r1 still exists after last member disconnected")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestJoinBeforeIdentifyOverWire(t *testing.T) {
	wsURL, dispatch := startRelay(t)

	c := dial(t, wsURL)
	send(t, c, domain.Envelope{Type: domain.TypeJoin, Sender: "", RoomID: "r1"})
	barrier(t, c)

	if _, ok := dispatch.Rooms.Members("r1"); ok {
		t.Fatal("room registry must be unchanged by unidentified join")
	}
	expectSilence(t, c)
}
