package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickchat/internal/app/chat"
	"quickchat/internal/app/presence"
	"quickchat/internal/app/store"
	"quickchat/internal/client"
	"quickchat/internal/configs"
	"quickchat/internal/handler"
	"quickchat/internal/pkg/pow"
	"quickchat/internal/protocol"
)

const waitFor = 3 * time.Second

func startServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()

	st := store.NewMemory()
	hub := chat.NewHub(st, presence.NewRegistry())
	go hub.Run()
	powManager := pow.NewManager(1)

	srv := httptest.NewServer(handler.Router(&handler.AppDeps{
		Hub:    hub,
		Config: &configs.AppConfig{Environment: "development", JWTSecret: "test-secret"},
		Store:  st,
		Pow:    powManager,
	}))
	t.Cleanup(func() {
		srv.CloseClientConnections()
		srv.Close()
		hub.Stop()
		powManager.Close()
	})
	return srv, st
}

type connectedClient struct {
	id      client.Identity
	session *client.Session
}

func connectGuest(t *testing.T, ctx context.Context, srv *httptest.Server) connectedClient {
	t.Helper()

	api := client.NewAPIClient(srv.URL, srv.Client())
	id, err := api.CreateGuest(ctx)
	require.NoError(t, err)

	transport := client.NewWSTransport("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", id.User.ID)
	session := client.NewSession(id.User.ID, transport, api, client.NewFilePrefStore(t.TempDir(), id.User.ID))
	go transport.Run(ctx, session)

	return connectedClient{id: id, session: session}
}

func TestClients_ExchangeMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, _ := startServer(t)
	alice := connectGuest(t, ctx, srv)
	bob := connectGuest(t, ctx, srv)

	bothOnline := func(s *client.Session) func() bool {
		return func() bool { return s.IsOnline(alice.id.User.ID) && s.IsOnline(bob.id.User.ID) }
	}
	require.Eventually(t, bothOnline(alice.session), waitFor, 10*time.Millisecond)
	require.Eventually(t, bothOnline(bob.session), waitFor, 10*time.Millisecond)

	require.NoError(t, alice.session.SelectPeer(ctx, bob.id.User.ID))
	require.NoError(t, alice.session.Send("hi", ""))

	require.Eventually(t, func() bool {
		return len(alice.session.Snapshot().Messages) == 1
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, "hi", alice.session.Snapshot().Messages[0].Text)

	require.Eventually(t, func() bool {
		return bob.session.Snapshot().Unread[alice.id.User.ID] == 1
	}, waitFor, 10*time.Millisecond)

	require.NoError(t, bob.session.SelectPeer(ctx, alice.id.User.ID))
	state := bob.session.Snapshot()
	assert.NotContains(t, state.Unread, alice.id.User.ID)
	require.Len(t, state.Messages, 1)
	assert.Equal(t, alice.id.User.ID, state.Messages[0].SenderID)
}

func TestClients_MutedSenderStillPersisted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, st := startServer(t)
	alice := connectGuest(t, ctx, srv)
	bob := connectGuest(t, ctx, srv)

	require.Eventually(t, func() bool { return alice.session.IsOnline(bob.id.User.ID) }, waitFor, 10*time.Millisecond)
	require.Eventually(t, func() bool { return bob.session.IsOnline(alice.id.User.ID) }, waitFor, 10*time.Millisecond)

	alice.session.Mute(bob.id.User.ID)
	require.NoError(t, bob.session.SelectPeer(ctx, alice.id.User.ID))
	require.NoError(t, bob.session.Send("psst", ""))

	require.Eventually(t, func() bool {
		history, err := st.ListMessages(ctx, alice.id.User.ID, bob.id.User.ID)
		return err == nil && len(history) == 1
	}, waitFor, 10*time.Millisecond)
	// Bob's own echo proves the relay has fanned the message out to both groups.
	require.Eventually(t, func() bool { return len(bob.session.Snapshot().Messages) == 1 }, waitFor, 10*time.Millisecond)

	assert.NotContains(t, alice.session.Snapshot().Unread, bob.id.User.ID)
}

func TestTransport_SendWhileDisconnected(t *testing.T) {
	transport := client.NewWSTransport("ws://127.0.0.1:1/ws", "nobody")

	err := transport.Send("message:send", nil)
	assert.True(t, errors.Is(err, client.ErrNotConnected))
}

func TestTransport_ReportsConnectErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, _ := startServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/missing"

	transport := client.NewWSTransport(url, "nobody")
	api := client.NewAPIClient(srv.URL, srv.Client())
	session := client.NewSession("nobody", transport, api, client.NewFilePrefStore(t.TempDir(), "nobody"))
	go transport.Run(ctx, session)

	require.Eventually(t, func() bool {
		return session.Snapshot().ConnectionError != ""
	}, waitFor, 10*time.Millisecond)
}

// droppingRelay accepts sockets, records every register it reads, and closes the first
// connection right after its register.
type droppingRelay struct {
	mu        sync.Mutex
	registers []string
	accepted  int
}

func (d *droppingRelay) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.registers)
}

func (d *droppingRelay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	d.mu.Lock()
	d.accepted++
	first := d.accepted == 1
	d.mu.Unlock()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Decode(frame)
		if err != nil || env.Type != protocol.EventRegister {
			continue
		}
		var p protocol.RegisterPayload
		if err := env.DecodePayload(&p); err != nil {
			continue
		}

		d.mu.Lock()
		d.registers = append(d.registers, p.UserID)
		d.mu.Unlock()

		if first {
			return
		}
	}
}

func TestTransport_RegistersAgainAfterReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay := &droppingRelay{}
	srv := httptest.NewServer(relay)
	t.Cleanup(func() {
		srv.CloseClientConnections()
		srv.Close()
	})

	var (
		mu       sync.Mutex
		statuses []string
	)
	var session *client.Session
	transport := client.NewWSTransport("ws"+strings.TrimPrefix(srv.URL, "http"), "alice")
	session = client.NewSession("alice", transport, client.NewAPIClient(srv.URL, srv.Client()),
		client.NewFilePrefStore(t.TempDir(), "alice"),
		client.WithChangeHandler(func(c client.Change) {
			if c != client.ChangeConnection {
				return
			}
			mu.Lock()
			statuses = append(statuses, session.Snapshot().ConnectionError)
			mu.Unlock()
		}))
	go transport.Run(ctx, session)

	require.Eventually(t, func() bool { return relay.count() == 2 }, waitFor, 10*time.Millisecond)

	relay.mu.Lock()
	assert.Equal(t, []string{"alice", "alice"}, relay.registers)
	relay.mu.Unlock()

	// connected, dropped, connected again
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(statuses) >= 3 && statuses[len(statuses)-1] == ""
	}, waitFor, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "", statuses[0])
	assert.NotEmpty(t, statuses[1], "a dropped socket puts the session into the connectivity error state")
	assert.Equal(t, "", session.Snapshot().ConnectionError)
}
