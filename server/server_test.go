package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluemods/deceive-proxy/commands"
	"github.com/bluemods/deceive-proxy/connection"
	"github.com/bluemods/deceive-proxy/constants"
	"github.com/bluemods/deceive-proxy/crypto"
	"github.com/bluemods/deceive-proxy/policy"
	"github.com/bluemods/deceive-proxy/ratelimit"
)

const (
	rosterResult = `<iq type='result' id='r1'><query xmlns='jabber:iq:riotgames:roster'><item jid='friend@eu1.pvp.net'/></query></iq>`
	chatPresence = `<presence id='p1'><show>chat</show><status>hi</status><games><league_of_legends><st>chat</st><p>x</p></league_of_legends></games></presence>`
)

// Stands in for the real chat server.
type chatServer struct {
	listener net.Listener
	conns    chan net.Conn
}

func newChatServer(t *testing.T) *chatServer {
	cert, err := crypto.EmbeddedCertificate()
	require.NoError(t, err)
	l, err := tls.Listen("tcp", "127.0.0.1:0", crypto.ServerTLSConfig(cert))
	require.NoError(t, err)

	cs := &chatServer{listener: l, conns: make(chan net.Conn, 4)}
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			// Completes the proxy's dial without the test having to touch the conn
			conn.(*tls.Conn).Handshake()
			cs.conns <- conn
		}
	}()
	t.Cleanup(func() { l.Close() })
	return cs
}

func (cs *chatServer) port() int {
	return cs.listener.Addr().(*net.TCPAddr).Port
}

func (cs *chatServer) accept(t *testing.T) net.Conn {
	t.Helper()
	select {
	case conn := <-cs.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(5 * time.Second):
		t.Fatal("proxy never dialed the chat server")
		return nil
	}
}

func testTLSConfig(t *testing.T) *tls.Config {
	pool, err := crypto.EmbeddedCertPool()
	require.NoError(t, err)
	return &tls.Config{RootCAs: pool, ServerName: "localhost", MinVersion: tls.VersionTLS12}
}

func startProxy(t *testing.T, chat *chatServer, opts ...func(*ServerConfig)) (*Server, <-chan int) {
	cert, err := crypto.EmbeddedCertificate()
	require.NoError(t, err)

	exits := make(chan int, 4)
	cfg := NewTLS("127.0.0.1:0", crypto.ServerTLSConfig(cert)).
		WithChatTLSConfig(testTLSConfig(t)).
		WithDialPrompt(DialPromptFunc(func(error) bool { return false })).
		WithIntroduction(time.Hour, time.Millisecond).
		WithExitFunc(func(code int) { exits <- code })
	if chat != nil {
		cfg.WithChatServer("127.0.0.1", chat.port())
	}
	for _, opt := range opts {
		opt(cfg)
	}
	srv, err := cfg.Start()
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)
	return srv, exits
}

func dialProxy(t *testing.T, srv *Server) *tls.Conn {
	t.Helper()
	conn, err := tls.Dial("tcp", srv.Addr().String(), testTLSConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// Reads until want shows up and returns everything read.
func readUntil(t *testing.T, conn net.Conn, want string) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	got := new(strings.Builder)
	buf := make([]byte, 4096)
	for !strings.Contains(got.String(), want) {
		n, err := conn.Read(buf)
		got.Write(buf[:n])
		require.NoError(t, err, "waiting for %q, got %q", want, got.String())
	}
	return got.String()
}

func waitExit(t *testing.T, exits <-chan int) int {
	t.Helper()
	select {
	case code := <-exits:
		return code
	case <-time.After(5 * time.Second):
		t.Fatal("process never exited")
		return -1
	}
}

func TestRelayRewritesPresenceAndInjectsRoster(t *testing.T) {
	chat := newChatServer(t)
	srv, _ := startProxy(t, chat)

	client := dialProxy(t, srv)
	upstream := chat.accept(t)

	_, err := upstream.Write([]byte(rosterResult))
	require.NoError(t, err)
	roster := readUntil(t, client, "friend@eu1.pvp.net")
	require.Contains(t, roster, constants.FAKE_CONTACT_JID)

	_, err = client.Write([]byte(chatPresence))
	require.NoError(t, err)
	forwarded := readUntil(t, upstream, "</presence>")
	require.Contains(t, forwarded, "<show>offline</show>")
	require.NotContains(t, forwarded, "<status>")
	require.NotContains(t, forwarded, "league_of_legends")

	// After the roster was injected, the fake contact comes online
	fake := readUntil(t, client, "</presence>")
	require.Contains(t, fake, constants.FAKE_CONTACT_RESOURCE)

	// Anything else is relayed as is
	_, err = client.Write([]byte(`<iq type='get' id='2'/>`))
	require.NoError(t, err)
	readUntil(t, upstream, `<iq type='get' id='2'/>`)
	require.Equal(t, 1, srv.SessionCount())
}

func TestChatCommandChangesStatus(t *testing.T) {
	chat := newChatServer(t)
	srv, _ := startProxy(t, chat)

	client := dialProxy(t, srv)
	upstream := chat.accept(t)

	_, err := upstream.Write([]byte(rosterResult))
	require.NoError(t, err)
	readUntil(t, client, constants.FAKE_CONTACT_JID)

	_, err = client.Write([]byte(chatPresence))
	require.NoError(t, err)
	readUntil(t, upstream, "<show>offline</show>")

	_, err = client.Write([]byte(`<message to='` + constants.FAKE_CONTACT_JID + `' type='chat' id='m1'><body>go Online please</body></message>`))
	require.NoError(t, err)

	readUntil(t, client, "You are now appearing online.")
	replayed := readUntil(t, upstream, "</presence>")
	require.Contains(t, replayed, "<show>chat</show>")
	require.Equal(t, policy.Online, srv.Policy().Status)
}

func TestIntroductionSentOnce(t *testing.T) {
	chat := newChatServer(t)
	srv, _ := startProxy(t, chat, func(c *ServerConfig) {
		c.WithIntroduction(300*time.Millisecond, time.Millisecond)
	})

	client := dialProxy(t, srv)
	upstream := chat.accept(t)
	_, err := upstream.Write([]byte(rosterResult))
	require.NoError(t, err)

	got := readUntil(t, client, MESSAGE_HAVE_FUN)
	require.Contains(t, got, "Welcome! Deceive is running and you are currently appearing offline.")
	require.Equal(t, 1, strings.Count(got, "Welcome!"))
}

func TestIdleShutdownSavesStatus(t *testing.T) {
	statusFile := filepath.Join(t.TempDir(), "Deceive", constants.STATUS_FILE_NAME)
	chat := newChatServer(t)
	srv, exits := startProxy(t, chat, func(c *ServerConfig) {
		c.WithIdleTimeout(50 * time.Millisecond)
		c.WithPolicyStore(policy.NewStore(policy.Default()), statusFile)
	})
	srv.SetStatus(policy.Mobile)

	client := dialProxy(t, srv)
	chat.accept(t)
	client.Close()

	select {
	case event := <-srv.SessionEvents():
		require.NotZero(t, event.Id)
	case <-time.After(5 * time.Second):
		t.Fatal("no session event")
	}
	require.Equal(t, 0, waitExit(t, exits))
	require.Equal(t, policy.Mobile, policy.LoadStatus(statusFile))
}

func TestNewSessionCancelsIdleShutdown(t *testing.T) {
	chat := newChatServer(t)
	srv, exits := startProxy(t, chat, func(c *ServerConfig) {
		c.WithIdleTimeout(300 * time.Millisecond)
	})

	first := dialProxy(t, srv)
	chat.accept(t)
	first.Close()
	<-srv.SessionEvents()

	dialProxy(t, srv)
	chat.accept(t)

	select {
	case <-exits:
		t.Fatal("exited while a session was connected")
	case <-time.After(600 * time.Millisecond):
	}
	require.Equal(t, 1, srv.SessionCount())
}

func TestDeclinedDialExits(t *testing.T) {
	var attempts atomic.Int32
	srv, exits := startProxy(t, nil, func(c *ServerConfig) {
		c.WithChatServer("127.0.0.1", 1)
		c.WithCustomDialer(func(ctx context.Context, network, addr string, config *tls.Config) (net.Conn, error) {
			return nil, errors.New("unreachable")
		})
		c.WithDialPrompt(DialPromptFunc(func(error) bool {
			return attempts.Add(1) < 2
		}))
	})

	dialProxy(t, srv)
	require.Equal(t, 0, waitExit(t, exits))
	require.Equal(t, int32(2), attempts.Load())
	srv.Await()
}

func TestHandshakeFailureKeepsAccepting(t *testing.T) {
	chat := newChatServer(t)
	srv, _ := startProxy(t, chat)

	raw, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	_, err = raw.Write([]byte("not tls at all\r\n\r\n"))
	require.NoError(t, err)
	raw.Close()

	client := dialProxy(t, srv)
	upstream := chat.accept(t)
	_, err = client.Write([]byte(`<iq id='x'/>`))
	require.NoError(t, err)
	readUntil(t, upstream, `<iq id='x'/>`)
}

func TestControllerWithoutSessions(t *testing.T) {
	srv, _ := startProxy(t, nil)

	srv.SetEnabled(false)
	require.False(t, srv.Policy().Enabled)
	require.Equal(t, policy.Online, srv.Policy().Target())

	// Picking a status switches masking back on
	srv.SetStatus(policy.Mobile)
	require.Equal(t, policy.Policy{Enabled: true, Status: policy.Mobile, LobbyChat: true}, srv.Policy())

	srv.SetLobbyChat(false)
	require.False(t, srv.Policy().LobbyChat)

	srv.HandleChatMessage(1, "please disable")
	require.False(t, srv.Policy().Enabled)
	srv.HandleChatMessage(1, "offline")
	require.True(t, srv.Policy().Enabled)
	require.Equal(t, policy.Offline, srv.Policy().Status)

	srv.SendTestMessage()
}

func TestChatCommandsRateLimited(t *testing.T) {
	srv, _ := startProxy(t, nil)

	for range 5 {
		srv.HandleChatMessage(7, "status")
	}
	srv.HandleChatMessage(7, "disable")
	require.True(t, srv.Policy().Enabled)

	// Other sessions have their own budget
	srv.HandleChatMessage(8, "disable")
	require.False(t, srv.Policy().Enabled)
}

func TestRateLimitedSessionToldOnce(t *testing.T) {
	chat := newChatServer(t)
	srv, _ := startProxy(t, chat)

	client := dialProxy(t, srv)
	upstream := chat.accept(t)
	_, err := upstream.Write([]byte(rosterResult))
	require.NoError(t, err)
	readUntil(t, client, constants.FAKE_CONTACT_JID)

	sessions := srv.sessions.Snapshot()
	require.Len(t, sessions, 1)
	id := sessions[0].Id

	for range ratelimit.RATE_LIMIT_BURST + 3 {
		srv.HandleChatMessage(id, "status")
	}
	srv.SendTestMessage()

	got := readUntil(t, client, ">"+MESSAGE_TEST+"<")
	require.Equal(t, 1, strings.Count(got, MESSAGE_SLOW_DOWN))
}

func TestSessionPoolOrder(t *testing.T) {
	pool := NewSessionPool()
	for _, id := range []uint32{3, 1, 2} {
		pool.Add(connection.NewProxiedConnection(id, nil, nil, nil))
	}
	ids := func() []uint32 {
		var ret []uint32
		for _, c := range pool.Snapshot() {
			ret = append(ret, c.Id)
		}
		return ret
	}
	require.Equal(t, []uint32{3, 1, 2}, ids())
	require.Equal(t, 2, pool.Remove(1))
	require.Equal(t, []uint32{3, 2}, ids())
	require.Equal(t, uint32(3), pool.Get(3).Id)
	require.Nil(t, pool.Get(1))
	require.Equal(t, 2, pool.Remove(99))
	require.Equal(t, 2, pool.Len())
}

func TestTerminalPromptWithoutTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString("y\n")
	require.NoError(t, err)

	out := new(strings.Builder)
	prompt := TerminalPrompt{In: f, Out: out}
	require.False(t, prompt.RetryDial(errors.New("refused")))
	require.Empty(t, out.String())
}

func TestParseAnswer(t *testing.T) {
	for answer, want := range map[string]bool{
		"y\n":   true,
		" YES ": true,
		"n":     false,
		"":      false,
		"maybe": false,
	} {
		require.Equal(t, want, parseAnswer(answer), answer)
	}
}

func TestIntroductionText(t *testing.T) {
	lines := introduction(policy.Online)
	require.Len(t, lines, 4)
	require.Contains(t, lines[0], "currently appearing online.")
	require.Contains(t, lines[2], `send "help" to this contact`)
	require.Equal(t, MESSAGE_HAVE_FUN, lines[3])
	require.Equal(t, "Lobby chat is now disabled.", lobbyChatMessage(false))
	require.Equal(t, commands.MESSAGE_ENABLED, enabledMessage(true))
}
