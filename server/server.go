package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluemods/deceive-proxy/commands"
	"github.com/bluemods/deceive-proxy/connection"
	"github.com/bluemods/deceive-proxy/constants"
	"github.com/bluemods/deceive-proxy/crypto"
	"github.com/bluemods/deceive-proxy/policy"
	"github.com/bluemods/deceive-proxy/ratelimit"
	"github.com/bluemods/deceive-proxy/utils"
)

// Session-closed events are dropped once this many are waiting
const SESSION_EVENT_BUFFER = 64

// Published when a session ends.
type SessionEvent struct {
	Id       uint32    `json:"id"`
	ClientIp string    `json:"clientIp"`
	ClosedAt time.Time `json:"closedAt"`
}

type Server struct {
	config      *ServerConfig
	listener    net.Listener
	sessions    *SessionPool
	store       *policy.Store
	interpreter *commands.Interpreter
	limiter     *ratelimit.CommandLimiter
	clock       *crypto.StampClock

	// Serializes every policy change and the propagation that follows it
	controlMu sync.Mutex

	idleMu    sync.Mutex
	idleTimer *time.Timer
	idleGen   uint64

	introOnce sync.Once
	closing   atomic.Bool
	events    chan SessionEvent

	doneWaiter *sync.WaitGroup
}

// Awaits completion of the main loop, blocking the current goroutine.
func (s *Server) Await() {
	s.doneWaiter.Wait()
}

// Address the game client should connect to.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) Port() int {
	return utils.ListenerPort(s.listener)
}

func (s *Server) SessionCount() int {
	return s.sessions.Len()
}

func (s *Server) SessionEvents() <-chan SessionEvent {
	return s.events
}

func (s *Server) start() {
	log.Printf("deceive-proxy listening using \033[0;32mSSL\033[0m on %s\n", s.listener.Addr())

	defer s.listener.Close()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Println("Error accepting: " + err.Error())
			continue
		}
		s.handleConnection(conn)
	}
}

// Connections are handled one at a time so the dial prompt is never shown twice at once.
func (s *Server) handleConnection(rawConn net.Conn) {
	ip := utils.ConnToIp(rawConn)
	clientConn := tls.Server(rawConn, s.config.tlsConfig)

	ctx, cancel := context.WithTimeout(context.Background(), constants.CLIENT_HANDSHAKE_TIMEOUT_SECONDS*time.Second)
	err := clientConn.HandshakeContext(ctx)
	cancel()
	if err != nil {
		log.Println("Rejecting from " + ip + ": TLS handshake failed: " + err.Error())
		s.config.metrics.HandshakeFailed()
		clientConn.Close()
		return
	}

	serverConn, ok := s.dialChatServer()
	if !ok {
		clientConn.Close()
		return
	}
	s.register(ip, clientConn, serverConn)
}

// Dials until it succeeds or the prompt declines. A decline shuts the process down.
func (s *Server) dialChatServer() (net.Conn, bool) {
	for {
		conn, err := s.dialChat()
		if err == nil {
			return conn, true
		}
		s.config.metrics.DialFailed()
		log.Printf("Failed to dial chat server %s: %s\n", s.chatAddr(), err.Error())
		if s.closing.Load() {
			return nil, false
		}
		if !s.config.dialPrompt.RetryDial(err) {
			log.Println("Not retrying, shutting down")
			s.Shutdown()
			return nil, false
		}
		log.Println("Retrying chat server")
	}
}

func (s *Server) dialChat() (net.Conn, error) {
	defer utils.TimeMethod("dialChat")()

	ctx, cancel := context.WithTimeout(context.Background(), constants.CHAT_DIAL_TIMEOUT_SECONDS*time.Second)
	defer cancel()

	if f := s.config.customDialerFunc; f != nil {
		return f(ctx, constants.CHAT_SERVER_TYPE, s.chatAddr(), s.config.chatTLSConfig)
	}
	dialer := tls.Dialer{
		NetDialer: &net.Dialer{},
		Config:    s.config.chatTLSConfig,
	}
	return dialer.DialContext(ctx, constants.CHAT_SERVER_TYPE, s.chatAddr())
}

func (s *Server) chatAddr() string {
	return net.JoinHostPort(s.config.chatHost, strconv.Itoa(s.config.chatPort))
}

func (s *Server) register(ip string, clientConn, serverConn net.Conn) {
	c := connection.NewProxiedConnection(nextSessionId(), clientConn, serverConn, s)
	c.Metrics = s.config.metrics
	c.Logger = s.config.traceLogger
	c.Clock = s.clock

	s.sessions.Add(c)
	s.cancelIdleTimer()
	s.config.metrics.SessionOpened()

	log.Printf("Accepting session %d (%s <=> %s)\n", c.Id, ip, serverConn.RemoteAddr())

	c.Start()
	go s.awaitSession(c, ip)
	s.scheduleIntroduction()
}

func (s *Server) awaitSession(c *connection.ProxiedConnection, ip string) {
	<-c.Done()
	remaining := s.sessions.Remove(c.Id)
	s.limiter.Forget(c.Id)
	s.config.metrics.SessionClosed()
	log.Printf("Session %d closed, %d remaining\n", c.Id, remaining)

	s.publish(SessionEvent{Id: c.Id, ClientIp: ip, ClosedAt: time.Now()})
	if remaining == 0 {
		s.armIdleTimer()
	}
}

func (s *Server) publish(event SessionEvent) {
	select {
	case s.events <- event:
	default:
	}
}

// Starts the idle countdown if there are no sessions.
func (s *Server) armIdleTimer() {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	if s.closing.Load() || s.sessions.Len() != 0 {
		return
	}
	s.stopIdleTimerLocked()
	gen := s.idleGen
	s.idleTimer = time.AfterFunc(s.config.idleTimeout, func() {
		s.onIdle(gen)
	})
}

func (s *Server) cancelIdleTimer() {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	s.stopIdleTimerLocked()
}

func (s *Server) stopIdleTimerLocked() {
	s.idleGen++
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}

func (s *Server) onIdle(gen uint64) {
	s.idleMu.Lock()
	stale := gen != s.idleGen || s.sessions.Len() != 0
	s.idleMu.Unlock()
	if stale {
		return
	}
	log.Printf("No sessions for %s, shutting down\n", s.config.idleTimeout)
	s.Shutdown()
}
