package server

import (
	"context"
	"crypto/tls"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bluemods/deceive-proxy/commands"
	"github.com/bluemods/deceive-proxy/connection"
	"github.com/bluemods/deceive-proxy/constants"
	"github.com/bluemods/deceive-proxy/crypto"
	"github.com/bluemods/deceive-proxy/metrics"
	"github.com/bluemods/deceive-proxy/policy"
	"github.com/bluemods/deceive-proxy/ratelimit"
)

type ServerConfig struct {
	listener         func() (net.Listener, error)
	tlsConfig        *tls.Config
	chatHost         string
	chatPort         int
	chatTLSConfig    *tls.Config
	customDialerFunc func(ctx context.Context, network string, addr string, config *tls.Config) (net.Conn, error)
	dialPrompt       DialPrompt
	idleTimeout      time.Duration
	introDelay       time.Duration
	introGap         time.Duration
	store            *policy.Store
	statusFile       string
	metrics          *metrics.Collector
	traceLogger      *connection.TraceLogger
	exitFunc         func(code int)
}

// New builder for a server that terminates the game client's TLS on addr
// using the given config (normally crypto.ServerTLSConfig).
func NewTLS(addr string, config *tls.Config) *ServerConfig {
	return &ServerConfig{
		listener: func() (net.Listener, error) {
			return net.Listen(constants.SERVER_TYPE, addr)
		},
		tlsConfig:   config,
		chatPort:    constants.CHAT_SERVER_PORT,
		dialPrompt:  NewTerminalPrompt(),
		idleTimeout: constants.IDLE_SHUTDOWN_TIMEOUT,
		introDelay:  constants.INTRODUCTION_DELAY,
		introGap:    constants.INTRODUCTION_MESSAGE_GAP,
		exitFunc:    os.Exit,
	}
}

// The real chat server every session is relayed to.
func (s *ServerConfig) WithChatServer(host string, port int) *ServerConfig {
	s.chatHost = host
	s.chatPort = port
	return s
}

// Overrides the TLS config used to dial the chat server.
// Defaults to standard validation against the chat host name.
func (s *ServerConfig) WithChatTLSConfig(config *tls.Config) *ServerConfig {
	s.chatTLSConfig = config
	return s
}

// Server will use your custom dialer to connect to the chat server.
//
// network, addr, and config can be used to call tls.Dialer.DialContext.
func (s *ServerConfig) WithCustomDialer(f func(ctx context.Context, network string, addr string, config *tls.Config) (net.Conn, error)) *ServerConfig {
	s.customDialerFunc = f
	return s
}

// Asked whether to try again when the chat server cannot be reached.
func (s *ServerConfig) WithDialPrompt(prompt DialPrompt) *ServerConfig {
	s.dialPrompt = prompt
	return s
}

// The process exits after having no sessions for this long.
func (s *ServerConfig) WithIdleTimeout(timeout time.Duration) *ServerConfig {
	s.idleTimeout = timeout
	return s
}

// Timing of the welcome messages sent after the first session connects.
func (s *ServerConfig) WithIntroduction(delay time.Duration, gap time.Duration) *ServerConfig {
	s.introDelay = delay
	s.introGap = gap
	return s
}

// Where the policy lives, and the file its status is saved to on shutdown.
// statusFile may be empty to skip saving.
func (s *ServerConfig) WithPolicyStore(store *policy.Store, statusFile string) *ServerConfig {
	s.store = store
	s.statusFile = statusFile
	return s
}

func (s *ServerConfig) WithMetrics(m *metrics.Collector) *ServerConfig {
	s.metrics = m
	return s
}

// Server logs all traffic of all sessions to the given logger.
func (s *ServerConfig) WithTraceLogger(logger *connection.TraceLogger) *ServerConfig {
	s.traceLogger = logger
	return s
}

// Replaces os.Exit, which is called on idle shutdown, declined dial retries and Shutdown.
func (s *ServerConfig) WithExitFunc(f func(code int)) *ServerConfig {
	s.exitFunc = f
	return s
}

// Opens the listener and starts accepting.
// Call Server.Await() to block, which is required for CLI.
func (s *ServerConfig) Start() (*Server, error) {
	listener, err := s.listener()
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		s.store = policy.NewStore(policy.Default())
	}
	if s.chatTLSConfig == nil {
		s.chatTLSConfig = crypto.ChatTLSConfig(s.chatHost)
	}
	interpreter, err := commands.NewInterpreter()
	if err != nil {
		listener.Close()
		return nil, err
	}

	wg := &sync.WaitGroup{}
	wg.Add(1)
	server := &Server{
		config:      s,
		listener:    listener,
		sessions:    NewSessionPool(),
		store:       s.store,
		interpreter: interpreter,
		limiter:     ratelimit.NewCommandLimiter(),
		clock:       crypto.NewStampClock(),
		events:      make(chan SessionEvent, SESSION_EVENT_BUFFER),
		doneWaiter:  wg,
	}
	go func() {
		defer wg.Done()
		server.start()
	}()
	return server, nil
}
