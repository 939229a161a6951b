package connection

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/bluemods/deceive-proxy/constants"
	"github.com/bluemods/deceive-proxy/contact"
	"github.com/bluemods/deceive-proxy/crypto"
	"github.com/bluemods/deceive-proxy/metrics"
	"github.com/bluemods/deceive-proxy/node"
	"github.com/bluemods/deceive-proxy/policy"
	"github.com/bluemods/deceive-proxy/presence"
	"github.com/bluemods/deceive-proxy/utils"
)

var (
	defaultClock = crypto.NewStampClock()

	presenceMarker = "<presence"
)

// What a session needs from the process: the current policy,
// and somewhere to send messages addressed to the fake contact.
type Controller interface {
	Policy() policy.Policy
	HandleChatMessage(sessionId uint32, body string)
}

// One game client connection and its connection to the real chat server.
// Traffic from the client has its presence rewritten; traffic from the
// server gets the fake contact spliced into the roster. Everything else
// is relayed as is.
type ProxiedConnection struct {
	Id uint32

	ClientConn net.Conn
	ServerConn net.Conn

	Controller Controller
	Metrics    *metrics.Collector
	Logger     *TraceLogger
	Clock      *crypto.StampClock

	IsConnected atomic.Bool

	// Guards the session state below
	mu                  sync.Mutex
	lastPresence        string
	insertedFakeContact bool
	sentFakePresence    bool
	clientVersion       string
	versionKnown        bool

	// Held for a whole rewrite and forward, so a replay never interleaves with a live presence
	rewriteMu     sync.Mutex
	clientWriteMu sync.Mutex
	serverWriteMu sync.Mutex

	// Presence chunk waiting for the rest of its data. Only touched by the client thread.
	pending string

	wg   sync.WaitGroup
	done chan struct{}
}

func NewProxiedConnection(id uint32, clientConn, serverConn net.Conn, controller Controller) *ProxiedConnection {
	return &ProxiedConnection{
		Id:         id,
		ClientConn: clientConn,
		ServerConn: serverConn,
		Controller: controller,
		done:       make(chan struct{}),
	}
}

// Starts both pumps and returns immediately. Done is closed once both have finished.
func (c *ProxiedConnection) Start() {
	if c.Clock == nil {
		c.Clock = defaultClock
	}
	c.IsConnected.Store(true)
	c.ClientConn.SetDeadline(time.Time{})
	c.ServerConn.SetDeadline(time.Time{})

	c.wg.Add(2)
	go c.clientThread()
	go c.serverThread()
	go func() {
		c.wg.Wait()
		close(c.done)
	}()
}

func (c *ProxiedConnection) Done() <-chan struct{} {
	return c.done
}

// Closes both streams. Safe to call more than once.
func (c *ProxiedConnection) Close() {
	if c.IsConnected.CompareAndSwap(true, false) {
		c.ServerConn.Close()
		c.ClientConn.Close()
	}
}

// Replays the last presence the client sent, rewritten for p.
// Does nothing when no presence has been seen yet or the session is closed.
// A failed rewrite closes the session.
func (c *ProxiedConnection) UpdatePresence(p policy.Policy) error {
	if !c.IsConnected.Load() {
		return nil
	}
	c.rewriteMu.Lock()
	defer c.rewriteMu.Unlock()

	c.mu.Lock()
	last := c.lastPresence
	c.mu.Unlock()
	if last == "" {
		return nil
	}
	if _, err := c.rewriteAndForward(last, p); err != nil {
		log.Printf("Session %d: failed to replay presence: %s\n", c.Id, err.Error())
		c.Close()
		return err
	}
	return nil
}

// Sends a chat message from the fake contact to the client.
// Does nothing until the fake contact is in the client's roster.
func (c *ProxiedConnection) SendMessage(body string) error {
	c.mu.Lock()
	inserted := c.insertedFakeContact
	c.mu.Unlock()
	if !inserted || !c.IsConnected.Load() {
		return nil
	}
	if err := c.writeClient([]byte(contact.Message(body, c.Clock.NextString()))); err != nil {
		return err
	}
	c.Metrics.MessageSent()
	return nil
}

// Processes chunks from the game client and forwards them to the chat server.
func (c *ProxiedConnection) clientThread() {
	defer c.onThreadFinished(true)()

	buf := make([]byte, constants.READ_BUFFER_SIZE)
	for c.IsConnected.Load() {
		n, err := c.ClientConn.Read(buf)
		if n > 0 {
			if herr := c.handleClientChunk(buf[:n]); herr != nil {
				log.Printf("Session %d: dropping connection: %s\n", c.Id, herr.Error())
				return
			}
		}
		if err != nil {
			c.handleReadError(err, true)
			return
		}
		if n == 0 {
			return
		}
	}
}

// Processes chunks from the chat server and forwards them to the game client.
func (c *ProxiedConnection) serverThread() {
	defer c.onThreadFinished(false)()

	buf := make([]byte, constants.READ_BUFFER_SIZE)
	for c.IsConnected.Load() {
		n, err := c.ServerConn.Read(buf)
		if n > 0 {
			if herr := c.handleServerChunk(buf[:n]); herr != nil {
				log.Printf("Session %d: dropping connection: %s\n", c.Id, herr.Error())
				return
			}
		}
		if err != nil {
			c.handleReadError(err, false)
			return
		}
		if n == 0 {
			return
		}
	}
}

func (c *ProxiedConnection) handleClientChunk(chunk []byte) error {
	c.Logger.OnOutgoing(c.Id, chunk)

	text := string(chunk)
	if c.pending != "" {
		text = c.pending + text
		c.pending = ""
	}

	masking := c.Controller.Policy().Enabled
	if masking && utils.IndexFold(text, presenceMarker) < 0 {
		// The read may have stopped inside the marker
		if at := utils.PartialSuffixFold(text, presenceMarker); at >= 0 {
			c.pending = text[at:]
			text = text[:at]
			if text == "" {
				return nil
			}
		}
	}

	if masking && utils.IndexFold(text, presenceMarker) >= 0 {
		if err := c.rewriteClientPresence(text); err != nil {
			return err
		}
	} else if contact.IsReferenced(text) {
		// Never reaches the chat server
		c.Controller.HandleChatMessage(c.Id, contact.MessageBody(text))
	} else if err := c.writeServer([]byte(text)); err != nil {
		return err
	}
	return c.sendFakePresenceOnce()
}

func (c *ProxiedConnection) rewriteClientPresence(text string) error {
	c.rewriteMu.Lock()
	messages, err := c.rewriteAndForward(text, c.Controller.Policy())
	c.rewriteMu.Unlock()

	if err == nil {
		// Controller replays presence, so this runs without rewriteMu
		for _, body := range messages {
			c.Controller.HandleChatMessage(c.Id, body)
		}
		return nil
	}
	if isIncomplete(text, err) {
		if len(text) > constants.MAX_PENDING_PRESENCE_BYTES {
			c.Metrics.RewriteFailed()
			return fmt.Errorf("incomplete presence exceeds %d bytes", constants.MAX_PENDING_PRESENCE_BYTES)
		}
		c.pending = text
		return nil
	}
	c.Metrics.RewriteFailed()
	return err
}

// Caller must hold rewriteMu.
// Returns the bodies of messages for the fake contact that were dropped from raw.
func (c *ProxiedConnection) rewriteAndForward(raw string, p policy.Policy) ([]string, error) {
	c.mu.Lock()
	versionKnown := c.versionKnown
	c.mu.Unlock()

	result, err := presence.Rewrite(raw, p, versionKnown)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.lastPresence = raw
	resend := false
	version := c.clientVersion
	if result.VersionCaptured && !c.versionKnown {
		c.versionKnown = true
		c.clientVersion = result.Version
		version = result.Version
		resend = c.insertedFakeContact
		if resend {
			c.sentFakePresence = true
		}
	}
	c.mu.Unlock()

	if result.VersionCaptured {
		log.Printf("Session %d: client version is %s\n", c.Id, result.Version)
	}
	if resend {
		if err := c.writeFakePresence(version); err != nil {
			return nil, err
		}
	}

	c.Metrics.PresenceRewritten()
	if result.Payload == "" {
		return result.ContactMessages, nil
	}
	c.Logger.OnRewritten(c.Id, []byte(result.Payload))
	return result.ContactMessages, c.writeServer([]byte(result.Payload))
}

func (c *ProxiedConnection) sendFakePresenceOnce() error {
	c.mu.Lock()
	send := c.insertedFakeContact && !c.sentFakePresence
	if send {
		c.sentFakePresence = true
	}
	version := c.clientVersion
	c.mu.Unlock()

	if !send {
		return nil
	}
	return c.writeFakePresence(version)
}

func (c *ProxiedConnection) writeFakePresence(version string) error {
	if err := c.writeClient([]byte(contact.Presence(version, time.Now()))); err != nil {
		return err
	}
	c.Metrics.FakePresenceSent()
	return nil
}

func (c *ProxiedConnection) handleServerChunk(chunk []byte) error {
	c.Logger.OnIncoming(c.Id, chunk)

	out := chunk
	injected := false
	c.mu.Lock()
	if !c.insertedFakeContact {
		if spliced, ok := contact.InjectRosterItem(string(chunk)); ok {
			out = []byte(spliced)
			c.insertedFakeContact = true
			injected = true
		}
	}
	c.mu.Unlock()

	if injected {
		log.Printf("Session %d: added fake contact to roster\n", c.Id)
		c.Metrics.RosterInjected()
	}
	return c.writeClient(out)
}

func (c *ProxiedConnection) writeServer(data []byte) error {
	c.serverWriteMu.Lock()
	defer c.serverWriteMu.Unlock()
	c.ServerConn.SetWriteDeadline(time.Now().Add(constants.WRITE_TIMEOUT_SECONDS * time.Second))
	if _, err := c.ServerConn.Write(data); err != nil {
		c.handleWriteError(err, len(data), true)
		return err
	}
	c.Metrics.BytesForwarded("outgoing", len(data))
	return nil
}

func (c *ProxiedConnection) writeClient(data []byte) error {
	c.clientWriteMu.Lock()
	defer c.clientWriteMu.Unlock()
	c.ClientConn.SetWriteDeadline(time.Now().Add(constants.WRITE_TIMEOUT_SECONDS * time.Second))
	if _, err := c.ClientConn.Write(data); err != nil {
		c.handleWriteError(err, len(data), false)
		return err
	}
	c.Metrics.BytesForwarded("incoming", len(data))
	return nil
}

func (c *ProxiedConnection) onThreadFinished(isClientThread bool) func() {
	return func() {
		if r := recover(); r != nil {
			log.Printf("ProxiedConnection panic (isClientThread=%t, session=%d)\n%s\n",
				isClientThread,
				c.Id,
				r,
			)
			debug.PrintStack()
		}
		// One of the threads finished, ensure both promptly close
		c.Close()
		c.wg.Done()
	}
}

func (c *ProxiedConnection) handleReadError(err error, isClientThread bool) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || !c.IsConnected.Load() {
		return
	}
	log.Printf("Session %d: read failed (isClientThread=%t): %s\n", c.Id, isClientThread, err.Error())
}

func (c *ProxiedConnection) handleWriteError(err error, size int, toServer bool) {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		log.Printf("Write deadline exceeded. packetSize=%d, toServer=%t\n", size, toServer)
	}
}

// A presence chunk cut off by the read size: either the parser ran out of input
// mid-element, or the chunk ends inside a multi-byte character.
func isIncomplete(text string, err error) bool {
	return node.IsIncomplete(err) || endsWithPartialRune(text)
}

func endsWithPartialRune(s string) bool {
	for i := 1; i <= utf8.UTFMax && i <= len(s); i++ {
		if utf8.RuneStart(s[len(s)-i]) {
			return !utf8.FullRuneInString(s[len(s)-i:])
		}
	}
	return false
}
