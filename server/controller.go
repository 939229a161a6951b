package server

import (
	"log"
	"time"

	"github.com/samber/lo"

	"github.com/bluemods/deceive-proxy/commands"
	"github.com/bluemods/deceive-proxy/connection"
	"github.com/bluemods/deceive-proxy/policy"
)

const (
	MESSAGE_TEST      = "Test"
	MESSAGE_HAVE_FUN  = "Have fun!"
	MESSAGE_SLOW_DOWN = "You are sending commands too quickly. Wait a few seconds and try again."
)

// Sent once, shortly after the first session connects.
func introduction(status policy.Status) []string {
	return []string{
		"Welcome! Deceive is running and you are currently appearing " + status.String() + ". " +
			"Despite what the game client may indicate, you are appearing offline to your friends unless you manually disable Deceive.",
		"If you want to invite others while being offline, you may need to disable Deceive for them to accept. " +
			"You can enable Deceive again as soon as they are in your lobby.",
		"To enable or disable Deceive, or to configure other settings, send \"help\" to this contact or use the control API.",
		MESSAGE_HAVE_FUN,
	}
}

func lobbyChatMessage(enabled bool) string {
	if enabled {
		return "Lobby chat is now enabled."
	}
	return "Lobby chat is now disabled."
}

func enabledMessage(enabled bool) string {
	if enabled {
		return commands.MESSAGE_ENABLED
	}
	return commands.MESSAGE_DISABLED
}

// Current policy snapshot. Never blocks on a controller operation in progress.
func (s *Server) Policy() policy.Policy {
	return s.store.Load()
}

func (s *Server) SetStatus(status policy.Status) {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()

	if !s.store.Load().Enabled {
		s.broadcast(commands.MESSAGE_ENABLED)
	}
	_, updated := s.store.Update(func(p policy.Policy) policy.Policy {
		p.Enabled = true
		p.Status = status
		return p
	})
	s.propagate(updated)
	s.broadcast(commands.StatusMessage("You are now appearing", status))
}

func (s *Server) SetEnabled(enabled bool) {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()

	_, updated := s.store.Update(func(p policy.Policy) policy.Policy {
		p.Enabled = enabled
		return p
	})
	s.propagate(updated)
	s.broadcast(enabledMessage(enabled))
}

// Only affects presences sent from now on.
func (s *Server) SetLobbyChat(enabled bool) {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()

	s.store.Update(func(p policy.Policy) policy.Policy {
		p.LobbyChat = enabled
		return p
	})
	s.broadcast(lobbyChatMessage(enabled))
}

func (s *Server) SendTestMessage() {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()
	s.broadcast(MESSAGE_TEST)
}

// Called by a session when the user writes to the fake contact.
func (s *Server) HandleChatMessage(sessionId uint32, body string) {
	if ok, warn := s.limiter.Allow(sessionId); !ok {
		s.config.metrics.CommandRateLimited()
		log.Printf("Session %d: dropping chat command, rate limited\n", sessionId)
		if c := s.sessions.Get(sessionId); warn && c != nil {
			c.SendMessage(MESSAGE_SLOW_DOWN)
		}
		return
	}

	s.controlMu.Lock()
	defer s.controlMu.Unlock()

	result := s.interpreter.Interpret(body, s.store.Load())
	if result.Command == commands.None {
		return
	}
	s.config.metrics.CommandReceived(result.Command.String())
	log.Printf("Session %d: chat command %q\n", sessionId, result.Command)

	for _, reply := range result.Replies {
		s.broadcast(reply)
	}
	if result.Enabled == nil && result.Status == nil {
		return
	}
	_, updated := s.store.Update(func(p policy.Policy) policy.Policy {
		if result.Enabled != nil {
			p.Enabled = *result.Enabled
		}
		if result.Status != nil {
			p.Status = *result.Status
		}
		return p
	})
	s.propagate(updated)
	if result.Status != nil {
		s.broadcast(commands.StatusMessage("You are now appearing", *result.Status))
	}
}

// Stops accepting, closes every session, saves the status and exits with code 0.
// Only the first call does anything.
func (s *Server) Shutdown() {
	if !s.closing.CompareAndSwap(false, true) {
		return
	}
	log.Println("Shutting down")

	s.listener.Close()
	s.cancelIdleTimer()
	s.sessions.DisconnectAll()

	if path := s.config.statusFile; path != "" {
		status := s.store.Load().Status
		if err := policy.SaveStatus(path, status); err != nil {
			log.Println("Failed to save status:", err.Error())
		}
	}
	s.config.traceLogger.Close()
	s.config.exitFunc(0)
}

// Replays presence on every session, oldest first.
func (s *Server) propagate(p policy.Policy) {
	for _, c := range s.sessions.Snapshot() {
		c.UpdatePresence(p)
	}
}

func (s *Server) broadcast(body string) {
	sessions := s.sessions.Snapshot()
	failed := lo.Filter(sessions, func(c *connection.ProxiedConnection, _ int) bool {
		return c.SendMessage(body) != nil
	})
	for _, c := range failed {
		log.Printf("Session %d: failed to send message from fake contact\n", c.Id)
	}
}

func (s *Server) scheduleIntroduction() {
	s.introOnce.Do(func() {
		time.AfterFunc(s.config.introDelay, s.sendIntroduction)
	})
}

func (s *Server) sendIntroduction() {
	if s.closing.Load() {
		return
	}
	for i, line := range introduction(s.Policy().Status) {
		if i > 0 {
			time.Sleep(s.config.introGap)
		}
		s.broadcast(line)
	}
}
