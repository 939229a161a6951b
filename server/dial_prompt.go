package server

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Decides whether to dial the chat server again after a failure.
type DialPrompt interface {
	RetryDial(err error) bool
}

type DialPromptFunc func(err error) bool

func (f DialPromptFunc) RetryDial(err error) bool {
	return f(err)
}

// Asks on the controlling terminal. Without one, retries are declined.
type TerminalPrompt struct {
	In  *os.File
	Out io.Writer
}

func NewTerminalPrompt() TerminalPrompt {
	return TerminalPrompt{In: os.Stdin, Out: os.Stderr}
}

func (p TerminalPrompt) RetryDial(err error) bool {
	if p.In == nil || !term.IsTerminal(int(p.In.Fd())) {
		return false
	}
	fmt.Fprintf(p.Out, "Unable to reach the chat server (%s).\nRetry? [y/N] ", err)
	line, readErr := bufio.NewReader(p.In).ReadString('\n')
	if readErr != nil && line == "" {
		return false
	}
	return parseAnswer(line)
}

func parseAnswer(line string) bool {
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
