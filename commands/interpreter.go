// Package commands interprets chat messages sent to the fake contact.
package commands

import (
	"slices"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"

	"github.com/bluemods/deceive-proxy/policy"
)

type Command int

const (
	None Command = iota
	Offline
	Mobile
	Online
	Enable
	Disable
	Status
	Help
)

type keyword struct {
	word    string
	command Command
}

// Keywords in priority order. When a message contains several, the first one listed wins.
var keywords = []keyword{
	{"offline", Offline},
	{"mobile", Mobile},
	{"online", Online},
	{"enable", Enable},
	{"disable", Disable},
	{"status", Status},
	{"help", Help},
}

var priority = lo.SliceToMap(keywords, func(k keyword) (string, int) {
	return k.word, lo.IndexOf(keywords, k)
})

const (
	MESSAGE_ENABLED          = "Deceive is now enabled."
	MESSAGE_ALREADY_ENABLED  = "Deceive is already enabled."
	MESSAGE_DISABLED         = "Deceive is now disabled."
	MESSAGE_ALREADY_DISABLED = "Deceive is already disabled."
)

func (c Command) String() string {
	for _, k := range keywords {
		if k.command == c {
			return k.word
		}
	}
	return "none"
}

// What the controller should do in response to a message.
type Result struct {
	Command Command
	// Sent back from the fake contact, in order, before the change is applied.
	Replies []string
	// Non-nil when the status should change.
	Status *policy.Status
	// Non-nil when masking should be switched on or off.
	Enabled *bool
}

// Finds commands in free-form chat text.
type Interpreter struct {
	matcher *goahocorasick.Machine
}

func NewInterpreter() (*Interpreter, error) {
	words := lo.Map(keywords, func(k keyword, _ int) string { return k.word })
	slices.Sort(words)
	patterns := lo.Map(words, func(word string, _ int) []rune { return []rune(word) })

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Interpreter{matcher: m}, nil
}

// Returns the highest priority keyword found anywhere in body, case-insensitive.
func (i *Interpreter) Match(body string) Command {
	runes := []rune(strings.Map(unicode.ToLower, body))
	if len(runes) == 0 {
		return None
	}
	best := len(keywords)
	for _, term := range i.matcher.MultiPatternSearch(runes, false) {
		if index, ok := priority[string(term.Word)]; ok && index < best {
			best = index
		}
	}
	if best == len(keywords) {
		return None
	}
	return keywords[best].command
}

// Decides the response to body given the current policy. Pure: nothing is applied here.
func (i *Interpreter) Interpret(body string, p policy.Policy) Result {
	command := i.Match(body)
	result := Result{Command: command}

	switch command {
	case Offline, Mobile, Online:
		if !p.Enabled {
			result.Replies = append(result.Replies, MESSAGE_ENABLED)
			result.Enabled = lo.ToPtr(true)
		}
		result.Status = lo.ToPtr(statusFor(command))
	case Enable:
		if p.Enabled {
			result.Replies = append(result.Replies, MESSAGE_ALREADY_ENABLED)
		} else {
			result.Replies = append(result.Replies, MESSAGE_ENABLED)
			result.Enabled = lo.ToPtr(true)
		}
	case Disable:
		if !p.Enabled {
			result.Replies = append(result.Replies, MESSAGE_ALREADY_DISABLED)
		} else {
			result.Replies = append(result.Replies, MESSAGE_DISABLED)
			result.Enabled = lo.ToPtr(false)
		}
	case Status:
		result.Replies = append(result.Replies, StatusMessage("You are appearing", p.Status))
	case Help:
		result.Replies = append(result.Replies, HelpMessage())
	}
	return result
}

// "<prefix> online." or "<prefix> <status>."
func StatusMessage(prefix string, status policy.Status) string {
	return prefix + " " + status.String() + "."
}

func HelpMessage() string {
	return "You can send the following messages to quickly change Deceive settings: online/offline/mobile/enable/disable/status"
}

func statusFor(c Command) policy.Status {
	switch c {
	case Online:
		return policy.Online
	case Mobile:
		return policy.Mobile
	default:
		return policy.Offline
	}
}
