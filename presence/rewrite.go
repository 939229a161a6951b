// Package presence rewrites presence stanzas sent by the game client
// so friends see the status chosen by the user instead of the real one.
package presence

import (
	"fmt"

	"github.com/bluemods/deceive-proxy/contact"
	"github.com/bluemods/deceive-proxy/datatypes"
	"github.com/bluemods/deceive-proxy/node"
	"github.com/bluemods/deceive-proxy/policy"
)

const dndToken = "dnd"

type Result struct {
	// Serialized elements to forward to the chat server. Empty when everything was dropped.
	Payload string
	// Client version found in the VALORANT payload.
	Version string
	// True when Version was read during this rewrite.
	VersionCaptured bool
	// Bodies of messages to the fake contact that shared the chunk. They are never forwarded.
	ContactMessages []string
}

// One step of the rewrite, applied to a single presence element.
// Returning false drops the element.
type transform func(presence node.Node, target policy.Status, p policy.Policy) (node.Node, bool)

var transforms = []transform{
	filterLobby,
	overwriteStatus,
	stripForStatus,
	stripBacon,
}

// Rewrites every top-level presence element in raw according to p.
// Other elements pass through re-serialized, except anything addressed to
// the fake contact, which is dropped.
// When versionKnown is false the VALORANT client version is captured before
// the VALORANT payload is removed.
//
// An incomplete chunk is reported with an error for which node.IsIncomplete is true.
func Rewrite(raw string, p policy.Policy, versionKnown bool) (*Result, error) {
	forest, err := node.ParseForest(raw)
	if err != nil {
		return nil, fmt.Errorf("parse presence: %w", err)
	}
	target := p.Target()
	result := new(Result)

	rewritten := make([]node.Node, 0, len(forest.Children))
	for _, element := range forest.Children {
		if contact.IsAddressedTo(element) {
			if body := element.Find("body"); body != nil {
				result.ContactMessages = append(result.ContactMessages, body.Text)
			}
			continue
		}
		if element.Name != "presence" {
			rewritten = append(rewritten, element)
			continue
		}
		keep := true
		for _, f := range transforms {
			if element, keep = f(element, target, p); !keep {
				break
			}
		}
		if !keep {
			continue
		}
		if !versionKnown && !result.VersionCaptured {
			version, err := captureVersion(element)
			if err != nil {
				return nil, err
			}
			if version != "" {
				result.Version = version
				result.VersionCaptured = true
			}
		}
		rewritten = append(rewritten, element.WithoutPath("games", "valorant"))
	}
	forest.Children = rewritten
	result.Payload = forest.InnerString()
	return result, nil
}

// Directed presence (with a "to" attribute) joins lobby chat rooms.
func filterLobby(presence node.Node, _ policy.Status, p policy.Policy) (node.Node, bool) {
	if presence.HasAttribute("to") && !p.LobbyChat {
		return presence, false
	}
	return presence, true
}

func overwriteStatus(presence node.Node, target policy.Status, _ policy.Policy) (node.Node, bool) {
	if target == policy.Online {
		if st := presence.PathText("games", "league_of_legends", "st"); st != nil && *st == dndToken {
			return presence, true
		}
	}
	token := target.Token()
	presence = presence.WithPathText(token, "show")
	presence = presence.WithPathText(token, "games", "league_of_legends", "st")
	return presence, true
}

func stripForStatus(presence node.Node, target policy.Status, _ policy.Policy) (node.Node, bool) {
	switch target {
	case policy.Mobile:
		presence = presence.WithoutPath("status")
		presence = presence.WithoutPath("games", "league_of_legends", "p")
		presence = presence.WithoutPath("games", "league_of_legends", "m")
	case policy.Offline:
		presence = presence.WithoutPath("status")
		presence = presence.WithoutPath("games", "league_of_legends")
	}
	return presence, true
}

func stripBacon(presence node.Node, _ policy.Status, _ policy.Policy) (node.Node, bool) {
	return presence.WithoutPath("games", "bacon"), true
}

func captureVersion(presence node.Node) (string, error) {
	encoded := presence.PathText("games", "valorant", "p")
	if encoded == nil {
		return "", nil
	}
	payload, err := datatypes.ParseValorantPresence(*encoded)
	if err != nil {
		return "", err
	}
	return payload.PartyClientVersion, nil
}
