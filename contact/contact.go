// Package contact builds the stanzas for the synthetic friend that
// shows up in the client's roster and accepts chat commands.
package contact

import (
	"strconv"
	"time"

	"github.com/bluemods/deceive-proxy/constants"
	"github.com/bluemods/deceive-proxy/crypto"
	"github.com/bluemods/deceive-proxy/datatypes"
	"github.com/bluemods/deceive-proxy/node"
	"github.com/bluemods/deceive-proxy/utils"
)

// The fake contact's full address.
var Identity = datatypes.Jid{
	LocalPart: constants.FAKE_CONTACT_PUUID,
	Domain:    constants.FAKE_CONTACT_DOMAIN,
	Resource:  constants.FAKE_CONTACT_RESOURCE,
}

// &#9; sorts the entry to the top of the friends list; it must stay a character
// reference since a literal tab in an attribute is normalized to a space.
const rosterItem = "<item jid='" + constants.FAKE_CONTACT_JID + "' name='&#9;Deceive Active!' subscription='both' puuid='" + constants.FAKE_CONTACT_PUUID + "'>" +
	"<group priority='9999'>Deceive</group>" +
	"<state>online</state>" +
	"<id name='&#9;Deceive Active!' tagline='...'/>" +
	"<lol name='&#9;Deceive Active!'/>" +
	"<platforms><riot name='&#9;Deceive Active' tagline='...'/></platforms>" +
	"</item>"

// Reports whether the chunk mentions the fake contact's address.
func IsReferenced(chunk string) bool {
	return utils.IndexFold(chunk, Identity.Bare()) >= 0
}

// Splices the fake roster item right after the roster query marker.
// Returns the chunk unchanged and false when the marker is absent.
func InjectRosterItem(chunk string) (string, bool) {
	i := utils.IndexFold(chunk, constants.ROSTER_MARKER)
	if i < 0 {
		return chunk, false
	}
	at := i + len(constants.ROSTER_MARKER)
	return chunk[:at] + rosterItem + chunk[at:], true
}

// Synthetic always-online presence for the fake contact.
// version is the VALORANT client version, empty when not known yet.
func Presence(version string, now time.Time) string {
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	w := node.NewNodeWriter()
	w.StartTag("presence")
	w.Attribute("from", Identity.String())
	w.Attribute("id", crypto.GenerateStanzaId())
	w.StartTag("games")

	w.StartTag("keystone")
	w.TagText("st", "chat")
	w.TagText("s.t", ms)
	w.TagText("s.p", "keystone")
	w.Tag("pty")
	w.EndTag("keystone")

	w.StartTag("league_of_legends")
	w.TagText("st", "chat")
	w.TagText("s.t", ms)
	w.TagText("s.p", "league_of_legends")
	w.TagText("s.c", "live")
	w.TagText("p", `{"pty":true}`)
	w.EndTag("league_of_legends")

	w.StartTag("valorant")
	w.TagText("st", "chat")
	w.TagText("s.t", ms)
	w.TagText("s.p", "valorant")
	w.TagText("s.r", "PC")
	w.TagText("p", datatypes.FakeValorantPresence(version))
	w.Tag("pty")
	w.EndTag("valorant")

	w.StartTag("bacon")
	w.TagText("st", "chat")
	w.TagText("s.t", ms)
	w.TagText("s.l", "bacon_availability_online")
	w.TagText("s.p", "bacon")
	w.EndTag("bacon")

	w.EndTag("games")
	w.TagText("show", "chat")
	w.TagText("platform", "riot")
	w.Tag("status")
	w.EndTag("presence")
	return w.String()
}

// Chat message from the fake contact. stamp comes from a crypto.StampClock.
func Message(body string, stamp string) string {
	w := node.NewNodeWriter()
	w.StartTag("message")
	w.Attribute("from", Identity.String())
	w.Attribute("stamp", stamp)
	w.Attribute("id", "fake-"+stamp)
	w.Attribute("type", "chat")
	w.TagText("body", body)
	w.EndTag("message")
	return w.String()
}

// Extracts the message body from a chunk addressed to the fake contact.
// A message sent to the contact wins over any other message in the chunk.
// Falls back to the raw chunk when it does not parse or has no body.
func MessageBody(chunk string) string {
	forest, err := node.ParseForest(chunk)
	if err != nil {
		return chunk
	}
	var first *string
	for _, message := range forest.FindAll("message") {
		body := message.Find("body")
		if body == nil {
			continue
		}
		if IsAddressedTo(message) {
			return body.Text
		}
		if first == nil {
			first = &body.Text
		}
	}
	if first != nil {
		return *first
	}
	return chunk
}

// Reports whether the element's "to" attribute names the fake contact.
func IsAddressedTo(element node.Node) bool {
	to, err := datatypes.ParseJid(element.Get("to"))
	return err == nil && to.SameAccount(Identity)
}
