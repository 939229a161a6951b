package constants

import (
	"crypto/tls"
	"regexp"
	"time"
)

const (
	// Local listener. The game client is pointed at this address by the launcher.
	DEFAULT_LISTEN_ADDR = "127.0.0.1:0"
	// Loopback control API used by the tray UI
	DEFAULT_CONTROL_ADDR = "127.0.0.1:4337"
	// Listen on IPV4 loopback only
	SERVER_TYPE = "tcp4"

	// Riot chat uses TCP
	CHAT_SERVER_TYPE = "tcp"
	// Riot chat XMPP-over-TLS port
	CHAT_SERVER_PORT = 5223

	// Client has this long to finish the TLS handshake
	CLIENT_HANDSHAKE_TIMEOUT_SECONDS = 10
	// Abort dialing the chat server after this many seconds
	CHAT_DIAL_TIMEOUT_SECONDS = 10
	// Abort if a write call takes longer than this
	WRITE_TIMEOUT_SECONDS = 15

	// Size of a single read from either side of a session
	READ_BUFFER_SIZE = 8192
	// A presence chunk split across reads is held up to this size before the session is dropped
	MAX_PENDING_PRESENCE_BYTES = 64 * 1024

	// Process exits when no session has been connected for this long
	IDLE_SHUTDOWN_TIMEOUT = 60 * time.Second
	// Delay between the first session and the introduction messages
	INTRODUCTION_DELAY = 10 * time.Second
	// Gap between consecutive introduction messages
	INTRODUCTION_MESSAGE_GAP = 200 * time.Millisecond

	// TLSv1.2 is recommended for compatibility reasons.
	// DO NOT use lower than 1.2, as older protocols contain security flaws.
	SERVER_TLS_VERSION = tls.VersionTLS12

	// Roster response from the chat server, the fake contact is spliced in right after it
	ROSTER_MARKER = "<query xmlns='jabber:iq:riotgames:roster'>"

	// Identity of the synthetic contact shown in the friends list
	FAKE_CONTACT_PUUID    = "41c322a1-b328-495b-a004-5ccd3e45eae8"
	FAKE_CONTACT_DOMAIN   = "eu1.pvp.net"
	FAKE_CONTACT_JID      = FAKE_CONTACT_PUUID + "@" + FAKE_CONTACT_DOMAIN
	FAKE_CONTACT_RESOURCE = "RC-Deceive"

	// Default file name of the persisted status, under the data directory
	STATUS_FILE_NAME = "status"
	// Default file name of the debug log, under the data directory
	DEBUG_LOG_FILE_NAME = "debug.log"
	// Data directory name under the user config directory
	DATA_DIR_NAME = "Deceive"

	API_KEY_MIN_LENGTH = 32
	API_KEY_MAX_LENGTH = 256
)

var (
	API_KEY_REGEX *regexp.Regexp = regexp.MustCompile("^[A-Za-z0-9._-]{32,256}$")
)
