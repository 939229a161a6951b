package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/bluemods/deceive-proxy/crypto"
)

// Placeholder reported in the fake contact's presence before the client's version is known.
const UNKNOWN_CLIENT_VERSION = "unknown"

// The base64 JSON blob carried in games/valorant/p of a presence.
type ValorantPresence struct {
	IsValid            bool   `json:"isValid"`
	PartyId            string `json:"partyId"`
	PartyClientVersion string `json:"partyClientVersion"`
	AccountLevel       int    `json:"accountLevel"`
}

// Decodes the payload. Missing partyClientVersion is not an error.
func ParseValorantPresence(encoded string) (*ValorantPresence, error) {
	payload, err := crypto.DecodeBase64(encoded)
	if err != nil {
		return nil, fmt.Errorf("valorant presence: base64: %w", err)
	}
	// Field types vary between client builds, only the version is read strictly
	var r map[string]json.RawMessage
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("valorant presence: json: %w", err)
	}
	p := new(ValorantPresence)
	if raw, ok := r["partyClientVersion"]; ok {
		if err := json.Unmarshal(raw, &p.PartyClientVersion); err != nil {
			return nil, fmt.Errorf("valorant presence: partyClientVersion: %w", err)
		}
	}
	return p, nil
}

// Builds the payload advertised by the fake contact.
func FakeValorantPresence(version string) string {
	if version == "" {
		version = UNKNOWN_CLIENT_VERSION
	}
	data, _ := json.Marshal(ValorantPresence{
		IsValid:            true,
		PartyId:            "00000000-0000-0000-0000-000000000000",
		PartyClientVersion: version,
		AccountLevel:       1000,
	})
	return crypto.EncodeBase64(data)
}
