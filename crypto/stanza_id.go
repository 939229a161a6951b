package crypto

import "github.com/google/uuid"

// Random id for synthetic presence stanzas, "b-" followed by a V4 UUID.
func GenerateStanzaId() string {
	return "b-" + uuid.NewString()
}
