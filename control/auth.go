package control

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
)

const API_KEY_HEADER = "x-api-key"

// SHA-256 of the expected key. Only the hash is kept after startup.
type apiKey [sha256.Size]byte

func newApiKey(key string) apiKey {
	return sha256.Sum256([]byte(key))
}

// Reports whether the request carries the expected x-api-key header.
func (k apiKey) allows(r *http.Request) bool {
	supplied := r.Header.Get(API_KEY_HEADER)
	if supplied == "" {
		return false
	}
	h := newApiKey(supplied)
	return subtle.ConstantTimeCompare(h[:], k[:]) == 1
}

// Rejects the request with 401 unless it carries the API key. Without a key, everything passes.
func (s *ControlServer) authorized(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != nil && !s.apiKey.allows(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	})
}
