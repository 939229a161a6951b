package policy

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Reads the persisted status. Only mobile carries over a restart,
// anything else (including a missing file) starts out Offline.
func LoadStatus(path string) Status {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Println("Failed to read status file: " + err.Error())
		}
		return Offline
	}
	line, _, _ := strings.Cut(string(data), "\n")
	status, err := ParseStatus(line)
	if err != nil {
		log.Println("Ignoring status file: " + err.Error())
		return Offline
	}
	if status != Mobile {
		return Offline
	}
	return status
}

// Writes the status as a single-line token, creating the parent directory if needed.
func SaveStatus(path string, status Status) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(status.Token()), 0o644)
}
