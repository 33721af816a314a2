package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoIdentity is returned when no user has logged in on this instance.
var ErrNoIdentity = errors.New("not logged in; run: freightctl login <user-id>")

type identityFile struct {
	UserID string `json:"user_id"`
}

// SaveIdentity records the CLI user for an instance.
func SaveIdentity(path, userID string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(identityFile{UserID: userID})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadIdentity returns the CLI user saved by SaveIdentity.
func LoadIdentity(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoIdentity
	}
	if err != nil {
		return "", err
	}
	var f identityFile
	if err := json.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}
	if f.UserID == "" {
		return "", ErrNoIdentity
	}
	return f.UserID, nil
}

// ClearIdentity forgets the CLI user.
func ClearIdentity(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
