package adapter

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	keyField    = "key"
	serverField = "server"
)

// KeyStore keeps the merchant key and gateway address in a small YAML file
// readable only by the owner.
type KeyStore struct {
	path string
}

func NewKeyStore(path string) *KeyStore {
	return &KeyStore{path: path}
}

// DefaultKeyStorePath returns ~/.upi-notifier/config.yaml.
func DefaultKeyStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".upi-notifier", "config.yaml")
	}
	return filepath.Join(home, ".upi-notifier", "config.yaml")
}

func (s *KeyStore) Path() string {
	return s.path
}

func (s *KeyStore) load() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("yaml")

	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return v, nil
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("could not read %s: %w", s.path, err)
	}
	return v, nil
}

// Key returns the stored merchant key, or "" when none is stored.
func (s *KeyStore) Key() (string, error) {
	v, err := s.load()
	if err != nil {
		return "", err
	}
	return v.GetString(keyField), nil
}

// Server returns the stored gateway address, or "" when none is stored.
func (s *KeyStore) Server() (string, error) {
	v, err := s.load()
	if err != nil {
		return "", err
	}
	return v.GetString(serverField), nil
}

// Save stores key and, when non-empty, server.
func (s *KeyStore) Save(key, server string) error {
	v, err := s.load()
	if err != nil {
		return err
	}
	v.Set(keyField, key)
	if server != "" {
		v.Set(serverField, server)
	}
	return s.write(v)
}

// Clear forgets the key but keeps the server address.
func (s *KeyStore) Clear() error {
	v, err := s.load()
	if err != nil {
		return err
	}
	v.Set(keyField, "")
	return s.write(v)
}

func (s *KeyStore) write(v *viper.Viper) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("could not create config dir: %w", err)
	}
	if err := v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("could not write %s: %w", s.path, err)
	}
	return os.Chmod(s.path, 0o600)
}
