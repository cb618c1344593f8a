package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	accountLLMKey   = "llm_api_key"
	accountAPIToken = "api_token"
)

// ErrSecretNotFound is returned when an account has no stored value.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore holds credentials outside the plain config file.
type SecretStore interface {
	Get(account string) (string, error)
	Set(account, value string) error
}

// fileSecrets keeps secrets in a 0600 JSON file next to the config file.
type fileSecrets struct {
	mu   sync.Mutex
	path string
}

// NewSecrets returns the secrets file store at $XDG_CONFIG_HOME/draftr/secrets.json.
func NewSecrets() SecretStore {
	return &fileSecrets{path: filepath.Join(configDir(), "secrets.json")}
}

func (s *fileSecrets) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	secrets := map[string]string{}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

func (s *fileSecrets) Get(account string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.read()
	if err != nil {
		return "", err
	}
	v, ok := secrets[account]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, account)
	}
	return v, nil
}

func (s *fileSecrets) Set(account, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.read()
	if err != nil {
		return err
	}
	secrets[account] = value

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, out, 0o600)
}

// GetAPIToken returns the bearer token for the local HTTP API, generating
// and storing a random one on first use.
func GetAPIToken(store SecretStore) (string, error) {
	tok, err := store.Get(accountAPIToken)
	if err == nil {
		return tok, nil
	}
	if !errors.Is(err, ErrSecretNotFound) {
		return "", err
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok = hex.EncodeToString(buf)
	if err := store.Set(accountAPIToken, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}
