package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileTokenStore keeps tokens in a 0600 JSON file, for hosts without a
// keychain (CI runners, containers).
type FileTokenStore struct {
	mu   sync.Mutex
	path string
}

// NewFileTokenStore returns a store backed by the file at path
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// DefaultTokenFilePath returns ~/.config/consultadmin/tokens.json
func DefaultTokenFilePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "consultadmin", "tokens.json"), nil
}

func (f *FileTokenStore) SaveToken(server, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tokens, err := f.read()
	if err != nil {
		return err
	}
	tokens[server] = token
	return f.write(tokens)
}

func (f *FileTokenStore) LoadToken(server string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tokens, err := f.read()
	if err != nil {
		return "", err
	}
	token, ok := tokens[server]
	if !ok || token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

func (f *FileTokenStore) DeleteToken(server string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tokens, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := tokens[server]; !ok {
		return nil // Already deleted
	}
	delete(tokens, server)
	return f.write(tokens)
}

func (f *FileTokenStore) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	tokens := map[string]string{}
	if len(data) == 0 {
		return tokens, nil
	}
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return tokens, nil
}

func (f *FileTokenStore) write(tokens map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
