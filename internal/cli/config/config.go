package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const ConfigFileName = "consultadmin.json"

// Server is one platform API the CLI can administer
type Server struct {
	Address string `json:"address"`
	Alias   string `json:"alias"`
}

// Label is how a server is shown to the user
func (s Server) Label() string {
	return fmt.Sprintf("%s (%s)", s.Alias, s.Address)
}

// Config represents the project configuration file
type Config struct {
	Servers []Server `json:"servers"`
}

// AddServer appends address under the next free "server-N" alias. It
// returns the existing entry and false when the address is already listed.
func (c *Config) AddServer(address string) (Server, bool) {
	for _, server := range c.Servers {
		if server.Address == address {
			return server, false
		}
	}

	server := Server{
		Address: address,
		Alias:   fmt.Sprintf("server-%d", len(c.Servers)+1),
	}
	c.Servers = append(c.Servers, server)
	return server, true
}

// FindConfigFile searches for consultadmin.json in the current directory and
// its parents
func FindConfigFile() (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	dir := currentDir
	for {
		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("%s not found in %s or any parent directory", ConfigFileName, currentDir)
}

// Load reads the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// LoadFromCurrentDir loads config from current directory or parent directories
func LoadFromCurrentDir() (*Config, error) {
	configPath, err := FindConfigFile()
	if err != nil {
		return nil, err
	}

	return Load(configPath)
}

// Save writes the configuration to a file
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetServerByAlias returns a server by its alias
func (c *Config) GetServerByAlias(alias string) (*Server, error) {
	for i := range c.Servers {
		if c.Servers[i].Alias == alias {
			return &c.Servers[i], nil
		}
	}
	return nil, fmt.Errorf("server with alias '%s' not found", alias)
}

// GetServerByAddress returns a server by its address
func (c *Config) GetServerByAddress(address string) (*Server, error) {
	for i := range c.Servers {
		if c.Servers[i].Address == address {
			return &c.Servers[i], nil
		}
	}
	return nil, fmt.Errorf("server with address '%s' not found", address)
}

// GetServer finds a server by address, then by alias
func (c *Config) GetServer(addressOrAlias string) (*Server, error) {
	if server, err := c.GetServerByAddress(addressOrAlias); err == nil {
		return server, nil
	}
	if server, err := c.GetServerByAlias(addressOrAlias); err == nil {
		return server, nil
	}
	return nil, fmt.Errorf("server with address or alias '%s' not found", addressOrAlias)
}

// GetDefaultServer returns the first server in the list
func (c *Config) GetDefaultServer() (*Server, error) {
	if len(c.Servers) == 0 {
		return nil, fmt.Errorf("no servers configured in %s", ConfigFileName)
	}
	return &c.Servers[0], nil
}
