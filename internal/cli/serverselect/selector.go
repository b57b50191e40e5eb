package serverselect

import (
	"fmt"
	"os"

	"github.com/manifoldco/promptui"

	"github.com/consultadmin/consultadmin/internal/cli/config"
	"github.com/consultadmin/consultadmin/internal/cli/userconfig"
)

// Prompter asks the user to pick one of the configured servers
type Prompter func(projectConfig *config.Config) (*config.Server, error)

// ResolveServer determines which server to use, in order:
//  1. the server named by alias, when given
//  2. the server selected with select-server, if still configured
//  3. the only configured server
//  4. whatever the user picks from prompt
func ResolveServer(projectConfig *config.Config, alias string, prompt Prompter) (*config.Server, error) {
	if alias != "" {
		return projectConfig.GetServer(alias)
	}

	selected, err := userconfig.GetSelectedServer()
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}

	if selected != "" {
		if server, err := projectConfig.GetServerByAddress(selected); err == nil {
			return server, nil
		}
		// Selected server no longer exists in project config
		_ = userconfig.SetSelectedServer("")
	}

	var server *config.Server
	switch {
	case len(projectConfig.Servers) == 0:
		return nil, fmt.Errorf("no servers configured in %s", config.ConfigFileName)
	case len(projectConfig.Servers) == 1:
		server = &projectConfig.Servers[0]
	case prompt == nil:
		return nil, fmt.Errorf("several servers configured; run 'consultadmin select-server' or pass --server")
	default:
		server, err = prompt(projectConfig)
		if err != nil {
			return nil, err
		}
	}

	if err := userconfig.SetSelectedServer(server.Address); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to save selected server: %v\n", err)
	}
	return server, nil
}

// PromptServerSelection shows an interactive prompt for the user to select a server
func PromptServerSelection(projectConfig *config.Config) (*config.Server, error) {
	if len(projectConfig.Servers) == 0 {
		return nil, fmt.Errorf("no servers configured in %s", config.ConfigFileName)
	}

	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "> {{ .Alias | cyan }} ({{ .Address }})",
		Inactive: "  {{ .Alias }} ({{ .Address }})",
		Selected: "{{ .Alias | green }} ({{ .Address }})",
	}

	prompt := promptui.Select{
		Label:     "Select a server",
		Items:     projectConfig.Servers,
		Templates: templates,
		Size:      10,
	}

	index, _, err := prompt.Run()
	if err != nil {
		return nil, fmt.Errorf("server selection cancelled: %w", err)
	}

	return &projectConfig.Servers[index], nil
}
