package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config file types

type fileConfig struct {
	APIVersion     string         `yaml:"apiVersion"`
	Kind           string         `yaml:"kind"`
	CurrentContext string         `yaml:"current-context"`
	Contexts       []namedContext `yaml:"contexts"`
}

type namedContext struct {
	Name    string        `yaml:"name"`
	Context contextDetail `yaml:"context"`
}

type contextDetail struct {
	Tenant       string `yaml:"tenant"`
	APIToken     string `yaml:"api-token,omitempty"`
	APITokenFile string `yaml:"api-token-file,omitempty"`
}

func configDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".report-enricher")
}

func configFilePath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func expandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, p[2:])
	}
	return p
}

func loadFileConfig() (*fileConfig, error) {
	data, err := os.ReadFile(configFilePath())
	if err != nil {
		return nil, err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}
	return &fc, nil
}

func saveFileConfig(fc *fileConfig) error {
	if fc.APIVersion == "" {
		fc.APIVersion = "report-enricher.openctem.io/v1"
	}
	if fc.Kind == "" {
		fc.Kind = "Config"
	}

	if err := os.MkdirAll(configDir(), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(fc)
	if err != nil {
		return err
	}
	return os.WriteFile(configFilePath(), data, 0600)
}

// resolveFromConfigFile returns the tenant and token of the selected
// context (or the current-context) from the config file. Missing files
// and contexts resolve to empty strings; env and flags take precedence
// anyway.
func resolveFromConfigFile(name string) (tenant, token string) {
	fc, err := loadFileConfig()
	if err != nil {
		return "", ""
	}
	if name == "" {
		name = fc.CurrentContext
	}
	for _, nc := range fc.Contexts {
		if nc.Name != name {
			continue
		}
		tenant = nc.Context.Tenant
		token = nc.Context.APIToken
		if token == "" && nc.Context.APITokenFile != "" {
			if data, err := os.ReadFile(expandPath(nc.Context.APITokenFile)); err == nil {
				token = strings.TrimSpace(string(data))
			}
		}
		return tenant, token
	}
	return "", ""
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage connection contexts",
}

var configSetContextCmd = &cobra.Command{
	Use:   "set-context NAME",
	Short: "Create or update a context",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigSetContext,
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context NAME",
	Short: "Switch the current context",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigUseContext,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Show the config file (tokens masked)",
	RunE:  runConfigView,
}

func init() {
	configSetContextCmd.Flags().String("tenant", "", "Sysdig tenant host, e.g. us2.app.sysdig.com")
	configSetContextCmd.Flags().String("api-token", "", "API token (stored in the config file)")
	configSetContextCmd.Flags().String("api-token-file", "", "Path to a file holding the API token")

	configCmd.AddCommand(configSetContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configViewCmd)
}

func runConfigSetContext(cmd *cobra.Command, args []string) error {
	name := args[0]
	tenant, _ := cmd.Flags().GetString("tenant")
	token, _ := cmd.Flags().GetString("api-token")
	tokenFile, _ := cmd.Flags().GetString("api-token-file")

	fc, err := loadFileConfig()
	if err != nil {
		fc = &fileConfig{}
	}

	found := false
	for i := range fc.Contexts {
		if fc.Contexts[i].Name != name {
			continue
		}
		found = true
		if tenant != "" {
			fc.Contexts[i].Context.Tenant = tenant
		}
		if token != "" {
			fc.Contexts[i].Context.APIToken = token
			fc.Contexts[i].Context.APITokenFile = ""
		}
		if tokenFile != "" {
			fc.Contexts[i].Context.APITokenFile = tokenFile
			fc.Contexts[i].Context.APIToken = ""
		}
	}
	if !found {
		if tenant == "" {
			return fmt.Errorf("--tenant is required when creating a context")
		}
		fc.Contexts = append(fc.Contexts, namedContext{
			Name: name,
			Context: contextDetail{
				Tenant:       tenant,
				APIToken:     token,
				APITokenFile: tokenFile,
			},
		})
	}
	if fc.CurrentContext == "" {
		fc.CurrentContext = name
	}

	if err := saveFileConfig(fc); err != nil {
		return err
	}
	fmt.Printf("Context %q saved.\n", name)
	return nil
}

func runConfigUseContext(_ *cobra.Command, args []string) error {
	name := args[0]
	fc, err := loadFileConfig()
	if err != nil {
		return fmt.Errorf("no config file yet; run \"config set-context\" first")
	}
	for _, nc := range fc.Contexts {
		if nc.Name == name {
			fc.CurrentContext = name
			if err := saveFileConfig(fc); err != nil {
				return err
			}
			fmt.Printf("Switched to context %q.\n", name)
			return nil
		}
	}
	return fmt.Errorf("context %q not found", name)
}

func runConfigView(_ *cobra.Command, _ []string) error {
	fc, err := loadFileConfig()
	if err != nil {
		fmt.Println("No config file.")
		return nil
	}
	for i := range fc.Contexts {
		if fc.Contexts[i].Context.APIToken != "" {
			fc.Contexts[i].Context.APIToken = "[REDACTED]"
		}
	}
	data, err := yaml.Marshal(fc)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}
