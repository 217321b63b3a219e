package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ka"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage ka configuration.

Running bare 'ka config' is the same as 'ka config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# ka configuration
# See: ka config show (for effective values and sources)

# State directory for logs and the PID file (default: ~/.config/ka)
# state_dir: {{ .StateDir }}

search:
  # Backend answering queries: "http" (Knowledge Assistant service) or "anthropic"
  backend: "{{ .Backend }}"

  # Base URL of the search service; queries are posted to <base_url>/api/search
  base_url: "{{ .BaseURL }}"

  # Per-request timeout (default: 60s)
  timeout: "{{ .Timeout }}"

  # Requests per minute sent to the backend, 0 for no limit
  rate_per_minute: {{ .RatePerMinute }}

  # Mode new sessions start in: internal or external
  default_mode: "{{ .DefaultMode }}"

anthropic:
  # Used by the anthropic backend; ANTHROPIC_API_KEY is read when empty
  api_key: ""
  model: "{{ .AnthropicModel }}"

store:
  # SQLite transcript log; empty keeps it in memory
  path: "{{ .StorePath }}"

serve:
  port: {{ .ServePort }}

  # Idle sessions are dropped after this long
  session_ttl: "{{ .SessionTTL }}"

log:
  # debug, info, warn or error
  level: "{{ .LogLevel }}"
  file: "{{ .LogFile }}"
`

type configTemplateData struct {
	StateDir       string
	Backend        string
	BaseURL        string
	Timeout        string
	RatePerMinute  int
	DefaultMode    string
	AnthropicModel string
	StorePath      string
	ServePort      int
	SessionTTL     string
	LogLevel       string
	LogFile        string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:       viper.GetString("state_dir"),
		Backend:        viper.GetString("search.backend"),
		BaseURL:        viper.GetString("search.base_url"),
		Timeout:        viper.GetDuration("search.timeout").String(),
		RatePerMinute:  viper.GetInt("search.rate_per_minute"),
		DefaultMode:    viper.GetString("search.default_mode"),
		AnthropicModel: viper.GetString("anthropic.model"),
		StorePath:      viper.GetString("store.path"),
		ServePort:      viper.GetInt("serve.port"),
		SessionTTL:     viper.GetDuration("serve.session_ttl").String(),
		LogLevel:       viper.GetString("log.level"),
		LogFile:        viper.GetString("log.file"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "KA_STATE_DIR"},
	{Key: "search.backend", EnvVar: "KA_SEARCH_BACKEND"},
	{Key: "search.base_url", EnvVar: "KA_SEARCH_BASE_URL"},
	{Key: "search.timeout", EnvVar: "KA_SEARCH_TIMEOUT"},
	{Key: "search.rate_per_minute", EnvVar: "KA_SEARCH_RATE_PER_MINUTE"},
	{Key: "search.default_mode", EnvVar: "KA_SEARCH_DEFAULT_MODE"},
	{Key: "anthropic.model", EnvVar: "KA_ANTHROPIC_MODEL"},
	{Key: "store.path", EnvVar: "KA_STORE_PATH"},
	{Key: "serve.port", EnvVar: "KA_SERVE_PORT"},
	{Key: "serve.session_ttl", EnvVar: "KA_SERVE_SESSION_TTL"},
	{Key: "log.level", EnvVar: "KA_LOG_LEVEL"},
	{Key: "log.file", EnvVar: "KA_LOG_FILE"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-24s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'ka config init' first)", cfgPath)
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
