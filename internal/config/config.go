package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"gopkg.in/yaml.v3"

	"podplay/internal/theme"
)

// Config represents the persisted application configuration.
type Config struct {
	IndexKey     string `yaml:"index_key"`
	IndexSecret  string `yaml:"index_secret"`
	UserAgent    string `yaml:"user_agent"`
	Proxy        string `yaml:"proxy,omitempty"`
	TLSVerify    bool   `yaml:"tls_verify"`
	ColorTheme   string `yaml:"color_theme"`
	SearchLimit  int    `yaml:"search_limit"`
	CleanSearch  bool   `yaml:"clean_search"`
	PlayerBinary string `yaml:"player_binary"`
}

// Defaults returns the baseline configuration used on first run.
func Defaults() Config {
	return Config{
		UserAgent:    "podplay/dev",
		TLSVerify:    true,
		ColorTheme:   theme.Default,
		SearchLimit:  25,
		CleanSearch:  false,
		PlayerBinary: "mpv",
	}
}

// Ensure loads configuration from the provided path, prompting the user to
// create one if it does not yet exist.
func Ensure(ctx context.Context, path string) (Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	cfg = Defaults()
	if err := bootstrap(ctx, &cfg); err != nil {
		return Config{}, err
	}

	if err := Save(path, cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Load reads configuration from disk.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if strings.TrimSpace(cfg.ColorTheme) == "" {
		cfg.ColorTheme = theme.Default
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = Defaults().SearchLimit
	}
	if strings.TrimSpace(cfg.PlayerBinary) == "" {
		cfg.PlayerBinary = Defaults().PlayerBinary
	}
	return cfg, nil
}

// Save writes configuration back to disk, ensuring directory permissions are
// restrictive since the file carries API credentials.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	temp := path + ".tmp"
	if err := os.WriteFile(temp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(temp, path)
}

// bootstrap collects the catalog API credentials on first run. Environment
// variables win over interactive prompts so scripted setups never block.
func bootstrap(ctx context.Context, cfg *Config) error {
	key := strings.TrimSpace(os.Getenv("PODPLAY_INDEX_KEY"))
	secret := strings.TrimSpace(os.Getenv("PODPLAY_INDEX_SECRET"))
	if key != "" && secret != "" {
		cfg.IndexKey = key
		cfg.IndexSecret = secret
		return nil
	}

	questions := []*survey.Question{
		{
			Name: "index_key",
			Prompt: &survey.Input{
				Message: "PodcastIndex API key",
			},
			Validate: survey.Required,
		},
		{
			Name: "index_secret",
			Prompt: &survey.Password{
				Message: "PodcastIndex API secret",
			},
			Validate: survey.Required,
		},
	}

	answers := map[string]interface{}{}
	if err := survey.Ask(questions, &answers); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			return fmt.Errorf("initialisation interrupted")
		}
		return err
	}

	cfg.IndexKey = strings.TrimSpace(answers["index_key"].(string))
	cfg.IndexSecret = strings.TrimSpace(answers["index_secret"].(string))
	return nil
}

// EditableKeys returns the ordered list of configuration keys exposed via the
// interactive editor.
func EditableKeys() []string {
	return []string{
		"index_key",
		"index_secret",
		"user_agent",
		"proxy",
		"tls_verify",
		"color_theme",
		"search_limit",
		"clean_search",
		"player_binary",
	}
}

// EditInteractive opens an interactive survey session allowing the user to
// update configuration values.
func EditInteractive(ctx context.Context, cfg Config) (Config, error) {
	questions := []*survey.Question{
		{
			Name: "index_key",
			Prompt: &survey.Input{
				Message: "PodcastIndex API key",
				Default: cfg.IndexKey,
			},
			Validate: survey.Required,
		},
		{
			Name: "index_secret",
			Prompt: &survey.Password{
				Message: "PodcastIndex API secret (blank keeps current)",
			},
		},
		{
			Name: "user_agent",
			Prompt: &survey.Input{
				Message: "User agent",
				Default: cfg.UserAgent,
			},
		},
		{
			Name: "proxy",
			Prompt: &survey.Input{
				Message: "HTTP proxy (optional)",
				Default: cfg.Proxy,
			},
		},
		{
			Name: "tls_verify",
			Prompt: &survey.Confirm{
				Message: "Verify TLS certificates",
				Default: cfg.TLSVerify,
			},
		},
		{
			Name: "color_theme",
			Prompt: &survey.Select{
				Message: "Color theme",
				Options: theme.Names(),
				Default: cfg.ColorTheme,
			},
		},
		{
			Name: "search_limit",
			Prompt: &survey.Input{
				Message: "Maximum search results",
				Default: fmt.Sprintf("%d", cfg.SearchLimit),
			},
			Validate: validatePositiveInt,
		},
		{
			Name: "clean_search",
			Prompt: &survey.Confirm{
				Message: "Hide explicit feeds from search results",
				Default: cfg.CleanSearch,
			},
		},
		{
			Name: "player_binary",
			Prompt: &survey.Input{
				Message: "Media player binary",
				Default: cfg.PlayerBinary,
			},
			Validate: survey.Required,
		},
	}

	answers := map[string]interface{}{}
	select {
	case <-ctx.Done():
		return Config{}, ctx.Err()
	default:
	}

	if err := survey.Ask(questions, &answers); err != nil {
		return Config{}, err
	}

	cfg.IndexKey = strings.TrimSpace(answers["index_key"].(string))
	if secret := strings.TrimSpace(answers["index_secret"].(string)); secret != "" {
		cfg.IndexSecret = secret
	}
	cfg.UserAgent = strings.TrimSpace(answers["user_agent"].(string))
	cfg.Proxy = strings.TrimSpace(answers["proxy"].(string))
	cfg.TLSVerify = answers["tls_verify"].(bool)
	if themeName, ok := answers["color_theme"].(string); ok {
		cfg.ColorTheme = themeName
	}
	cfg.SearchLimit = toInt(answers["search_limit"])
	cfg.CleanSearch = answers["clean_search"].(bool)
	cfg.PlayerBinary = strings.TrimSpace(answers["player_binary"].(string))

	return cfg, nil
}

func validatePositiveInt(ans interface{}) error {
	v := strings.TrimSpace(ans.(string))
	if v == "" {
		return errors.New("value required")
	}
	i, err := parseInt(v)
	if err != nil {
		return err
	}
	if i <= 0 {
		return errors.New("must be greater than zero")
	}
	return nil
}

func parseInt(value string) (int, error) {
	var i int
	_, err := fmt.Sscanf(value, "%d", &i)
	if err != nil {
		return 0, errors.New("must be a number")
	}
	return i, nil
}

func toInt(value interface{}) int {
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case string:
		i, _ := parseInt(v)
		return i
	default:
		return 0
	}
}
