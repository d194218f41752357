package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models tidewater.yml, the per-world tuning file.
type Config struct {
	World struct {
		ID string `yaml:"id"`
	} `yaml:"world"`
	Turn struct {
		Epoch  string `yaml:"epoch"`
		Length string `yaml:"length"`
	} `yaml:"turn"`
	Actors struct {
		MaxHunger           int            `yaml:"max_hunger"`
		MaxHealth           int            `yaml:"max_health"`
		StarvationThreshold int            `yaml:"starvation_threshold"`
		StartingShillings   int64          `yaml:"starting_shillings"`
		StartingItems       map[string]int `yaml:"starting_items"`
	} `yaml:"actors"`
	Leveling struct {
		BaseExperience int64 `yaml:"base_experience"`
	} `yaml:"leveling"`
	Vessels struct {
		StuckChance float64 `yaml:"stuck_chance"`
		// AutoReleaseAfter > 0 frees a vessel after that many stuck turns.
		// 0 keeps it stuck until an external rescue.
		AutoReleaseAfter int      `yaml:"auto_release_after"`
		ImmuneZone       []string `yaml:"immune_zone"`
	} `yaml:"vessels"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// TurnEpoch parses the configured epoch, defaulting to the Unix epoch.
func (c *Config) TurnEpoch() time.Time {
	if c.Turn.Epoch == "" {
		return time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	t, err := time.Parse(time.RFC3339, c.Turn.Epoch)
	if err != nil {
		return time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return t.UTC()
}

// TurnLength parses the configured turn duration, defaulting to one day.
func (c *Config) TurnLength() time.Duration {
	if c.Turn.Length == "" {
		return 24 * time.Hour
	}
	d, err := time.ParseDuration(c.Turn.Length)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// ImmuneZone returns the immune-zone location set.
func (c *Config) ImmuneZone() map[string]bool {
	set := make(map[string]bool, len(c.Vessels.ImmuneZone))
	for _, key := range c.Vessels.ImmuneZone {
		set[key] = true
	}
	return set
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.World.ID == "" {
		return fmt.Errorf("config.world.id is required")
	}
	if c.Turn.Epoch != "" {
		if _, err := time.Parse(time.RFC3339, c.Turn.Epoch); err != nil {
			return fmt.Errorf("config.turn.epoch: %w", err)
		}
	}
	if c.Turn.Length != "" {
		d, err := time.ParseDuration(c.Turn.Length)
		if err != nil {
			return fmt.Errorf("config.turn.length: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("config.turn.length must be positive")
		}
	}
	if c.Actors.MaxHunger <= 0 {
		return fmt.Errorf("config.actors.max_hunger must be positive")
	}
	if c.Actors.MaxHealth <= 0 {
		return fmt.Errorf("config.actors.max_health must be positive")
	}
	if c.Actors.StarvationThreshold < 0 {
		return fmt.Errorf("config.actors.starvation_threshold must not be negative")
	}
	if c.Actors.StartingShillings < 0 {
		return fmt.Errorf("config.actors.starting_shillings must not be negative")
	}
	for key, qty := range c.Actors.StartingItems {
		if key == "" {
			return fmt.Errorf("config.actors.starting_items contains empty item key")
		}
		if qty <= 0 {
			return fmt.Errorf("starting item %s must have positive quantity", key)
		}
	}
	if c.Leveling.BaseExperience <= 0 {
		return fmt.Errorf("config.leveling.base_experience must be positive")
	}
	if c.Vessels.StuckChance < 0 || c.Vessels.StuckChance > 1 {
		return fmt.Errorf("config.vessels.stuck_chance must be within [0,1]")
	}
	if c.Vessels.AutoReleaseAfter < 0 {
		return fmt.Errorf("config.vessels.auto_release_after must not be negative")
	}
	for _, key := range c.Vessels.ImmuneZone {
		if key == "" {
			return fmt.Errorf("config.vessels.immune_zone contains empty location key")
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "tidewater.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with tw init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default("tidewater"), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the default Config struct for a world.
func Default(worldID string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(fmt.Sprintf(defaultTemplate, worldID)), &cfg)
	cfg.World.ID = worldID
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(worldID string) string {
	return fmt.Sprintf(defaultTemplate, worldID)
}

const defaultTemplate = `world:
  id: %s

turn:
  epoch: "1970-01-01T00:00:00Z"
  length: 24h

actors:
  max_hunger: 2
  max_health: 5
  starvation_threshold: 2
  starting_shillings: 10
  starting_items:
    chestnut: 2

leveling:
  base_experience: 100

vessels:
  stuck_chance: 0.5
  auto_release_after: 0
  immune_zone: [ocean_view, not_new_eden, beautiful_forest]
`
