package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Persona     PersonaConfig     `json:"persona"`
	Storage     StorageConfig     `json:"storage"`
	Evaluation  EvaluationConfig  `json:"evaluation"`
	Logging     LoggingConfig     `json:"logging"`
	Maintenance MaintenanceConfig `json:"maintenance"`
	mu          sync.RWMutex
}

// Bounds is the allowed range of one personality dimension.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type PersonaConfig struct {
	LearningRate        float64           `json:"learning_rate" env:"DOTPERSONA_PERSONA_LEARNING_RATE"`
	MaxStep             float64           `json:"max_step" env:"DOTPERSONA_PERSONA_MAX_STEP"`
	DeadBand            float64           `json:"dead_band" env:"DOTPERSONA_PERSONA_DEAD_BAND"`
	HistoryCapacity     int               `json:"history_capacity" env:"DOTPERSONA_PERSONA_HISTORY_CAPACITY"`
	ProgressionCapacity int               `json:"progression_capacity" env:"DOTPERSONA_PERSONA_PROGRESSION_CAPACITY"`
	StabilityWindow     int               `json:"stability_window" env:"DOTPERSONA_PERSONA_STABILITY_WINDOW"`
	Bounds              map[string]Bounds `json:"bounds"`
}

type StorageConfig struct {
	DataDir         string `json:"data_dir" env:"DOTPERSONA_STORAGE_DATA_DIR"`
	HistoryCapacity int    `json:"history_capacity" env:"DOTPERSONA_STORAGE_HISTORY_CAPACITY"`
	JournalPath     string `json:"journal_path" env:"DOTPERSONA_STORAGE_JOURNAL_PATH"`
}

type EvaluationConfig struct {
	RelevanceWeight        float64 `json:"relevance_weight" env:"DOTPERSONA_EVALUATION_RELEVANCE_WEIGHT"`
	EngagementWeight       float64 `json:"engagement_weight" env:"DOTPERSONA_EVALUATION_ENGAGEMENT_WEIGHT"`
	PersonalityMatchWeight float64 `json:"personality_match_weight" env:"DOTPERSONA_EVALUATION_PERSONALITY_MATCH_WEIGHT"`
	TechnicalWeight        float64 `json:"technical_weight" env:"DOTPERSONA_EVALUATION_TECHNICAL_WEIGHT"`
	FlowWindow             int     `json:"flow_window" env:"DOTPERSONA_EVALUATION_FLOW_WINDOW"`
	EnableJournal          bool    `json:"enable_journal" env:"DOTPERSONA_EVALUATION_ENABLE_JOURNAL"`
}

type LoggingConfig struct {
	Level       string `json:"level" env:"DOTPERSONA_LOGGING_LEVEL"`
	Development bool   `json:"development" env:"DOTPERSONA_LOGGING_DEVELOPMENT"`
}

type MaintenanceConfig struct {
	BackupSchedule string `json:"backup_schedule" env:"DOTPERSONA_MAINTENANCE_BACKUP_SCHEDULE"`
	BackupDir      string `json:"backup_dir" env:"DOTPERSONA_MAINTENANCE_BACKUP_DIR"`
	KeepBackups    int    `json:"keep_backups" env:"DOTPERSONA_MAINTENANCE_KEEP_BACKUPS"`
}

// Dimensions lists the personality dimension names in canonical order.
var Dimensions = []string{"formality", "enthusiasm", "humor", "technical_depth", "empathy", "verbosity"}

func defaultBounds() map[string]Bounds {
	out := make(map[string]Bounds, len(Dimensions))
	for _, d := range Dimensions {
		out[d] = Bounds{Min: 0, Max: 1}
	}
	return out
}

func DefaultConfig() *Config {
	return &Config{
		Persona: PersonaConfig{
			LearningRate:        0.1,
			MaxStep:             0.2,
			DeadBand:            0.01,
			HistoryCapacity:     10,
			ProgressionCapacity: 100,
			StabilityWindow:     5,
			Bounds:              defaultBounds(),
		},
		Storage: StorageConfig{
			DataDir:         "~/.dotpersona/profiles",
			HistoryCapacity: 50,
			JournalPath:     "~/.dotpersona/state/evaluations.db",
		},
		Evaluation: EvaluationConfig{
			RelevanceWeight:        0.3,
			EngagementWeight:       0.25,
			PersonalityMatchWeight: 0.25,
			TechnicalWeight:        0.2,
			FlowWindow:             6,
			EnableJournal:          true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Maintenance: MaintenanceConfig{
			BackupSchedule: "0 3 * * *",
			BackupDir:      "~/.dotpersona/backups",
			KeepBackups:    7,
		},
	}
}

// LoadConfig reads path over DefaultConfig, then applies a .env file from
// the working directory (if any) and DOTPERSONA_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// Missing .env is the common case.
	_ = godotenv.Load()

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	cfg.fillBounds()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// fillBounds restores any dimension the config file left out.
func (c *Config) fillBounds() {
	if c.Persona.Bounds == nil {
		c.Persona.Bounds = defaultBounds()
		return
	}
	for _, d := range Dimensions {
		if _, ok := c.Persona.Bounds[d]; !ok {
			c.Persona.Bounds[d] = Bounds{Min: 0, Max: 1}
		}
	}
}

func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error
	p := c.Persona
	if p.LearningRate <= 0 || p.LearningRate > 1 {
		errs = append(errs, fmt.Errorf("persona.learning_rate must be in (0,1], got %v", p.LearningRate))
	}
	if p.MaxStep <= 0 {
		errs = append(errs, fmt.Errorf("persona.max_step must be positive, got %v", p.MaxStep))
	}
	if p.DeadBand < 0 {
		errs = append(errs, fmt.Errorf("persona.dead_band must not be negative, got %v", p.DeadBand))
	}
	if p.HistoryCapacity <= 0 || p.ProgressionCapacity <= 0 || p.StabilityWindow <= 0 {
		errs = append(errs, errors.New("persona capacities and stability_window must be positive"))
	}
	for name, b := range p.Bounds {
		if b.Min > b.Max {
			errs = append(errs, fmt.Errorf("persona.bounds.%s: min %v > max %v", name, b.Min, b.Max))
		}
	}
	if c.Storage.HistoryCapacity <= 0 {
		errs = append(errs, errors.New("storage.history_capacity must be positive"))
	}

	e := c.Evaluation
	sum := e.RelevanceWeight + e.EngagementWeight + e.PersonalityMatchWeight + e.TechnicalWeight
	if math.Abs(sum-1) > 0.001 {
		errs = append(errs, fmt.Errorf("evaluation weights must sum to 1, got %.3f", sum))
	}
	if e.FlowWindow < 2 {
		errs = append(errs, errors.New("evaluation.flow_window must be at least 2"))
	}

	if s := c.Maintenance.BackupSchedule; s != "" && !gronx.New().IsValid(s) {
		errs = append(errs, fmt.Errorf("maintenance.backup_schedule %q is not a valid cron expression", s))
	}
	return errors.Join(errs...)
}

func (c *Config) DataDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Storage.DataDir)
}

func (c *Config) JournalPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Storage.JournalPath)
}

func (c *Config) BackupDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Maintenance.BackupDir)
}

// DefaultConfigPath is ~/.dotpersona/config.json.
func DefaultConfigPath() string {
	return expandHome("~/.dotpersona/config.json")
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
