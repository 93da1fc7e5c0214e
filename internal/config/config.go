package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"studycal/internal/temporal"
)

// CanvasConfig describes the remote learning-management API endpoint. The
// token itself never lives in the config file; TokenEnv names the
// environment variable that carries it.
type CanvasConfig struct {
	BaseURL  string `yaml:"base_url" json:"base_url"`
	TokenEnv string `yaml:"token_env" json:"token_env"`
}

// CourseConfig is the default course identity applied to schedule entries
// that do not name their own course.
type CourseConfig struct {
	Name  string `yaml:"name" json:"name"`
	Short string `yaml:"short" json:"short"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA display zone every date-bucket comparison is
	// resolved in (e.g. "Europe/Stockholm").
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule for periodic assignment sync.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// LookaheadDays bounds the sync window: only assignments due within
	// [today, today+LookaheadDays] become tasks.
	LookaheadDays int `yaml:"lookahead_days" json:"lookahead_days"`

	// HighlightLimit caps the diversified upcoming-events preview.
	HighlightLimit int `yaml:"highlight_limit" json:"highlight_limit"`

	// DataDir holds tasks.json, its backup, canvas_courses.json and
	// canvas_documents.json.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// ScheduleFile is a JSON array of schedule entries. Empty or missing
	// falls back to the embedded default schedule.
	ScheduleFile string `yaml:"schedule_file" json:"schedule_file"`

	Course CourseConfig `yaml:"course" json:"course"`
	Canvas CanvasConfig `yaml:"canvas" json:"canvas"`

	// CourseFilterKeywords select which fetched courses are synced;
	// a course matches when its lowered name contains any keyword.
	CourseFilterKeywords []string `yaml:"course_filter_keywords" json:"course_filter_keywords"`

	// DocumentFocusKeywords select which courses get their files
	// cataloged for task document highlights.
	DocumentFocusKeywords []string `yaml:"document_focus_keywords" json:"document_focus_keywords"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

var defaultCourseKeywords = []string{
	"uppsala", "ht24", "ht25", "fek", "fe", "2fe",
	"accounting", "strategic", "scientific", "business",
}

var defaultDocumentKeywords = []string{
	"accounting", "scientific", "business", "model", "theory",
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         "127.0.0.1:8080",
		Timezone:       temporal.DefaultTimezone,
		RefreshCron:    "*/30 * * * *",
		LookaheadDays:  60,
		HighlightLimit: 10,
		DataDir:        "./data",
		Course: CourseConfig{
			Name:  "Scientific Methods",
			Short: "SciMeth",
		},
		Canvas: CanvasConfig{
			TokenEnv: "CANVAS_TOKEN",
		},
		CourseFilterKeywords:  append([]string(nil), defaultCourseKeywords...),
		DocumentFocusKeywords: append([]string(nil), defaultDocumentKeywords...),
		BasicAuth:             nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = temporal.DefaultTimezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/30 * * * *"
	}
	if c.LookaheadDays <= 0 {
		c.LookaheadDays = 60
	}
	if c.HighlightLimit <= 0 {
		c.HighlightLimit = 10
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Course.Name == "" {
		c.Course.Name = "Scientific Methods"
	}
	if c.Canvas.TokenEnv == "" {
		c.Canvas.TokenEnv = "CANVAS_TOKEN"
	}
	if c.CourseFilterKeywords == nil {
		c.CourseFilterKeywords = append([]string(nil), defaultCourseKeywords...)
	}
	if c.DocumentFocusKeywords == nil {
		c.DocumentFocusKeywords = append([]string(nil), defaultDocumentKeywords...)
	}
}

// Token resolves the API token from the configured environment variable.
func (c *Config) Token() string {
	return os.Getenv(c.Canvas.TokenEnv)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist: create the parent directory if needed,
//     write a default config with 0600 perms, and return the defaults.
//   - If the file exists: read YAML, unmarshal, normalize defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration atomically (temp file + rename) with
// 0600 permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".studycal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
