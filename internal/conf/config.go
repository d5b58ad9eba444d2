// config.go: settings struct and load/save logic for the field sync agent.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// LogConfig contains settings for the agent log file.
type LogConfig struct {
	Enabled    bool   // true to enable file logging
	Path       string // path to log file
	MaxSize    int    // maximum log file size in megabytes before rotation
	MaxBackups int    // number of rotated log files to keep
	MaxAge     int    // days to retain rotated log files
}

// MainSettings contains general application settings.
type MainSettings struct {
	Name     string    // agent instance name, used as client identifier
	DeviceID string    // stable device identifier, generated on first run
	Log      LogConfig // log file settings
}

// StoreSettings contains settings for the device-local store.
type StoreSettings struct {
	Path string // path to the SQLite database file
}

// CentralSettings contains connection settings for the central database.
type CentralSettings struct {
	Host     string // central database host
	Port     string // central database port
	Username string // database username
	Password string // database password
	Database string // database name
}

// DSN builds the MySQL connection string for the central database.
func (c *CentralSettings) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.Username, c.Password, c.Host, c.Port, c.Database)
}

// SyncSettings controls the background drain loop.
type SyncSettings struct {
	BaseInterval     time.Duration // interval between drain cycles when idle
	BatchCap         int           // max normal-priority operations per cycle
	AttemptCeiling   int           // max attempts before an operation is forced failed
	MinRetryInterval time.Duration // base backoff unit between attempts
	RetentionWindow  time.Duration // how long synced rows are retained before pruning
	QueueSoftLimit   int           // pending count above which status reports backlog
}

// TimeoutSettings bounds every external call the agent makes.
type TimeoutSettings struct {
	Probe       time.Duration // connectivity probe timeout
	Adapter     time.Duration // central store adapter call timeout
	Blob        time.Duration // media blob upload timeout
	Transcriber time.Duration // speech-to-text call timeout
	Translator  time.Duration // translation call timeout
}

// MediaSettings controls media capture handling.
type MediaSettings struct {
	BlobDir     string // directory for the local blob store implementation
	MinDiskFree uint64 // minimum free bytes required to accept a media capture
}

// VoicePattern is one recognizable phrase for a command kind.
type VoicePattern struct {
	Kind   string `yaml:"kind"`   // command kind the phrase maps to
	Phrase string `yaml:"phrase"` // lowercase phrase matched as a substring
}

// VoiceSettings configures the utterance interpreter and annotators.
type VoiceSettings struct {
	Thresholds  map[string]float64 // per-kind confidence thresholds
	Patterns    []VoicePattern     // extra patterns merged over the built-in set
	TranslateTo string             // target language for media transcripts, empty disables
}

// Settings contains all configuration for the field sync agent.
type Settings struct {
	Debug bool // true to enable debug mode

	Main     MainSettings
	Store    StoreSettings
	Central  CentralSettings
	Sync     SyncSettings
	Timeouts TimeoutSettings
	Media    MediaSettings
	Voice    VoiceSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a new
// Settings instance and stores it as the process-wide instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// Setting returns the current process-wide settings instance. Returns nil
// before Load() has succeeded.
func Setting() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create one with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the current viper defaults to the first
// default config path as a starting config file.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	if err := os.MkdirAll(configPaths[0], 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	out, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return fmt.Errorf("error marshaling default config: %w", err)
	}

	if err := os.WriteFile(configPath, out, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	return viper.ReadInConfig()
}

// GetDefaultConfigPaths returns the list of directories searched for the
// config file, most specific first.
func GetDefaultConfigPaths() ([]string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("error resolving user config dir: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error resolving home dir: %w", err)
	}
	return []string{
		filepath.Join(configDir, "fieldsync"),
		filepath.Join(homeDir, ".fieldsync"),
		".",
	}, nil
}
