package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Version is set at build time.
var Version = "dev"

// ErrNoAddressingMode is returned when a list spec has no way to locate its
// source list, ErrAmbiguousAddressing when it has more than one.
var (
	ErrNoAddressingMode    = errors.New("list has no id, name/user or source configured")
	ErrAmbiguousAddressing = errors.New("list must configure exactly one of id, name/user or source")
)

// Config holds all application configuration.
type Config struct {
	Emby     EmbyConfig     `mapstructure:"emby"`
	MDBList  MDBListConfig  `mapstructure:"mdblist"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Refresh  RefreshConfig  `mapstructure:"refresh"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Lists    []ListSpec     `mapstructure:"lists"`
}

// EmbyConfig holds the Emby server connection settings.
type EmbyConfig struct {
	ServerURL string `mapstructure:"server_url"`
	UserID    string `mapstructure:"user_id"`
	APIKey    string `mapstructure:"api_key"`
	// BatchSize bounds the number of item ids per mutating request so URLs
	// stay within server limits.
	BatchSize int `mapstructure:"batch_size"`
	// RequestDelaySeconds is slept between consecutive batched requests.
	RequestDelaySeconds int `mapstructure:"request_delay_seconds"`
	TimeoutSeconds      int `mapstructure:"timeout_seconds"`
}

// MDBListConfig holds the MDBList API settings.
type MDBListConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	PageSize       int    `mapstructure:"page_size"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SyncConfig holds the reconciliation pass settings.
type SyncConfig struct {
	// HoursBetweenRefresh is the pass interval; 0 means run once and exit.
	HoursBetweenRefresh int `mapstructure:"hours_between_refresh"`
	// DownloadManualLists processes the lists configured in this file.
	DownloadManualLists bool `mapstructure:"download_manual_lists"`
	// DownloadMyLists additionally processes every list owned by the
	// MDBList account, in provider-returned order.
	DownloadMyLists bool `mapstructure:"download_my_lists"`
	// DownloadTopLists additionally mirrors MDBList's most liked public
	// lists, after the manual and account lists.
	DownloadTopLists bool `mapstructure:"download_top_lists"`
	// UpdateCollectionSortName gives collections a computed sort name so the
	// most recently changed ones sort first.
	UpdateCollectionSortName bool `mapstructure:"update_collection_sort_name"`
	// UpdateItemsSortNamesDefault is the per-list default for item sort-name
	// management.
	UpdateItemsSortNamesDefault bool `mapstructure:"update_items_sort_names_default"`
	// UseListDescriptions copies the MDBList list description onto the
	// collection overview when no per-list override is set.
	UseListDescriptions bool `mapstructure:"use_list_descriptions"`
}

// RefreshConfig holds the metadata refresher settings.
type RefreshConfig struct {
	Enabled               bool `mapstructure:"enabled"`
	MaxDaysSinceAdded     int  `mapstructure:"max_days_since_added"`
	MaxDaysSincePremiered int  `mapstructure:"max_days_since_premiered"`
	// ShowRatingChange reports the community rating before and after each
	// refresh, at the cost of one extra item fetch.
	ShowRatingChange bool `mapstructure:"show_rating_change"`
}

// ServerConfig holds the status HTTP server settings.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// DatabaseConfig holds state database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ListSpec describes one collection and the MDBList source it mirrors.
// Exactly one addressing mode must be populated: ID, ListName+UserName, or
// Source.
type ListSpec struct {
	// Name is the Emby collection name.
	Name string `mapstructure:"name"`
	// ID addresses an MDBList list directly.
	ID int `mapstructure:"id"`
	// ListName and UserName address a public list by title and owner.
	ListName string `mapstructure:"list_name"`
	UserName string `mapstructure:"user_name"`
	// Source is one or more public list URLs, comma-joined.
	Source string `mapstructure:"source"`
	// Frequency is the probability (0-100) that the list is processed on a
	// given pass. Unset means every pass; an explicit 0 skips every pass.
	// Collections that do not exist yet are always processed regardless.
	Frequency *int `mapstructure:"frequency"`
	// SortName overrides the computed collection sort name.
	SortName string `mapstructure:"sort_name"`
	// Description overrides the MDBList description for the collection
	// overview.
	Description string `mapstructure:"description"`
	// Poster is a local path or URL for the collection primary image.
	Poster string `mapstructure:"poster"`
	// ActivePeriod is a "start,end" date range outside which the collection
	// is emptied. Dates are YYYY-MM-DD or recurring MM-DD.
	ActivePeriod string `mapstructure:"active_period"`
	// UpdateItemsSortNames enables item sort-name management for this
	// collection; nil falls back to the global default.
	UpdateItemsSortNames *bool `mapstructure:"update_items_sort_names"`
}

// AddressingMode identifies how a list spec locates its source list.
type AddressingMode int

const (
	ModeInvalid AddressingMode = iota
	ModeListID
	ModeNameUser
	ModeSourceURL
)

// Mode returns the addressing mode of the spec, or an error when the
// exactly-one-mode invariant does not hold.
func (s *ListSpec) Mode() (AddressingMode, error) {
	modes := 0
	mode := ModeInvalid
	if s.ID != 0 {
		modes++
		mode = ModeListID
	}
	if s.ListName != "" && s.UserName != "" {
		modes++
		mode = ModeNameUser
	}
	if s.Source != "" {
		modes++
		mode = ModeSourceURL
	}
	switch modes {
	case 0:
		return ModeInvalid, ErrNoAddressingMode
	case 1:
		return mode, nil
	default:
		return ModeInvalid, ErrAmbiguousAddressing
	}
}

// SortManaged reports whether item sort-name management applies to this list.
func (s *ListSpec) SortManaged(defaultValue bool) bool {
	if s.UpdateItemsSortNames != nil {
		return *s.UpdateItemsSortNames
	}
	return defaultValue
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Emby: EmbyConfig{
			BatchSize:           50,
			RequestDelaySeconds: 1,
			TimeoutSeconds:      30,
		},
		MDBList: MDBListConfig{
			BaseURL:        "https://api.mdblist.com",
			PageSize:       1000,
			TimeoutSeconds: 30,
		},
		Sync: SyncConfig{
			HoursBetweenRefresh:      12,
			DownloadManualLists:      true,
			DownloadMyLists:          false,
			UpdateCollectionSortName: true,
		},
		Refresh: RefreshConfig{
			MaxDaysSinceAdded:     10,
			MaxDaysSincePremiered: 30,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8587,
		},
		Database: DatabaseConfig{
			Path: "./data/collectarr.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.collectarr")
	}

	v.SetEnvPrefix("COLLECTARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.normalize()

	return cfg, nil
}

// normalize clamps out-of-range values to something usable.
func (c *Config) normalize() {
	if c.Emby.BatchSize <= 0 {
		c.Emby.BatchSize = 50
	}
	if c.Emby.RequestDelaySeconds < 0 {
		c.Emby.RequestDelaySeconds = 0
	}
	if c.MDBList.PageSize <= 0 {
		c.MDBList.PageSize = 1000
	}
	for i := range c.Lists {
		if c.Lists[i].Frequency == nil {
			continue
		}
		if *c.Lists[i].Frequency < 0 {
			*c.Lists[i].Frequency = 0
		}
		if *c.Lists[i].Frequency > 100 {
			*c.Lists[i].Frequency = 100
		}
	}
}

// Validate checks that the configuration can reach both remote services.
// List specs are validated individually at processing time so one bad list
// does not abort the rest.
func (c *Config) Validate() error {
	if c.Emby.ServerURL == "" {
		return errors.New("emby.server_url is required")
	}
	if c.Emby.UserID == "" {
		return errors.New("emby.user_id is required")
	}
	if c.Emby.APIKey == "" {
		return errors.New("emby.api_key is required")
	}
	if c.MDBList.APIKey == "" {
		return errors.New("mdblist.api_key is required")
	}
	for i := range c.Lists {
		if c.Lists[i].Name == "" {
			return fmt.Errorf("lists[%d]: name is required", i)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("emby.batch_size", 50)
	v.SetDefault("emby.request_delay_seconds", 1)
	v.SetDefault("emby.timeout_seconds", 30)

	v.SetDefault("mdblist.base_url", "https://api.mdblist.com")
	v.SetDefault("mdblist.page_size", 1000)
	v.SetDefault("mdblist.timeout_seconds", 30)

	v.SetDefault("sync.hours_between_refresh", 12)
	v.SetDefault("sync.download_manual_lists", true)
	v.SetDefault("sync.download_my_lists", false)
	v.SetDefault("sync.download_top_lists", false)
	v.SetDefault("sync.update_collection_sort_name", true)
	v.SetDefault("sync.update_items_sort_names_default", false)
	v.SetDefault("sync.use_list_descriptions", false)

	v.SetDefault("refresh.enabled", false)
	v.SetDefault("refresh.max_days_since_added", 10)
	v.SetDefault("refresh.max_days_since_premiered", 30)

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8587)

	v.SetDefault("database.path", "./data/collectarr.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Address returns the status server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
