package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Zoho      ZohoConfig      `yaml:"zoho" mapstructure:"zoho"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Dashboard DashboardConfig `yaml:"dashboard" mapstructure:"dashboard"`
	Areas     AreasConfig     `yaml:"areas" mapstructure:"areas"`
	Data      DataConfig      `yaml:"data" mapstructure:"data"`
}

// ZohoConfig holds Zoho CRM OAuth credentials.
type ZohoConfig struct {
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	RefreshToken string `yaml:"refresh_token" mapstructure:"refresh_token"`
	Region       string `yaml:"region" mapstructure:"region"`
}

// StoreConfig configures the snapshot/token store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the dashboard API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SLAHours holds the funnel stage-transition SLAs in hours.
type SLAHours struct {
	NC1ToNC2 float64 `yaml:"nc1_to_nc2" mapstructure:"nc1_to_nc2"`
	NC2ToNC3 float64 `yaml:"nc2_to_nc3" mapstructure:"nc2_to_nc3"`
}

// DashboardConfig holds the aggregation tunables.
type DashboardConfig struct {
	Timezone          string   `yaml:"timezone" mapstructure:"timezone"`
	LookbackDays      int      `yaml:"lookback_days" mapstructure:"lookback_days"`
	NCLookbackDays    int      `yaml:"nc_lookback_days" mapstructure:"nc_lookback_days"`
	OverdueMinutes    int      `yaml:"overdue_minutes" mapstructure:"overdue_minutes"`
	MinHourCallVolume int      `yaml:"min_hour_call_volume" mapstructure:"min_hour_call_volume"`
	NCSlaHours        SLAHours `yaml:"nc_sla_hours" mapstructure:"nc_sla_hours"`
	CategoryFields    []string `yaml:"category_fields" mapstructure:"category_fields"`
	OwnerExclusions   []string `yaml:"owner_exclusions" mapstructure:"owner_exclusions"`
	ConvertKeywords   []string `yaml:"convert_keywords" mapstructure:"convert_keywords"`
	RejectKeywords    []string `yaml:"reject_keywords" mapstructure:"reject_keywords"`
	TopAreas          int      `yaml:"top_areas" mapstructure:"top_areas"`
}

// AreasConfig points at an optional gazetteer override file.
type AreasConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// DataConfig configures where snapshot JSON files are written.
type DataConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CRMPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Credentials default to empty so the env-only path still
	// binds through AutomaticEnv.
	v.SetDefault("zoho.client_id", "")
	v.SetDefault("zoho.client_secret", "")
	v.SetDefault("zoho.refresh_token", "")
	v.SetDefault("zoho.region", "in")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "data/crm-pulse.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("data.dir", "data")
	v.SetDefault("dashboard.timezone", "Asia/Kolkata")
	v.SetDefault("dashboard.lookback_days", 7)
	v.SetDefault("dashboard.nc_lookback_days", 30)
	v.SetDefault("dashboard.overdue_minutes", 30)
	v.SetDefault("dashboard.min_hour_call_volume", 20)
	v.SetDefault("dashboard.nc_sla_hours.nc1_to_nc2", 4)
	v.SetDefault("dashboard.nc_sla_hours.nc2_to_nc3", 24)
	v.SetDefault("dashboard.top_areas", 5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the fields the given command mode depends on are
// set. Mode "fetch" covers every command that talks to the CRM API.
func (c *Config) Validate(mode string) error {
	var problems []string

	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.Path == "" {
				problems = append(problems, "store.path is required for the sqlite driver")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required for the postgres driver")
			}
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
	}

	switch mode {
	case "fetch":
		if c.Zoho.ClientID == "" {
			problems = append(problems, "zoho.client_id is required")
		}
		if c.Zoho.ClientSecret == "" {
			problems = append(problems, "zoho.client_secret is required")
		}
		if c.Zoho.RefreshToken == "" {
			problems = append(problems, "zoho.refresh_token is required")
		}
		checkStore()
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		checkStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
