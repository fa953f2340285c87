package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Log       LogConfig        `mapstructure:"log"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	API       APIConfig        `mapstructure:"api"`
	Models    []ModelConfig    `mapstructure:"models"`
	Resources []ResourceConfig `mapstructure:"resources"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// APIConfig holds the defaults every mounted resource inherits.
type APIConfig struct {
	BasePath        string `mapstructure:"base_path"`
	Version         int    `mapstructure:"version"`
	DefaultPageSize int    `mapstructure:"default_page_size"`
	MaxPageSize     int    `mapstructure:"max_page_size"`
}

type PrimaryKeyConfig struct {
	Field     string `mapstructure:"field"`
	Type      string `mapstructure:"type"`
	Generated bool   `mapstructure:"generated"`
}

type EnumMemberConfig struct {
	Name  string `mapstructure:"name"`
	Value any    `mapstructure:"value"`
}

type RelationConfig struct {
	Type          string `mapstructure:"type"` // one_to_many or many_to_many
	Target        string `mapstructure:"target"`
	TargetKey     string `mapstructure:"target_key"`
	TargetPK      string `mapstructure:"target_pk"`
	JoinTable     string `mapstructure:"join_table"`
	SourceJoinKey string `mapstructure:"source_join_key"`
	TargetJoinKey string `mapstructure:"target_join_key"`
}

type FieldConfig struct {
	Name     string             `mapstructure:"name"`
	Type     string             `mapstructure:"type"`
	Nullable bool               `mapstructure:"nullable"`
	Enum     []EnumMemberConfig `mapstructure:"enum"`
	Relation *RelationConfig    `mapstructure:"relation"`
}

type ModelConfig struct {
	Name       string           `mapstructure:"name"`
	Table      string           `mapstructure:"table"`
	PrimaryKey PrimaryKeyConfig `mapstructure:"primary_key"`
	SoftDelete string           `mapstructure:"soft_delete"` // marker column, empty when unsupported
	Settable   []string         `mapstructure:"settable"`
	Editable   []string         `mapstructure:"editable"`
	Locked     []string         `mapstructure:"locked"`
	Fields     []FieldConfig    `mapstructure:"fields"`
}

// CapabilityConfig mirrors the c/r/u/d/s permission bits of a resource.
type CapabilityConfig struct {
	Create     bool `mapstructure:"create"`
	Read       bool `mapstructure:"read"`
	Update     bool `mapstructure:"update"`
	Delete     bool `mapstructure:"delete"`
	SoftDelete bool `mapstructure:"soft_delete"`
}

// FilterConfig describes the output post-processing applied to every
// serialized row. Keys are wire (lowerCamelCase) names; computed values are
// expr-lang expressions evaluated against the serialized row.
type FilterConfig struct {
	Omit     []string         `mapstructure:"omit"`
	Computed []ComputedConfig `mapstructure:"computed"`
}

// ComputedConfig is a list entry rather than a map key because viper folds
// map keys to lower case.
type ComputedConfig struct {
	Name       string `mapstructure:"name"`
	Expression string `mapstructure:"expression"`
}

type ResourceConfig struct {
	Name          string           `mapstructure:"name"`
	Model         string           `mapstructure:"model"`
	BasePath      string           `mapstructure:"base_path"`
	Version       *int             `mapstructure:"version"`
	ListSuffix    string           `mapstructure:"list_suffix"`
	Capabilities  CapabilityConfig `mapstructure:"capabilities"`
	Required      []string         `mapstructure:"required"`
	Timezone      string           `mapstructure:"timezone"`
	UpdatePolicy  string           `mapstructure:"update_policy"`  // lenient or strict
	SerializeMode string           `mapstructure:"serialize_mode"` // best_effort or strict
	Filter        *FilterConfig    `mapstructure:"filter"`
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.IsSQLite() {
		// Times are written in the layout SQLite's date functions understand.
		const opts = "?_time_format=sqlite"
		if d.Name == ":memory:" {
			return ":memory:" + opts
		}
		return d.Path + "/" + d.Name + ".db" + opts
	}
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslMode)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

// Load reads app.yaml from the working directory (or two levels up) and
// applies environment overrides.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("../..")
	return read(v)
}

// LoadFile reads the configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	return read(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("api.base_path", "/api")
	v.SetDefault("api.default_page_size", 10)
	v.SetDefault("api.max_page_size", 100)

	v.SetEnvPrefix("CRUDKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func read(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross references between resources and models.
func (c *Config) Validate() error {
	models := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if m.Name == "" {
			return fmt.Errorf("model without name")
		}
		if models[m.Name] {
			return fmt.Errorf("duplicate model %q", m.Name)
		}
		models[m.Name] = true
	}

	seen := make(map[string]bool, len(c.Resources))
	for _, r := range c.Resources {
		if r.Name == "" {
			return fmt.Errorf("resource without name")
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate resource %q", r.Name)
		}
		seen[r.Name] = true
		if !models[r.Model] {
			return fmt.Errorf("resource %q references unknown model %q", r.Name, r.Model)
		}
		switch r.UpdatePolicy {
		case "", "lenient", "strict":
		default:
			return fmt.Errorf("resource %q: invalid update_policy %q", r.Name, r.UpdatePolicy)
		}
		switch r.SerializeMode {
		case "", "best_effort", "strict":
		default:
			return fmt.Errorf("resource %q: invalid serialize_mode %q", r.Name, r.SerializeMode)
		}
	}
	return nil
}
