package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissing is returned by Validate when a required value is absent.
var ErrMissing = errors.New("required configuration missing")

// Config is the root configuration for mongo-bootstrap.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Provision ProvisionConfig `mapstructure:"provision"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	LogLevel     string `mapstructure:"log_level"`
}

// MongoConfig describes the administrative session. Credentials are optional
// when the URI already carries them.
type MongoConfig struct {
	URI                    string        `mapstructure:"uri"`
	AdminUser              string        `mapstructure:"admin_user"`
	AdminPassword          string        `mapstructure:"admin_password"`
	AuthSource             string        `mapstructure:"auth_source"`
	ServerSelectionTimeout time.Duration `mapstructure:"server_selection_timeout"`
}

// ProvisionConfig holds the user to create. Timeout of zero leaves the
// driver's own timeouts in charge.
type ProvisionConfig struct {
	Database string        `mapstructure:"database"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// envBindings maps config keys to the unprefixed variables set by the
// database container.
var envBindings = map[string]string{
	"provision.database":             "MONGO_DATABASE",
	"provision.user":                 "MONGO_USER",
	"provision.password":             "MONGO_PASSWORD",
	"mongo.uri":                      "MONGO_URI",
	"mongo.admin_user":               "MONGO_INITDB_ROOT_USERNAME",
	"mongo.admin_password":           "MONGO_INITDB_ROOT_PASSWORD",
	"mongo.auth_source":              "MONGO_AUTH_SOURCE",
	"mongo.server_selection_timeout": "MONGO_SERVER_SELECTION_TIMEOUT",
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables. MONGO_* variables are read as-is; everything else
// uses the BOOTSTRAP_ prefix (e.g. BOOTSTRAP_SERVER_PORT).
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("BOOTSTRAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the user to provision is fully described. The error
// names every missing environment variable.
func (c *Config) Validate() error {
	var missing []string
	if c.Provision.Database == "" {
		missing = append(missing, envBindings["provision.database"])
	}
	if c.Provision.User == "" {
		missing = append(missing, envBindings["provision.user"])
	}
	if c.Provision.Password == "" {
		missing = append(missing, envBindings["provision.password"])
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.service_name", "mongo-bootstrap")
	v.SetDefault("telemetry.log_level", "info")

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.admin_user", "")
	v.SetDefault("mongo.admin_password", "")
	v.SetDefault("mongo.auth_source", "admin")
	v.SetDefault("mongo.server_selection_timeout", 30*time.Second)

	v.SetDefault("provision.database", "")
	v.SetDefault("provision.user", "")
	v.SetDefault("provision.password", "")
	v.SetDefault("provision.timeout", time.Duration(0))
}
