package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Address  string
		HTTPPort string
	}
	Database struct {
		Driver string
		DSN    string
	}
	Logging struct {
		Level  string
		Format string
		File   string
	}
	Auth struct {
		JWTSecret  string
		AccessTTL  time.Duration
		RefreshTTL time.Duration
	}
}

// Load reads inventario.yaml (cwd or /etc/inventario) merged with
// INVENTARIO_* env vars. Missing file is fine, env/defaults apply.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("inventario")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/inventario")

	v.SetEnvPrefix("INVENTARIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.httpport", "8080")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "inventario.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("auth.jwtsecret", "change-me")
	v.SetDefault("auth.accessttl", "15m")
	v.SetDefault("auth.refreshttl", "24h")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
