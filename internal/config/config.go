package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ServerPort    string `mapstructure:"SERVER_PORT"`
	BackendURL    string `mapstructure:"BACKEND_URL"`
	NominatimURL  string `mapstructure:"NOMINATIM_URL"`
	OSRMURL       string `mapstructure:"OSRM_URL"`
	MediaStoreURL string `mapstructure:"MEDIA_STORE_URL"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	LocationInterval time.Duration `mapstructure:"LOCATION_INTERVAL"`
	LocationTimeout  time.Duration `mapstructure:"LOCATION_TIMEOUT"`
	MediaChunkLength time.Duration `mapstructure:"MEDIA_CHUNK_LENGTH"`
	CountdownSeconds int           `mapstructure:"COUNTDOWN_SECONDS"`
}

func Load() Config {
	viper.AutomaticEnv()
	viper.SetDefault("SERVER_PORT", ":8090")
	viper.SetDefault("BACKEND_URL", "http://localhost:8000")
	viper.SetDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org")
	viper.SetDefault("OSRM_URL", "https://router.project-osrm.org")
	viper.SetDefault("MEDIA_STORE_URL", "")
	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("LOCATION_INTERVAL", "5s")
	viper.SetDefault("LOCATION_TIMEOUT", "10s")
	viper.SetDefault("MEDIA_CHUNK_LENGTH", "30s")
	viper.SetDefault("COUNTDOWN_SECONDS", 3)

	var cfg Config
	_ = viper.Unmarshal(&cfg)
	return cfg
}
