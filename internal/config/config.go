package config

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Telegram   TelegramConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	APIKeys    APIKeysConfig
	Server     ServerConfig
	Dialog     DialogConfig
	Delivery   DeliveryConfig
	LogLevel   string
	CitiesFile string
}

type TelegramConfig struct {
	BotToken string
}

type DatabaseConfig struct {
	URL          string
	LogLevel     string
	MaxIdleConns int
	MaxOpenConns int
}

type RedisConfig struct {
	Addr string
}

type APIKeysConfig struct {
	Weather string
	News    string
}

type ServerConfig struct {
	Port string
}

type DialogConfig struct {
	TimeoutSeconds int
}

type DeliveryConfig struct {
	QueueCapacity int
	Workers       int
}

// Load reads configuration from environment variables and an optional .env file.
func Load() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("database.url", "")
	viper.SetDefault("database.log_level", "silent")
	viper.SetDefault("database.max_idle_conns", "10")
	viper.SetDefault("database.max_open_conns", "100")
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("weather.api_key", "")
	viper.SetDefault("news.api_key", "")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("dialog.timeout_seconds", "300")
	viper.SetDefault("delivery.queue_capacity", "100")
	viper.SetDefault("delivery.workers", "5")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("cities.file", "")

	// Map environment variables to config keys
	viper.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN")
	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("database.log_level", "DATABASE_LOG_LEVEL")
	viper.BindEnv("database.max_idle_conns", "DATABASE_MAX_IDLE_CONNS")
	viper.BindEnv("database.max_open_conns", "DATABASE_MAX_OPEN_CONNS")
	viper.BindEnv("redis.addr", "REDIS_ADDR")
	viper.BindEnv("weather.api_key", "WEATHER_API_KEY")
	viper.BindEnv("news.api_key", "NEWS_API_KEY")
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("dialog.timeout_seconds", "DIALOG_TIMEOUT_SECONDS")
	viper.BindEnv("delivery.queue_capacity", "DELIVERY_QUEUE_CAPACITY")
	viper.BindEnv("delivery.workers", "DELIVERY_WORKERS")
	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("cities.file", "CITIES_FILE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logrus.Warn("Config file not found, using defaults and environment variables")
		} else {
			logrus.WithField("error", err).Error("Error reading config file")
		}
	}

	return &Config{
		Telegram: TelegramConfig{
			BotToken: viper.GetString("telegram.bot_token"),
		},
		Database: DatabaseConfig{
			URL:          viper.GetString("database.url"),
			LogLevel:     viper.GetString("database.log_level"),
			MaxIdleConns: viper.GetInt("database.max_idle_conns"),
			MaxOpenConns: viper.GetInt("database.max_open_conns"),
		},
		Redis: RedisConfig{
			Addr: viper.GetString("redis.addr"),
		},
		APIKeys: APIKeysConfig{
			Weather: viper.GetString("weather.api_key"),
			News:    viper.GetString("news.api_key"),
		},
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
		},
		Dialog: DialogConfig{
			TimeoutSeconds: viper.GetInt("dialog.timeout_seconds"),
		},
		Delivery: DeliveryConfig{
			QueueCapacity: viper.GetInt("delivery.queue_capacity"),
			Workers:       viper.GetInt("delivery.workers"),
		},
		LogLevel:   viper.GetString("log.level"),
		CitiesFile: viper.GetString("cities.file"),
	}
}
