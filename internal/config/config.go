// Package config предоставляет структуры и функцию для парсинга и загрузки конфига.
// Конфигурация загружается один раз при старте процесса и далее не изменяется.
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек.
type Config struct {
	Env                     string        `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string        `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	StorageTimeout          time.Duration `yaml:"storage_timeout" env:"STORAGE_TIMEOUT" env-default:"5s"`
	AppURL                  string        `yaml:"app_url" env:"APP_URL"`
	CheckoutURL             string        `yaml:"checkout_url" env:"CHECKOUT_URL"`
	RedisConnection         `yaml:"redis_connection"`
	RabbitMQ                `yaml:"rabbitmq"`
	SMTP                    `yaml:"smtp"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
}

// HTTPServer структура для настройки сервера.
type HTTPServer struct {
	AddressHTTP    string        `yaml:"addresshttp" env:"ADDRESS_HTTP" env-default:":8080"`
	TimeoutHTTP    time.Duration `yaml:"timeouthttp" env:"TIMEOUT_HTTP" env-default:"5s"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT" env-default:"60s"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-default:"*"`
}

// RedisConnection структура для настройки подключения к redis.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"ADDRESS_REDIS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user" env:"REDIS_USER"`
	DB           int           `yaml:"db" env:"REDIS_DB"`
	MaxRetries   int           `yaml:"max_retries" env:"REDIS_MAX_RETRIES" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env:"REDIS_TIMEOUT" env-default:"3s"`
	PlanCacheTTL time.Duration `yaml:"plan_cache_ttl" env:"PLAN_CACHE_TTL" env-default:"5m"`
}

// RabbitMQ структура для настройки подключения к брокеру сообщений.
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"rabbitmq_url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"rabbitmq_max_retries" env:"RABBITMQ_MAX_RETRIES" env-default:"5"`
	RabbitMQRetryDelay time.Duration `yaml:"rabbitmq_retry_delay" env:"RABBITMQ_RETRY_DELAY" env-default:"3s"`
}

// SMTP структура для настройки исходящей почты.
type SMTP struct {
	SMTPHost string `yaml:"smtp_host" env:"SMTP_HOST"`
	SMTPPort string `yaml:"smtp_port" env:"SMTP_PORT" env-default:"587"`
	SMTPUser string `yaml:"smtp_user" env:"SMTP_USER"`
	SMTPPass string `yaml:"smtp_pass" env:"SMTP_PASS"`
	FromName string `yaml:"from_name" env:"FROM_NAME" env-default:"Service Change Alerts"`
}

// JWTToken структура для работы с jwt-токенами.
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET"`
	SessionTTL   time.Duration `yaml:"session_ttl" env:"SESSION_TTL" env-default:"720h"`
	ActionTTL    time.Duration `yaml:"action_ttl" env:"ACTION_TTL" env-default:"15m"`
}

// MustLoad загружает конфиг по пути из CONFIG_PATH и завершает процесс при ошибке.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}
