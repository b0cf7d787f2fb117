package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"local"`
	Tokens     `yaml:"tokens"`
	Links      `yaml:"links"`
	RabbitMQ   `yaml:"rabbitmq"`
	Postgres   `yaml:"postgres"`
	Redis      `yaml:"redis"`
	S3         `yaml:"s3"`
	SMTP       `yaml:"smtp"`
	RateLimit  `yaml:"rate_limit"`
	HTTPServer `yaml:"http_server"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:8000"`
	// Timeout bounds reading request headers. Bodies get ReadTimeout, which
	// must leave room for MaxUploadSize on a slow link.
	Timeout      time.Duration `yaml:"timeout" env-default:"4s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env-default:"60s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env-default:"60s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env-default:"60s"`
	// MaxUploadSize bounds multipart bodies for avatar and product images.
	MaxUploadSize int64 `yaml:"max_upload_size" env-default:"26214400"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"postgres"`
	Port     int    `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-required:"true"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-required:"true"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-required:"true"`
	SSLMode  string `yaml:"sslmode" env:"POSTGRES_SSLMODE" env-default:"disable"`
}

type Redis struct {
	// Addr may be empty, the per-email limiter then falls back to memory.
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Tokens struct {
	Secret               string        `yaml:"secret" env:"JWT_SECRET" env-required:"true"`
	AccessTokenTTL       time.Duration `yaml:"access_token_ttl" env-default:"15m"`
	VerificationTokenTTL time.Duration `yaml:"verification_token_ttl" env-default:"24h"`
	ResetTokenTTL        time.Duration `yaml:"reset_token_ttl" env-default:"10h"`
	PurgeInterval        time.Duration `yaml:"purge_interval" env-default:"10m"`
}

type Links struct {
	Verification  string `yaml:"verification" env:"VERIFICATION_LINK" env-required:"true"`
	PasswordReset string `yaml:"password_reset" env:"PASSWORD_RESET_LINK" env-required:"true"`
}

type RabbitMQ struct {
	URL       string `yaml:"url" env:"RABBITMQ_URL" env-required:"true"`
	QueueName string `yaml:"queue_name" env-default:"mail"`
}

type S3 struct {
	Bucket        string `yaml:"bucket" env:"S3_BUCKET" env-required:"true"`
	Region        string `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
	BaseEndpoint  string `yaml:"base_endpoint" env:"S3_BASE_ENDPOINT"`
	AccessKey     string `yaml:"access_key" env:"S3_ACCESS_KEY"`
	SecretKey     string `yaml:"secret_key" env:"S3_SECRET_KEY"`
	PublicBaseURL string `yaml:"public_base_url" env:"S3_PUBLIC_BASE_URL" env-required:"true"`
}

type SMTP struct {
	Host     string `yaml:"host" env:"SMTP_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	Username string `yaml:"username" env:"SMTP_USERNAME"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"SMTP_FROM" env-default:"no-reply@marketplace.local"`
}

type RateLimit struct {
	MailPerHour int `yaml:"mail_per_hour" env-default:"3"`
}

// MustLoad reads the config file from -config flag or CONFIG_PATH.
func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		panic("config path is empty")
	}

	return MustLoadPath(path)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("Config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("Failed to read config: " + err.Error())
	}

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
