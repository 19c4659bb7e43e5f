package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env     string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP    HTTPConfig    `yaml:"http"`
	Storage StorageConfig `yaml:"storage"`
	Tokens  TokensConfig  `yaml:"tokens"`
	SMTP    SMTPConfig    `yaml:"smtp"`
}

type HTTPConfig struct {
	Port          int           `yaml:"port" env-default:"4000"`
	Timeout       time.Duration `yaml:"timeout" env-default:"10s"`
	SecureCookies bool          `yaml:"secure_cookies" env-default:"false"`
}

type StorageConfig struct {
	Type       string      `yaml:"type" env-default:"mongo"`
	Mongo      MongoConfig `yaml:"mongo"`
	SQLitePath string      `yaml:"sqlite_path"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" env:"MONGO_URI"`
	Database string `yaml:"database" env-default:"userservice"`
}

type TokensConfig struct {
	AccessSecret        string        `yaml:"access_secret" env:"JWT_ACCESS_SECRET" env-required:"true"`
	Pepper              string        `yaml:"pepper" env:"TOKEN_PEPPER" env-required:"true"`
	AccessTTL           time.Duration `yaml:"access_ttl" env-default:"1h"`
	RefreshTTL          time.Duration `yaml:"refresh_ttl" env-default:"168h"`
	VerificationCodeTTL time.Duration `yaml:"verification_code_ttl" env-default:"10m"`
	ResetTokenTTL       time.Duration `yaml:"reset_token_ttl" env-default:"10m"`
}

type SMTPConfig struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     int    `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	Username string `yaml:"username" env:"SMTP_USER"`
	Password string `yaml:"password" env:"SMTP_PASS"`
	From     string `yaml:"from" env:"SMTP_FROM"`
}

func LoadConfig(path string) *Config {
	var cfg Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file not found: " + path)
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		panic("failed to read config: " + err.Error())
	}

	return &cfg
}
