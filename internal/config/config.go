package config

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	PayOS    PayOSConfig    `mapstructure:"payos"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	WalletEvents string `mapstructure:"wallet_events"`
}

// PayOSConfig holds the merchant credentials for the payment gateway.
// ChecksumKey is the shared secret for request signing and webhook
// verification.
type PayOSConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	ClientID    string `mapstructure:"client_id"`
	APIKey      string `mapstructure:"api_key"`
	ChecksumKey string `mapstructure:"checksum_key"`
	ReturnURL   string `mapstructure:"return_url"`
	CancelURL   string `mapstructure:"cancel_url"`
}

type BusinessConfig struct {
	Currency              string `mapstructure:"currency"`
	PaymentTimeoutMinutes int    `mapstructure:"payment_timeout_minutes"`
	MaxRetryCount         int    `mapstructure:"max_retry_count"`
}

var GlobalConfig *Config

// LoadConfig reads and unmarshals the yaml config file.
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		logrus.Fatalf("failed to read config file: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		logrus.Fatalf("failed to parse config file: %v", err)
	}

	GlobalConfig = config
	return config
}
