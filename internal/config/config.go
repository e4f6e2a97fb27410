package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	BaseURL          string
	OpsInterval      time.Duration
	KitchenInterval  time.Duration
	HTTPTimeout      time.Duration
	HTTPPort         string
	GRPCPort         string
	LogLevel         string
	LogFormat        string
	DSN              string
	KafkaBrokers     []string
	KafkaGroupID     string
	KafkaTopic       string
	RabbitURL        string
	AuditBatchSize   int
	AuditTimeout     time.Duration
	AuditChannelSize int
}

// LoadConfig reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func LoadConfig() *Config {
	_ = godotenv.Load()

	brokersStr := getEnv("KAFKA_BROKERS", "")
	var brokers []string
	if brokersStr != "" {
		brokers = strings.Split(brokersStr, ",")
	}
	return &Config{
		BaseURL:          strings.TrimRight(getEnv("POS_BASE_URL", "http://127.0.0.1:5000"), "/"),
		OpsInterval:      getDuration("POS_OPS_INTERVAL", 5*time.Second),
		KitchenInterval:  getDuration("POS_KITCHEN_INTERVAL", 3*time.Second),
		HTTPTimeout:      getDuration("POS_HTTP_TIMEOUT", 10*time.Second),
		HTTPPort:         getEnv("APP_PORT", "9000"),
		GRPCPort:         getEnv("GRPC_PORT", "9001"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
		DSN:              getEnv("APP_DSN", ""),
		KafkaBrokers:     brokers,
		KafkaGroupID:     getEnv("KAFKA_GROUP_ID", "possync-audit"),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "possync-audit"),
		RabbitURL:        getEnv("RABBITMQ_URL", ""),
		AuditBatchSize:   getInt("AUDIT_BATCH_SIZE", 10),
		AuditTimeout:     getDuration("AUDIT_TIMEOUT", 2*time.Second),
		AuditChannelSize: getInt("AUDIT_CHANNEL_SIZE", 256),
	}
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func getInt(key string, defaultVal int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%s", c.HTTPPort)
}

func (c *Config) GRPCAddr() string {
	return fmt.Sprintf(":%s", c.GRPCPort)
}
