package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr         string
	WriteTimeout time.Duration
	DatabaseURL  string
	LogLevel     string
	LogFormat    string
	Redis        RedisConfig
	Kafka        KafkaConfig
	Resync       ResyncConfig
	Export       ExportConfig
}

// RedisConfig configures the optional Redis client. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures ingestion. No brokers means no consumer is started.
type KafkaConfig struct {
	Brokers           []string
	Group             string
	InternalTopic     string
	RegistryTopic     string
	CorrectionTopic   string
	ResyncTopic       string
	Partitions        int32
	ReplicationFactor int16
}

// ResyncConfig configures the bulk resync.
type ResyncConfig struct {
	BatchSize       int
	CursorKeepAlive time.Duration
	Trigger         string
	GuardTTL        time.Duration
}

// ExportConfig configures the discrepancy export. No bucket disables it.
type ExportConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether a Kafka consumer should run.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// Topics lists every inbound topic.
func (k KafkaConfig) Topics() []string {
	return append(k.UpdateTopics(), k.ResyncTopic)
}

// UpdateTopics lists the topics carrying clinician updates.
func (k KafkaConfig) UpdateTopics() []string {
	return []string{k.InternalTopic, k.RegistryTopic, k.CorrectionTopic}
}

// ResyncGroup is the consumer group of the resync trigger consumer. It is
// separate from Group so a rebuild never stalls update ingestion.
func (k KafkaConfig) ResyncGroup() string {
	return k.Group + "-resync"
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:         envOr("CONNECTION_ADDR", ":8080"),
		WriteTimeout: envDuration("CONNECTION_WRITE_TIMEOUT", 15*time.Minute),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		LogLevel:     envOr("LOG_LEVEL", "info"),
		LogFormat:    envOr("LOG_FORMAT", "json"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           envList("KAFKA_BROKERS"),
			Group:             envOr("KAFKA_GROUP", "connection-reconciler"),
			InternalTopic:     envOr("KAFKA_TOPIC_INTERNAL", "connection.internal-updates"),
			RegistryTopic:     envOr("KAFKA_TOPIC_REGISTRY", "connection.registry-updates"),
			CorrectionTopic:   envOr("KAFKA_TOPIC_CORRECTIONS", "connection.manual-corrections"),
			ResyncTopic:       envOr("KAFKA_TOPIC_RESYNC", "connection.resync"),
			Partitions:        int32(envInt("KAFKA_TOPIC_PARTITIONS", 3)),
			ReplicationFactor: int16(envInt("KAFKA_TOPIC_REPLICATION", 1)),
		},
		Resync: ResyncConfig{
			BatchSize:       envInt("RESYNC_BATCH_SIZE", 1000),
			CursorKeepAlive: envDuration("RESYNC_CURSOR_KEEPALIVE", 5*time.Minute),
			Trigger:         envOr("RESYNC_TRIGGER", "resync"),
			GuardTTL:        envDuration("RESYNC_GUARD_TTL", time.Minute),
		},
		Export: ExportConfig{
			Bucket:    os.Getenv("EXPORT_S3_BUCKET"),
			Region:    os.Getenv("EXPORT_S3_REGION"),
			Endpoint:  os.Getenv("EXPORT_S3_ENDPOINT"),
			PathStyle: os.Getenv("EXPORT_S3_PATH_STYLE") == "true",

			AccessKeyID:     os.Getenv("EXPORT_S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("EXPORT_S3_SECRET_ACCESS_KEY"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
