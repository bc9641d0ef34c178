package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Mirror backends
const (
	MirrorNone  = "none"
	MirrorNATS  = "nats"
	MirrorKafka = "kafka"
)

// Config holds the auction server settings.
type Config struct {
	Port         string
	ClientOrigin string
	LogLevel     zerolog.Level
	ItemsFile    string // optional YAML catalog

	MirrorBackend     string
	MirrorBuffer      int
	NATSURL           string
	NATSStream        string
	NATSSubjectPrefix string
	KafkaBrokers      []string
	KafkaTopic        string
}

// NewConfigFromEnv reads the environment (with defaults).
func NewConfigFromEnv() (Config, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(getEnv("LOG_LEVEL", "info")))
	if err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	cfg := Config{
		Port:              getEnv("PORT", "4000"),
		ClientOrigin:      getEnv("CLIENT_ORIGIN", "*"),
		LogLevel:          level,
		ItemsFile:         getEnv("ITEMS_FILE", ""),
		MirrorBackend:     strings.ToLower(getEnv("MIRROR_BACKEND", MirrorNone)),
		MirrorBuffer:      getEnvAsInt("MIRROR_BUFFER", 1024),
		NATSURL:           getEnv("NATS_URL", "nats://localhost:4222"),
		NATSStream:        getEnv("NATS_STREAM", "AUCTION_EVENTS"),
		NATSSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "auction.events"),
		KafkaBrokers:      splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "auction-events"),
	}

	switch cfg.MirrorBackend {
	case MirrorNone, MirrorNATS, MirrorKafka:
	default:
		return Config{}, fmt.Errorf("unknown MIRROR_BACKEND %q", cfg.MirrorBackend)
	}
	if cfg.MirrorBackend == MirrorKafka && len(cfg.KafkaBrokers) == 0 {
		return Config{}, fmt.Errorf("KAFKA_BROKERS is required for the kafka mirror")
	}
	return cfg, nil
}

// Origins returns the allowed CORS origins.
func (c Config) Origins() []string {
	return splitList(c.ClientOrigin)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
