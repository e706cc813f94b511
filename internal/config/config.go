package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Addr            string
	DatabaseURL     string
	AuthSecret      string
	AllowDebugToken bool
	DebugToken      string
	KafkaBrokers    []string
	KafkaTopic      string
	ArchiveBucket   string
	ArchivePrefix   string
}

const (
	defaultAddr       = ":8070"
	defaultKafkaTopic = "caseflow.status-changes"
)

func Load() (Config, error) {
	cfg := Config{
		Addr:            getEnv("CASEFLOW_ADDR", defaultAddr),
		DatabaseURL:     firstNonEmpty(os.Getenv("CASEFLOW_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		AuthSecret:      os.Getenv("CASEFLOW_AUTH_SECRET"),
		AllowDebugToken: getBool("CASEFLOW_ALLOW_DEBUG_TOKEN", false),
		DebugToken:      os.Getenv("CASEFLOW_DEBUG_TOKEN"),
		KafkaBrokers:    splitList(os.Getenv("CASEFLOW_KAFKA_BROKERS")),
		KafkaTopic:      getEnv("CASEFLOW_KAFKA_TOPIC", defaultKafkaTopic),
		ArchiveBucket:   os.Getenv("CASEFLOW_ARCHIVE_BUCKET"),
		ArchivePrefix:   os.Getenv("CASEFLOW_ARCHIVE_PREFIX"),
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL or CASEFLOW_DATABASE_URL required")
	}
	if cfg.AuthSecret == "" && !cfg.AllowDebugToken {
		return Config{}, fmt.Errorf("CASEFLOW_AUTH_SECRET required when CASEFLOW_ALLOW_DEBUG_TOKEN unset")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
