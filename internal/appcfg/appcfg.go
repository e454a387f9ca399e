// Package appcfg reads typed application settings from the wbf config (env + .env)
package appcfg

import (
	"log"
	"strconv"
	"strings"
	"time"
)

// Source - контракт конфига, *config.Config из wbf его реализует
type Source interface {
	GetString(key string) string
}

const (
	DefaultPort         = "5000"
	DefaultMaxBodyBytes = 10 << 20
	DefaultCascadePath  = "./assets/haarcascade_frontalface_default.xml"
	DefaultUsageTopic   = "operation-usage"
	DefaultUsageGroup   = "usage-ledger"
	DefaultRateLimitRPM = 60
	DefaultMaxPixels    = 40_000_000
)

type MinioConfig struct {
	Endpoint string
	User     string
	Pass     string
	UseSSL   bool
}

type CascadeConfig struct {
	Path   string
	Bucket string
	Object string
}

type KafkaConfig struct {
	Broker  string
	Topic   string
	GroupID string
}

type RateLimitConfig struct {
	RedisAddr string
	PerMinute int
	Window    time.Duration
}

type TraceConfig struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

type Config struct {
	Port         string
	GinMode      string
	LogLevel     string
	MaxBodyBytes int64
	CORSOrigins  []string

	// лимиты холста: входная картинка и результат resize
	MaxInputPixels  int64
	MaxOutputPixels int64

	Cascade   CascadeConfig
	Minio     MinioConfig
	Kafka     KafkaConfig
	Postgres  string
	RateLimit RateLimitConfig
	Trace     TraceConfig
}

// Load collects every setting; an empty value disables the corresponding integration.
func Load(src Source) Config {
	return Config{
		Port:         str(src, "APP_PORT", DefaultPort),
		GinMode:      str(src, "GIN_MODE", "release"),
		LogLevel:     str(src, "LOG_LEVEL", "info"),
		MaxBodyBytes: int64Val(src, "MAX_BODY_BYTES", DefaultMaxBodyBytes),
		CORSOrigins:  list(src, "CORS_ORIGINS", []string{"*"}),

		MaxInputPixels:  int64Val(src, "MAX_INPUT_PIXELS", DefaultMaxPixels),
		MaxOutputPixels: int64Val(src, "MAX_OUTPUT_PIXELS", DefaultMaxPixels),

		Cascade: CascadeConfig{
			Path:   str(src, "CASCADE_PATH", DefaultCascadePath),
			Bucket: str(src, "CASCADE_BUCKET", ""),
			Object: str(src, "CASCADE_OBJECT", ""),
		},
		Minio: MinioConfig{
			Endpoint: str(src, "MINIO_ENDPOINT", ""),
			User:     str(src, "MINIO_USER", ""),
			Pass:     str(src, "MINIO_PASS", ""),
			UseSSL:   boolVal(src, "MINIO_USE_SSL", false),
		},
		Kafka: KafkaConfig{
			Broker:  str(src, "KAFKA_BROKER", ""),
			Topic:   str(src, "KAFKA_TOPIC", DefaultUsageTopic),
			GroupID: str(src, "KAFKA_GROUPID", DefaultUsageGroup),
		},
		Postgres: str(src, "POSTGRES_DSN", ""),
		RateLimit: RateLimitConfig{
			RedisAddr: str(src, "REDIS_ADDR", ""),
			PerMinute: int(int64Val(src, "RATE_LIMIT_RPM", DefaultRateLimitRPM)),
			Window:    time.Minute,
		},
		Trace: TraceConfig{
			Exporter:     strings.ToLower(str(src, "TRACE_EXPORTER", "none")),
			OTLPEndpoint: str(src, "OTLP_ENDPOINT", ""),
			OTLPInsecure: boolVal(src, "OTLP_INSECURE", true),
		},
	}
}

// CascadeFromMinio tells whether the face cascade is read from object storage instead of the filesystem.
func (c Config) CascadeFromMinio() bool {
	return c.Cascade.Bucket != "" && c.Cascade.Object != "" && c.Minio.Endpoint != ""
}

func str(src Source, key, def string) string {
	if v := strings.TrimSpace(src.GetString(key)); v != "" {
		return v
	}
	return def
}

func int64Val(src Source, key string, def int64) int64 {
	raw := strings.TrimSpace(src.GetString(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		log.Printf("Incorrect value %q for %s, using default %d", raw, key, def)
		return def
	}
	return v
}

func boolVal(src Source, key string, def bool) bool {
	raw := strings.TrimSpace(src.GetString(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("Incorrect value %q for %s, using default %t", raw, key, def)
		return def
	}
	return v
}

func list(src Source, key string, def []string) []string {
	raw := strings.TrimSpace(src.GetString(key))
	if raw == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
