package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers         []string
	KafkaGroupID         string
	EventsTopic          string
	CutoutRequestTopic   string
	CutoutCompletedTopic string

	// HEK event search
	HEKBaseURL         string
	SearchWorkers      int
	SearchIntervalDays int
	TimeFormatHEK      string

	// SSW cutout service
	CutoutBaseURL         string
	CutoutDataURLTemplate string
	PollInterval          time.Duration
	PollMaxAttempts       int
	MinFieldOfView        float64
	DispatcherWorkers     int
	CutoutDedupTTL        time.Duration

	// File storage
	FileSavePath   string
	FitsPathFormat string

	// Attribute defaults
	AttributeDefaultsPath string

	// Outbound HTTP
	ProviderRequestTimeout time.Duration
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "helioscope"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "helioscope123"),
		PostgresDB:       getEnv("POSTGRES_DB", "helioscope"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:         getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:         getEnv("KAFKA_GROUP_ID", "helioscope-platform"),
		EventsTopic:          getEnv("EVENTS_TOPIC", "retrieval.events.discovered"),
		CutoutRequestTopic:   getEnv("CUTOUT_REQUEST_TOPIC", "retrieval.cutouts.requested"),
		CutoutCompletedTopic: getEnv("CUTOUT_COMPLETED_TOPIC", "retrieval.cutouts.completed"),

		HEKBaseURL:         getEnv("HEK_BASE_URL", "http://www.lmsal.com/hek/her"),
		SearchWorkers:      getIntEnv("SEARCH_WORKERS", 5),
		SearchIntervalDays: getIntEnv("SEARCH_INTERVAL_DAYS", 60),
		TimeFormatHEK:      getEnv("TIME_FORMAT_HEK", "2006-01-02T15:04:05"),

		CutoutBaseURL:         getEnv("CUTOUT_BASE_URL", "http://www.lmsal.com/cgi-ssw/ssw_service_track_fov.sh"),
		CutoutDataURLTemplate: getEnv("CUTOUT_DATA_URL_TEMPLATE", "https://www.lmsal.com/solarsoft/archive/sdo/media/ssw/ssw_client/data/%s/"),
		PollInterval:          getDuration("POLL_INTERVAL", 60*time.Second),
		PollMaxAttempts:       getIntEnv("POLL_MAX_ATTEMPTS", 240),
		MinFieldOfView:        getFloatEnv("MIN_FIELD_OF_VIEW", 120),
		DispatcherWorkers:     getIntEnv("DISPATCHER_WORKERS", 30),
		CutoutDedupTTL:        getDuration("CUTOUT_DEDUP_TTL", 6*time.Hour),

		FileSavePath:   getEnv("FILE_SAVE_PATH", "files"),
		FitsPathFormat: getEnv("FITS_PATH_FORMAT", "fits/%s/%s"),

		AttributeDefaultsPath: getEnv("ATTRIBUTE_DEFAULTS_PATH", ""),

		ProviderRequestTimeout: getDuration("PROVIDER_REQUEST_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
