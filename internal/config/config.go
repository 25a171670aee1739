package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
)

// Config holds application configuration.
type Config struct {
	AppName       string
	AppVersion    string
	Environment   string
	HTTPAddr      string
	AuthJWTSecret string
	AdminToken    string
	NodeID        int64

	Telemetry TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis RedisConfig

	ObjectStorage ObjectStorageConfig

	Profile ProfileConfig
}

type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelEndpoint  string
	OtelProtocol  string
	SamplingRatio float64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type ObjectStorageConfig struct {
	// Driver is "gcs" or "local".
	Driver        string
	Bucket        string
	CDNDomain     string
	PublicBaseURL string
	EmulatorHost  string
	LocalRoot     string
}

type ProfileConfig struct {
	// AtomicWrites wraps every relational write of one create/update in a single
	// transaction and discards uploaded blobs when the transaction fails.
	AtomicWrites       bool
	LockTTLSeconds     int
	ImagePolicyPath    string
	InvalidationPrefix string
	// WritesPerMinute and WriteBurst bound create/update calls per owner when
	// Redis is configured. Zero disables the limit.
	WritesPerMinute    int
	WriteBurst         int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "directory"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AdminToken:    strings.TrimSpace(getenv("ADMIN_TOKEN", "")),
		NodeID:        int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "directory"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(getenv("LOG_LEVEL", "info")),
			LogFormat:     strings.ToLower(getenv("LOG_FORMAT", "json")),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OtelEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			OtelProtocol:  strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},

		ObjectStorage: ObjectStorageConfig{
			Driver:        strings.ToLower(getenv("OBJECT_STORAGE_DRIVER", "local")),
			Bucket:        strings.TrimSpace(getenv("OBJECT_STORAGE_BUCKET", "business-images")),
			CDNDomain:     strings.TrimSpace(getenv("OBJECT_STORAGE_CDN_DOMAIN", "")),
			PublicBaseURL: strings.TrimRight(strings.TrimSpace(getenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "")), "/"),
			EmulatorHost:  strings.TrimSpace(getenv("STORAGE_EMULATOR_HOST", "")),
			LocalRoot:     getenv("OBJECT_STORAGE_LOCAL_ROOT", "./data/objects"),
		},

		Profile: ProfileConfig{
			AtomicWrites:       getenvBool("PROFILE_WRITE_ATOMIC", true),
			LockTTLSeconds:     getenvInt("PROFILE_LOCK_TTL_SECONDS", 30),
			ImagePolicyPath:    getenv("IMAGE_POLICY_PATH", "."),
			InvalidationPrefix: getenv("VIEW_INVALIDATION_PREFIX", "directory"),
			WritesPerMinute:    getenvInt("PROFILE_WRITES_PER_MINUTE", 30),
			WriteBurst:         getenvInt("PROFILE_WRITE_BURST", 10),
		},
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
