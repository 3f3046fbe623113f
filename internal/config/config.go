package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Qdrant    QdrantConfig
	Gemini    GeminiConfig
	Storage   StorageConfig
	Minio     MinioConfig
	Audio     AudioConfig
	TTS       TTSConfig
	Auth      AuthConfig
	Interview InterviewConfig
	Realtime  RealtimeConfig
	Sweeper   SweeperConfig
	Logging   LoggingConfig
	Tracing   TracingConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Enabled    bool
}

type GeminiConfig struct {
	APIKey     string
	Model      string
	EmbedModel string
	MaxRetries int
}

type StorageConfig struct {
	UploadPath  string
	MaxFileSize int64
}

// MinioConfig is only used when Audio.ArchiveBackend is "minio".
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type AudioConfig struct {
	ArchiveBackend string // "local" or "minio"
	Normalize      bool
	MaxAudioSize   int64
}

// TTSConfig controls spoken questions. Clients still opt in per session.
type TTSConfig struct {
	Enabled bool
	Model   string
	Voice   string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type InterviewConfig struct {
	PolicyFile          string
	CollaboratorTimeout time.Duration
	SessionStore        string // "memory" or "redis"
	SessionTTL          time.Duration
}

type RealtimeConfig struct {
	Port           string
	AllowedOrigins []string
	MessagesPerSec float64
	Burst          int
}

type SweeperConfig struct {
	Enabled      bool
	Schedule     string
	ScheduledTTL time.Duration
	BatchSize    int
	Concurrency  int
}

type LoggingConfig struct {
	File string
}

type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Using default values.")
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "3000"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "interview_engine"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Qdrant: QdrantConfig{
			URL:        getEnv("QDRANT_URL", "http://localhost:6334"),
			APIKey:     getEnv("QDRANT_API_KEY", ""),
			Collection: getEnv("QDRANT_COLLECTION", "interview_knowledge"),
			Enabled:    getEnvAsBool("QDRANT_ENABLED", true),
		},
		Gemini: GeminiConfig{
			APIKey:     getEnv("GEMINI_API_KEY", ""),
			Model:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			EmbedModel: getEnv("GEMINI_EMBED_MODEL", "text-embedding-004"),
			MaxRetries: getEnvAsInt("GEMINI_MAX_RETRIES", 2),
		},
		Storage: StorageConfig{
			UploadPath:  getEnv("UPLOAD_PATH", "./uploads"),
			MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 10485760),
		},
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "interview-audio"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		Audio: AudioConfig{
			ArchiveBackend: getEnv("AUDIO_ARCHIVE_BACKEND", "local"),
			Normalize:      getEnvAsBool("AUDIO_NORMALIZE", false),
			MaxAudioSize:   getEnvAsInt64("MAX_AUDIO_SIZE", 20971520),
		},
		TTS: TTSConfig{
			Enabled: getEnvAsBool("TTS_ENABLED", false),
			Model:   getEnv("GEMINI_TTS_MODEL", "gemini-2.5-flash-preview-tts"),
			Voice:   getEnv("TTS_VOICE", "Kore"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "change-me"),
			TokenTTL:  getEnvAsDuration("JWT_TTL", "24h"),
		},
		Interview: InterviewConfig{
			PolicyFile:          getEnv("INTERVIEW_POLICY_FILE", "config/interview_policies.yaml"),
			CollaboratorTimeout: getEnvAsDuration("COLLABORATOR_TIMEOUT", "20s"),
			SessionStore:        getEnv("SESSION_STORE", "memory"),
			SessionTTL:          getEnvAsDuration("SESSION_TTL", "2h"),
		},
		Realtime: RealtimeConfig{
			Port:           getEnv("REALTIME_PORT", "3001"),
			AllowedOrigins: []string{getEnv("REALTIME_ALLOWED_ORIGIN", "*")},
			MessagesPerSec: getEnvAsFloat("REALTIME_MESSAGES_PER_SEC", 5),
			Burst:          getEnvAsInt("REALTIME_BURST", 10),
		},
		Sweeper: SweeperConfig{
			Enabled:      getEnvAsBool("SWEEPER_ENABLED", true),
			Schedule:     getEnv("SWEEPER_SCHEDULE", "@every 5m"),
			ScheduledTTL: getEnvAsDuration("SWEEPER_SCHEDULED_TTL", "168h"),
			BatchSize:    getEnvAsInt("SWEEPER_BATCH_SIZE", 50),
			Concurrency:  getEnvAsInt("SWEEPER_CONCURRENCY", 3),
		},
		Logging: LoggingConfig{
			File: getEnv("LOG_FILE", "logs/interview-engine.log"),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("TRACING_ENABLED", false),
			ServiceName: getEnv("TRACING_SERVICE_NAME", "interview-engine"),
			Endpoint:    getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		},
	}
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
