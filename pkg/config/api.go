package config

import "time"

// APIConfig holds runtime configuration for the chat API service.
type APIConfig struct {
	Environment        string
	Addr               string
	DatabaseURL        string
	MigrationsDir      string
	JWTSecret          string
	AccessTokenTTL     time.Duration
	WSSendBuffer       int
	MaxImageBytes      int64
	S3Region           string
	S3Bucket           string
	S3AccessKey        string
	S3SecretKey        string
	S3BaseEndpoint     string
	S3PublicBaseURL    string
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":5000"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://chat:chat@db:5432/chat?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		JWTSecret:          GetString("JWT_SECRET", "supersecuresecret"),
		AccessTokenTTL:     time.Duration(GetInt("ACCESS_TOKEN_TTL_HOURS", 168)) * time.Hour,
		WSSendBuffer:       GetInt("WS_SEND_BUFFER", 64),
		MaxImageBytes:      GetInt64("MAX_IMAGE_BYTES", 4<<20),
		S3Region:           GetString("S3_REGION", "us-east-1"),
		S3Bucket:           GetString("S3_BUCKET", "chat-uploads"),
		S3AccessKey:        GetString("S3_ACCESS_KEY", ""),
		S3SecretKey:        GetString("S3_SECRET_KEY", ""),
		S3BaseEndpoint:     GetString("S3_BASE_ENDPOINT", ""),
		S3PublicBaseURL:    GetString("S3_PUBLIC_BASE_URL", ""),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
