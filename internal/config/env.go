package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	SslCertPath  string
	AIAPIKey     string
	EmbedModel   string
	EmbedDim     int
	Port         string
	Env          string

	// Ingestion tuning.
	ChunkTargetWords  int
	ChunkOverlapWords int
	IngestWorkers     int
	EmbedIntervalMs   int
	MaxInflightEmbeds int
}

// LoadConfig loads the environment variables and returns config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "pipeline-docs"),
		SslCertPath:  getEnv("SSL_CERT_PATH", ""),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:     getEnvInt("EMBED_DIM", 768),
		Port:         getEnv("PORT", "8080"),
		Env:          getEnv("APP_ENV", "production"),

		ChunkTargetWords:  getEnvInt("CHUNK_TARGET_WORDS", 450),
		ChunkOverlapWords: getEnvInt("CHUNK_OVERLAP_WORDS", 50),
		IngestWorkers:     getEnvInt("INGEST_WORKERS", 4),
		EmbedIntervalMs:   getEnvInt("EMBED_INTERVAL_MS", 200),
		MaxInflightEmbeds: getEnvInt("MAX_INFLIGHT_EMBEDS", 4),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if cfg.ChunkOverlapWords >= cfg.ChunkTargetWords {
		log.Fatalf("CHUNK_OVERLAP_WORDS (%d) must be smaller than CHUNK_TARGET_WORDS (%d)",
			cfg.ChunkOverlapWords, cfg.ChunkTargetWords)
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}
