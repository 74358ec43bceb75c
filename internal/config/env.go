package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Structured state backend: file | database.
	StorageBackend string
	DataDir        string
	DatabaseURL    string

	// Raw upload bytes backend: local | s3.
	BlobBackend  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	// Model endpoint: vllm (OpenAI-compatible) | gemini.
	LLMProvider  string
	VLLMEndpoint string
	VLLMModel    string
	AIAPIKey     string
	GenModel     string
	EmbedModel   string
	EmbedDim     int

	RequestTimeoutSeconds int
	MaxFileSizeMB         int
	AllowedOrigins        []string
	APIKey                string // optional shared key; empty disables auth
	DefaultLanguage       string
	SessionTTLDays        int
	CacheTTLHours         int
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnv("PORT", "9510"),

		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", "file")),
		DataDir:        getEnv("DATA_DIR", ".data"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		BlobBackend:  strings.ToLower(getEnv("BLOB_BACKEND", "local")),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "docgate-uploads"),

		LLMProvider:  strings.ToLower(getEnv("LLM_PROVIDER", "vllm")),
		VLLMEndpoint: getEnv("VLLM_ENDPOINT", "http://localhost:8000"),
		VLLMModel:    getEnv("VLLM_MODEL", "gpt-3.5-turbo"),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GenModel:     getEnv("GEN_MODEL", "gemini-1.5-flash"),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:     getEnvInt("EMBED_DIM", 768),
	}

	cfg.RequestTimeoutSeconds = getEnvInt("REQUEST_TIMEOUT_SECONDS", 30)
	cfg.MaxFileSizeMB = getEnvInt("MAX_FILE_SIZE_MB", 50)
	cfg.AllowedOrigins = splitCSV(getEnv("ALLOWED_ORIGINS", "*"))
	cfg.APIKey = getEnv("API_KEY", "")
	cfg.DefaultLanguage = getEnv("DEFAULT_LANGUAGE", "Chinese")
	cfg.SessionTTLDays = getEnvInt("SESSION_TTL_DAYS", 30)
	cfg.CacheTTLHours = getEnvInt("CACHE_TTL_HOURS", 24)

	if cfg.StorageBackend == "database" && cfg.DatabaseURL == "" {
		log.Fatal("STORAGE_BACKEND=database but DATABASE_URL not set")
	}
	if cfg.BlobBackend == "s3" && (cfg.AwsAccessKey == "" || cfg.AwsSecretKey == "") {
		log.Fatal("BLOB_BACKEND=s3 but AWS credentials not set")
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

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
