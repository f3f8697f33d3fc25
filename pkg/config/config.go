package config

import (
	"os"
	"strconv"
)

type Config struct {
	GoogleApiKey    string
	AnthropicApiKey string
	TavilyApiKey    string
	DatabaseURL     string
	LLMProvider     string
	ReasoningModel  string
	FastModel       string
	EmbeddingModel  string
	EmbeddingDim    int
	Port            string
	ChunkSize       int
	ChunkOverlap    int
	CollectionName  string

	MaxIterations    int
	MinEvidenceCount int
	MinScore         float64
	Concurrency      int
	PerCallTimeoutMs int
}

func Load() *Config {
	return &Config{
		GoogleApiKey:    getEnv("GOOGLE_API_KEY", ""),
		AnthropicApiKey: getEnv("ANTHROPIC_API_KEY", ""),
		TavilyApiKey:    getEnv("TAVILY_API_KEY", ""),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		LLMProvider:     getEnv("LLM_PROVIDER", "google"),
		ReasoningModel:  getEnv("REASONING_MODEL", "gemini-3-pro-preview"),
		FastModel:       getEnv("FAST_MODEL", "gemini-3-flash-preview"),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "gemini-embedding-001"),
		EmbeddingDim:    getEnvAsInt("EMBEDDING_DIM", 1536),
		Port:            getEnv("PORT", "3000"),
		ChunkSize:       getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap:    getEnvAsInt("CHUNK_OVERLAP", 200),
		CollectionName:  getEnv("COLLECTION_NAME", "evidence_db"),

		MaxIterations:    getEnvAsInt("MAX_ITERATIONS", 3),
		MinEvidenceCount: getEnvAsInt("MIN_EVIDENCE_COUNT", 5),
		MinScore:         getEnvAsFloat("MIN_SCORE", 0.4),
		Concurrency:      getEnvAsInt("CONCURRENCY", 3),
		PerCallTimeoutMs: getEnvAsInt("PER_CALL_TIMEOUT_MS", 30000),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
