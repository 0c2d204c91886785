package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every external input the process needs. It is read-only
// after Load returns; no component reads the environment after startup.
type Config struct {
	// Chunk store (Postgres + pgvector)
	DatabaseURL string
	SslCertPath string
	ChunkTable  string

	// Raw-document object store
	AwsAccessKey    string
	AwsSecretKey    string
	AwsRegion       string
	BucketName      string
	GuidelinePrefix string

	// Embedding / generation models
	AIAPIKey            string
	EmbedModel          string
	EmbedDim            int
	FlashModel          string
	ProModel            string
	FallbackModel       string
	TaskModels          map[string]string
	ProForSynthesis     bool
	ProForComplex       bool
	ProForContradiction bool

	// Ingestion tuning
	ChunkSize       int
	ChunkOverlap    int
	WriteBatchSize  int
	BatchPause      time.Duration
	TargetCondition string

	// Retrieval agents
	DailyMedBaseURL string
	PubMedBaseURL   string
	NCBIAPIKey      string
	AgentDelay      time.Duration
	MinSimilarity   float64

	// Source priorities (rank 1 = highest) and per-source result caps.
	SourcePriorities map[string]int
	SourceCaps       map[string]int

	Port string
}

// Task names recognized by the model selector.
const (
	TaskQueryIntelligence = "query_intelligence"
	TaskGapAnalysis       = "evidence_gap_analyzer"
	TaskSynthesis         = "synthesis_engine"
	TaskVerification      = "verification_gate"
)

// Load reads the environment (plus an optional .env file) and validates
// every required value eagerly. Any missing required setting is returned as
// an error so main can halt before any work starts.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),
		ChunkTable:  getEnv("CHUNK_TABLE", "guideline_chunks"),

		AwsAccessKey:    getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:    getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:       getEnv("AWS_REGION", "us-east-2"),
		BucketName:      getEnv("BUCKET_NAME", ""),
		GuidelinePrefix: getEnv("GUIDELINE_PREFIX", "guidelines/"),

		AIAPIKey:      getEnv("GEMINI_API_KEY", ""),
		EmbedModel:    getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:      getEnvInt("EMBED_DIM", 768),
		FlashModel:    getEnv("FLASH_MODEL", "gemini-2.5-flash"),
		ProModel:      getEnv("PRO_MODEL", "gemini-2.5-pro"),
		FallbackModel: getEnv("FALLBACK_MODEL", "gemini-2.5-flash"),

		ProForSynthesis:     getEnvBool("USE_PRO_FOR_SYNTHESIS", true),
		ProForComplex:       getEnvBool("USE_PRO_FOR_COMPLEX_QUERIES", true),
		ProForContradiction: getEnvBool("USE_PRO_FOR_CONTRADICTIONS", true),

		ChunkSize:       getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:    getEnvInt("CHUNK_OVERLAP", 100),
		WriteBatchSize:  getEnvInt("WRITE_BATCH_SIZE", 100),
		BatchPause:      getEnvDuration("BATCH_PAUSE", time.Second),
		TargetCondition: getEnv("TARGET_CONDITION", "diabetes"),

		DailyMedBaseURL: getEnv("DAILYMED_BASE_URL", "https://dailymed.nlm.nih.gov/dailymed/services/v2"),
		PubMedBaseURL:   getEnv("PUBMED_BASE_URL", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"),
		NCBIAPIKey:      getEnv("NCBI_API_KEY", ""),
		AgentDelay:      getEnvDuration("AGENT_REQUEST_DELAY", 500*time.Millisecond),
		MinSimilarity:   getEnvFloat("GUIDELINES_MIN_SIMILARITY", 0.75),

		Port: getEnv("PORT", "8080"),
	}

	cfg.TaskModels = map[string]string{
		TaskQueryIntelligence: getEnv("MODEL_QUERY_INTELLIGENCE", cfg.FlashModel),
		TaskGapAnalysis:       getEnv("MODEL_GAP_ANALYSIS", cfg.ProModel),
		TaskSynthesis:         getEnv("MODEL_SYNTHESIS", cfg.ProModel),
		TaskVerification:      getEnv("MODEL_VERIFICATION", cfg.FlashModel),
	}

	cfg.SourcePriorities = map[string]int{
		"guidelines": getEnvInt("PRIORITY_GUIDELINES", 1),
		"pubmed":     getEnvInt("PRIORITY_PUBMED", 2),
		"pmc":        getEnvInt("PRIORITY_PMC", 3),
		"dailymed":   getEnvInt("PRIORITY_DAILYMED", 4),
		"web":        getEnvInt("PRIORITY_WEB", 5),
	}
	cfg.SourceCaps = map[string]int{
		"guidelines": getEnvInt("CAP_GUIDELINES", 20),
		"pubmed":     getEnvInt("CAP_PUBMED", 10),
		"pmc":        getEnvInt("CAP_PMC", 5),
		"dailymed":   getEnvInt("CAP_DAILYMED", 4),
		"web":        getEnvInt("CAP_WEB", 10),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	required := map[string]string{
		"DATABASE_URL":   c.DatabaseURL,
		"BUCKET_NAME":    c.BucketName,
		"GEMINI_API_KEY": c.AIAPIKey,
	}
	for name, v := range required {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.EmbedDim <= 0 {
		return fmt.Errorf("EMBED_DIM must be positive, got %d", c.EmbedDim)
	}
	if c.WriteBatchSize <= 0 {
		return fmt.Errorf("WRITE_BATCH_SIZE must be positive, got %d", c.WriteBatchSize)
	}
	return nil
}

// Helper to read environment variables with a default fallback.
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
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1"
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
