package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log         LogConfig         `yaml:"log"`
	Server      ServerConfig      `yaml:"server"`
	LLM         LLMConfig         `yaml:"llm"`
	EmbedLLM    EmbedConfig       `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	RAG         RAGConfig         `yaml:"rag"`
	Summary     SummaryConfig     `yaml:"summary"`
	Quiz        QuizConfig        `yaml:"quiz"`
	Wikipedia   WikipediaConfig   `yaml:"wikipedia"`
	Library     LibraryConfig     `yaml:"library"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MaxFiles    int    `yaml:"max_files"`
	UploadDir   string `yaml:"upload_dir"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

// LLMConfig configures the OpenAI-compatible completion endpoint (Groq by default)
type LLMConfig struct {
	Provider       string   `yaml:"provider"` // openai | ollama
	BaseURL        string   `yaml:"base_url"`
	Key            string   `yaml:"key"`
	KeyEnv         string   `yaml:"api_key_env"`
	Model          string   `yaml:"model"`
	ModelFamilies  []string `yaml:"model_families"`
	Retry          int      `yaml:"retry"`
	BackoffBase    Duration `yaml:"backoff_base"`
	RequestsPerSec float64  `yaml:"requests_per_sec"`
	Burst          int      `yaml:"burst"`
	Timeout        Duration `yaml:"timeout"`
	DisableListing bool     `yaml:"disable_model_listing"`
}

type EmbedConfig struct {
	Provider  string `yaml:"provider"` // ollama | openai
	BaseURL   string `yaml:"base_url"`
	Key       string `yaml:"key"`
	KeyEnv    string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

type VectorStoreConfig struct {
	Type          string         `yaml:"type"` // chromem | pgvector | qdrant
	Path          string         `yaml:"path"`
	Collection    string         `yaml:"collection"`
	InMemory      bool           `yaml:"in_memory"`
	EncryptionKey string         `yaml:"encryption_key"`
	Database      DatabaseConfig `yaml:"database"`
	Qdrant        QdrantConfig   `yaml:"qdrant"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
	Debug    bool   `yaml:"debug"`
}

type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

type RAGConfig struct {
	ChunkSize        int `yaml:"chunk_size"`
	ChunkOverlap     int `yaml:"chunk_overlap"`
	TopK             int `yaml:"top_k"`
	Variations       int `yaml:"variations"`
	MaxContextChunks int `yaml:"max_context_chunks"`
	SnippetMaxChars  int `yaml:"snippet_max_chars"`
	AnswerMaxTokens  int `yaml:"answer_max_tokens"`
	Concurrency      int `yaml:"concurrency"`
}

type SummaryConfig struct {
	BatchSize             int      `yaml:"batch_size"`
	IntermediateMaxTokens int      `yaml:"intermediate_max_tokens"`
	FinalMaxTokens        int      `yaml:"final_max_tokens"`
	SnippetMaxChars       int      `yaml:"snippet_max_chars"`
	LLMRetry              int      `yaml:"llm_retry"`
	RetryBackoff          Duration `yaml:"retry_backoff"`
	Temperature           float64  `yaml:"temperature"`
	ModelTokenLimit       int      `yaml:"model_token_limit"`
	CompressionBatchSize  int      `yaml:"compression_batch_size"`
	CompressionMaxRounds  int      `yaml:"compression_max_rounds"`
	Concurrency           int      `yaml:"concurrency"`
}

type QuizConfig struct {
	Questions int `yaml:"questions"`
	MaxTokens int `yaml:"max_tokens"`
	// FromChunks builds quizzes from raw chunk text instead of the map-reduce summary
	FromChunks bool `yaml:"from_chunks"`
}

type WikipediaConfig struct {
	Disabled  bool     `yaml:"disabled"`
	BaseURL   string   `yaml:"base_url"`
	Sentences int      `yaml:"sentences"`
	Timeout   Duration `yaml:"timeout"`
	UserAgent string   `yaml:"user_agent"`
}

type LibraryConfig struct {
	Backend    string `yaml:"backend"` // files | badger
	SummaryDir string `yaml:"summary_dir"`
	QuizDir    string `yaml:"quiz_dir"`
	BadgerPath string `yaml:"badger_path"`
}

// Duration accepts "1.5s" style strings in YAML
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// LoadConfig reads the YAML config at path on top of the defaults, so keys that
// are present keep their value even when it is zero. A missing file yields the
// defaults. A .env file in the working directory is loaded first so API keys can
// live there.
func LoadConfig(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		log.Warn().Err(err).Msg("Ignoring malformed .env file")
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.resolveSecrets()
	return cfg, nil
}

// loadDotEnv exports the variables in path. A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Default returns a config with every default applied
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func (c *Config) resolveSecrets() {
	if c.LLM.Key == "" && c.LLM.KeyEnv != "" {
		c.LLM.Key = os.Getenv(c.LLM.KeyEnv)
	}
	if c.EmbedLLM.Key == "" && c.EmbedLLM.KeyEnv != "" {
		c.EmbedLLM.Key = os.Getenv(c.EmbedLLM.KeyEnv)
	}
}

// ApplyDefaults fills every zero field
func ApplyDefaults(cfg *Config) {
	setString(&cfg.Log.Level, "info")

	setString(&cfg.Server.Addr, ":8000")
	setInt(&cfg.Server.MaxFiles, 5)
	setString(&cfg.Server.UploadDir, os.TempDir())
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 64
	}

	setString(&cfg.LLM.Provider, "openai")
	setString(&cfg.LLM.BaseURL, "https://api.groq.com/openai/v1")
	setString(&cfg.LLM.KeyEnv, "GROQ_API_KEY")
	setString(&cfg.LLM.Model, "llama-3.1-8b-instant")
	if len(cfg.LLM.ModelFamilies) == 0 {
		cfg.LLM.ModelFamilies = []string{"llama-3.1", "llama-3", "llama3", "llama", "gpt-oss", "gpt", "mixtral", "gemma"}
	}
	setInt(&cfg.LLM.Retry, 1)
	setDuration(&cfg.LLM.BackoffBase, time.Second)
	setInt(&cfg.LLM.Burst, 1)
	setDuration(&cfg.LLM.Timeout, 60*time.Second)

	setString(&cfg.EmbedLLM.Provider, "ollama")
	setString(&cfg.EmbedLLM.BaseURL, "http://localhost:11434")
	setString(&cfg.EmbedLLM.Model, "all-minilm")
	setInt(&cfg.EmbedLLM.Dimension, 384)
	setInt(&cfg.EmbedLLM.BatchSize, 32)

	setString(&cfg.VectorStore.Type, "chromem")
	setString(&cfg.VectorStore.Path, "./chroma_db_storage")
	setString(&cfg.VectorStore.Collection, "pdf_store")
	setString(&cfg.VectorStore.Database.Table, "chunks")
	setString(&cfg.VectorStore.Qdrant.Host, "localhost")
	setInt(&cfg.VectorStore.Qdrant.Port, 6334)

	setInt(&cfg.RAG.ChunkSize, 1000)
	setInt(&cfg.RAG.ChunkOverlap, 200)
	setInt(&cfg.RAG.TopK, 4)
	setInt(&cfg.RAG.Variations, 3)
	setInt(&cfg.RAG.MaxContextChunks, 8)
	setInt(&cfg.RAG.SnippetMaxChars, 1500)
	setInt(&cfg.RAG.AnswerMaxTokens, 512)
	setInt(&cfg.RAG.Concurrency, 1)

	setInt(&cfg.Summary.BatchSize, 6)
	setInt(&cfg.Summary.IntermediateMaxTokens, 512)
	setInt(&cfg.Summary.FinalMaxTokens, 1500)
	setInt(&cfg.Summary.SnippetMaxChars, 1500)
	setInt(&cfg.Summary.LLMRetry, 1)
	setDuration(&cfg.Summary.RetryBackoff, time.Second)
	setInt(&cfg.Summary.ModelTokenLimit, 8000)
	setInt(&cfg.Summary.CompressionBatchSize, 8)
	setInt(&cfg.Summary.CompressionMaxRounds, 3)
	setInt(&cfg.Summary.Concurrency, 1)

	setInt(&cfg.Quiz.Questions, 10)
	setInt(&cfg.Quiz.MaxTokens, 2000)

	setString(&cfg.Wikipedia.BaseURL, "https://en.wikipedia.org/w/api.php")
	setInt(&cfg.Wikipedia.Sentences, 3)
	setDuration(&cfg.Wikipedia.Timeout, 10*time.Second)
	setString(&cfg.Wikipedia.UserAgent, "campus-assistant/1.0")

	setString(&cfg.Library.Backend, "files")
	setString(&cfg.Library.SummaryDir, "saved_summaries")
	setString(&cfg.Library.QuizDir, "saved_quizzes")
	setString(&cfg.Library.BadgerPath, "./library_db")
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func setDuration(v *Duration, def time.Duration) {
	if v.Duration == 0 {
		v.Duration = def
	}
}
