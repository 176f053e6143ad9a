package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spigell/resume-matcher/internal/document"
	"github.com/spigell/resume-matcher/internal/secrets"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "RESUME_MATCHER"
	dotEnvFile = ".env"
)

// ErrConfiguration wraps every failure to load, parse or validate the configuration.
var ErrConfiguration = errors.New("configuration error")

type Config struct {
	Cohere      CohereConfig      `mapstructure:"cohere"`
	Gemini      GeminiConfig      `mapstructure:"gemini"`
	Qdrant      QdrantConfig      `mapstructure:"qdrant"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	VectorStore VectorStoreConfig `mapstructure:"vector_store"`
	Collection  CollectionConfig  `mapstructure:"collection"`
	Search      SearchConfig      `mapstructure:"search"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Lock        LockConfig        `mapstructure:"lock"`
	S3          S3Config          `mapstructure:"s3"`
	Documents   DocumentsConfig   `mapstructure:"documents"`
}

type CohereConfig struct {
	APIKey     string `mapstructure:"api_key"`
	APIKeyFile string `mapstructure:"api_key_file"`
	Model      string `mapstructure:"model" validate:"required"`
	BaseURL    string `mapstructure:"base_url" validate:"required,url"`
	// Dimension overrides the size derived from the model name.
	Dimension int `mapstructure:"dimension" validate:"min=0"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api_key"`
	APIKeyFile string `mapstructure:"api_key_file"`
	Model      string `mapstructure:"model" validate:"required"`
	Dimension  int    `mapstructure:"dimension" validate:"min=1"`
	MaxRetries int    `mapstructure:"max_retries" validate:"min=0"`
}

type QdrantConfig struct {
	URL        string `mapstructure:"url" validate:"omitempty,url"`
	APIKey     string `mapstructure:"api_key"`
	APIKeyFile string `mapstructure:"api_key_file"`
}

type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

type EmbeddingConfig struct {
	Provider string `mapstructure:"provider" validate:"oneof=cohere gemini"`
}

type VectorStoreConfig struct {
	Provider string `mapstructure:"provider" validate:"oneof=qdrant pgvector memory"`
}

type CollectionConfig struct {
	Name     string `mapstructure:"name" validate:"required"`
	Distance string `mapstructure:"distance" validate:"oneof=cosine dot euclid"`
}

type SearchConfig struct {
	Limit         int `mapstructure:"limit" validate:"min=1,max=1000"`
	SnippetLength int `mapstructure:"snippet_length" validate:"min=1"`
}

type HTTPConfig struct {
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxRetries int           `mapstructure:"max_retries" validate:"min=0"`
}

type LockConfig struct {
	Valkey      ValkeyConfig  `mapstructure:"valkey"`
	TTL         time.Duration `mapstructure:"ttl" validate:"gt=0"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout" validate:"gt=0"`
}

type ValkeyConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
}

type S3Config struct {
	EndpointURL string `mapstructure:"endpoint_url" validate:"omitempty,url"`
	Region      string `mapstructure:"region"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
}

type DocumentsConfig struct {
	RootFolder string `mapstructure:"root_folder" validate:"required"`
}

var defaults = map[string]any{
	"cohere.api_key":        "",
	"cohere.api_key_file":   "",
	"cohere.model":          "embed-english-v3.0",
	"cohere.base_url":       "https://api.cohere.ai/v1",
	"cohere.dimension":      0,
	"gemini.api_key":        "",
	"gemini.api_key_file":   "",
	"gemini.model":          "gemini-embedding-001",
	"gemini.dimension":      3072,
	"gemini.max_retries":    3,
	"qdrant.url":            "",
	"qdrant.api_key":        "",
	"qdrant.api_key_file":   "",
	"postgres.url":          "",
	"embedding.provider":    "cohere",
	"vector_store.provider": "qdrant",
	"collection.name":       "collection_resume_matcher",
	"collection.distance":   "cosine",
	"search.limit":          30,
	"search.snippet_length": 30,
	"http.timeout":          30 * time.Second,
	"http.max_retries":      3,
	"lock.valkey.address":   "",
	"lock.valkey.password":  "",
	"lock.ttl":              2 * time.Minute,
	"lock.wait_timeout":     time.Minute,
	"s3.endpoint_url":       "",
	"s3.region":             "",
	"s3.access_key":         "",
	"s3.secret_key":         "",
	"documents.root_folder": document.DefaultRootFolder,
}

// Load reads the YAML file at path, applies defaults and RESUME_MATCHER_* environment
// overrides, validates the result and resolves secrets from files.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(dotEnvFile); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", ErrConfiguration, path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrConfiguration, path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	return &cfg, nil
}

// RootFolder returns the project root folder name before the config file is found:
// the RESUME_MATCHER_DOCUMENTS_ROOT_FOLDER override (also read from .env) or the default.
func RootFolder() (string, error) {
	if err := loadDotEnv(dotEnvFile); err != nil {
		return "", fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if folder := strings.TrimSpace(os.Getenv(EnvPrefix + "_DOCUMENTS_ROOT_FOLDER")); folder != "" {
		return folder, nil
	}
	return document.DefaultRootFolder, nil
}

// loadDotEnv exports a .env file when one exists. Variables already in the
// environment win.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

var configValidator = validator.New()

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return err
	}

	switch c.VectorStore.Provider {
	case "qdrant":
		if c.Qdrant.URL == "" {
			return errors.New("qdrant.url is required when vector_store.provider is qdrant")
		}
	case "pgvector":
		if c.Postgres.URL == "" {
			return errors.New("postgres.url is required when vector_store.provider is pgvector")
		}
	}

	return nil
}

func (c *Config) resolveSecrets() error {
	var err error

	switch c.Embedding.Provider {
	case "cohere":
		c.Cohere.APIKey, err = secrets.Load(secrets.Source{
			Name:  "cohere api key",
			Value: c.Cohere.APIKey,
			File:  c.Cohere.APIKeyFile,
		})
		if err != nil {
			return fmt.Errorf("%w (set cohere.api_key, cohere.api_key_file or %s_COHERE_API_KEY)", err, EnvPrefix)
		}
	case "gemini":
		c.Gemini.APIKey, err = secrets.Load(secrets.Source{
			Name:  "gemini api key",
			Value: c.Gemini.APIKey,
			File:  c.Gemini.APIKeyFile,
		})
		if err != nil {
			return fmt.Errorf("%w (set gemini.api_key, gemini.api_key_file or %s_GEMINI_API_KEY)", err, EnvPrefix)
		}
	}

	if c.VectorStore.Provider == "qdrant" {
		c.Qdrant.APIKey, err = secrets.Load(secrets.Source{
			Name:     "qdrant api key",
			Value:    c.Qdrant.APIKey,
			File:     c.Qdrant.APIKeyFile,
			Optional: true,
		})
		if err != nil {
			return err
		}
	}

	return nil
}
