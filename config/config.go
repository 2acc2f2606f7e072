// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package config loads service configuration from a YAML file with
// environment-variable overrides, the latter taking precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Vector index backends selectable by configuration.
const (
	VectorBackendMemory = "memory"
	VectorBackendBadger = "badger"
	VectorBackendQdrant = "qdrant"
)

// AIConfig selects the embedding and completion endpoints.
type AIConfig struct {
	Host                string `yaml:"host"`
	Token               string `yaml:"token"`
	EmbeddingModel      string `yaml:"embedding_model"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions"`
	CompletionModel     string `yaml:"completion_model"`
}

// VectorConfig selects and parameterizes the vector index backend.
type VectorConfig struct {
	Backend    string `yaml:"backend"` // memory | badger | qdrant
	Collection string `yaml:"collection"`
	Path       string `yaml:"path"`    // badger data directory
	URL        string `yaml:"url"`     // qdrant endpoint
	APIKey     string `yaml:"api_key"` // qdrant API key
}

// StorageConfig selects the metadata store. An empty DSN selects the
// in-memory store.
type StorageConfig struct {
	DSN          string `yaml:"dsn"`
	Password     string `yaml:"password"`
	QueryLogging bool   `yaml:"query_logging"`
}

// Duration wraps time.Duration so YAML accepts values like "500ms".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// PipelineConfig tunes the ingestion workflow.
type PipelineConfig struct {
	TargetSize       int      `yaml:"target_size"`
	Overlap          int      `yaml:"overlap"`
	Workers          int      `yaml:"workers"`
	MaxAttempts      int      `yaml:"max_attempts"`
	RetryBaseDelay   Duration `yaml:"retry_base_delay"`
	Summarize        bool     `yaml:"summarize"`
	MaxTaskDuration  Duration `yaml:"max_task_duration"`
	TaskRetention    Duration `yaml:"task_retention"`
	UploadDir        string   `yaml:"upload_dir"`
	RetrievalSnippet int      `yaml:"retrieval_snippet"`
}

// Config is the complete service configuration.
type Config struct {
	AI       AIConfig       `yaml:"ai"`
	Vector   VectorConfig   `yaml:"vector"`
	Storage  StorageConfig  `yaml:"storage"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// Default returns the configuration used when no file or environment
// overrides are present: local Ollama endpoints and in-memory stores.
func Default() *Config {
	return &Config{
		AI: AIConfig{
			Host:                "http://localhost:11434",
			Token:               "none",
			EmbeddingModel:      "embeddinggemma",
			EmbeddingDimensions: 768,
			CompletionModel:     "qwen2.5:3b",
		},
		Vector: VectorConfig{
			Backend:    VectorBackendMemory,
			Collection: "units",
		},
		Pipeline: PipelineConfig{
			TargetSize:       1000,
			Overlap:          200,
			Workers:          4,
			MaxAttempts:      3,
			RetryBaseDelay:   Duration(500 * time.Millisecond),
			Summarize:        true,
			MaxTaskDuration:  Duration(30 * time.Minute),
			TaskRetention:    Duration(7 * 24 * time.Hour),
			UploadDir:        ".",
			RetrievalSnippet: 500,
		},
	}
}

// Load reads a YAML config file over the defaults, then applies
// environment overrides. A missing file is not an error; environment
// variables alone can configure the service.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.AI.Host, "INSIGHTDOCS_AI_HOST")
	setString(&c.AI.Token, "INSIGHTDOCS_AI_TOKEN")
	setString(&c.AI.EmbeddingModel, "INSIGHTDOCS_EMBEDDING_MODEL")
	setInt(&c.AI.EmbeddingDimensions, "INSIGHTDOCS_EMBEDDING_DIMENSIONS")
	setString(&c.AI.CompletionModel, "INSIGHTDOCS_COMPLETION_MODEL")

	setString(&c.Vector.Backend, "INSIGHTDOCS_VECTOR_BACKEND")
	setString(&c.Vector.Collection, "INSIGHTDOCS_VECTOR_COLLECTION")
	setString(&c.Vector.Path, "INSIGHTDOCS_VECTOR_PATH")
	setString(&c.Vector.URL, "INSIGHTDOCS_VECTOR_URL")
	setString(&c.Vector.APIKey, "INSIGHTDOCS_VECTOR_API_KEY")

	setString(&c.Storage.DSN, "INSIGHTDOCS_DB_DSN")
	setString(&c.Storage.Password, "INSIGHTDOCS_DB_PASSWORD")

	setString(&c.Pipeline.UploadDir, "INSIGHTDOCS_UPLOAD_DIR")
	setInt(&c.Pipeline.Workers, "INSIGHTDOCS_WORKERS")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.AI.EmbeddingDimensions <= 0 {
		return fmt.Errorf("config: embedding dimensions must be positive, got %d", c.AI.EmbeddingDimensions)
	}
	switch c.Vector.Backend {
	case VectorBackendMemory:
	case VectorBackendBadger:
		if c.Vector.Path == "" {
			return fmt.Errorf("config: badger backend requires vector.path")
		}
	case VectorBackendQdrant:
		if c.Vector.URL == "" {
			return fmt.Errorf("config: qdrant backend requires vector.url")
		}
	default:
		return fmt.Errorf("config: unknown vector backend %q", c.Vector.Backend)
	}
	if c.Vector.Collection == "" {
		return fmt.Errorf("config: vector collection is empty")
	}
	if c.Pipeline.TargetSize <= 0 {
		return fmt.Errorf("config: pipeline target size must be positive, got %d", c.Pipeline.TargetSize)
	}
	return nil
}
