package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	// Wikipedia asks polite scrapers to identify themselves with a
	// contact address (e.g. "bioscrape/0.1 (contact: you@example.com)").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// ScrapeConfig holds settings for the scrape stage.
type ScrapeConfig struct {
	HTTPConfig `yaml:",inline"`

	// PagesDir is the base directory for scraped pages (one subdirectory per person).
	PagesDir string `json:"pages_dir" yaml:"pages_dir"`

	// Concurrency bounds the number of in-flight page fetches (default 8).
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// MaxRetries is the number of retry attempts on 429/5xx responses (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// ConvertConfig holds settings for the HTML-to-text conversion stage.
type ConvertConfig struct {
	// PagesDir is the base directory for scraped pages.
	PagesDir string `json:"pages_dir" yaml:"pages_dir"`

	// Force re-converts pages whose biography.txt is already up to date.
	Force bool `json:"force" yaml:"force"`
}

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// ExtractionConfig holds settings for the extraction stage.
type ExtractionConfig struct {
	AIConfig `yaml:",inline"`

	// PagesDir is the base directory for scraped pages (contains <id>/biography.txt).
	PagesDir string `json:"pages_dir" yaml:"pages_dir"`

	// OutputPath is the JSONL file written by batch extraction.
	OutputPath string `json:"output_path" yaml:"output_path"`
}

// KnowledgeBaseConfig holds settings for the knowledge base stage.
type KnowledgeBaseConfig struct {
	// KnowledgeDir is the base directory for the knowledge base (contains index/).
	KnowledgeDir string `json:"knowledge_dir" yaml:"knowledge_dir"`

	// MaxResults is the default maximum number of query results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Scrape        ScrapeConfig        `json:"scrape" yaml:"scrape"`
	Convert       ConvertConfig       `json:"convert" yaml:"convert"`
	Extraction    ExtractionConfig    `json:"extraction" yaml:"extraction"`
	KnowledgeBase KnowledgeBaseConfig `json:"knowledge_base" yaml:"knowledge_base"`
}
