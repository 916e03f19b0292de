package settings

// Settings is the application config stored in the database (options table,
// key="settings"). Runtime-tunable knobs live here; startup config stays in YAML.
type Settings struct {
	AI     AIConfig     `json:"ai"`
	Table  TableConfig  `json:"table"`
	OCR    OCRConfig    `json:"ocr"`
	Search SearchConfig `json:"search"`
}

type AIConfig struct {
	Providers       []AIProvider       `json:"providers"`
	ColumnModel     *AIModelAssignment `json:"column_model,omitempty"`
	ChatModel       *AIModelAssignment `json:"chat_model,omitempty"`
	EnableStreaming bool               `json:"enable_streaming"`
}

type AIProvider struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"` // OpenAI | OpenAI-Compatible | Anthropic | OpenRouter
	APIKey       string `json:"api_key"`
	Endpoint     string `json:"endpoint,omitempty"`
	DefaultModel string `json:"default_model"`
	Enabled      bool   `json:"enabled"`
}

type AIModelAssignment struct {
	ProviderID string `json:"provider_id"`
	Model      string `json:"model"`
}

// TableConfig holds defaults for computed-column batch generation.
type TableConfig struct {
	Concurrency     int `json:"concurrency"`       // parallel cells per batch
	ResponseBudget  int `json:"response_budget"`   // max tokens per cell response
	SourceCharLimit int `json:"source_char_limit"` // hard cap on source text fed to the model
	SearchCacheTTL  int `json:"search_cache_ttl"`  // seconds
}

type OCRConfig struct {
	Enable   bool   `json:"enable"`
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key,omitempty"`
}

type SearchConfig struct {
	Endpoint string `json:"endpoint"`
	Mailto   string `json:"mailto,omitempty"` // identifies the client to the works API
}

// Defaults returns the built-in settings used before any write.
func Defaults() Settings {
	return Settings{
		AI: AIConfig{
			Providers:       []AIProvider{},
			EnableStreaming: true,
		},
		Table: TableConfig{
			Concurrency:     5,
			ResponseBudget:  512,
			SourceCharLimit: 60000,
			SearchCacheTTL:  300,
		},
		OCR: OCRConfig{
			Enable: false,
		},
		Search: SearchConfig{
			Endpoint: "https://api.openalex.org",
		},
	}
}
