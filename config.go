package main

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Configuration constants
var (
	// OpenRouterAPIKey is the API key for OpenRouter
	OpenRouterAPIKey string

	// DefaultCouncilModels is the list of models queried in parallel when a
	// request doesn't override the roster.
	DefaultCouncilModels = []string{
		"openai/gpt-5.1",
		"google/gemini-3-pro-preview",
		"anthropic/claude-sonnet-4.5",
		"x-ai/grok-4.1-fast",
	}

	// DefaultChairmanModel is the model used for final synthesis
	DefaultChairmanModel = "x-ai/grok-4.1-fast"

	// DefaultTitleModel generates conversation titles (fast and cheap)
	DefaultTitleModel = "google/gemini-2.5-flash"

	// AvailableModels lists the selectable backends for /api/models
	AvailableModels = []ModelInfo{
		{ID: "openai/gpt-5.1", Name: "GPT-5.1", Provider: "OpenAI"},
		{ID: "openai/gpt-5", Name: "GPT-5", Provider: "OpenAI"},
		{ID: "openai/gpt-4.1", Name: "GPT-4.1", Provider: "OpenAI"},
		{ID: "google/gemini-3-pro-preview", Name: "Gemini 3 Pro", Provider: "Google"},
		{ID: "google/gemini-2.5-pro", Name: "Gemini 2.5 Pro", Provider: "Google"},
		{ID: "google/gemini-2.5-flash", Name: "Gemini 2.5 Flash", Provider: "Google"},
		{ID: "anthropic/claude-sonnet-4.5", Name: "Claude Sonnet 4.5", Provider: "Anthropic"},
		{ID: "anthropic/claude-sonnet-4", Name: "Claude Sonnet 4", Provider: "Anthropic"},
		{ID: "anthropic/claude-haiku-4.5", Name: "Claude Haiku 4.5", Provider: "Anthropic"},
		{ID: "x-ai/grok-4.1-fast", Name: "Grok 4.1 Fast", Provider: "xAI"},
		{ID: "x-ai/grok-4", Name: "Grok 4", Provider: "xAI"},
		{ID: "meta-llama/llama-4-maverick", Name: "Llama 4 Maverick", Provider: "Meta"},
		{ID: "deepseek/deepseek-chat-v3-0324", Name: "DeepSeek V3", Provider: "DeepSeek"},
		{ID: "mistralai/mistral-large-2411", Name: "Mistral Large", Provider: "Mistral"},
	}

	// OpenRouterAPIURL is the endpoint for OpenRouter API
	OpenRouterAPIURL = "https://openrouter.ai/api/v1/chat/completions"

	// DataDir is the directory for conversation storage
	DataDir = "data/conversations"

	// Timeout constants
	ModelQueryTimeout = 120 * time.Second
	TitleGenTimeout   = 30 * time.Second

	// CORS allowed origins (configurable via environment)
	// In development (empty/default), allows any localhost port
	// In production, set CORS_ALLOWED_ORIGINS environment variable
	CORSAllowedOrigins = []string{}

	// MaxRequestBodySize is the maximum allowed request body size (1MB)
	MaxRequestBodySize int64 = 1 << 20

	// PageCacheTTL is the time-to-live for fetched page content
	PageCacheTTL = 5 * time.Minute
)

// CouncilFile is the optional on-disk model roster (council.yaml).
type CouncilFile struct {
	Council  []string `yaml:"council"`
	Chairman string   `yaml:"chairman"`
	Title    string   `yaml:"title"`
}

// LoadCouncilFile reads a council.yaml roster and applies its non-empty
// fields over the package defaults.
func LoadCouncilFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file CouncilFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}

	if len(file.Council) > 0 {
		DefaultCouncilModels = file.Council
	}
	if file.Chairman != "" {
		DefaultChairmanModel = file.Chairman
	}
	if file.Title != "" {
		DefaultTitleModel = file.Title
	}
	return nil
}

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	// Load .env file - try multiple locations
	envLocations := []string{
		".env",    // Current directory
		"../.env", // Parent directory
	}

	// Try to find and load .env file
	envLoaded := false
	for _, envPath := range envLocations {
		absPath, err := filepath.Abs(envPath)
		if err != nil {
			continue
		}

		if _, err := os.Stat(absPath); err == nil {
			if err := godotenv.Load(absPath); err == nil {
				log.Printf("Loaded .env from: %s", absPath)
				envLoaded = true
				break
			}
		}
	}

	if !envLoaded {
		log.Printf("Warning: .env file not found in any expected location")
	}

	// Get OpenRouter API key
	OpenRouterAPIKey = os.Getenv("OPENROUTER_API_KEY")
	if OpenRouterAPIKey == "" {
		log.Fatal("OPENROUTER_API_KEY environment variable is required")
	}

	// Optional council roster file
	councilPath := os.Getenv("COUNCIL_CONFIG")
	if councilPath == "" {
		councilPath = "council.yaml"
	}
	if _, err := os.Stat(councilPath); err == nil {
		if err := LoadCouncilFile(councilPath); err != nil {
			log.Fatalf("Failed to load council config %s: %v", councilPath, err)
		}
		log.Printf("Loaded council roster from: %s", councilPath)
	}

	// Load CORS origins from environment if provided (comma-separated)
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		CORSAllowedOrigins = []string{}
		for _, origin := range strings.Split(corsOrigins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				CORSAllowedOrigins = append(CORSAllowedOrigins, origin)
			}
		}
	}

	log.Println("Configuration loaded successfully")
}
