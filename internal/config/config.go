package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// APIKeyPlaceholder is the template value shipped in .env.example; a key
// equal to it means "not configured" and disables the Gemini client.
const APIKeyPlaceholder = "YOUR_GEMINI_API_KEY"

const defaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash-latest:generateContent"

// Config aggregates all service configuration.
type Config struct {
	Server ServerConfig
	Gemini GeminiConfig
	Store  StoreConfig
	Auth   AuthConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		Gemini: loadGeminiConfig(),
		Store:  loadStoreConfig(),
		Auth:   loadAuthConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr        string
	LogRequests bool
}

func loadServerConfig() (ServerConfig, error) {
	logRequests, err := parseBoolEnv("LOG_REQUESTS", true)
	if err != nil {
		return ServerConfig{}, err
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow passing ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port, LogRequests: logRequests}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, LogRequests: logRequests}, nil
}

// GeminiConfig holds the language-model endpoint settings. Generation
// bounds and safety thresholds are fixed in the client, not configurable.
type GeminiConfig struct {
	APIKey string
	APIURL string
}

// Configured reports whether a usable key and endpoint URL are present.
// The placeholder key counts as absent.
func (c GeminiConfig) Configured() bool {
	return c.APIKey != "" && c.APIKey != APIKeyPlaceholder && c.APIURL != ""
}

func loadGeminiConfig() GeminiConfig {
	return GeminiConfig{
		APIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		APIURL: getEnvOrDefault("GEMINI_API_URL", defaultGeminiURL),
	}
}

// StoreConfig locates the message store database.
type StoreConfig struct {
	Path string
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{
		Path: getEnvOrDefault("STORE_DB_PATH", "chat.db"),
	}
}

// AuthConfig seeds the development identity provider. Users holds a comma
// separated list of token:uid:email:name entries.
type AuthConfig struct {
	Users string
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		Users: strings.TrimSpace(os.Getenv("AUTH_USERS")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}
