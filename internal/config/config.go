package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// defaultValidSenders is the deployed allow-list of accountable senders whose
// comments count toward response-time measurement. Override with VALID_SENDERS.
var defaultValidSenders = []string{
	"software@ndc.com",
	"karthik.selvaraj@nordson.com",
	"edwin.mckay@nordson.com",
	"paul.strutt@nordson.com",
	"paul.green1@nordson.com",
	"brad.hoffman@nordson.com",
	"Justin.Dunlap@nordson.com",
}

// API holds everything the api service needs: tracker coordinates and
// credentials, pipeline policy values, and the HTTP-layer settings.
type API struct {
	Organization        string
	Project             string
	PersonalAccessToken string
	BaseURL             string
	States              []string
	BatchSize           int
	ValidSenders        []string
	BindAddr            string
	AllowedOrigins      []string
}

// LoadAPI builds an API config from environment variables (a .env file is
// honored when present). Configuration is read exactly once here; everything
// downstream receives this object explicitly.
func LoadAPI() (*API, error) {
	_ = godotenv.Load()

	c := &API{
		Organization:        getEnv("AZURE_ORG", ""),
		Project:             getEnv("AZURE_PROJECT", ""),
		PersonalAccessToken: getEnv("AZURE_PAT", ""),
		BaseURL:             strings.TrimRight(getEnv("AZURE_BASE_URL", "https://dev.azure.com"), "/"),
		States:              splitAndTrim(getEnv("WORKITEM_STATES", "To Do,Doing")),
		BatchSize:           getInt("DETAIL_BATCH_SIZE", 50),
		ValidSenders:        splitAndTrim(getEnv("VALID_SENDERS", strings.Join(defaultValidSenders, ","))),
		BindAddr:            getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		AllowedOrigins:      splitAndTrim(getEnv("API_ALLOWED_ORIGINS", "*")),
	}

	if c.Organization == "" {
		return nil, fmt.Errorf("AZURE_ORG must be set")
	}
	if c.Project == "" {
		return nil, fmt.Errorf("AZURE_PROJECT must be set")
	}
	if c.PersonalAccessToken == "" {
		return nil, fmt.Errorf("AZURE_PAT must be set")
	}
	if len(c.States) == 0 {
		return nil, fmt.Errorf("WORKITEM_STATES must contain at least one state")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("DETAIL_BATCH_SIZE must be positive")
	}
	if len(c.ValidSenders) == 0 {
		return nil, fmt.Errorf("VALID_SENDERS must contain at least one sender")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
