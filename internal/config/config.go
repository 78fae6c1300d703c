package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	CalendarAPIKey         string
	CalendarBaseURL        string
	ServiceCalendarMapJSON string

	VoiceAPIKey  string
	VoiceBaseURL string
	VoicePersona string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	CallWindowStart    string
	CallWindowEnd      string
	CallWindowTimezone string

	MaxCallAttempts    int
	CallRetryDelay     time.Duration
	RetrySweepInterval time.Duration

	ReminderTriggerToken string
	CallLogPath          string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		CalendarAPIKey:         getEnv("CALENDAR_API_KEY", ""),
		CalendarBaseURL:        getEnv("CALENDAR_BASE_URL", "https://rest.gohighlevel.com/v1"),
		ServiceCalendarMapJSON: getEnv("SERVICE_CALENDAR_MAP_JSON", ""),

		VoiceAPIKey:  getEnv("VOICE_API_KEY", ""),
		VoiceBaseURL: getEnv("VOICE_BASE_URL", "https://api.bland.ai/v1"),
		VoicePersona: getEnv("VOICE_PERSONA", "June"),

		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: getEnv("TWILIO_FROM_NUMBER", ""),

		CallWindowStart:    getEnv("CALL_WINDOW_START", "09:00"),
		CallWindowEnd:      getEnv("CALL_WINDOW_END", "18:00"),
		CallWindowTimezone: getEnv("CALL_WINDOW_TZ", "America/New_York"),

		MaxCallAttempts:    getEnvAsInt("MAX_CALL_ATTEMPTS", 2),
		CallRetryDelay:     getEnvAsDuration("CALL_RETRY_DELAY", 2*time.Hour),
		RetrySweepInterval: getEnvAsDuration("RETRY_SWEEP_INTERVAL", time.Minute),

		ReminderTriggerToken: getEnv("REMINDER_TRIGGER_TOKEN", ""),
		CallLogPath:          getEnv("CALL_LOG_PATH", "call-log.json"),
	}
}

// ServiceCalendars returns the service name to calendar ID map parsed from
// SERVICE_CALENDAR_MAP_JSON. An empty value yields an empty map, not an error.
func (c *Config) ServiceCalendars() (map[string]string, error) {
	if c.ServiceCalendarMapJSON == "" {
		return map[string]string{}, nil
	}
	out := map[string]string{}
	if err := json.Unmarshal([]byte(c.ServiceCalendarMapJSON), &out); err != nil {
		return nil, fmt.Errorf("config: parse SERVICE_CALENDAR_MAP_JSON: %w", err)
	}
	return out, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
