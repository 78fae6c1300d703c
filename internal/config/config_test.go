package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "CALENDAR_BASE_URL", "VOICE_BASE_URL",
		"CALL_WINDOW_START", "CALL_WINDOW_END", "MAX_CALL_ATTEMPTS",
		"CALL_RETRY_DELAY", "RETRY_SWEEP_INTERVAL", "CALL_LOG_PATH",
	} {
		t.Setenv(key, "")
	}
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "https://rest.gohighlevel.com/v1", cfg.CalendarBaseURL)
	assert.Equal(t, "https://api.bland.ai/v1", cfg.VoiceBaseURL)
	assert.Equal(t, "09:00", cfg.CallWindowStart)
	assert.Equal(t, "18:00", cfg.CallWindowEnd)
	assert.Equal(t, 2, cfg.MaxCallAttempts)
	assert.Equal(t, 2*time.Hour, cfg.CallRetryDelay)
	assert.Equal(t, time.Minute, cfg.RetrySweepInterval)
	assert.Equal(t, "call-log.json", cfg.CallLogPath)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("MAX_CALL_ATTEMPTS", "3")
	t.Setenv("CALL_RETRY_DELAY", "45m")
	t.Setenv("REDIS_TLS", "true")

	cfg := Load()
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 3, cfg.MaxCallAttempts)
	assert.Equal(t, 45*time.Minute, cfg.CallRetryDelay)
	assert.True(t, cfg.RedisTLS)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("MAX_CALL_ATTEMPTS", "lots")
	t.Setenv("CALL_RETRY_DELAY", "soon")

	cfg := Load()
	assert.Equal(t, 2, cfg.MaxCallAttempts)
	assert.Equal(t, 2*time.Hour, cfg.CallRetryDelay)
}

func TestServiceCalendars(t *testing.T) {
	cfg := &Config{ServiceCalendarMapJSON: `{"Hydrafacial":"cal-1","Botox":"cal-2"}`}
	m, err := cfg.ServiceCalendars()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Hydrafacial": "cal-1", "Botox": "cal-2"}, m)
}

func TestServiceCalendarsEmpty(t *testing.T) {
	cfg := &Config{}
	m, err := cfg.ServiceCalendars()
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestServiceCalendarsMalformed(t *testing.T) {
	cfg := &Config{ServiceCalendarMapJSON: `{"Hydrafacial":`}
	_, err := cfg.ServiceCalendars()
	assert.Error(t, err)
}
