package reliability

import (
	"os"
	"strconv"
	"time"
)

// ReliabilityConfig holds configuration for reliability testing.
type ReliabilityConfig struct {
	Level         string        // "basic" or "stress"
	Duration      time.Duration // Test duration for stress tests
	MaxGoroutines int           // Maximum goroutines for concurrent tests
}

// getReliabilityConfig reads configuration from environment variables.
func getReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		Level:         getEnv("SPANZ_RELIABILITY_LEVEL", ""),
		Duration:      parseDuration(getEnv("SPANZ_RELIABILITY_DURATION", "2s")),
		MaxGoroutines: parseInt(getEnv("SPANZ_RELIABILITY_MAX_GOROUTINES", "100"), 100),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, fallback int) int {
	if value, err := strconv.Atoi(s); err == nil && value > 0 {
		return value
	}
	return fallback
}

func parseDuration(s string) time.Duration {
	if duration, err := time.ParseDuration(s); err == nil {
		return duration
	}
	return 2 * time.Second
}

// isStressTestEnabled checks if stress testing is enabled.
func isStressTestEnabled() bool {
	return os.Getenv("SPANZ_RELIABILITY_LEVEL") == "stress"
}

// shouldSkipReliabilityTests determines if reliability tests should be skipped.
func shouldSkipReliabilityTests() bool {
	return os.Getenv("SPANZ_RELIABILITY_LEVEL") == ""
}
