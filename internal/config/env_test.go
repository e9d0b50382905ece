package config

import (
	"os"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	// Test default value
	result := GetEnv("TEST_NONEXISTENT_VAR", "default")
	if result != "default" {
		t.Errorf("Expected 'default', got %q", result)
	}

	// Test with set value
	os.Setenv("TEST_GET_ENV", "custom")
	defer os.Unsetenv("TEST_GET_ENV")

	result = GetEnv("TEST_GET_ENV", "default")
	if result != "custom" {
		t.Errorf("Expected 'custom', got %q", result)
	}
}

func TestGetIntEnv(t *testing.T) {
	result := GetIntEnv("TEST_NONEXISTENT_INT", 42)
	if result != 42 {
		t.Errorf("Expected 42, got %d", result)
	}

	os.Setenv("TEST_INT_ENV", "123")
	defer os.Unsetenv("TEST_INT_ENV")

	result = GetIntEnv("TEST_INT_ENV", 42)
	if result != 123 {
		t.Errorf("Expected 123, got %d", result)
	}

	// Invalid values fall back to the default
	os.Setenv("TEST_INVALID_INT", "not-a-number")
	defer os.Unsetenv("TEST_INVALID_INT")

	result = GetIntEnv("TEST_INVALID_INT", 42)
	if result != 42 {
		t.Errorf("Expected 42 for invalid int, got %d", result)
	}
}

func TestGetDurationEnv(t *testing.T) {
	result := GetDurationEnv("TEST_NONEXISTENT_DUR", 5*time.Second)
	if result != 5*time.Second {
		t.Errorf("Expected 5s, got %v", result)
	}

	os.Setenv("TEST_DUR_ENV", "30s")
	defer os.Unsetenv("TEST_DUR_ENV")

	result = GetDurationEnv("TEST_DUR_ENV", 5*time.Second)
	if result != 30*time.Second {
		t.Errorf("Expected 30s, got %v", result)
	}
}

func TestGetBoolEnv(t *testing.T) {
	result := GetBoolEnv("TEST_NONEXISTENT_BOOL", true)
	if !result {
		t.Error("Expected default true")
	}

	os.Setenv("TEST_BOOL_ENV", "false")
	defer os.Unsetenv("TEST_BOOL_ENV")

	result = GetBoolEnv("TEST_BOOL_ENV", true)
	if result {
		t.Error("Expected false")
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.MaxConcurrent != 2 {
		t.Errorf("Expected default concurrency 2, got %d", cfg.MaxConcurrent)
	}
	if cfg.MetadataTimeout != 15*time.Second {
		t.Errorf("Expected default metadata timeout 15s, got %v", cfg.MetadataTimeout)
	}
	if cfg.DefaultPreset != "recommended_best" {
		t.Errorf("Expected default preset recommended_best, got %q", cfg.DefaultPreset)
	}
}
