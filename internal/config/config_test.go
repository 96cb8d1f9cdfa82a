package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate_RequiresDatabase(t *testing.T) {
	cfg := &Config{Engine: EngineConfig{ConcurrencyLimit: 5}, Workers: WorkersConfig{MaxConcurrent: 3}}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestConfig_Validate_RejectsZeroConcurrency(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Host: "localhost"},
		Engine:   EngineConfig{ConcurrencyLimit: 0},
		Workers:  WorkersConfig{MaxConcurrent: 3},
	}
	assert.Error(t, cfg.Validate())
}

func TestConfig_GetDatabaseURL_PrefersExplicitURL(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{URL: "postgres://explicit"}}
	assert.Equal(t, "postgres://explicit", cfg.GetDatabaseURL())
}

func TestConfig_GetDatabaseURL_ConstructsFromFields(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", Database: "evalforge", SSLMode: "disable",
	}}
	assert.Equal(t, "postgres://u:p@db:5432/evalforge?sslmode=disable", cfg.GetDatabaseURL())
}

func TestConfig_Validate_OK(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Host: "localhost"},
		Engine:   EngineConfig{ConcurrencyLimit: 5, ComparisonThreshold: 0.01},
		Workers:  WorkersConfig{MaxConcurrent: 3},
	}
	assert.NoError(t, cfg.Validate())
}
