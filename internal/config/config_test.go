package config

import (
	"os"
	"strings"
	"testing"
)

func TestLoadAppliesDefaultsWithNoEnvironment(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("db host = %q, want localhost", cfg.Database.Host)
	}
	if cfg.Pipeline.Concurrency != 4 {
		t.Errorf("concurrency = %d, want 4", cfg.Pipeline.Concurrency)
	}
	if cfg.Qdrant.Port != 6334 {
		t.Errorf("qdrant port = %d, want 6334", cfg.Qdrant.Port)
	}
}

func TestLoadStripsRedisSchemeFromURL(t *testing.T) {
	os.Setenv("REDIS_URL", "redis://cache.internal:6380")
	defer os.Unsetenv("REDIS_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Redis != "cache.internal:6380" {
		t.Errorf("redis = %q, want cache.internal:6380 (scheme stripped)", cfg.Redis)
	}
}

func TestDatabaseConfigDSNIncludesEveryField(t *testing.T) {
	d := DatabaseConfig{
		Host: "db.internal", Port: "5433", User: "u", Password: "p",
		DBName: "ingestion", SSLMode: "require", TimeZone: "UTC",
	}
	dsn := d.DSN()
	for _, want := range []string{"host=db.internal", "port=5433", "user=u", "password=p", "dbname=ingestion", "sslmode=require", "TimeZone=UTC"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
}

func TestBuildLoggerDevelopmentAndProduction(t *testing.T) {
	for _, env := range []string{"development", "production", ""} {
		log, err := BuildLogger(env)
		if err != nil {
			t.Fatalf("env %q: unexpected error: %v", env, err)
		}
		if log == nil {
			t.Fatalf("env %q: expected non-nil logger", env)
		}
	}
}
