package config

import (
	"os"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// DatabaseConfig.GetDSN
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "standard config",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "mlforkids",
				Password: "secret",
				Name:     "mlforkids",
				SSLMode:  "require",
			},
			want: "host=localhost port=5432 user=mlforkids password=secret dbname=mlforkids sslmode=require",
		},
		{
			name: "empty password",
			cfg: DatabaseConfig{
				Host:    "db.example.com",
				Port:    5433,
				User:    "user",
				Name:    "dbname",
				SSLMode: "disable",
			},
			want: "host=db.example.com port=5433 user=user password= dbname=dbname sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetDSN()
			if got != tt.want {
				t.Errorf("GetDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ServerConfig.GetAddress
// ---------------------------------------------------------------------------

func TestGetAddress(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{"default", ServerConfig{Host: "0.0.0.0", Port: 8080}, "0.0.0.0:8080"},
		{"localhost", ServerConfig{Host: "localhost", Port: 3000}, "localhost:3000"},
		{"empty host", ServerConfig{Host: "", Port: 8080}, ":8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetAddress()
			if got != tt.want {
				t.Errorf("GetAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// SessionUsersConfig.OriginLimit
// ---------------------------------------------------------------------------

func TestOriginLimit(t *testing.T) {
	cfg := SessionUsersConfig{MaxUsers: 3200, OriginLimits: map[string]int{"sa": 2000}}

	tests := []struct {
		origin string
		want   int
	}{
		{"SA", 2000},
		{"sa", 2000},
		{"GB", 3200},
		{"", 3200},
	}
	for _, tt := range tests {
		if got := cfg.OriginLimit(tt.origin); got != tt.want {
			t.Errorf("OriginLimit(%q) = %d, want %d", tt.origin, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Config.Validate
// ---------------------------------------------------------------------------

func minimalValidConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host: "localhost",
			Name: "mlforkids",
			User: "mlforkids",
		},
		Storage: StorageConfig{
			DefaultBackend: "local",
			Local:          LocalStorageConfig{BasePath: "./storage"},
		},
		Pool: PoolConfig{
			FailureCooldown: 25 * time.Hour,
			RecoveryWindow:  time.Hour,
			BatchSize:       100,
		},
		SessionUsers: SessionUsersConfig{
			Enabled:  true,
			MaxUsers: 3200,
			Lifespan: 4 * time.Hour,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid minimal config", func(*Config) {}, false},
		{"port 0", func(c *Config) { c.Server.Port = 0 }, true},
		{"port 70000", func(c *Config) { c.Server.Port = 70000 }, true},
		{"missing database host", func(c *Config) { c.Database.Host = "" }, true},
		{"missing database name", func(c *Config) { c.Database.Name = "" }, true},
		{"missing database user", func(c *Config) { c.Database.User = "" }, true},
		{"unknown storage backend", func(c *Config) { c.Storage.DefaultBackend = "ftp" }, true},
		{"azure missing account", func(c *Config) {
			c.Storage.DefaultBackend = "azure"
			c.Storage.Azure = AzureStorageConfig{AccountKey: "k", ContainerName: "c"}
		}, true},
		{"azure complete", func(c *Config) {
			c.Storage.DefaultBackend = "azure"
			c.Storage.Azure = AzureStorageConfig{AccountName: "a", AccountKey: "k", ContainerName: "c"}
		}, false},
		{"s3 missing region", func(c *Config) {
			c.Storage.DefaultBackend = "s3"
			c.Storage.S3 = S3StorageConfig{Bucket: "b"}
		}, true},
		{"gcs missing bucket", func(c *Config) { c.Storage.DefaultBackend = "gcs" }, true},
		{"local missing base path", func(c *Config) { c.Storage.Local.BasePath = "" }, true},
		{"oidc without issuer", func(c *Config) { c.Auth.OIDC = OIDCConfig{Enabled: true, ClientID: "x"} }, true},
		{"tls without cert", func(c *Config) { c.Security.TLS = TLSConfig{Enabled: true, KeyFile: "k"} }, true},
		{"zero failure cooldown", func(c *Config) { c.Pool.FailureCooldown = 0 }, true},
		{"negative recovery window", func(c *Config) { c.Pool.RecoveryWindow = -time.Minute }, true},
		{"zero recovery window", func(c *Config) { c.Pool.RecoveryWindow = 0 }, false},
		{"zero batch size", func(c *Config) { c.Pool.BatchSize = 0 }, true},
		{"zero max session users", func(c *Config) { c.SessionUsers.MaxUsers = 0 }, true},
		{"bad origin limit", func(c *Config) { c.SessionUsers.OriginLimits = map[string]int{"SA": 0} }, true},
		{"session users disabled ignores limits", func(c *Config) {
			c.SessionUsers.Enabled = false
			c.SessionUsers.MaxUsers = 0
		}, false},
		{"bad logging level", func(c *Config) { c.Logging.Level = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := minimalValidConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

// writeTempConfig creates a temp YAML file and registers a cleanup to remove it.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "config-test-*.yaml")
	if err != nil {
		t.Fatal("CreateTemp:", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	if _, err := f.WriteString(content); err != nil {
		t.Fatal("WriteString:", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, `
database:
  host: "localhost"
logging:
  level: "info"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Pool.FailureCooldown != 25*time.Hour {
		t.Errorf("default Pool.FailureCooldown = %v, want 25h", cfg.Pool.FailureCooldown)
	}
	if cfg.Pool.RecoveryWindow != time.Hour {
		t.Errorf("default Pool.RecoveryWindow = %v, want 1h", cfg.Pool.RecoveryWindow)
	}
	if cfg.SessionUsers.MaxUsers != 3200 {
		t.Errorf("default SessionUsers.MaxUsers = %d, want 3200", cfg.SessionUsers.MaxUsers)
	}
	if got := cfg.SessionUsers.OriginLimit("SA"); got != 2000 {
		t.Errorf("default SA origin limit = %d, want 2000", got)
	}
	if cfg.SessionUsers.CheckWindow != 10*time.Second {
		t.Errorf("default SessionUsers.CheckWindow = %v, want 10s", cfg.SessionUsers.CheckWindow)
	}
	if cfg.PendingJobs.LongRunWarning != 3*time.Hour {
		t.Errorf("default PendingJobs.LongRunWarning = %v, want 3h", cfg.PendingJobs.LongRunWarning)
	}
}

func TestLoad_WithConfigFile(t *testing.T) {
	path := writeTempConfig(t, `
server:
  port: 9999
pool:
  failure_cooldown: "48h"
  recovery_window: "30m"
session_users:
  max_users: 10
logging:
  level: "debug"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Pool.FailureCooldown != 48*time.Hour {
		t.Errorf("Pool.FailureCooldown = %v, want 48h", cfg.Pool.FailureCooldown)
	}
	if cfg.Pool.RecoveryWindow != 30*time.Minute {
		t.Errorf("Pool.RecoveryWindow = %v, want 30m", cfg.Pool.RecoveryWindow)
	}
	if cfg.SessionUsers.MaxUsers != 10 {
		t.Errorf("SessionUsers.MaxUsers = %d, want 10", cfg.SessionUsers.MaxUsers)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MLK_DATABASE_HOST", "db.internal")
	t.Setenv("ENCRYPTION_KEY", "s3cret")
	t.Setenv("TEST_JWT_SECRET", "jwt-secret")

	path := writeTempConfig(t, `
auth:
  session:
    jwt_secret: "${TEST_JWT_SECRET}"
logging:
  level: "info"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("Database.Host = %q, want db.internal", cfg.Database.Host)
	}
	if cfg.Security.EncryptionKey != "s3cret" {
		t.Errorf("Security.EncryptionKey = %q, want s3cret", cfg.Security.EncryptionKey)
	}
	if cfg.Auth.Session.JWTSecret != "jwt-secret" {
		t.Errorf("Auth.Session.JWTSecret = %q, want jwt-secret", cfg.Auth.Session.JWTSecret)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "server: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestWatch_ReturnsInitialConfig(t *testing.T) {
	path := writeTempConfig(t, `
logging:
  level: "warn"
`)
	cfg, err := Watch(path, func(*Config) {}, nil)
	if err != nil {
		t.Fatalf("Watch() error: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}
