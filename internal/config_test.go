package internal

import (
	"strings"
	"testing"
	"time"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Graph.CacheTTL.Graph != 60*time.Second || cfg.Graph.CacheTTL.Links != 30*time.Second {
		t.Errorf("cache ttls = %+v", cfg.Graph.CacheTTL)
	}
}

func TestGraphConfig_DepthOutOfRange(t *testing.T) {
	for _, depth := range []int{-1, 4} {
		cfg := NewDefaultConfig()
		cfg.Graph.DefaultDepth = depth
		if err := cfg.Validate(); err == nil {
			t.Errorf("default_depth %d should fail validation", depth)
		}
	}
}

func TestGraphConfig_ZeroTTL(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Graph.CacheTTL.Local = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("zero local ttl should fail validation")
	}
	if !strings.Contains(err.Error(), "cache_ttl") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGraphConfig_TTLs(t *testing.T) {
	c := CacheTTLConfig{Graph: time.Minute, Local: 2 * time.Minute, Links: time.Second}
	ttls := c.TTLs()
	if ttls.Graph != time.Minute || ttls.Local != 2*time.Minute || ttls.Links != time.Second {
		t.Errorf("ttls = %+v", ttls)
	}
}
