package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "TTL", "BROADCAST_ADDR", "BROADCAST_PERIOD", "DM_ACK_TIMEOUT", "DM_MAX_ATTEMPTS"} {
		os.Unsetenv(k)
	}
}

func TestFromEnvReturnsDefaultsWhenUnset(t *testing.T) {
	clearEnv(t)
	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c != Defaults() {
		t.Fatalf("got %+v, want defaults %+v", c, Defaults())
	}
}

func TestFromEnvOverlaysSetVars(t *testing.T) {
	clearEnv(t)
	os.Setenv("PORT", "9999")
	os.Setenv("BROADCAST_ADDR", "10.0.0.255")
	os.Setenv("DM_MAX_ATTEMPTS", "5")
	defer clearEnv(t)

	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.Port != 9999 {
		t.Errorf("Port = %d, want 9999", c.Port)
	}
	if c.BroadcastAddr != "10.0.0.255" {
		t.Errorf("BroadcastAddr = %q, want 10.0.0.255", c.BroadcastAddr)
	}
	if c.DMMaxAttempts != 5 {
		t.Errorf("DMMaxAttempts = %d, want 5", c.DMMaxAttempts)
	}
	if c.TTL != Defaults().TTL {
		t.Errorf("TTL = %v, should keep default when unset", c.TTL)
	}
}

func TestFromEnvRejectsMalformedInt(t *testing.T) {
	clearEnv(t)
	os.Setenv("PORT", "not-a-number")
	defer clearEnv(t)

	if _, err := FromEnv(); err == nil {
		t.Fatal("expected an error for malformed PORT")
	}
}

func TestFromEnvTTLIsSeconds(t *testing.T) {
	clearEnv(t)
	os.Setenv("TTL", "30")
	defer clearEnv(t)

	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.TTL != 30*time.Second {
		t.Errorf("TTL = %v, want 30s", c.TTL)
	}
}
