// config_test.go — 配置加载默认值 + 环境变量覆盖测试。
package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("RESEARCH_API_URL")
	os.Unsetenv("RESEARCH_POLL_INTERVAL_SEC")
	os.Unsetenv("RESEARCH_REQUEST_TIMEOUT_SEC")

	cfg := Load()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"APIBaseURL", cfg.APIBaseURL, "http://localhost:8000"},
		{"RequestTimeoutSec", cfg.RequestTimeoutSec, 10},
		{"PollIntervalSec", cfg.PollIntervalSec, 15},
		{"StateDir", cfg.StateDir, ".research-console"},
		{"DashboardAddr", cfg.DashboardAddr, ""},
		{"LogLevel", cfg.LogLevel, "INFO"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RESEARCH_API_URL", "https://research.example.com")
	t.Setenv("RESEARCH_POLL_INTERVAL_SEC", "30")

	cfg := Load()
	if cfg.APIBaseURL != "https://research.example.com" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.PollIntervalSec != 30 {
		t.Errorf("PollIntervalSec = %d", cfg.PollIntervalSec)
	}
}

func TestPollIntervalMinimum(t *testing.T) {
	t.Setenv("RESEARCH_POLL_INTERVAL_SEC", "1")
	cfg := Load()
	if cfg.PollIntervalSec != 5 {
		t.Errorf("PollIntervalSec = %d, want clamped to 5", cfg.PollIntervalSec)
	}
}

func TestWebSocketURLDerivation(t *testing.T) {
	cases := []struct {
		base, override, want string
	}{
		{"http://localhost:8000", "", "ws://localhost:8000/ws/research"},
		{"https://research.example.com/", "", "wss://research.example.com/ws/research"},
		{"http://localhost:8000", "ws://other:9000/ws/research", "ws://other:9000/ws/research"},
	}
	for _, c := range cases {
		cfg := &Config{APIBaseURL: c.base, WSURLOverride: c.override}
		if got := cfg.WebSocketURL(); got != c.want {
			t.Errorf("WebSocketURL(%q, %q) = %q, want %q", c.base, c.override, got, c.want)
		}
	}
}
