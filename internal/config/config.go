// Package config 全局配置加载与管理。
//
// 所有字段通过 struct tag 声明环境变量映射:
//
//	`env:"VAR_NAME" default:"value" min:"0"`
//
// Load() 使用反射自动填充，无需手动逐行赋值。
package config

import (
	"strings"

	"github.com/Milix-M/DeepReSearch/pkg/util"
)

// websocketPath is the research stream endpoint on the server.
const websocketPath = "/ws/research"

// Config 应用全局配置，字段名与 .env 变量一一对应。
type Config struct {
	// Research server
	APIBaseURL        string `env:"RESEARCH_API_URL" default:"http://localhost:8000"`
	WSURLOverride     string `env:"RESEARCH_WS_URL"`
	RequestTimeoutSec int    `env:"RESEARCH_REQUEST_TIMEOUT_SEC" default:"10" min:"1"`
	PollIntervalSec   int    `env:"RESEARCH_POLL_INTERVAL_SEC" default:"15" min:"5"`

	// Client state
	StateDir string `env:"RESEARCH_STATE_DIR" default:".research-console"`

	// Dashboard (disabled when empty)
	DashboardAddr string `env:"RESEARCH_DASHBOARD_ADDR"`

	// 日志
	LogLevel string `env:"LOG_LEVEL" default:"INFO"`
	LogEnv   string `env:"LOG_ENV" default:"development"`
	LogDir   string `env:"LOG_DIR"`
}

// Load 从环境变量加载配置 (通过反射读取 struct tag)。
func Load() *Config {
	var cfg Config
	util.LoadFromEnv(&cfg)
	return &cfg
}

// WebSocketURL returns the stream endpoint: the explicit override when set,
// otherwise derived from the API base URL (http→ws, https→wss).
func (c *Config) WebSocketURL() string {
	if u := strings.TrimSpace(c.WSURLOverride); u != "" {
		return u
	}
	base := strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + websocketPath
}
