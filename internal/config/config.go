package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	xerrors "ChainScope-Agent/internal/errors"
	"ChainScope-Agent/pkg/logger"
)

// Config 描述了 chainscoped 在启动阶段需要加载的全部配置。
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	LLM     LLMConfig     `yaml:"llm"`
	MCP     MCPConfig     `yaml:"mcp"`
	Agent   AgentConfig   `yaml:"agent"`
	Chains  ChainsConfig  `yaml:"chains"`
	Storage StorageConfig `yaml:"storage"`
	Jobs    JobsConfig    `yaml:"jobs"`
	Log     logger.Config `yaml:"log"`
	Runtime RuntimeConfig `yaml:"runtime"`
}

// ServerConfig 控制 HTTP API 的监听地址与限流参数。
type ServerConfig struct {
	Address     string        `yaml:"address"`
	Port        int           `yaml:"port" env:"API_PORT"`
	RateLimit   float64       `yaml:"rate_limit"`
	RateBurst   int           `yaml:"rate_burst"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	SessionTTL  time.Duration `yaml:"session_ttl"`

	// APIKeys 非空时，除 /health 与 /metrics 外的接口都需要携带其中一个 Key。
	APIKeys []string `yaml:"api_keys" env:"API_KEYS" envSeparator:","`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider        string        `yaml:"provider" env:"LLM_PROVIDER"`
	Model           string        `yaml:"model" env:"LLM_MODEL"`
	BaseURL         string        `yaml:"base_url" env:"LLM_BASE_URL"`
	APIKey          string        `yaml:"api_key"`
	GeminiAPIKey    string        `yaml:"-" env:"GEMINI_API_KEY"`
	OpenAIAPIKey    string        `yaml:"-" env:"OPENAI_API_KEY"`
	Temperature     float32       `yaml:"temperature"`
	MaxOutputTokens int32         `yaml:"max_output_tokens"`
	Timeout         time.Duration `yaml:"timeout"`
}

// MCPConfig 描述如何连接提供链上数据工具的 MCP 服务。
type MCPConfig struct {
	Transport     string        `yaml:"transport" env:"MCP_TRANSPORT"`
	Endpoint      string        `yaml:"endpoint" env:"MCP_ENDPOINT"`
	Command       string        `yaml:"command"`
	Args          []string      `yaml:"args"`
	UnlockOnStart bool          `yaml:"unlock_on_start"`
	UnlockDelay   time.Duration `yaml:"unlock_delay"`
	CallTimeout   time.Duration `yaml:"call_timeout"`
}

// AgentConfig 对应对话循环的各项预算。
type AgentConfig struct {
	MaxIterations  int           `yaml:"max_iterations"`
	HistoryWindow  int           `yaml:"history_window"`
	ForceAfter     int           `yaml:"force_after_tool_calls"`
	ToolTimeout    time.Duration `yaml:"tool_timeout"`
	LLMTimeout     time.Duration `yaml:"llm_timeout"`
	ResultBudget   int           `yaml:"result_budget"`
	DefaultChainID string        `yaml:"default_chain_id" env:"DEFAULT_CHAIN_ID"`
	FanOutMode     string        `yaml:"fanout_mode"`
	FanOutDelay    time.Duration `yaml:"fanout_delay"`
}

// ChainsConfig 指向链目录文件，为空时使用内置目录。
type ChainsConfig struct {
	File string `yaml:"file" env:"CHAINS_FILE"`
}

// StorageConfig 描述对话审计记录的存储位置。
type StorageConfig struct {
	Transcripts TranscriptStoreConfig `yaml:"transcripts"`
}

// TranscriptStoreConfig 支持本地 JSONL 与 MySQL 两种实现。
type TranscriptStoreConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn" env:"TRANSCRIPTS_DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// JobsConfig 控制异步分析任务的队列与工作池。
type JobsConfig struct {
	Queue      string         `yaml:"queue" env:"JOBS_QUEUE"`
	Workers    int            `yaml:"workers"`
	MaxRetries int            `yaml:"max_retries"`
	Redis      RedisConfig    `yaml:"redis"`
	RabbitMQ   RabbitMQConfig `yaml:"rabbitmq"`

	// AlertWebhook 非空时，任务最终失败会以 JSON POST 到该地址。
	AlertWebhook string `yaml:"alert_webhook" env:"JOBS_ALERT_WEBHOOK"`
}

// RedisConfig 描述 Redis 队列。
type RedisConfig struct {
	Address   string        `yaml:"address" env:"REDIS_ADDR"`
	Password  string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB        int           `yaml:"db"`
	Queue     string        `yaml:"queue"`
	BlockWait time.Duration `yaml:"block_wait"`
}

// RabbitMQConfig 描述 RabbitMQ 队列。
type RabbitMQConfig struct {
	URL      string `yaml:"url" env:"RABBITMQ_URL"`
	Queue    string `yaml:"queue"`
	Prefetch int    `yaml:"prefetch"`
	Durable  bool   `yaml:"durable"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir     string `yaml:"data_dir" env:"DATA_DIR"`
	Environment string `yaml:"environment" env:"NODE_ENV"`
}

// Load 依次读取 YAML 配置文件、.env 与环境变量，最后补全默认值并校验。
// path 为空时只使用环境变量与默认值。
func Load(path string, dotenvFiles ...string) (*Config, error) {
	var cfg Config
	baseDir := "."

	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "读取配置文件失败")
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "解析配置失败")
		}
		baseDir = filepath.Dir(path)
	}

	if err := loadDotEnv(dotenvFiles); err != nil {
		return nil, err
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "解析环境变量失败")
	}

	cfg.applyDefaults(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv 加载 .env 文件，文件不存在时忽略；已有的环境变量不会被覆盖。
func loadDotEnv(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return xerrors.Wrap(xerrors.CodeConfigInvalid, err, fmt.Sprintf("加载 %s 失败", file))
		}
	}
	return nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Port > 0 {
		c.Server.Address = ":" + strconv.Itoa(c.Server.Port)
	}
	if c.Server.Address == "" {
		c.Server.Address = ":3000"
	}
	if c.Server.RateLimit <= 0 {
		c.Server.RateLimit = 5
	}
	if c.Server.RateBurst <= 0 {
		c.Server.RateBurst = 10
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.SessionTTL <= 0 {
		c.Server.SessionTTL = 30 * time.Minute
	}

	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
	}
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "gemini":
			c.LLM.APIKey = c.LLM.GeminiAPIKey
		case "openai":
			c.LLM.APIKey = c.LLM.OpenAIAPIKey
		}
	}
	if c.LLM.Model == "" {
		switch c.LLM.Provider {
		case "openai":
			c.LLM.Model = "gpt-4o-mini"
		default:
			c.LLM.Model = "gemini-2.0-flash"
		}
	}
	if c.LLM.Temperature <= 0 {
		c.LLM.Temperature = 0.1
	}
	if c.LLM.MaxOutputTokens <= 0 {
		c.LLM.MaxOutputTokens = 8000
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 30 * time.Second
	}

	if c.MCP.Transport == "" {
		c.MCP.Transport = "streamable_http"
	}
	if c.MCP.Transport == "streamable_http" && c.MCP.Endpoint == "" {
		c.MCP.Endpoint = "http://localhost:8080/mcp"
	}
	if c.MCP.UnlockDelay <= 0 {
		c.MCP.UnlockDelay = 500 * time.Millisecond
	}
	if c.MCP.CallTimeout <= 0 {
		c.MCP.CallTimeout = 30 * time.Second
	}

	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = 15
	}
	if c.Agent.HistoryWindow <= 0 {
		c.Agent.HistoryWindow = 10
	}
	if c.Agent.ForceAfter <= 0 {
		c.Agent.ForceAfter = 3
	}
	if c.Agent.ToolTimeout <= 0 {
		c.Agent.ToolTimeout = c.MCP.CallTimeout
	}
	if c.Agent.LLMTimeout <= 0 {
		c.Agent.LLMTimeout = c.LLM.Timeout
	}
	if c.Agent.ResultBudget <= 0 {
		c.Agent.ResultBudget = 8000
	}
	if c.Agent.DefaultChainID == "" {
		c.Agent.DefaultChainID = "1"
	}
	if c.Agent.FanOutMode == "" {
		c.Agent.FanOutMode = "parallel"
	}
	if c.Agent.FanOutDelay <= 0 {
		c.Agent.FanOutDelay = 300 * time.Millisecond
	}

	if c.Chains.File != "" && !filepath.IsAbs(c.Chains.File) {
		c.Chains.File = filepath.Join(baseDir, c.Chains.File)
	}

	if c.Storage.Transcripts.Driver == "" {
		c.Storage.Transcripts.Driver = "memory"
	}

	if c.Jobs.Queue == "" {
		c.Jobs.Queue = "memory"
	}
	if c.Jobs.Workers <= 0 {
		c.Jobs.Workers = 2
	}
	if c.Jobs.MaxRetries < 0 {
		c.Jobs.MaxRetries = 0
	}

	if c.Runtime.Environment == "" {
		c.Runtime.Environment = "development"
	}
	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
	if c.Log.Audit.Enabled && c.Log.Audit.Path == "" {
		c.Log.Audit.Path = filepath.Join(c.Runtime.DataDir, "audit.log")
	}
}

// Validate 检查枚举字段与必填项，错误统一使用 CONFIG_INVALID。
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return xerrors.New(xerrors.CodeConfigInvalid, fmt.Sprintf(format, args...))
	}

	switch c.LLM.Provider {
	case "gemini", "openai":
	default:
		return invalid("未知的 LLM 提供方: %s", c.LLM.Provider)
	}

	switch c.MCP.Transport {
	case "streamable_http":
		if strings.TrimSpace(c.MCP.Endpoint) == "" {
			return invalid("mcp.endpoint 不能为空")
		}
	case "command":
		if strings.TrimSpace(c.MCP.Command) == "" {
			return invalid("mcp.command 不能为空")
		}
	default:
		return invalid("未知的 MCP 传输方式: %s", c.MCP.Transport)
	}

	if c.Agent.ForceAfter > c.Agent.MaxIterations {
		return invalid("agent.force_after_tool_calls 不能大于 max_iterations")
	}
	switch c.Agent.FanOutMode {
	case "parallel", "sequential":
	default:
		return invalid("未知的 fanout_mode: %s", c.Agent.FanOutMode)
	}

	switch c.Storage.Transcripts.Driver {
	case "memory":
	case "mysql":
		if strings.TrimSpace(c.Storage.Transcripts.DSN) == "" {
			return invalid("storage.transcripts.dsn 不能为空")
		}
	default:
		return invalid("未知的审计存储驱动: %s", c.Storage.Transcripts.Driver)
	}

	switch c.Jobs.Queue {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Jobs.Redis.Address) == "" {
			return invalid("jobs.redis.address 不能为空")
		}
	case "rabbitmq":
		if strings.TrimSpace(c.Jobs.RabbitMQ.URL) == "" {
			return invalid("jobs.rabbitmq.url 不能为空")
		}
	default:
		return invalid("未知的队列驱动: %s", c.Jobs.Queue)
	}
	return nil
}

// IsProduction 对应 NODE_ENV=production。
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Runtime.Environment, "production")
}
