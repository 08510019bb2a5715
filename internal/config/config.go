package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/pelletier/go-toml/v2"
)

// WireAPI 上游线协议
type WireAPI string

const (
	WireChat      WireAPI = "chat"
	WireResponses WireAPI = "responses"
)

// Routing 每请求读取的模型路由配置，支持热更新
type Routing struct {
	BigModel            string
	MiddleModel         string
	SmallModel          string
	MinThinkingLevel    string // low / medium / high，空表示不设下限
	DebugToolIDMatching bool
}

// Config 进程配置，启动时初始化一次
// 路由相关字段通过 Routing() 读取，可被配置文件热更新替换
type Config struct {
	OpenAIAPIKey    string
	AnthropicAPIKey string // 为空时不校验客户端密钥
	OpenAIBaseURL   string
	AzureAPIVersion string

	Host string
	Port int

	LogLevel     string
	LogDir       string
	LogFile      string
	LogMaxSize   int // 单个日志文件最大大小 (MB)
	LogMaxBackup int // 保留的旧日志文件最大数量
	LogMaxAge    int // 保留的旧日志文件最大天数
	LogCompress  bool
	LogToConsole bool

	RequestTimeout       int // 非流式请求超时（秒）
	StreamRequestTimeout int // 流式请求超时（秒），0 表示不限制
	RequestBodyMaxSize   int64

	SessionTTLMinSecs          int64
	SessionTTLMaxSecs          int64
	SessionCleanupIntervalSecs int64

	WireAPI WireAPI

	// max_tokens 守护：0 表示直接透传
	MaxTokensLimit int
	MinTokensLimit int

	RequestLogEnabled        bool
	RequestLogDBPath         string
	RequestLogRetentionHours int

	CustomHeaders map[string]string

	ConfigPath string // 实际读取的 toml 路径，供热更新监听

	routing atomic.Pointer[Routing]
}

// tomlConfig config.toml 原始结构，全部字段可选
type tomlConfig struct {
	OpenAIAPIKey    *string `toml:"openai_api_key"`
	AnthropicAPIKey *string `toml:"anthropic_api_key"`
	OpenAIBaseURL   *string `toml:"openai_base_url"`
	AzureAPIVersion *string `toml:"azure_api_version"`

	Host *string `toml:"host"`
	Port *int    `toml:"port"`

	LogLevel     *string `toml:"log_level"`
	LogDir       *string `toml:"log_dir"`
	LogFile      *string `toml:"log_file"`
	LogMaxSize   *int    `toml:"log_max_size"`
	LogMaxBackup *int    `toml:"log_max_backups"`
	LogMaxAge    *int    `toml:"log_max_age"`
	LogCompress  *bool   `toml:"log_compress"`
	LogToConsole *bool   `toml:"log_to_console"`

	RequestTimeout       *int   `toml:"request_timeout"`
	StreamRequestTimeout *int   `toml:"stream_request_timeout"`
	RequestBodyMaxSize   *int64 `toml:"request_body_max_size"`

	SessionTTLMinSecs          *int64 `toml:"session_ttl_min_secs"`
	SessionTTLMaxSecs          *int64 `toml:"session_ttl_max_secs"`
	SessionCleanupIntervalSecs *int64 `toml:"session_cleanup_interval_secs"`

	WireAPI *string `toml:"wire_api"`

	BigModel            *string `toml:"big_model"`
	MiddleModel         *string `toml:"middle_model"`
	SmallModel          *string `toml:"small_model"`
	MinThinkingLevel    *string `toml:"min_thinking_level"`
	DebugToolIDMatching *bool   `toml:"debug_tool_id_matching"`

	MaxTokensLimit *int `toml:"max_tokens_limit"`
	MinTokensLimit *int `toml:"min_tokens_limit"`

	RequestLogEnabled        *bool   `toml:"request_log_enabled"`
	RequestLogDBPath         *string `toml:"request_log_db_path"`
	RequestLogRetentionHours *int    `toml:"request_log_retention_hours"`

	CustomHeaders map[string]string `toml:"custom_headers"`
}

// Load 读取 config.toml（存在时），再用环境变量覆盖
func Load(path string) (*Config, error) {
	raw, err := readTomlConfig(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{ConfigPath: path}

	cfg.OpenAIAPIKey = envString("OPENAI_API_KEY", strDefault(raw.OpenAIAPIKey, ""))
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not found in environment variables and %s", path)
	}
	cfg.AnthropicAPIKey = envString("ANTHROPIC_API_KEY", strDefault(raw.AnthropicAPIKey, ""))
	cfg.OpenAIBaseURL = envString("OPENAI_BASE_URL", strDefault(raw.OpenAIBaseURL, "https://api.openai.com/v1"))
	cfg.AzureAPIVersion = envString("AZURE_API_VERSION", strDefault(raw.AzureAPIVersion, ""))

	cfg.Host = envString("HOST", strDefault(raw.Host, "0.0.0.0"))
	cfg.Port = envInt("PORT", intDefault(raw.Port, 8082))

	cfg.LogLevel = strings.ToUpper(envString("LOG_LEVEL", strDefault(raw.LogLevel, "INFO")))
	cfg.LogDir = envString("LOG_DIR", strDefault(raw.LogDir, "logs"))
	cfg.LogFile = envString("LOG_FILE", strDefault(raw.LogFile, "app.log"))
	cfg.LogMaxSize = envInt("LOG_MAX_SIZE", intDefault(raw.LogMaxSize, 100))
	cfg.LogMaxBackup = envInt("LOG_MAX_BACKUPS", intDefault(raw.LogMaxBackup, 10))
	cfg.LogMaxAge = envInt("LOG_MAX_AGE", intDefault(raw.LogMaxAge, 30))
	cfg.LogCompress = envBool("LOG_COMPRESS", boolDefault(raw.LogCompress, true))
	cfg.LogToConsole = envBool("LOG_TO_CONSOLE", boolDefault(raw.LogToConsole, true))

	cfg.RequestTimeout = envInt("REQUEST_TIMEOUT", intDefault(raw.RequestTimeout, 90))
	cfg.StreamRequestTimeout = envInt("STREAM_REQUEST_TIMEOUT", intDefault(raw.StreamRequestTimeout, 0))
	cfg.RequestBodyMaxSize = envInt64("REQUEST_BODY_MAX_SIZE", int64Default(raw.RequestBodyMaxSize, 16*1024*1024))

	cfg.SessionTTLMinSecs = envInt64("SESSION_TTL_MIN_SECS", int64Default(raw.SessionTTLMinSecs, 1800))
	cfg.SessionTTLMaxSecs = envInt64("SESSION_TTL_MAX_SECS", int64Default(raw.SessionTTLMaxSecs, 86400))
	cfg.SessionCleanupIntervalSecs = envInt64("SESSION_CLEANUP_INTERVAL_SECS", int64Default(raw.SessionCleanupIntervalSecs, 60))

	wireAPI, err := parseWireAPI(envString("WIRE_API", strDefault(raw.WireAPI, "")))
	if err != nil {
		return nil, err
	}
	cfg.WireAPI = wireAPI

	cfg.MaxTokensLimit = envInt("MAX_TOKENS_LIMIT", intDefault(raw.MaxTokensLimit, 0))
	cfg.MinTokensLimit = envInt("MIN_TOKENS_LIMIT", intDefault(raw.MinTokensLimit, 0))

	cfg.RequestLogEnabled = envBool("REQUEST_LOG_ENABLED", boolDefault(raw.RequestLogEnabled, true))
	cfg.RequestLogDBPath = envString("REQUEST_LOG_DB_PATH", strDefault(raw.RequestLogDBPath, ".config/request_logs.db"))
	cfg.RequestLogRetentionHours = envInt("REQUEST_LOG_RETENTION_HOURS", intDefault(raw.RequestLogRetentionHours, 168))

	routing, err := loadRouting(raw)
	if err != nil {
		return nil, err
	}
	cfg.routing.Store(routing)

	cfg.CustomHeaders = map[string]string{}
	for name, value := range raw.CustomHeaders {
		cfg.CustomHeaders[name] = value
	}
	collectCustomHeaderEnv(cfg.CustomHeaders)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadRouting 读取可热更新的路由字段
func loadRouting(raw *tomlConfig) (*Routing, error) {
	bigModel := envString("BIG_MODEL", strDefault(raw.BigModel, "gpt-4o"))
	routing := &Routing{
		BigModel:            bigModel,
		MiddleModel:         envString("MIDDLE_MODEL", strDefault(raw.MiddleModel, bigModel)),
		SmallModel:          envString("SMALL_MODEL", strDefault(raw.SmallModel, "gpt-4o-mini")),
		DebugToolIDMatching: envBool("DEBUG_TOOL_ID_MATCHING", boolDefault(raw.DebugToolIDMatching, false)),
	}

	level, err := parseMinThinkingLevel(envString("MIN_THINKING_LEVEL", strDefault(raw.MinThinkingLevel, "")))
	if err != nil {
		return nil, err
	}
	routing.MinThinkingLevel = level
	return routing, nil
}

// Routing 返回当前生效的路由配置
func (c *Config) Routing() *Routing {
	return c.routing.Load()
}

// SetRouting 替换当前生效的路由配置
func (c *Config) SetRouting(routing *Routing) {
	c.routing.Store(routing)
}

// validate 配置一致性检查，失败应终止启动
func (c *Config) validate() error {
	if c.SessionTTLMinSecs <= 0 {
		return fmt.Errorf("SESSION_TTL_MIN_SECS must be > 0")
	}
	if c.SessionTTLMaxSecs < c.SessionTTLMinSecs {
		return fmt.Errorf("SESSION_TTL_MAX_SECS must be >= SESSION_TTL_MIN_SECS")
	}
	if c.SessionCleanupIntervalSecs <= 0 {
		return fmt.Errorf("SESSION_CLEANUP_INTERVAL_SECS must be > 0")
	}
	if c.MaxTokensLimit > 0 && c.MinTokensLimit > c.MaxTokensLimit {
		return fmt.Errorf("MIN_TOKENS_LIMIT must be <= MAX_TOKENS_LIMIT")
	}
	return nil
}

// ValidateOpenAIKeyFormat 上游密钥是否形如 sk- 开头
func (c *Config) ValidateOpenAIKeyFormat() bool {
	return strings.HasPrefix(c.OpenAIAPIKey, "sk-")
}

// ShouldLog 是否应该记录该级别日志
func (c *Config) ShouldLog(level string) bool {
	levels := map[string]int{
		"ERROR": 0,
		"WARN":  1,
		"INFO":  2,
		"DEBUG": 3,
	}
	current, ok := levels[c.LogLevel]
	if !ok {
		current = 2 // 默认 INFO
	}
	requested, ok := levels[strings.ToUpper(level)]
	if !ok {
		return false
	}
	return requested <= current
}

func readTomlConfig(path string) (*tomlConfig, error) {
	raw := &tomlConfig{}
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return raw, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := toml.Unmarshal(content, raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return raw, nil
}

// collectCustomHeaderEnv 收集 CUSTOM_HEADER_* 环境变量，下划线转连字符
func collectCustomHeaderEnv(headers map[string]string) {
	for _, entry := range os.Environ() {
		key, value, found := strings.Cut(entry, "=")
		if !found {
			continue
		}
		name := strings.TrimPrefix(key, "CUSTOM_HEADER_")
		if name == key || name == "" {
			continue
		}
		headers[strings.ReplaceAll(name, "_", "-")] = value
	}
}

func parseWireAPI(value string) (WireAPI, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return WireChat, nil
	}
	switch strings.ToLower(trimmed) {
	case "chat":
		return WireChat, nil
	case "responses":
		return WireResponses, nil
	default:
		return "", fmt.Errorf("invalid WIRE_API value '%s' (supported: chat, responses)", trimmed)
	}
}

func parseMinThinkingLevel(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", nil
	}
	normalized := strings.ToLower(trimmed)
	switch normalized {
	case "low", "medium", "high":
		return normalized, nil
	default:
		return "", fmt.Errorf("invalid MIN_THINKING_LEVEL value '%s' (supported: low, medium, high)", trimmed)
	}
}

// envString 获取环境变量，不存在时返回默认值
func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func strDefault(value *string, fallback string) string {
	if value != nil && *value != "" {
		return *value
	}
	return fallback
}

func intDefault(value *int, fallback int) int {
	if value != nil {
		return *value
	}
	return fallback
}

func int64Default(value *int64, fallback int64) int64 {
	if value != nil {
		return *value
	}
	return fallback
}

func boolDefault(value *bool, fallback bool) bool {
	if value != nil {
		return *value
	}
	return fallback
}
