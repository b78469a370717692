package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address   string `yaml:"address"`   // Redis 服务器地址 (例如: "localhost:6379")，为空时禁用状态缓存
	Password  string `yaml:"password"`  // Redis 密码
	DB        int    `yaml:"db"`        // Redis 数据库编号
	StatusTTL string `yaml:"statusTTL"` // 工单状态缓存的有效期 (例如: "60s")
}

// MySQLConfig 定义了 MySQL 数据库的连接配置。
type MySQLConfig struct {
	Address         string `yaml:"address"`         // MySQL 服务器地址
	Username        string `yaml:"username"`        // 用户名
	Password        string `yaml:"password"`        // 密码
	Database        string `yaml:"database"`        // 数据库名称
	MaxOpenConns    int    `yaml:"maxOpenConns"`    // 最大打开连接数
	MaxIdleConns    int    `yaml:"maxIdleConns"`    // 最大空闲连接数
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // 连接最大生命周期 (秒)
}

// MongoConfig 定义了 MongoDB 数据库的连接配置。
type MongoConfig struct {
	Address    string `yaml:"address"`    // MongoDB 服务器地址
	Username   string `yaml:"username"`   // 用户名
	Password   string `yaml:"password"`   // 密码
	Database   string `yaml:"database"`   // 数据库名称
	Collection string `yaml:"collection"` // 工单集合名称
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`       // Kafka Broker 地址列表，为空时不发布工单事件
	EventTopic    string   `yaml:"eventTopic"`    // 工单生命周期事件主题
	ConsumerGroup string   `yaml:"consumerGroup"` // 状态缓存同步消费者组
}

// 工单存储后端。
const (
	CaseStoreMySQL  = "mysql"
	CaseStoreMongo  = "mongo"
	CaseStoreMemory = "memory"
)

// DatabaseConfigs 包含所有数据库的配置。
type DatabaseConfigs struct {
	CaseStore string      `yaml:"caseStore"` // 工单存储后端: "mysql", "mongo" 或 "memory"
	Redis     RedisConfig `yaml:"redis"`     // Redis 数据库配置
	MySQL     MySQLConfig `yaml:"mysql"`     // MySQL 数据库配置
	MongoDB   MongoConfig `yaml:"mongodb"`   // MongoDB 数据库配置
	Kafka     KafkaConfig `yaml:"kafka"`     // Kafka 消息队列配置
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// ServerConfig 定义了 HTTP 服务的监听配置。
type ServerConfig struct {
	Address         string `yaml:"address"`         // 监听地址 (例如: ":8080")
	ShutdownTimeout string `yaml:"shutdownTimeout"` // 优雅关闭的最长等待时间 (例如: "10s")
}

// AuthConfig 用于配置认证相关设置。
type AuthConfig struct {
	JwtSecret   string   `yaml:"jwtSecret"`   // JWT 密钥
	TokenTTL    int      `yaml:"tokenTTL"`    // JWT 令牌的有效期（秒）
	AdminEmails []string `yaml:"adminEmails"` // 注册时自动授予管理员角色的邮箱
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// PortalSelectors 定义了厂商门户页面上使用的 CSS 选择器。
type PortalSelectors struct {
	UserInput      string `yaml:"userInput"`      // 提交页的用户 ID 输入框
	IssueInput     string `yaml:"issueInput"`     // 提交页的问题描述输入框
	SubmitButton   string `yaml:"submitButton"`   // 提交按钮
	SuccessText    string `yaml:"successText"`    // 提交成功后出现的文本
	TaskInput      string `yaml:"taskInput"`      // 状态页/提醒页的工单号输入框
	SearchButton   string `yaml:"searchButton"`   // 状态页的搜索按钮
	ReminderButton string `yaml:"reminderButton"` // 提醒页的发送按钮
}

// BreakerConfig 定义了门户调用熔断器的配置。
type BreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// PortalConfig 定义了厂商工单门户的访问配置。
type PortalConfig struct {
	BaseURL           string          `yaml:"baseURL"`           // 门户地址
	BrowserBin        string          `yaml:"browserBin"`        // Chromium 可执行文件路径，为空时自动下载
	ControlURL        string          `yaml:"controlURL"`        // 已运行浏览器的 DevTools 地址，优先于 browserBin
	Headless          bool            `yaml:"headless"`          // 是否无头模式
	NavigationTimeout string          `yaml:"navigationTimeout"` // 单次门户操作的超时 (例如: "30s")
	TypingDelay       string          `yaml:"typingDelay"`       // 模拟输入时每个字符的基础延迟 (例如: "80ms")
	Selectors         PortalSelectors `yaml:"selectors"`         // 页面选择器
	Breaker           BreakerConfig   `yaml:"breaker"`           // 熔断器
}

// SMTPConfig 定义了邮件通知的发送配置。
type SMTPConfig struct {
	Host      string `yaml:"host"`      // SMTP 服务器地址，为空时只记录日志
	Port      int    `yaml:"port"`      // SMTP 端口
	Username  string `yaml:"username"`  // 登录用户名
	Password  string `yaml:"password"`  // 登录密码
	FromEmail string `yaml:"fromEmail"` // 发件人地址
}

// MonitorConfig 定义了工单轮询的节奏与上限。
type MonitorConfig struct {
	PollInterval string `yaml:"pollInterval"` // 两次轮询之间的间隔 (例如: "5m")
	MaxPolls     int    `yaml:"maxPolls"`     // 最大轮询次数，达到后静默停止
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App        AppInfo          `yaml:"app"`        // 应用程序信息
	Server     ServerConfig     `yaml:"server"`     // HTTP 服务配置
	Auth       AuthConfig       `yaml:"auth"`       // 认证配置
	Logger     LoggerConfig     `yaml:"logger"`     // 日志记录器配置
	Databases  DatabaseConfigs  `yaml:"databases"`  // 数据库配置
	Portal     PortalConfig     `yaml:"portal"`     // 厂商门户配置
	SMTP       SMTPConfig       `yaml:"smtp"`       // 邮件配置
	Monitor    MonitorConfig    `yaml:"monitor"`    // 工单监控配置
	Middleware MiddlewareConfig `yaml:"middleware"` // 中间件配置
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter RateLimiterConfig `yaml:"rateLimiter"`
}

// RateLimiterConfig 定义了状态查询与提醒接口的按用户限流配置。
type RateLimiterConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Rate     float64 `yaml:"rate"` // 每秒补充的令牌数
	Capacity int     `yaml:"capacity"`
}

// 默认值。
const (
	DefaultPollInterval      = 5 * time.Minute
	DefaultMaxPolls          = 288
	DefaultNavigationTimeout = 30 * time.Second
	DefaultTypingDelay       = 80 * time.Millisecond
	DefaultStatusTTL         = time.Minute
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultTokenTTL          = 7 * 24 * 60 * 60
)

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件。
// 文件中的 ${VAR} 引用会在解析前替换为环境变量的值，便于从环境中注入密钥。
//
// 参数:
//
//	path: YAML 配置文件的路径。
//
// 返回值:
//
//	*AppConfig: 解析后的应用程序配置结构体。
//	error: 如果文件读取、解析或校验失败，则返回错误。
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	return Parse(yamlFile)
}

// Parse 解析 YAML 内容，填充默认值并校验。
func Parse(data []byte) (*AppConfig, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg AppConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Databases.CaseStore == "" {
		c.Databases.CaseStore = CaseStoreMySQL
	}
	if c.Databases.MongoDB.Collection == "" {
		c.Databases.MongoDB.Collection = "support_cases"
	}
	if c.Databases.Kafka.EventTopic == "" {
		c.Databases.Kafka.EventTopic = "support_case_events"
	}
	if c.Databases.Kafka.ConsumerGroup == "" {
		c.Databases.Kafka.ConsumerGroup = "support-service-status-cache"
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = DefaultTokenTTL
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.Monitor.MaxPolls <= 0 {
		c.Monitor.MaxPolls = DefaultMaxPolls
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}

	sel := &c.Portal.Selectors
	if sel.UserInput == "" {
		sel.UserInput = `input[placeholder*="user ID"]`
	}
	if sel.IssueInput == "" {
		sel.IssueInput = `textarea[placeholder*="describe"]`
	}
	if sel.SubmitButton == "" {
		sel.SubmitButton = `button[type="submit"]`
	}
	if sel.SuccessText == "" {
		sel.SuccessText = "Successfully"
	}
	if sel.TaskInput == "" {
		sel.TaskInput = `input[type="text"]`
	}
	if sel.SearchButton == "" {
		sel.SearchButton = `button[type="submit"]`
	}
	if sel.ReminderButton == "" {
		sel.ReminderButton = `button[type="submit"]`
	}
}

// Validate 检查配置中必须存在或必须合法的字段。
func (c *AppConfig) Validate() error {
	if c.Auth.JwtSecret == "" {
		return fmt.Errorf("配置缺少 auth.jwtSecret")
	}
	if c.Portal.BaseURL == "" {
		return fmt.Errorf("配置缺少 portal.baseURL")
	}
	switch c.Databases.CaseStore {
	case CaseStoreMySQL, CaseStoreMongo, CaseStoreMemory:
	default:
		return fmt.Errorf("未知的工单存储后端: %s", c.Databases.CaseStore)
	}
	durations := map[string]string{
		"monitor.pollInterval":      c.Monitor.PollInterval,
		"portal.navigationTimeout":  c.Portal.NavigationTimeout,
		"portal.typingDelay":        c.Portal.TypingDelay,
		"portal.breaker.timeout":    c.Portal.Breaker.Timeout,
		"databases.redis.statusTTL": c.Databases.Redis.StatusTTL,
		"server.shutdownTimeout":    c.Server.ShutdownTimeout,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s 不是合法的时长 %q: %w", name, value, err)
		}
	}
	return nil
}

// durationOr 解析时长字符串，为空或非法时返回默认值。
func durationOr(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Interval 返回轮询间隔。
func (m MonitorConfig) Interval() time.Duration {
	return durationOr(m.PollInterval, DefaultPollInterval)
}

// Timeout 返回单次门户操作的超时。
func (p PortalConfig) Timeout() time.Duration {
	return durationOr(p.NavigationTimeout, DefaultNavigationTimeout)
}

// KeyDelay 返回模拟输入的基础字符延迟。
func (p PortalConfig) KeyDelay() time.Duration {
	return durationOr(p.TypingDelay, DefaultTypingDelay)
}

// OpenTimeout 返回熔断器在打开状态下的等待时间。
func (b BreakerConfig) OpenTimeout() time.Duration {
	return durationOr(b.Timeout, 30*time.Second)
}

// TTL 返回状态缓存的有效期。
func (r RedisConfig) TTL() time.Duration {
	return durationOr(r.StatusTTL, DefaultStatusTTL)
}

// GracePeriod 返回优雅关闭的等待时间。
func (s ServerConfig) GracePeriod() time.Duration {
	return durationOr(s.ShutdownTimeout, DefaultShutdownTimeout)
}

// TokenLifetime 返回 JWT 的有效期。
func (a AuthConfig) TokenLifetime() time.Duration {
	return time.Duration(a.TokenTTL) * time.Second
}

// Configured 报告 SMTP 是否已配置。
func (s SMTPConfig) Configured() bool {
	return s.Host != "" && s.Username != "" && s.Password != ""
}
