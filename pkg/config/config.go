package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Lmstfy   LmstfyConfig   `mapstructure:"lmstfy"`
	TTL      TTLConfig      `mapstructure:"ttl"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Workers  []WorkerConfig `mapstructure:"workers"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port            string          `mapstructure:"port"`
	AllowedOrigins  []string        `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
	EmbeddedWorker  bool            `mapstructure:"embedded_worker"` // 同进程内启动 Worker（memory 存储必须开启）
}

// RateLimitConfig /api 前缀的整体限流（窗口内固定配额）
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// StoreConfig 共享存储选择
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // redis / memory
}

// RedisConfig Redis 配置，URL 优先于 Addr
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// QueueConfig 工作队列配置
type QueueConfig struct {
	Driver string `mapstructure:"driver"` // list / lmstfy
	Name   string `mapstructure:"name"`
}

// LmstfyConfig Lmstfy 配置
type LmstfyConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Namespace string `mapstructure:"namespace"`
	Token     string `mapstructure:"token"`
	Tries     uint16 `mapstructure:"tries"`
}

// TTLConfig 各类 key 的存活时间
type TTLConfig struct {
	Result time.Duration `mapstructure:"result"`
	Marker time.Duration `mapstructure:"marker"`
	Job    time.Duration `mapstructure:"job"`
}

// CacheConfig 结果缓存
type CacheConfig struct {
	LegacyScan bool `mapstructure:"legacy_scan"` // 轮询时扫描没有 resultjob: 索引的旧结果
}

// UpstreamConfig 上游会员校验服务
type UpstreamConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RequestInterval time.Duration `mapstructure:"request_interval"`
}

// ArchiveConfig 结果归档（MySQL）
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// WorkerConfig Worker 配置
type WorkerConfig struct {
	Name       string           `mapstructure:"name"`
	Subscriber SubscriberConfig `mapstructure:"subscriber"`
	Processor  ProcessorConfig  `mapstructure:"processor"`
}

// SubscriberConfig Subscriber 配置
type SubscriberConfig struct {
	Threads      int           `mapstructure:"threads"`       // 并发拉取数
	Rate         time.Duration `mapstructure:"rate"`          // 拉取间隔
	Timeout      time.Duration `mapstructure:"timeout"`       // 拉取超时
	TTR          time.Duration `mapstructure:"ttr"`           // Time-To-Run
	ErrorBackoff time.Duration `mapstructure:"error_backoff"` // 错误退避时间
}

// ProcessorConfig Processor 配置
type ProcessorConfig struct {
	Threads    int           `mapstructure:"threads"`     // 并发处理数
	BufferSize int           `mapstructure:"buffer_size"` // Channel 缓冲大小
	Timeout    time.Duration `mapstructure:"timeout"`     // 单个任务超时
}

const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
	DriverList   = "list"
	DriverLmstfy = "lmstfy"

	DefaultQueueName = "ieee_validation_queue"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "hize-membership")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("server.port", "3001")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit.requests", 30)
	v.SetDefault("server.rate_limit.window", time.Minute)
	v.SetDefault("server.embedded_worker", false)

	v.SetDefault("store.driver", DriverRedis)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("queue.driver", DriverList)
	v.SetDefault("queue.name", DefaultQueueName)

	v.SetDefault("lmstfy.host", "")
	v.SetDefault("lmstfy.port", 7777)
	v.SetDefault("lmstfy.namespace", "hize")
	v.SetDefault("lmstfy.token", "")
	v.SetDefault("lmstfy.tries", 3)

	v.SetDefault("ttl.result", 24*time.Hour)
	v.SetDefault("ttl.marker", 5*time.Minute)
	v.SetDefault("ttl.job", 10*time.Minute)

	v.SetDefault("cache.legacy_scan", false)

	v.SetDefault("upstream.base_url", "http://localhost:5000")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.timeout", 30*time.Second)
	v.SetDefault("upstream.request_interval", 700*time.Millisecond)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.dsn", "")
}

// Load 加载配置文件，path 为空时只使用默认值和环境变量
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// 兼容旧部署的环境变量
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("redis.url", "REDIS_URL")

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config failed: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}

	cfg.applyWorkerDefaults()
	return &cfg, nil
}

func (c *Config) applyWorkerDefaults() {
	if len(c.Workers) == 0 {
		c.Workers = []WorkerConfig{{Name: "ieee-validation"}}
	}
	for i := range c.Workers {
		w := &c.Workers[i]
		if w.Name == "" {
			w.Name = fmt.Sprintf("worker-%d", i)
		}
		if w.Subscriber.Threads <= 0 {
			w.Subscriber.Threads = 1
		}
		if w.Subscriber.Timeout <= 0 {
			w.Subscriber.Timeout = 5 * time.Second
		}
		if w.Subscriber.TTR <= 0 {
			w.Subscriber.TTR = 60 * time.Second
		}
		if w.Subscriber.ErrorBackoff <= 0 {
			w.Subscriber.ErrorBackoff = 5 * time.Second
		}
		if w.Processor.Threads <= 0 {
			w.Processor.Threads = 1
		}
		if w.Processor.BufferSize <= 0 {
			w.Processor.BufferSize = 16
		}
		if w.Processor.Timeout <= 0 {
			w.Processor.Timeout = 45 * time.Second
		}
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	switch c.Store.Driver {
	case DriverRedis:
		if c.Redis.URL == "" && c.Redis.Addr == "" {
			return fmt.Errorf("redis.url or redis.addr is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store.driver: %q", c.Store.Driver)
	}
	switch c.Queue.Driver {
	case DriverList:
	case DriverLmstfy:
		if c.Lmstfy.Host == "" {
			return fmt.Errorf("lmstfy.host is required")
		}
		if c.Lmstfy.Token == "" {
			return fmt.Errorf("lmstfy.token is required")
		}
	default:
		return fmt.Errorf("unknown queue.driver: %q", c.Queue.Driver)
	}
	if c.Queue.Name == "" {
		return fmt.Errorf("queue.name is required")
	}
	if c.TTL.Marker <= 0 || c.TTL.Job <= 0 || c.TTL.Result <= 0 {
		return fmt.Errorf("ttl.result, ttl.marker and ttl.job must be positive")
	}
	if c.TTL.Marker > c.TTL.Job {
		return fmt.Errorf("ttl.marker (%s) must not exceed ttl.job (%s)", c.TTL.Marker, c.TTL.Job)
	}
	if c.Server.RateLimit.Requests < 0 {
		return fmt.Errorf("server.rate_limit.requests must not be negative")
	}
	if c.Archive.Enabled && c.Archive.DSN == "" {
		return fmt.Errorf("archive.dsn is required when archive is enabled")
	}
	return nil
}
