package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App     AppConfig     `json:"app"`
	Redis   RedisConfig   `json:"redis"`
	Browser BrowserConfig `json:"browser"`
	Email   EmailConfig   `json:"email"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env              string        `json:"env"`               // 运行环境: local / prod
	LogLevel         string        `json:"log_level"`         // 日志级别: debug / info / warn / error
	HTTPAddr         string        `json:"http_addr"`         // 状态 API 监听地址
	MetricsAddr      string        `json:"metrics_addr"`      // Prometheus 监听地址
	ListURL          string        `json:"list_url"`          // 公司列表页 URL
	TargetCount      int           `json:"target_count"`      // 需要发现的详情页数量
	ConcurrencyLimit int           `json:"concurrency_limit"` // 同时打开的详情页数量上限
	BatchSize        int           `json:"batch_size"`        // 每多少条记录触发一次部分落盘
	MaxRetries       int           `json:"max_retries"`       // 单个 URL 的最大重试次数
	ScrollPatience   int           `json:"scroll_patience"`   // 连续无增长滚动多少次后放弃发现
	OutputDir        string        `json:"output_dir"`        // CSV 输出目录
	RateLimit        float64       `json:"rate_limit"`        // 详情页抓取速率 (req/s)
	RateBurst        int           `json:"rate_burst"`        // 速率突发容量
	GracePeriod      time.Duration `json:"grace_period"`      // 取消后等待在途任务的时间
	ScrollWait       time.Duration `json:"scroll_wait"`       // 每次滚动后的渲染等待
	OverflowStore    bool          `json:"overflow_store"`    // 是否将超出 target 的 URL 存入 Redis
	NotifyEmail      string        `json:"notify_email"`      // 运行总结收件人（为空则不发送）
}

// RedisConfig Redis 配置（留空 addr 表示不使用 Redis）。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
}

// BrowserConfig 浏览器配置。
type BrowserConfig struct {
	BinPath     string        `json:"bin_path"`     // 浏览器可执行文件路径（为空则自动下载）
	Headless    bool          `json:"headless"`     // 是否使用无头模式
	PageTimeout time.Duration `json:"page_timeout"` // 单页操作超时
	UserAgent   string        `json:"user_agent"`   // UA 覆盖（为空则使用默认值）
}

// EmailConfig 邮件通知配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
}

// Load 从 JSON 文件加载配置。
//
// 文件不存在时使用默认值，环境变量始终优先覆盖。
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// 先填默认值再解析：文件里没出现的字段保留默认，显式写出的
	// 零值（max_retries=0 单次尝试、rate_limit=0 不限速）按字面生效
	cfg := getDefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// getDefaultConfig 返回默认配置（对应参考部署的常量）。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:              "local",
			LogLevel:         "info",
			HTTPAddr:         ":8081",
			MetricsAddr:      ":2112",
			ListURL:          "https://www.ycombinator.com/companies",
			TargetCount:      500,
			ConcurrencyLimit: 5,
			BatchSize:        50,
			MaxRetries:       2,
			ScrollPatience:   3,
			OutputDir:        "output",
			RateLimit:        2,
			RateBurst:        5,
			GracePeriod:      30 * time.Second,
			ScrollWait:       3 * time.Second,
			OverflowStore:    false,
		},
		Redis: RedisConfig{
			Addr:     "",
			Password: "",
		},
		Browser: BrowserConfig{
			BinPath:     "",
			Headless:    true,
			PageTimeout: 60 * time.Second,
			UserAgent:   "",
		},
		Email: EmailConfig{
			SMTPHost:  "smtp.gmail.com",
			SMTPPort:  587,
			SMTPUser:  "",
			SMTPPass:  "",
			FromEmail: "",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("chrome_bin", "CHROME_BIN")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_METRICS_ADDR"); v != "" {
		cfg.App.MetricsAddr = v
	}
	if v := os.Getenv("APP_LIST_URL"); v != "" {
		cfg.App.ListURL = v
	}
	if v := os.Getenv("APP_TARGET_COUNT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.TargetCount = i
		}
	}
	if v := os.Getenv("APP_CONCURRENCY_LIMIT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.ConcurrencyLimit = i
		}
	}
	if v := os.Getenv("APP_BATCH_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.BatchSize = i
		}
	}
	if v := os.Getenv("APP_MAX_RETRIES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.MaxRetries = i
		}
	}
	if v := os.Getenv("APP_SCROLL_PATIENCE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.ScrollPatience = i
		}
	}
	if v := os.Getenv("APP_OUTPUT_DIR"); v != "" {
		cfg.App.OutputDir = v
	}
	if v := os.Getenv("APP_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.RateLimit = f
		}
	}
	if v := os.Getenv("APP_RATE_BURST"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.RateBurst = i
		}
	}
	if v := os.Getenv("APP_GRACE_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.GracePeriod = d
		}
	}
	if v := os.Getenv("APP_SCROLL_WAIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.ScrollWait = d
		}
	}
	if v := os.Getenv("APP_OVERFLOW_STORE"); v != "" {
		cfg.App.OverflowStore = v == "true" || v == "1"
	}
	if v := os.Getenv("APP_NOTIFY_EMAIL"); v != "" {
		cfg.App.NotifyEmail = v
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := viper.GetString("chrome_bin"); v != "" {
		cfg.Browser.BinPath = v
	}
	if v := os.Getenv("BROWSER_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Browser.Headless = b
		}
	}
	if v := os.Getenv("BROWSER_PAGE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Browser.PageTimeout = d
		}
	}
	if v := os.Getenv("BROWSER_USER_AGENT"); v != "" {
		cfg.Browser.UserAgent = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串（如 "30s"）。
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		GracePeriod string `json:"grace_period"`
		ScrollWait  string `json:"scroll_wait"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.GracePeriod != "" {
		duration, err := time.ParseDuration(aux.GracePeriod)
		if err != nil {
			return fmt.Errorf("invalid grace_period format: %w", err)
		}
		a.GracePeriod = duration
	}
	if aux.ScrollWait != "" {
		duration, err := time.ParseDuration(aux.ScrollWait)
		if err != nil {
			return fmt.Errorf("invalid scroll_wait format: %w", err)
		}
		a.ScrollWait = duration
	}

	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (a AppConfig) MarshalJSON() ([]byte, error) {
	type Alias AppConfig
	return json.Marshal(&struct {
		GracePeriod string `json:"grace_period"`
		ScrollWait  string `json:"scroll_wait"`
		*Alias
	}{
		GracePeriod: a.GracePeriod.String(),
		ScrollWait:  a.ScrollWait.String(),
		Alias:       (*Alias)(&a),
	})
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串。
func (b *BrowserConfig) UnmarshalJSON(data []byte) error {
	type Alias BrowserConfig
	aux := &struct {
		PageTimeout string `json:"page_timeout"`
		*Alias
	}{
		Alias: (*Alias)(b),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.PageTimeout != "" {
		duration, err := time.ParseDuration(aux.PageTimeout)
		if err != nil {
			return fmt.Errorf("invalid page_timeout format: %w", err)
		}
		b.PageTimeout = duration
	}

	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (b BrowserConfig) MarshalJSON() ([]byte, error) {
	type Alias BrowserConfig
	return json.Marshal(&struct {
		PageTimeout string `json:"page_timeout"`
		*Alias
	}{
		PageTimeout: b.PageTimeout.String(),
		Alias:       (*Alias)(&b),
	})
}
