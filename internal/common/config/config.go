package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Consul   ConsulConfig   `json:"consul"`
	Jaeger   JaegerConfig   `json:"jaeger"`
	Log      LogConfig      `json:"log"`
	Auth     AuthConfig     `json:"auth"`
	Booking  BookingConfig  `json:"booking"`
	External ExternalConfig `json:"external"`
	Gateway  GatewayConfig  `json:"gateway"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Name     string `json:"name"`      // 服务名称
	Host     string `json:"host"`      // 服务地址
	HTTPPort int    `json:"http_port"` // HTTP端口
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string `json:"driver"`   // 数据库驱动
	Host     string `json:"host"`     // 数据库地址
	Port     int    `json:"port"`     // 数据库端口
	User     string `json:"user"`     // 用户名
	Password string `json:"password"` // 密码
	Database string `json:"database"` // 数据库名
	MaxIdle  int    `json:"max_idle"` // 最大空闲连接
	MaxOpen  int    `json:"max_open"` // 最大打开连接
}

// ConsulConfig Consul配置
type ConsulConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// JaegerConfig Jaeger配置
type JaegerConfig struct {
	Endpoint string  `json:"endpoint"`
	Sampler  float64 `json:"sampler"` // 采样率 0.0-1.0
}

// LogConfig 日志配置
type LogConfig struct {
	Driver string `json:"driver"` // logrus, zap
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, file
	Path   string `json:"path"`   // 日志文件路径
}

// AuthConfig JWT 鉴权配置
type AuthConfig struct {
	Enabled     bool     `json:"enabled"`
	JWTSecret   string   `json:"jwt_secret"`
	Issuer      string   `json:"issuer"`
	Audience    string   `json:"audience"`
	PublicPaths []string `json:"public_paths"` // 免鉴权路径（METHOD /path）
}

// BookingConfig 预约配置
type BookingConfig struct {
	HoldTTLMinutes       int `json:"hold_ttl_minutes"`       // pending hold 锁定窗口
	SweepIntervalSeconds int `json:"sweep_interval_seconds"` // 过期清扫间隔
}

// ExternalConfig 外部服务配置（实名校验 / 支付）
type ExternalConfig struct {
	IdentityBaseURL     string `json:"identity_base_url"`
	PaymentBaseURL      string `json:"payment_base_url"`
	TimeoutSeconds      int    `json:"timeout_seconds"`
	BreakerMaxFailures  int    `json:"breaker_max_failures"`
	BreakerResetSeconds int    `json:"breaker_reset_seconds"`
}

// GatewayConfig 网关配置
type GatewayConfig struct {
	UpstreamService string `json:"upstream_service"` // Consul 里的上游服务名
	RateCapacity    int64  `json:"rate_capacity"`    // 令牌桶容量
	RateRefill      int64  `json:"rate_refill"`      // 每秒补充令牌数
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// LoadConfig 加载配置：先读 .env（敏感项走环境变量），再读 JSON 配置文件。
func LoadConfig(configPath string) (*Config, error) {
	var err error
	configOnce.Do(func() {
		// .env 不存在不算错误
		_ = godotenv.Load()

		globalConfig = defaultConfig()
		// 如果配置文件不存在，使用默认配置
		if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
			logrus.Warnf("Config file not found: %s, using default config", configPath)
			applyEnvOverrides(globalConfig)
			return
		}

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file: %w", readErr)
			return
		}

		if unmarshalErr := json.Unmarshal(data, globalConfig); unmarshalErr != nil {
			err = fmt.Errorf("failed to parse config file: %w", unmarshalErr)
			return
		}
		applyEnvOverrides(globalConfig)
	})

	if err != nil {
		return nil, err
	}

	return globalConfig, nil
}

// applyEnvOverrides 敏感配置允许用环境变量覆盖文件内容
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("IDENTITY_BASE_URL"); v != "" {
		cfg.External.IdentityBaseURL = v
	}
	if v := os.Getenv("PAYMENT_BASE_URL"); v != "" {
		cfg.External.PaymentBaseURL = v
	}
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	if globalConfig == nil {
		return defaultConfig()
	}
	return globalConfig
}

// defaultConfig 默认配置（开发环境）
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:     "fleet-service",
			Host:     "0.0.0.0",
			HTTPPort: 8080,
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Password: "root",
			Database: "swiftfleetrent",
			MaxIdle:  10,
			MaxOpen:  100,
		},
		Consul: ConsulConfig{
			Host: "localhost",
			Port: 8500,
		},
		Jaeger: JaegerConfig{
			Endpoint: "http://localhost:14268/api/traces",
			Sampler:  1.0,
		},
		Log: LogConfig{
			Driver: "logrus",
			Level:  "debug",
			Format: "text",
			Output: "stdout",
			Path:   "logs/app.log",
		},
		Auth: AuthConfig{
			Enabled: false,
			Issuer:  "swiftfleetrent",
			PublicPaths: []string{
				"GET /healthz",
				"GET /metrics",
				"GET /v1/availability",
			},
		},
		Booking: BookingConfig{
			HoldTTLMinutes:       15,
			SweepIntervalSeconds: 30,
		},
		External: ExternalConfig{
			TimeoutSeconds:      5,
			BreakerMaxFailures:  5,
			BreakerResetSeconds: 30,
		},
		Gateway: GatewayConfig{
			UpstreamService: "fleet-service",
			RateCapacity:    200,
			RateRefill:      100,
		},
	}
}
