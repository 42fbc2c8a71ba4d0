// internal/pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是整个服务的配置根结构，从 yaml 文件加载，
// 关键字段允许用环境变量覆盖（容器部署时更方便）。
type Config struct {
	App   AppConfig   `yaml:"app"`
	Infra InfraConfig `yaml:"infra"`
}

type AppConfig struct {
	HTTPPort  int    `yaml:"http_port"`
	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	GroupBuy GroupBuyConfig `yaml:"groupbuy"`
}

// GroupBuyConfig 是团购核心的业务参数包络。
type GroupBuyConfig struct {
	MinGroupMembers          int `yaml:"min_group_members"`            // 成团的全局最小人数下限
	OrderAutoCancelTimeMin   int `yaml:"order_auto_cancel_time_min"`   // 支付窗口（分钟）
	OrderAutoConfirmTimeDays int `yaml:"order_auto_confirm_time_days"` // 发货后自动确认收货（天）
	SweeperIntervalS         int `yaml:"sweeper_interval_s"`           // 扫描任务周期（秒）
	SweeperBatchSize         int `yaml:"sweeper_batch_size"`           // 单轮扫描处理上限
}

type InfraConfig struct {
	Mysql struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addrs string `yaml:"addrs"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers           string `yaml:"brokers"`
		NotificationTopic string `yaml:"notification_topic"`
		PushTopic         string `yaml:"push_topic"`
		RefundTopic       string `yaml:"refund_topic"`
	} `yaml:"kafka"`
	Zookeeper struct {
		Servers string `yaml:"servers"`
	} `yaml:"zookeeper"`
	Jaeger struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"jaeger"`
}

// PaymentWindow 把分钟配置换算成 Duration，0 或负数回退到默认 30 分钟。
func (c GroupBuyConfig) PaymentWindow() time.Duration {
	if c.OrderAutoCancelTimeMin <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.OrderAutoCancelTimeMin) * time.Minute
}

// AutoConfirmWindow 发货后自动确认的宽限期，默认 7 天。
func (c GroupBuyConfig) AutoConfirmWindow() time.Duration {
	if c.OrderAutoConfirmTimeDays <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.OrderAutoConfirmTimeDays) * 24 * time.Hour
}

func (c GroupBuyConfig) SweeperInterval() time.Duration {
	if c.SweeperIntervalS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.SweeperIntervalS) * time.Second
}

func (c GroupBuyConfig) BatchSize() int {
	if c.SweeperBatchSize <= 0 {
		return 200
	}
	return c.SweeperBatchSize
}

var (
	current *Config
	mu      sync.RWMutex
)

// Load 读取配置文件并应用环境变量覆盖，结果存入全局单例。
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	mu.Lock()
	current = cfg
	mu.Unlock()
	return cfg, nil
}

// GetCurrentConfig 返回当前生效的配置。必须先调用 Load。
func GetCurrentConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		panic("config not loaded: call config.Load first")
	}
	return current
}

func defaults() *Config {
	cfg := &Config{}
	cfg.App.HTTPPort = 8080
	cfg.App.LogLevel = "info"
	cfg.App.GroupBuy = GroupBuyConfig{
		MinGroupMembers:          2,
		OrderAutoCancelTimeMin:   30,
		OrderAutoConfirmTimeDays: 7,
		SweeperIntervalS:         30,
		SweeperBatchSize:         200,
	}
	cfg.Infra.Mysql.DSN = "root:root@tcp(localhost:3306)/tuanbuy?charset=utf8mb4&parseTime=True&loc=UTC"
	cfg.Infra.Redis.Addrs = "localhost:6379"
	cfg.Infra.Kafka.Brokers = "localhost:9092"
	cfg.Infra.Kafka.NotificationTopic = "notifications"
	cfg.Infra.Kafka.PushTopic = "push-messages"
	cfg.Infra.Kafka.RefundTopic = "payment-refunds"
	cfg.Infra.Zookeeper.Servers = "localhost:2181"
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	cfg.Infra.Mysql.DSN = getEnv("MYSQL_DSN", cfg.Infra.Mysql.DSN)
	cfg.Infra.Redis.Addrs = getEnv("REDIS_ADDRS", cfg.Infra.Redis.Addrs)
	cfg.Infra.Kafka.Brokers = getEnv("KAFKA_BROKERS", cfg.Infra.Kafka.Brokers)
	cfg.Infra.Zookeeper.Servers = getEnv("ZK_SERVERS", cfg.Infra.Zookeeper.Servers)
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)
	if port := os.Getenv("HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.App.HTTPPort = p
		}
	}
}

// KafkaBrokerList 把逗号分隔的 broker 配置拆成 slice。
func (c *Config) KafkaBrokerList() []string {
	return strings.Split(c.Infra.Kafka.Brokers, ",")
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
