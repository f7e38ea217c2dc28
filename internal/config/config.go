package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Business BusinessConfig `mapstructure:"business"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	WorkerID int64  `mapstructure:"worker_id"`
	Mode     string `mapstructure:"mode"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	Allocation string `mapstructure:"allocation"`
	RateChange string `mapstructure:"rate_change"`
	Ledger     string `mapstructure:"ledger"`
}

// CacheConfig 进程内查询缓存（重量段、客户区域）
type CacheConfig struct {
	Size       int `mapstructure:"size"`
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type BusinessConfig struct {
	DefaultGstPct         float64 `mapstructure:"default_gst_pct"`
	MaxRetryCount         int     `mapstructure:"max_retry_count"`
	ReconcileIntervalSecs int     `mapstructure:"reconcile_interval_seconds"`
	ReconcileBatchSize    int     `mapstructure:"reconcile_batch_size"`
	PaymentLockTTLSeconds int     `mapstructure:"payment_lock_ttl_seconds"`
	AuditPageSizeMax      int     `mapstructure:"audit_page_size_max"`
	OutboxIntervalMillis  int     `mapstructure:"outbox_interval_millis"`
}

func (b BusinessConfig) DefaultGst() decimal.Decimal {
	return decimal.NewFromFloat(b.DefaultGstPct)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default 返回内置默认值，配置文件和环境变量在此基础上覆盖
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, WorkerID: 1, Mode: "release"},
		MySQL:  MySQLConfig{Host: "127.0.0.1", Port: 3306, MaxOpenConns: 50, MaxIdleConns: 10},
		Redis:  RedisConfig{Host: "127.0.0.1", Port: 6379},
		Kafka: KafkaConfig{
			Brokers: []string{"127.0.0.1:9092"},
			Topic: KafkaTopicConfig{
				Allocation: "billing.allocation",
				RateChange: "billing.rate_change",
				Ledger:     "billing.ledger",
			},
		},
		Cache: CacheConfig{Size: 1024, TTLSeconds: 300},
		Business: BusinessConfig{
			DefaultGstPct:         18,
			MaxRetryCount:         5,
			ReconcileIntervalSecs: 300,
			ReconcileBatchSize:    200,
			PaymentLockTTLSeconds: 30,
			AuditPageSizeMax:      200,
			OutboxIntervalMillis:  500,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// LoadConfig 加载配置文件
//
// 优先级：环境变量 LEDGER_<SECTION>_<KEY> > 配置文件 > Default()
func LoadConfig(configPath string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := Default()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return config, nil
}
