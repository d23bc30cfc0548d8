package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	MySQL       MySQLConfig       `mapstructure:"mysql"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	ProfileSync ProfileSyncConfig `mapstructure:"profile_sync"`
	Pricing     PricingConfig     `mapstructure:"pricing"`
	Business    BusinessConfig    `mapstructure:"business"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	AdminKey string `mapstructure:"admin_key"` // 为空时不校验管理员口令
}

const (
	StorageDriverMemory   = "memory"
	StorageDriverMySQL    = "mysql"
	StorageDriverPostgres = "postgres"
)

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
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

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Password        string `mapstructure:"password"`
	DB              int    `mapstructure:"db"`
	SessionTTLHours int    `mapstructure:"session_ttl_hours"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	UserRegistered   string `mapstructure:"user_registered"`
	WithdrawalResult string `mapstructure:"withdrawal_result"`
}

// ProfileSyncConfig 外部用户资料库（Supabase 兼容的 REST 接口）
type ProfileSyncConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Table          string `mapstructure:"table"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PricingConfig 计价策略，所有金额均为整数货币单位
type PricingConfig struct {
	SignUpFee        int64 `mapstructure:"sign_up_fee" json:"sign_up_fee"`
	NewUserBonus     int64 `mapstructure:"new_user_bonus" json:"new_user_bonus"`
	DirectReferral   int64 `mapstructure:"direct_referral" json:"direct_referral"`
	IndirectReferral int64 `mapstructure:"indirect_referral" json:"indirect_referral"`
	MinWithdrawal    int64 `mapstructure:"min_withdrawal" json:"min_withdrawal"`
}

// DefaultPricing 默认计价
func DefaultPricing() PricingConfig {
	return PricingConfig{
		SignUpFee:        250,
		NewUserBonus:     50,
		DirectReferral:   100,
		IndirectReferral: 50,
		MinWithdrawal:    200,
	}
}

// Validate 校验金额均为非负数
func (p PricingConfig) Validate() error {
	amounts := map[string]int64{
		"sign_up_fee":       p.SignUpFee,
		"new_user_bonus":    p.NewUserBonus,
		"direct_referral":   p.DirectReferral,
		"indirect_referral": p.IndirectReferral,
		"min_withdrawal":    p.MinWithdrawal,
	}
	for name, amount := range amounts {
		if amount < 0 {
			return fmt.Errorf("pricing.%s 不能为负数: %d", name, amount)
		}
	}
	return nil
}

type BusinessConfig struct {
	MaxRetryCount        int    `mapstructure:"max_retry_count"`
	ReferralCodeAttempts int    `mapstructure:"referral_code_attempts"`
	ReconcileSpec        string `mapstructure:"reconcile_spec"`
}

var GlobalConfig *Config

func setDefaults() {
	pricing := DefaultPricing()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.admin_key", "")
	viper.SetDefault("storage.driver", StorageDriverMemory)

	viper.SetDefault("mysql.host", "127.0.0.1")
	viper.SetDefault("mysql.port", 3306)
	viper.SetDefault("mysql.user", "root")
	viper.SetDefault("mysql.password", "")
	viper.SetDefault("mysql.database", "earnlink")
	viper.SetDefault("mysql.max_open_conns", 50)
	viper.SetDefault("mysql.max_idle_conns", 10)

	viper.SetDefault("postgres.host", "127.0.0.1")
	viper.SetDefault("postgres.port", 5432)
	viper.SetDefault("postgres.user", "postgres")
	viper.SetDefault("postgres.password", "")
	viper.SetDefault("postgres.database", "earnlink")
	viper.SetDefault("postgres.ssl_mode", "disable")
	viper.SetDefault("postgres.max_open_conns", 50)
	viper.SetDefault("postgres.max_idle_conns", 10)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "127.0.0.1")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.session_ttl_hours", 72)

	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	viper.SetDefault("kafka.topic.user_registered", "earnlink.user.registered")
	viper.SetDefault("kafka.topic.withdrawal_result", "earnlink.withdrawal.result")

	viper.SetDefault("profile_sync.enabled", false)
	viper.SetDefault("profile_sync.base_url", "")
	viper.SetDefault("profile_sync.api_key", "")
	viper.SetDefault("profile_sync.table", "profiles")
	viper.SetDefault("profile_sync.timeout_seconds", 5)

	viper.SetDefault("pricing.sign_up_fee", pricing.SignUpFee)
	viper.SetDefault("pricing.new_user_bonus", pricing.NewUserBonus)
	viper.SetDefault("pricing.direct_referral", pricing.DirectReferral)
	viper.SetDefault("pricing.indirect_referral", pricing.IndirectReferral)
	viper.SetDefault("pricing.min_withdrawal", pricing.MinWithdrawal)

	viper.SetDefault("business.max_retry_count", 5)
	viper.SetDefault("business.referral_code_attempts", 10)
	viper.SetDefault("business.reconcile_spec", "@every 1m")
}

// LoadConfig 加载配置文件
//
// 优先级：环境变量 > 配置文件 > 默认值。配置文件不存在时只使用默认值和环境变量。
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("加载 .env 失败: %v", err)
	}

	setDefaults()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
			log.Printf("配置文件不存在，使用默认配置: %s", configPath)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := config.Pricing.Validate(); err != nil {
		return nil, err
	}

	switch config.Storage.Driver {
	case StorageDriverMemory, StorageDriverMySQL, StorageDriverPostgres:
	default:
		return nil, fmt.Errorf("不支持的存储驱动: %s", config.Storage.Driver)
	}

	GlobalConfig = config
	return config, nil
}
