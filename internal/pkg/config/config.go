// internal/pkg/config/config.go
package config

import (
	"context"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"orderflow/internal/pkg/logger"

	"github.com/pkg/errors"
)

// Config 汇总了所有服务共享的基础设施配置。
// 加载顺序：默认值 -> yaml 文件（CONFIG_FILE 指定）-> 环境变量覆盖。
type Config struct {
	Kafka struct {
		Brokers []string `yaml:"brokers"`
	} `yaml:"kafka"`

	Consumer struct {
		MaxAttempts    int           `yaml:"maxAttempts"`
		InitialBackoff time.Duration `yaml:"initialBackoff"`
		MaxBackoff     time.Duration `yaml:"maxBackoff"`
		HandlerTimeout time.Duration `yaml:"handlerTimeout"`
	} `yaml:"consumer"`

	Jaeger struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"jaeger"`

	Mysql struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`

	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`

	Zookeeper struct {
		Servers []string `yaml:"servers"`
	} `yaml:"zookeeper"`

	Nacos struct {
		ServerAddrs string `yaml:"serverAddrs"`
		Namespace   string `yaml:"namespace"`
		Group       string `yaml:"group"`
	} `yaml:"nacos"`

	Notification struct {
		// SuppressRule 是可选的 CEL 表达式，求值为 true 的事件不投递通知
		SuppressRule string `yaml:"suppressRule"`
	} `yaml:"notification"`
}

// Load 读取配置。文件不存在不算错误，环境变量永远生效。
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "config: read %s", path)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errors.Wrapf(err, "config: parse %s", path)
		}
		logger.Ctx(context.Background()).Info().Str("file", path).Msg("config file loaded")
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Consumer.MaxAttempts = 5
	cfg.Consumer.InitialBackoff = 200 * time.Millisecond
	cfg.Consumer.MaxBackoff = 10 * time.Second
	cfg.Consumer.HandlerTimeout = 30 * time.Second
	cfg.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Nacos.Group = "DEFAULT_GROUP"
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		cfg.Jaeger.Endpoint = v
	}
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.Mysql.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("ZK_SERVERS"); v != "" {
		cfg.Zookeeper.Servers = strings.Split(v, ",")
	}
	if v := os.Getenv("NACOS_SERVER_ADDRS"); v != "" {
		cfg.Nacos.ServerAddrs = v
	}
	if v := os.Getenv("NACOS_NAMESPACE"); v != "" {
		cfg.Nacos.Namespace = v
	}
	if v := os.Getenv("NACOS_GROUP"); v != "" {
		cfg.Nacos.Group = v
	}
	if v := os.Getenv("NOTIFICATION_SUPPRESS_RULE"); v != "" {
		cfg.Notification.SuppressRule = v
	}
}

// GetEnv 带默认值读取环境变量，留给组装根使用。
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
