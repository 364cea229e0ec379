// Package config 读取服务配置: YAML 文件 + 环境变量覆盖
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"navcog-poi/model"

	"gopkg.in/yaml.v3"
)

// ErrNoSource 没有配置任何 POI 数据源
var ErrNoSource = errors.New("config: no POI source configured")

// 数据源类型
const (
	SourceFile     = "file"
	SourceHTTP     = "http"
	SourceS3       = "s3"
	SourcePostgres = "postgres"
)

// Config 服务配置
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Log     LogConfig      `yaml:"log"`
	Auth    AuthConfig     `yaml:"auth"`
	DB      DBConfig       `yaml:"db"`
	Center  *CenterConfig  `yaml:"center"`
	Sources []SourceConfig `yaml:"sources"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// DBConfig PostgreSQL 连接参数
type DBConfig struct {
	Host          string        `yaml:"host"`
	Port          string        `yaml:"port"`
	User          string        `yaml:"user"`
	Password      string        `yaml:"password"`
	Name          string        `yaml:"name"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	SeedFile      string        `yaml:"seed_file"` // 数据库为空时导入的 GeoJSON
}

// DSN 拼接 PostgreSQL 连接字符串
func (d DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port,
	)
}

// CenterConfig 启动时的初始中心点
type CenterConfig struct {
	Lat   float64  `yaml:"lat"`
	Lng   float64  `yaml:"lng"`
	Floor *float64 `yaml:"floor"`
}

// Location 转换为 model.Location
func (c CenterConfig) Location() model.Location {
	loc := model.NewLocation(c.Lat, c.Lng)
	if c.Floor != nil {
		loc = loc.WithFloor(*c.Floor)
	}
	return loc
}

// SourceConfig 单个数据源
type SourceConfig struct {
	Kind    string        `yaml:"kind"`
	Path    string        `yaml:"path"`
	URL     string        `yaml:"url"`
	Radius  float64       `yaml:"radius"`
	Timeout time.Duration `yaml:"timeout"`
	S3      S3Config      `yaml:"s3"`
}

type S3Config struct {
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Key       string `yaml:"key"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// Default 默认配置
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info"},
		Auth: AuthConfig{
			JWTSecret: "your-secret-key-change-in-production",
			TokenTTL:  24 * time.Hour,
		},
		DB: DBConfig{
			Host:          "localhost",
			Port:          "5432",
			User:          "navcog",
			Password:      "navcog",
			Name:          "navcog",
			MaxRetries:    30,
			RetryInterval: 2 * time.Second,
		},
	}
}

// Load 读取配置文件 (path 为空时只用默认值), 再应用环境变量
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv 环境变量优先 (为了 Docker 部署方便)
func (c *Config) applyEnv() error {
	c.Server.Addr = getEnvOrDefault("POI_ADDR", c.Server.Addr)
	c.Log.Level = getEnvOrDefault("POI_LOG_LEVEL", c.Log.Level)
	c.Auth.JWTSecret = getEnvOrDefault("POI_JWT_SECRET", c.Auth.JWTSecret)

	c.DB.Host = getEnvOrDefault("DB_HOST", c.DB.Host)
	c.DB.Port = getEnvOrDefault("DB_PORT", c.DB.Port)
	c.DB.User = getEnvOrDefault("DB_USER", c.DB.User)
	c.DB.Password = getEnvOrDefault("DB_PASSWORD", c.DB.Password)
	c.DB.Name = getEnvOrDefault("DB_NAME", c.DB.Name)

	if path := os.Getenv("POI_SOURCE_FILE"); path != "" {
		c.Sources = append(c.Sources, SourceConfig{Kind: SourceFile, Path: path})
	}
	if u := os.Getenv("POI_SOURCE_URL"); u != "" {
		c.Sources = append(c.Sources, SourceConfig{Kind: SourceHTTP, URL: u})
	}

	lat, latOK := os.LookupEnv("POI_CENTER_LAT")
	lng, lngOK := os.LookupEnv("POI_CENTER_LNG")
	if latOK && lngOK {
		la, err := strconv.ParseFloat(lat, 64)
		if err != nil {
			return fmt.Errorf("POI_CENTER_LAT: %w", err)
		}
		ln, err := strconv.ParseFloat(lng, 64)
		if err != nil {
			return fmt.Errorf("POI_CENTER_LNG: %w", err)
		}
		c.Center = &CenterConfig{Lat: la, Lng: ln}
	}
	return nil
}

// Validate 检查数据源配置
func (c Config) Validate() error {
	if len(c.Sources) == 0 {
		return ErrNoSource
	}
	for i, s := range c.Sources {
		switch s.Kind {
		case SourceFile:
			if s.Path == "" {
				return fmt.Errorf("sources[%d]: file 数据源需要 path", i)
			}
		case SourceHTTP:
			if s.URL == "" {
				return fmt.Errorf("sources[%d]: http 数据源需要 url", i)
			}
		case SourceS3:
			if s.S3.Bucket == "" || s.S3.Key == "" {
				return fmt.Errorf("sources[%d]: s3 数据源需要 bucket 和 key", i)
			}
		case SourcePostgres:
		default:
			return fmt.Errorf("sources[%d]: 未知的数据源类型 %q", i, s.Kind)
		}
	}
	return nil
}

// getEnvOrDefault 获取环境变量，如果不存在则返回默认值
func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
