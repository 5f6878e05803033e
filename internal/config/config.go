package config

import (
	"errors"
	"os"
	"strconv"
)

type Config struct {
	Port            string
	DataDir         string
	LogFile         string
	Env             string
	MaxMessageBytes int64
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// Load 从环境变量加载配置，缺省值与原始部署保持一致。
func Load() Config {
	port := getenv("APP_PORT", "7000")
	dataDir := getenv("DATA_DIR", "data")
	logFile := getenv("LOG_FILE", "logs/server.log")
	env := getenv("APP_ENV", "dev")
	maxBytesStr := getenv("MAX_MESSAGE_BYTES", "100000000")
	maxBytes, err := strconv.ParseInt(maxBytesStr, 10, 64)
	if err != nil || maxBytes <= 0 {
		maxBytes = 100000000
	}
	return Config{
		Port:            port,
		DataDir:         dataDir,
		LogFile:         logFile,
		Env:             env,
		MaxMessageBytes: maxBytes,
	}
}

// Validate 校验配置项，启动失败优于带病运行。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("port must not be empty")
	}
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return errors.New("port must be numeric")
	}
	if cfg.DataDir == "" {
		return errors.New("data dir must not be empty")
	}
	if cfg.MaxMessageBytes <= 0 {
		return errors.New("max message bytes must be positive")
	}
	return nil
}
