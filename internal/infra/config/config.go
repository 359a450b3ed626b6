package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает процессное окружение.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`

	DBPath      string `envconfig:"CHATDIG_DB" default:"chatlog.db"`
	RuntimePath string `envconfig:"CHATDIG_CONFIG" default:"config.json"`

	OpsAddr string `envconfig:"OPS_ADDR" default:":9090"`

	Worker struct {
		Cmd []string `envconfig:"WORKER_CMD" default:"python3,appserve.py"`
	} `envconfig:""`

	Poll struct {
		IdleMS    int `envconfig:"POLL_IDLE_MS" default:"100"`
		IRCIdleMS int `envconfig:"IRC_IDLE_MS" default:"500"`
		QueueSize int `envconfig:"UPDATE_QUEUE_SIZE" default:"1024"`
		LogQueue  int `envconfig:"LOG_QUEUE_SIZE" default:"256"`
	} `envconfig:""`

	Tasks struct {
		Workers int `envconfig:"TASK_POOL_WORKERS" default:"8"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
