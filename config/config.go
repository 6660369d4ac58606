package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"dario.cat/mergo"
	"github.com/HavvokLab/solax-cloud/setting"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const EnvPrefix = "SOLAX"

// keys lists every setting that may be overridden from the environment,
// e.g. log.debug is read from SOLAX_LOG_DEBUG.
var keys = []string{
	"log.debug",
	"log.dir",
	"solax.endpoints",
	"solax.update_interval",
	"solax.setup_retry_interval",
	"solax.request_timeout",
	"solax.requests_per_minute",
	"solax.request_burst",
	"solax.setup_workers",
	"database.path",
	"server.address",
	"mqtt.enabled",
	"mqtt.broker",
	"mqtt.client_id",
	"mqtt.username",
	"mqtt.password",
	"mqtt.discovery_prefix",
	"mqtt.base_topic",
	"mqtt.qos",
	"elasticsearch.enabled",
	"elasticsearch.host",
	"elasticsearch.username",
	"elasticsearch.password",
	"elasticsearch.index",
	"redis.addr",
	"redis.password",
	"redis.db",
	"alarm.enabled",
}

var (
	mu      sync.RWMutex
	current *Config
)

type ConfigChangeCallback func(cfg *Config) error

func Default() Config {
	return Config{
		Solax: SolaxConfig{
			Endpoints: []string{
				"https://www.solaxcloud.com:9443/proxy/api/getRealtimeInfo.do",
				"https://euapi.solaxcloud.com:9443/proxy/api/getRealtimeInfo.do",
			},
			UpdateInterval:     setting.UpdateInterval,
			SetupRetryInterval: setting.SetupRetryInterval,
			RequestTimeout:     setting.RequestTimeout,
			RequestsPerMinute:  setting.RequestsPerMinute,
			RequestBurst:       setting.RequestBurst,
			SetupWorkers:       4,
		},
		Log:      LogConfig{Dir: "logs"},
		Database: DatabaseConfig{Path: "solax_cloud.db"},
		Server:   ServerConfig{Address: ":8080"},
		MQTT: MQTTConfig{
			Broker:          "tcp://localhost:1883",
			ClientID:        "solax-cloud",
			DiscoveryPrefix: setting.MQTTDiscoveryPrefix,
			BaseTopic:       setting.MQTTBaseTopic,
		},
		Elastic: ElasticsearchConfig{
			Host:  "http://localhost:9200",
			Index: setting.ElasticIndexPrefix,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
	}
}

func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		cfg := Default()
		return &cfg
	}

	return current
}

func SetConfig(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	current = cfg
}

type Loader struct {
	v    *viper.Viper
	path string
}

func NewLoader(path string) *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	return &Loader{v: v, path: path}
}

// Load reads the optional config file and the environment. Zero values are
// filled from Default.
func (l *Loader) Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("Loader::Load() - no .env file loaded")
	}

	if l.path != "" {
		l.v.SetConfigFile(l.path)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", l.path, err)
		}
	}

	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := mergo.Merge(&cfg, Default()); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Watch reloads the config file on write and hands the result to callback.
func (l *Loader) Watch(callback ConfigChangeCallback) error {
	if l.path == "" {
		return errors.New("no config file to watch")
	}

	var (
		lastChange time.Time
		debounce   = 2 * time.Second
	)

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&fsnotify.Write != fsnotify.Write {
			return
		}

		now := time.Now()
		if now.Sub(lastChange) < debounce {
			return
		}
		lastChange = now

		cfg, err := l.unmarshal()
		if err != nil {
			log.Error().Err(err).Str("file", e.Name).Msg("Loader::Watch() - failed to reload config")
			return
		}

		if err := callback(cfg); err != nil {
			log.Error().Err(err).Str("file", e.Name).Msg("Loader::Watch() - failed to apply config")
			return
		}

		log.Info().Str("file", e.Name).Msg("Loader::Watch() - config reloaded")
	})
	l.v.WatchConfig()

	return nil
}

func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

func Validate(cfg *Config) error {
	if len(cfg.Solax.Endpoints) == 0 {
		return errors.New("solax.endpoints must not be empty")
	}

	if cfg.Solax.UpdateInterval < time.Minute {
		return fmt.Errorf("solax.update_interval must be at least 1m, got %s", cfg.Solax.UpdateInterval)
	}

	if cfg.Solax.RequestsPerMinute <= 0 {
		return fmt.Errorf("solax.requests_per_minute must be positive, got %v", cfg.Solax.RequestsPerMinute)
	}

	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		return errors.New("mqtt.broker must be set when mqtt is enabled")
	}

	if cfg.Elastic.Enabled && cfg.Elastic.Host == "" {
		return errors.New("elasticsearch.host must be set when elasticsearch is enabled")
	}

	if cfg.Alarm.Enabled && len(cfg.Alarm.Snmp) == 0 {
		return errors.New("alarm.snmp must list at least one receiver when alarm is enabled")
	}

	return nil
}
