package config

import "time"

type Config struct {
	Log      LogConfig           `mapstructure:"log"`
	Solax    SolaxConfig         `mapstructure:"solax"`
	Database DatabaseConfig      `mapstructure:"database"`
	Server   ServerConfig        `mapstructure:"server"`
	MQTT     MQTTConfig          `mapstructure:"mqtt"`
	Elastic  ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis    RedisConfig         `mapstructure:"redis"`
	Alarm    AlarmConfig         `mapstructure:"alarm"`
}

type LogConfig struct {
	Debug bool   `mapstructure:"debug"`
	Dir   string `mapstructure:"dir"`
}

type SolaxConfig struct {
	Endpoints          []string      `mapstructure:"endpoints"`
	UpdateInterval     time.Duration `mapstructure:"update_interval"`
	SetupRetryInterval time.Duration `mapstructure:"setup_retry_interval"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	RequestsPerMinute  float64       `mapstructure:"requests_per_minute"`
	RequestBurst       int           `mapstructure:"request_burst"`
	SetupWorkers       int           `mapstructure:"setup_workers"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type MQTTConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Broker          string `mapstructure:"broker"`
	ClientID        string `mapstructure:"client_id"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
	BaseTopic       string `mapstructure:"base_topic"`
	QoS             byte   `mapstructure:"qos"`
}

type ElasticsearchConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Index    string `mapstructure:"index"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AlarmConfig struct {
	Enabled bool         `mapstructure:"enabled"`
	Snmp    []SnmpConfig `mapstructure:"snmp"`
}

type SnmpConfig struct {
	AgentHost  string `mapstructure:"agent_host"`
	TargetHost string `mapstructure:"target_host"`
	TargetPort int    `mapstructure:"target_port"`
}
