package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	commoncfg "renaissance-stewcall/common/config"
)

// Config service-call ingestion configuration
type Config struct {
	HTTP struct {
		Addr string
	}

	DBEnabled bool
	Database  commoncfg.DatabaseConfig
	Redis     commoncfg.RedisConfig
	MQTT      struct {
		Enabled bool
		Topic   string
		commoncfg.MQTTConfig
	}

	// Upstream LAN alarm host
	Upstream struct {
		Host     string
		LogPaths []string // tried in priority order
		XMLPath  string   // default when every log path fails
		Timeout  time.Duration
		// zone of the upstream's zone-less stamps
		ShipZone *time.Location
	}

	// Streaming channel (aggregator)
	Stream struct {
		Enabled        bool
		URL            string
		ReconnectDelay time.Duration
	}

	// Pull channel
	Poll struct {
		MinInterval time.Duration // clamped to 2s..10s
		Interval    time.Duration
		MaxBackoff  time.Duration
		// XML feed only, with the service-like filter
		XMLOnly bool
	}

	Ledger struct {
		Backend      string // "file" or "redis"
		Path         string
		RedisKey     string
		Retention    time.Duration
		CleanupDelay time.Duration
	}

	Alerts struct {
		GreenFlash        time.Duration
		SweepInterval     time.Duration
		NotifyCap         int
		AckAttributionCap int
	}

	Notify struct {
		RedisEnabled bool
		RedisStream  string
		RedisMaxLen  int64
	}

	Aggregator struct {
		Addr              string
		PollInterval      time.Duration
		HeartbeatInterval time.Duration
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8090")

	cfg.DBEnabled = getEnv("DB_ENABLED", "false") == "true"
	cfg.Database = commoncfg.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "guest_tracking",
		SSLMode:  "disable",
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = commoncfg.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.MQTTConfig = commoncfg.MQTTConfig{Broker: "tcp://localhost:1883", ClientID: "stewcall", QoS: 1}
	cfg.MQTT.MQTTConfig.LoadFromEnv("MQTT")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "stewcall/notifications")

	cfg.Upstream.Host = strings.TrimRight(getEnv("UPSTREAM_HOST", "http://192.168.1.50"), "/")
	cfg.Upstream.LogPaths = splitList(getEnv("UPSTREAM_LOG_PATHS", "/logs/tail,/log/current.txt,/cgi-bin/log.cgi"))
	cfg.Upstream.XMLPath = getEnv("UPSTREAM_XML_PATH", "/alarms.xml")
	cfg.Upstream.Timeout = seconds("UPSTREAM_TIMEOUT_SEC", 5)
	zone, err := time.LoadLocation(getEnv("SHIP_TZ", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("SHIP_TZ: %w", err)
	}
	cfg.Upstream.ShipZone = zone

	cfg.Stream.Enabled = getEnv("STREAM_ENABLED", "true") == "true"
	cfg.Stream.URL = getEnv("STREAM_URL", "http://localhost:8091/stream")
	cfg.Stream.ReconnectDelay = seconds("STREAM_RECONNECT_SEC", 5)

	cfg.Poll.MinInterval = clampDuration(seconds("POLL_MIN_INTERVAL_SEC", 2), 2*time.Second, 10*time.Second)
	cfg.Poll.Interval = seconds("POLL_INTERVAL_SEC", 5)
	if cfg.Poll.Interval < cfg.Poll.MinInterval {
		cfg.Poll.Interval = cfg.Poll.MinInterval
	}
	cfg.Poll.MaxBackoff = seconds("POLL_MAX_BACKOFF_SEC", 30)
	cfg.Poll.XMLOnly = getEnv("POLL_XML_ONLY", "false") == "true"

	cfg.Ledger.Backend = getEnv("LEDGER_BACKEND", "file")
	cfg.Ledger.Path = getEnv("LEDGER_PATH", "./data/alarm-ledger.json")
	cfg.Ledger.RedisKey = getEnv("LEDGER_REDIS_KEY", "stewcall:ledger")
	cfg.Ledger.Retention = time.Duration(parseInt(getEnv("LEDGER_RETENTION_DAYS", "7"), 7)) * 24 * time.Hour
	cfg.Ledger.CleanupDelay = seconds("LEDGER_CLEANUP_DELAY_SEC", 5)

	cfg.Alerts.GreenFlash = millis("FLASH_GREEN_MS", 10000)
	cfg.Alerts.SweepInterval = millis("SWEEP_INTERVAL_MS", 1000)
	cfg.Alerts.NotifyCap = parseInt(getEnv("NOTIFY_CAP", "2"), 2)
	cfg.Alerts.AckAttributionCap = parseInt(getEnv("ACK_ATTRIBUTION_CAP", "2"), 2)

	cfg.Notify.RedisEnabled = getEnv("NOTIFY_REDIS_ENABLED", "false") == "true"
	cfg.Notify.RedisStream = getEnv("NOTIFY_REDIS_STREAM", "stewcall:notifications")
	cfg.Notify.RedisMaxLen = int64(parseInt(getEnv("NOTIFY_REDIS_MAXLEN", "1000"), 1000))

	cfg.Aggregator.Addr = getEnv("AGGREGATOR_ADDR", ":8091")
	cfg.Aggregator.PollInterval = millis("AGGREGATOR_POLL_MS", 2000)
	cfg.Aggregator.HeartbeatInterval = seconds("AGGREGATOR_HEARTBEAT_SEC", 10)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// UpstreamURLs candidate log endpoints followed by the XML feed
func (c *Config) UpstreamURLs() (logURLs []string, xmlURL string) {
	for _, p := range c.Upstream.LogPaths {
		logURLs = append(logURLs, c.Upstream.Host+p)
	}
	return logURLs, c.Upstream.Host + c.Upstream.XMLPath
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return i
}

func seconds(key string, def int) time.Duration {
	return time.Duration(parseInt(getEnv(key, ""), def)) * time.Second
}

func millis(key string, def int) time.Duration {
	return time.Duration(parseInt(getEnv(key, ""), def)) * time.Millisecond
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
