package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseConfig_GetDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "guests", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=guests sslmode=disable", c.GetDSN())
}

func TestDatabaseConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("GUESTDB_HOST", "yacht-db")
	t.Setenv("GUESTDB_PORT", "6543")
	t.Setenv("GUESTDB_NAME", "renaissance")

	c := DatabaseConfig{Host: "localhost", Port: 5432, User: "postgres"}
	c.LoadFromEnv("GUESTDB")

	assert.Equal(t, "yacht-db", c.Host)
	assert.Equal(t, 6543, c.Port)
	assert.Equal(t, "renaissance", c.Database)
	assert.Equal(t, "postgres", c.User)
}

func TestDatabaseConfig_LoadFromEnv_BadPortKeepsDefault(t *testing.T) {
	t.Setenv("X_PORT", "not-a-port")
	c := DatabaseConfig{Port: 5432}
	c.LoadFromEnv("X")
	assert.Equal(t, 5432, c.Port)
}

func TestRedisAndMQTTConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("MQTT_BROKER", "tcp://bridge:1883")
	t.Setenv("MQTT_QOS", "1")

	r := RedisConfig{Addr: "localhost:6379"}
	r.LoadFromEnv("REDIS")
	assert.Equal(t, "redis:6380", r.Addr)
	assert.Equal(t, 3, r.DB)

	m := MQTTConfig{Broker: "tcp://localhost:1883"}
	m.LoadFromEnv("MQTT")
	assert.Equal(t, "tcp://bridge:1883", m.Broker)
	assert.Equal(t, byte(1), m.QoS)
}
