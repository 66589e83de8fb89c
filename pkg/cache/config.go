package cache

import (
	"net"
	"strconv"
	"time"
)

type RedisOption func(*RedisConfig)

// RedisConfig is the connection setup of a RedisLocker.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	PoolTimeout  time.Duration

	// Prefix namespaces lease keys as "<prefix>:lock:<key>".
	Prefix string
}

func WithServer(host string, port int, password string, db int) RedisOption {
	return func(c *RedisConfig) {
		c.Addr = net.JoinHostPort(host, strconv.Itoa(port))
		c.Password, c.DB = password, db
	}
}

func WithKeyPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) { c.Prefix = prefix }
}
