package clickhouse

import "time"

type ClientOption func(*ClientConfig)

// ClientConfig is the connection setup of a Client. Zero durations leave the driver default.
type ClientConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	UseHTTP  bool

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxExecTime  time.Duration
}

// WithAddr points the client at host:port. useHTTP selects the HTTP interface over the native one.
func WithAddr(host string, port int, useHTTP bool) ClientOption {
	return func(c *ClientConfig) {
		c.Host, c.Port, c.UseHTTP = host, port, useHTTP
	}
}

// WithLogin sets the database the client binds to and the account it uses.
func WithLogin(database, user, password string) ClientOption {
	return func(c *ClientConfig) {
		c.Database, c.User, c.Password = database, user, password
	}
}

func WithTimeouts(dial, read, write time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.DialTimeout, c.ReadTimeout, c.WriteTimeout = dial, read, write
	}
}

// WithQueryLimit caps server-side execution of each query.
func WithQueryLimit(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.MaxExecTime = d }
}
