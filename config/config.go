package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	API      APIConfig      `envPrefix:"CHATLINE_API_"`
	Realtime RealtimeConfig `envPrefix:"CHATLINE_REALTIME_"`
	Log      LogConfig      `envPrefix:"CHATLINE_LOG_"`
	Database DatabaseConfig `envPrefix:"CHATLINE_DATABASE_"`
}

type APIConfig struct {
	Domain       string        `env:"DOMAIN" envDefault:"localhost:8080"`
	Online       bool          `env:"ONLINE" envDefault:"false"`
	AuthPrefixes []string      `env:"AUTH_PREFIXES" envDefault:"/user,/profile,/logout,/friends,/servers,/channels,/dm_rooms,/messages" envSeparator:","`
	RefreshPath  string        `env:"REFRESH_PATH" envDefault:"/refresh_token"`
	LoginPath    string        `env:"LOGIN_PATH" envDefault:"/login"`
	LogoutPath   string        `env:"LOGOUT_PATH" envDefault:"/logout"`
	UserPath     string        `env:"USER_PATH" envDefault:"/user"`
	MessagesPath string        `env:"MESSAGES_PATH" envDefault:"/messages"`
	CSRFTTL      time.Duration `env:"CSRF_TTL" envDefault:"10s"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"0s"`
}

type RealtimeConfig struct {
	Path                 string        `env:"PATH" envDefault:"/ws"`
	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"30s"`
	ReconnectBaseDelay   time.Duration `env:"RECONNECT_BASE_DELAY" envDefault:"1s"`
	BackoffFactor        float64       `env:"BACKOFF_FACTOR" envDefault:"2"`
	MaxReconnectAttempts int           `env:"MAX_RECONNECT_ATTEMPTS" envDefault:"5"`
	MaxFrameBytes        int64         `env:"MAX_FRAME_BYTES" envDefault:"65536"`
	HandshakeTimeout     time.Duration `env:"HANDSHAKE_TIMEOUT" envDefault:"10s"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	DefaultRoute         string        `env:"DEFAULT_ROUTE" envDefault:"/channels/@me"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Enabled     bool   `env:"ENABLED" envDefault:"false"`
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"chatline.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	return env.Parse(cfg)
}

// HTTPBaseURL is the REST root, https when the deployment is online.
func (c APIConfig) HTTPBaseURL() string {
	scheme := "http"
	if c.Online {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, strings.TrimSuffix(c.Domain, "/"))
}

// WebSocketURL builds the realtime endpoint with the access token in the query.
func (c *Config) WebSocketURL(token string) string {
	scheme := "ws"
	if c.API.Online {
		scheme = "wss"
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     strings.TrimSuffix(c.API.Domain, "/"),
		Path:     c.Realtime.Path,
		RawQuery: url.Values{"token": []string{token}}.Encode(),
	}
	return u.String()
}

func (c *Config) Validate() error {
	if c.API.Domain == "" {
		return errors.New("API domain is required")
	}
	if c.API.RefreshPath == "" {
		return errors.New("refresh path is required")
	}
	if c.API.CSRFTTL <= 0 {
		return errors.New("CSRF cookie TTL must be positive")
	}
	if err := c.Realtime.Validate(); err != nil {
		return err
	}
	if c.Database.Enabled {
		switch c.Database.Driver {
		case "sqlite", "postgres", "postgresql", "mysql":
		default:
			return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
		}
	}
	return nil
}

func (c RealtimeConfig) Validate() error {
	if c.HeartbeatInterval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}
	if c.ReconnectBaseDelay <= 0 {
		return errors.New("reconnect base delay must be positive")
	}
	if c.BackoffFactor < 1 {
		return errors.New("backoff factor must be at least 1")
	}
	if c.MaxReconnectAttempts < 0 {
		return errors.New("max reconnect attempts cannot be negative")
	}
	if c.MaxFrameBytes <= 0 {
		return errors.New("max frame size must be positive")
	}
	return nil
}
