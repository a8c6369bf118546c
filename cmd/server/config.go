package main

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dstam/groundwork/internal/auth"
	"github.com/dstam/groundwork/internal/email"
	"github.com/dstam/groundwork/internal/email/smtp"
	"github.com/dstam/groundwork/internal/krypto"
	"github.com/dstam/groundwork/internal/web"
)

// httpConfig is the configuration for the HTTP server.
type httpConfig struct {
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	cookieKeys      []krypto.Key
	viewDir         string
	server          web.ServerConfig
}

// dbConfig is the configuration for the sqlite database.
type dbConfig struct {
	file    string
	migrate bool
}

// authConfig is the configuration for the auth service.
type authConfig struct {
	secretKey krypto.Secret
	service   auth.ServiceConfig
}

// emailConfig is the configuration for outgoing email.
type emailConfig struct {
	sender string
	from   email.Address
	smtp   smtp.Config
}

// config is the configuration for the server command.
type config struct {
	baseURL *url.URL
	http    httpConfig
	db      dbConfig
	auth    authConfig
	email   emailConfig
}

// defaultConfig returns a config with sane default values.
func defaultConfig() config {
	return config{
		baseURL: &url.URL{Scheme: "http", Host: "localhost:8888"},
		http: httpConfig{
			addr:            ":8888",
			readTimeout:     time.Second * 5,
			writeTimeout:    time.Second * 10,
			idleTimeout:     time.Second * 120,
			shutdownTimeout: time.Second * 15,
			server: web.ServerConfig{
				SecureCookie: true,
			},
		},
		db: dbConfig{
			file:    "groundwork.db",
			migrate: true,
		},
		auth: authConfig{
			service: auth.ServiceConfig{
				WorkerTimeout: time.Second * 10,
				TokenTimeout:  time.Hour * 24 * 3,
			},
		},
		email: emailConfig{
			sender: "log",
			smtp: smtp.Config{
				Port: 587,
			},
		},
	}
}

// requiredEnvKeys are env variables that have no default, the server
// refuses to start without them.
var requiredEnvKeys = []string{
	"HTTP_COOKIE_KEYS",
	"HTTP_CSRF_KEY",
	"SECRET_KEY",
	"EMAIL_FROM",
}

// envMap maps environment variable names to fields in the config struct.
var envMap = map[string]func(v string, c *config) error{
	"BASE_URL": func(v string, c *config) error {
		return confURL(v, &c.baseURL)
	},
	"HTTP_ADDR": func(v string, c *config) error {
		c.http.addr = v
		return nil
	},
	"HTTP_READ_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.readTimeout, 0, math.MaxInt64)
	},
	"HTTP_WRITE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.writeTimeout, 0, math.MaxInt64)
	},
	"HTTP_IDLE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.idleTimeout, 0, math.MaxInt64)
	},
	"HTTP_SHUTDOWN_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.shutdownTimeout, 0, math.MaxInt64)
	},
	"HTTP_COOKIE_KEYS": func(v string, c *config) error {
		return confKeys(v, &c.http.cookieKeys)
	},
	"HTTP_CSRF_KEY": func(v string, c *config) error {
		return confKey(v, &c.http.server.CSRFKey)
	},
	"HTTP_SECURE_COOKIE": func(v string, c *config) error {
		return confBool(v, &c.http.server.SecureCookie)
	},
	"HTTP_VIEW_DIR": func(v string, c *config) error {
		c.http.viewDir = v
		return nil
	},
	"DB_FILENAME": func(v string, c *config) error {
		if v == "" {
			return errors.New("empty database filename")
		}
		c.db.file = v
		return nil
	},
	"DB_MIGRATE": func(v string, c *config) error {
		return confBool(v, &c.db.migrate)
	},
	"SECRET_KEY": func(v string, c *config) error {
		if v == "" {
			return errors.New("empty secret key")
		}
		c.auth.secretKey = krypto.NewSecret(v)
		return nil
	},
	"AUTH_WORKER_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.auth.service.WorkerTimeout, 0, math.MaxInt64)
	},
	"AUTH_TOKEN_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.auth.service.TokenTimeout, 0, math.MaxInt64)
	},
	"EMAIL_SENDER": func(v string, c *config) error {
		switch v {
		case "log", "smtp", "memory":
			c.email.sender = v
			return nil
		default:
			return fmt.Errorf("unknown email sender %q", v)
		}
	},
	"EMAIL_FROM": func(v string, c *config) error {
		addr, err := email.ParseAddress(v)
		if err != nil {
			return err
		}
		c.email.from = addr
		return nil
	},
	"SMTP_HOST": func(v string, c *config) error {
		c.email.smtp.Host = v
		return nil
	},
	"SMTP_PORT": func(v string, c *config) error {
		port, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("port %d out of range", port)
		}
		c.email.smtp.Port = port
		return nil
	},
	"SMTP_USERNAME": func(v string, c *config) error {
		c.email.smtp.Username = v
		return nil
	},
	"SMTP_PASSWORD": func(v string, c *config) error {
		c.email.smtp.Password = krypto.NewSecret(v)
		return nil
	},
	"SMTP_SSL": func(v string, c *config) error {
		return confBool(v, &c.email.smtp.SSL)
	},
}

// configFromEnv returns a config with values from the environment. It
// falls back to default values for any missing non-required env
// variables.
//
// It does a best effort to validate provided values, so that mistakes
// are caught ASAP. However, there is no guarantee the returned config
// is valid and will work.
func configFromEnv() (config, error) {
	c := defaultConfig()

	var errs []error

	for _, key := range requiredEnvKeys {
		if _, ok := os.LookupEnv(key); !ok {
			errs = append(errs, fmt.Errorf("missing required env variable %s", key))
		}
	}

	for key, mf := range envMap {
		if val, ok := os.LookupEnv(key); ok {
			if err := mf(val, &c); err != nil {
				errs = append(errs, fmt.Errorf("invalid env variable %s: %w", key, err))
			}
		}
	}

	if len(errs) > 0 {
		return c, errors.Join(errs...)
	}

	return c, nil
}

// confDuration attempts to parse v into tgt and checks if the result is in
// the provided range (inclusive).
func confDuration(v string, tgt *time.Duration, min, max time.Duration) error {
	dur, err := time.ParseDuration(v)
	if err != nil {
		return err
	}

	if dur < min || dur > max {
		return fmt.Errorf("duration %s not in range [%s, %s] (inclusive)", dur, min, max)
	}

	*tgt = dur

	return nil
}

func confBool(v string, tgt *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}

	*tgt = b
	return nil
}

func confKey(v string, tgt *krypto.Key) error {
	key, err := krypto.ParseKey(v)
	if err != nil {
		return err
	}

	*tgt = key
	return nil
}

// confKeys parses a comma separated list of hex encoded keys.
func confKeys(v string, tgt *[]krypto.Key) error {
	parts := strings.Split(v, ",")

	keys := make([]krypto.Key, 0, len(parts))
	for _, part := range parts {
		key, err := krypto.ParseKey(part)
		if err != nil {
			return err
		}

		keys = append(keys, key)
	}

	if len(keys) == 0 {
		return errors.New("no keys provided")
	}

	*tgt = keys
	return nil
}

// confURL only accepts absolute URLs, relative URLs are useless to
// construct links in emails.
func confURL(v string, tgt **url.URL) error {
	u, err := url.Parse(v)
	if err != nil {
		return err
	}

	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("URL %q is missing a scheme or host", v)
	}

	*tgt = u
	return nil
}
