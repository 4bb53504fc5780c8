package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Skotchmaster/scenario_manager/pkg/tokens"
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

type Config struct {
	ServiceName string
	ServerPort  int
	LogLevel    string
	CORSOrigin  string

	StoreDriver   string
	StoreTimeout  time.Duration
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	JWTAccessSecret  []byte
	JWTRefreshSecret []byte
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	BcryptCost       int

	KafkaBrokers []string
	KafkaTopic   string

	RedisURL        string
	LoginRateLimit  int
	LoginRateWindow time.Duration

	// TrustedProxies are the networks whose X-Forwarded-For is believed.
	// Empty means the client IP is the TCP peer address.
	TrustedProxies []*net.IPNet
}

// Load reads the environment and reports every missing or malformed
// setting at once.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	envInt := func(key string, def int) int {
		n, err := EnvInt(key, def)
		collect(err)
		return n
	}
	envDuration := func(key string, def time.Duration) time.Duration {
		d, err := EnvDuration(key, def)
		collect(err)
		return d
	}

	cfg := Config{
		ServiceName: EnvDefault("SERVICE_NAME", "auth"),
		ServerPort:  envInt("SERVER_PORT", 8080),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		CORSOrigin:  os.Getenv("CORS_ORIGIN"),

		StoreDriver:   strings.ToLower(EnvDefault("STORE_DRIVER", DriverMongo)),
		StoreTimeout:  envDuration("STORE_TIMEOUT", 5*time.Second),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		MongoURI:      os.Getenv("MONGODB_URI"),
		MongoDatabase: EnvDefault("MONGODB_DATABASE", "scenario_manager"),

		JWTAccessSecret:  []byte(os.Getenv("JWT_SECRET")),
		JWTRefreshSecret: []byte(os.Getenv("JWT_REFRESH_SECRET")),
		BcryptCost:       envInt("BCRYPT_COST", 10),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   EnvDefault("KAFKA_TOPIC", "user_events"),

		RedisURL:        os.Getenv("REDIS_URL"),
		LoginRateLimit:  envInt("LOGIN_RATE_LIMIT", 10),
		LoginRateWindow: envDuration("LOGIN_RATE_WINDOW", time.Minute),
	}

	errs = append(errs,
		nonEmptyBytes(cfg.JWTAccessSecret, "JWT_SECRET"),
		nonEmptyBytes(cfg.JWTRefreshSecret, "JWT_REFRESH_SECRET"),
	)
	if len(cfg.JWTAccessSecret) > 0 && bytes.Equal(cfg.JWTAccessSecret, cfg.JWTRefreshSecret) {
		errs = append(errs, errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if cfg.LoginRateLimit < 1 {
		errs = append(errs, fmt.Errorf("LOGIN_RATE_LIMIT must be at least 1, got %d", cfg.LoginRateLimit))
	}
	if cfg.LoginRateWindow <= 0 {
		errs = append(errs, errors.New("LOGIN_RATE_WINDOW must be positive"))
	}
	if cfg.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}

	var proxyErr error
	cfg.TrustedProxies, proxyErr = CIDRs("TRUSTED_PROXIES")
	collect(proxyErr)

	var err error
	if cfg.AccessTTL, err = ttl("JWT_EXPIRY"); err != nil {
		errs = append(errs, err)
	}
	if cfg.RefreshTTL, err = ttl("JWT_REFRESH_EXPIRY"); err != nil {
		errs = append(errs, err)
	}

	switch cfg.StoreDriver {
	case DriverMongo:
		errs = append(errs, nonEmpty(cfg.MongoURI, "MONGODB_URI"))
	case DriverPostgres:
		errs = append(errs, nonEmpty(cfg.DatabaseURL, "DATABASE_URL"))
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ttl(envName string) (time.Duration, error) {
	v := os.Getenv(envName)
	if err := nonEmpty(v, envName); err != nil {
		return 0, err
	}
	d, err := tokens.ParseTTL(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", envName, err)
	}
	return d, nil
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// EnvInt returns def when key is unset and an error when it is not an integer.
func EnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

// EnvDuration accepts the same forms as token TTLs ("30s", "5m", "1d", "45").
func EnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := tokens.ParseTTL(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// CIDRs parses a comma separated list of networks. A bare IP is taken as a
// single host.
func CIDRs(key string) ([]*net.IPNet, error) {
	var (
		out  []*net.IPNet
		errs []error
	)
	for _, p := range CSV(os.Getenv(key)) {
		if !strings.Contains(p, "/") {
			ip := net.ParseIP(p)
			if ip == nil {
				errs = append(errs, fmt.Errorf("%s: invalid address %q", key, p))
				continue
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid network %q", key, p))
			continue
		}
		out = append(out, n)
	}
	return out, errors.Join(errs...)
}
