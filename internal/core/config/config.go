package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "GEOMET_CLIMATE_"

var ErrMissingEnv = errors.New("environment variables not set")

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
}

type Config struct {
	BaseDir string
	Catalog string
	DataDir string
	URL     string
	// StylesDir holds the JSON class lists named by layer styles.
	StylesDir string

	OWSDebug bool
	OWSLog   string
	LogLevel string

	Addr            string
	MapServerURL    string
	UpstreamTimeout time.Duration

	RedisAddr       string
	ExtentOpTimeout time.Duration
	ExtentCacheSize int

	CompileWorkers int
	Invalidation   InvalidationCfg
}

func FromEnv() Config {
	debug := getbool("OWS_DEBUG", false)
	level := getenv("LOG_LEVEL", "info")
	if debug {
		level = "debug"
	}
	return Config{
		BaseDir: getenv("BASEDIR", ""),
		Catalog: getenv("CONFIG", ""),
		DataDir: getenv("DATADIR", ""),
		URL:     getenv("URL", ""),

		StylesDir: getenv("STYLES_DIR", ""),

		OWSDebug: debug,
		OWSLog:   getenv("OWS_LOG", ""),
		LogLevel: level,

		Addr:            getenv("ADDR", ":8099"),
		MapServerURL:    getenv("MAPSERVER_URL", "http://localhost:8080/cgi-bin/mapserv"),
		UpstreamTimeout: getduration("UPSTREAM_TIMEOUT", 60*time.Second),

		RedisAddr:       getenv("REDIS_ADDR", ""),
		ExtentOpTimeout: getduration("EXTENT_OP_TIMEOUT", 250*time.Millisecond),
		ExtentCacheSize: getint("EXTENT_CACHE_SIZE", 512),

		CompileWorkers: getint("COMPILE_WORKERS", 4),
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("KAFKA_TOPIC", "geomet-climate-recompile"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "geomet-climate-ows"),
		},
	}
}

// Validate reports every required variable that is unset.
func (c Config) Validate() error {
	var missing []string
	for name, v := range map[string]string{
		"BASEDIR": c.BaseDir,
		"CONFIG":  c.Catalog,
		"DATADIR": c.DataDir,
		"URL":     c.URL,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, envPrefix+name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
}

func getenv(k, def string) string {
	if v := os.Getenv(envPrefix + k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(envPrefix + k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(envPrefix + k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(envPrefix + k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
