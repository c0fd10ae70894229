package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"BASEDIR", "CONFIG", "DATADIR", "URL", "OWS_DEBUG", "LOG_LEVEL", "ADDR"} {
		t.Setenv(envPrefix+k, "")
	}
	c := FromEnv()
	if c.Addr != ":8099" || c.LogLevel != "info" || c.CompileWorkers != 4 {
		t.Fatalf("defaults=%+v", c)
	}
	if c.ExtentOpTimeout != 250*time.Millisecond {
		t.Fatalf("ExtentOpTimeout=%v", c.ExtentOpTimeout)
	}
}

func TestFromEnv_ReadsPrefixedVariables(t *testing.T) {
	t.Setenv("GEOMET_CLIMATE_BASEDIR", "/opt/geomet-climate")
	t.Setenv("GEOMET_CLIMATE_CONFIG", "/opt/geomet-climate/geomet-climate.yml")
	t.Setenv("GEOMET_CLIMATE_DATADIR", "/data/climate")
	t.Setenv("GEOMET_CLIMATE_URL", "https://geo.weather.gc.ca/geomet-climate")
	t.Setenv("GEOMET_CLIMATE_OWS_DEBUG", "yes")
	t.Setenv("GEOMET_CLIMATE_OWS_LOG", "/tmp/ows.log")
	t.Setenv("GEOMET_CLIMATE_COMPILE_WORKERS", "12")

	c := FromEnv()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !c.OWSDebug || c.LogLevel != "debug" {
		t.Fatalf("debug=%v level=%q", c.OWSDebug, c.LogLevel)
	}
	if c.OWSLog != "/tmp/ows.log" || c.CompileWorkers != 12 {
		t.Fatalf("got %+v", c)
	}
}

func TestValidate_ListsMissing(t *testing.T) {
	err := Config{BaseDir: "/x", URL: "u"}.Validate()
	if !errors.Is(err, ErrMissingEnv) {
		t.Fatalf("got %v want ErrMissingEnv", err)
	}
	if !strings.Contains(err.Error(), "GEOMET_CLIMATE_CONFIG, GEOMET_CLIMATE_DATADIR") {
		t.Fatalf("message=%q", err)
	}
}
