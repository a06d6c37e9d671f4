package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "HARVESTER_"

// EnvString returns the trimmed value of HARVESTER_<name> when it is set.
func EnvString(name string) (string, bool) {
	value, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses HARVESTER_<name> as an integer.
func EnvInt(name string) (int, bool, error) {
	value, ok := EnvString(name)
	if !ok {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s%s: %w", envPrefix, name, err)
	}
	return parsed, true, nil
}

// EnvBool parses HARVESTER_<name> as a boolean.
func EnvBool(name string) (bool, bool, error) {
	value, ok := EnvString(name)
	if !ok {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, false, fmt.Errorf("%s%s: %w", envPrefix, name, err)
	}
	return parsed, true, nil
}

// EnvDuration parses HARVESTER_<name> with time.ParseDuration.
func EnvDuration(name string) (time.Duration, bool, error) {
	value, ok := EnvString(name)
	if !ok {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s%s: %w", envPrefix, name, err)
	}
	return parsed, true, nil
}

// ApplyEnv overlays HARVESTER_* variables on cfg.
func (c *Config) ApplyEnv() error {
	if v, ok := EnvString("BASE_URL"); ok {
		c.BaseURL = v
	}
	if v, ok := EnvString("OUTPUT_DIR"); ok {
		c.OutputDir = v
	}
	if v, ok := EnvString("BACKEND"); ok {
		c.Backend = strings.ToLower(v)
	}
	if v, ok := EnvString("DRIVER_PATH"); ok {
		c.DriverPath = v
	}
	if v, ok := EnvString("LOG_DIR"); ok {
		c.LogDir = v
	}
	if v, ok := EnvString("METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	if v, ok, err := EnvBool("HEADLESS"); err != nil {
		return err
	} else if ok {
		c.Headless = v
	}
	if v, ok, err := EnvInt("MAX_RETRIES"); err != nil {
		return err
	} else if ok {
		c.MaxRetries = v
	}
	if v, ok, err := EnvDuration("PAGE_DELAY"); err != nil {
		return err
	} else if ok {
		c.PageDelay = v
	}
	if v, ok, err := EnvDuration("BACKOFF_BASE"); err != nil {
		return err
	} else if ok {
		c.BackoffBase = v
	}
	if v, ok, err := EnvDuration("BACKOFF_MAX"); err != nil {
		return err
	} else if ok {
		c.BackoffMax = v
	}
	return nil
}
