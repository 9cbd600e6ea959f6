package config

import (
	"os"

	"github.com/bytedance/sonic"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"marketfeed/internal/errors"
	"marketfeed/pkg/exception"
)

// EnvPrefix prefixes every environment override, e.g. TS_PRIMARY_SYMBOLS.
const EnvPrefix = "TS_"

var strictJSON = sonic.Config{DisallowUnknownFields: true}.Froze()

// Load reads the JSON settings at path (skipped when path is empty), loads the
// given .env files into the process environment without overriding variables
// already set, applies TS_ overrides and validates the result. With no dotenv
// arguments a .env in the working directory is used when present.
func Load(path string, dotenv ...string) (Settings, error) {
	var s Settings
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, errors.Wrapf(exception.ErrInvalidConfig, "read %s: %v", path, err)
		}
		if err := strictJSON.Unmarshal(data, &s); err != nil {
			return Settings{}, errors.Wrapf(exception.ErrInvalidConfig, "decode %s: %v", path, err)
		}
	}

	if err := loadDotEnv(dotenv); err != nil {
		return Settings{}, err
	}
	if err := env.ParseWithOptions(&s, env.Options{Prefix: EnvPrefix}); err != nil {
		return Settings{}, errors.Wrapf(exception.ErrInvalidConfig, "parse env: %v", err)
	}

	s = s.withDefaults()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func loadDotEnv(files []string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return errors.Wrapf(exception.ErrInvalidConfig, "load dotenv: %v", err)
	}
	return nil
}
