/*
 * MIT License
 *
 * Copyright (c) 2026 Amulya Labs
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package config

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/amulya-labs/opencache/ocerr"
)

var validate = validator.New()

// Load reads configuration from configPath (when non-empty), falling back
// to a config file named "opencache" on the process's working directory,
// then environment variables prefixed OPENCACHE_ (e.g. OPENCACHE_TTLDAYS),
// applying the built-in defaults beneath both.
func Load(configPath string) (Config, error) {
	v := viper.New()

	v.SetDefault("backend", defaults.Backend)
	v.SetDefault("compression.method", defaults.Compression.Method)
	v.SetDefault("ttlDays", defaults.TTLDays)
	v.SetDefault("maxCacheSizeGb", defaults.MaxCacheSizeGB)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("opencache")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("opencache")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, ocerr.Wrap(ocerr.InvalidInput, "config.Load", err, "read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, ocerr.Wrap(ocerr.InvalidInput, "config.Load", err, "decode config")
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, ocerr.Wrap(ocerr.InvalidInput, "config.Load", err, "validate config")
	}
	if err := checkBackendOptions(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// checkBackendOptions enforces backend-specific required fields (bucket for
// s3/gcs); a struct tag can't reach across the nested S3/GCS sections to
// Backend, so this runs as a second pass after validator.Struct.
func checkBackendOptions(cfg Config) error {
	switch cfg.Backend {
	case "s3":
		if cfg.S3.Bucket == "" {
			return ocerr.Wrap(ocerr.InvalidInput, "config.Load", nil, "s3.bucket is required when backend=s3")
		}
	case "gcs":
		if cfg.GCS.Bucket == "" {
			return ocerr.Wrap(ocerr.InvalidInput, "config.Load", nil, "gcs.bucket is required when backend=gcs")
		}
	}
	return nil
}

// Validate re-runs struct validation, for configs built programmatically
// (e.g. by a caller assembling Config by hand instead of via Load).
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return ocerr.Wrap(ocerr.InvalidInput, "config.Validate", err, "validation failed")
	}
	return checkBackendOptions(cfg)
}
