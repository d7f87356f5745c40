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

// Package config defines the engine's configuration surface as a
// mapstructure-tagged struct loaded through spf13/viper and validated with
// go-playground/validator.
package config

// Config is the full, validated configuration for one engine instance.
type Config struct {
	Owner string `mapstructure:"owner" json:"owner" yaml:"owner" validate:"required"`
	Repo  string `mapstructure:"repo" json:"repo" yaml:"repo" validate:"required"`

	// Backend selects the storage variant; backend-specific sections below
	// are only consulted for the matching value.
	Backend string `mapstructure:"backend" json:"backend" yaml:"backend" validate:"omitempty,oneof=local s3 gcs custom"`

	Local Local `mapstructure:"local" json:"local" yaml:"local"`
	S3    S3    `mapstructure:"s3" json:"s3" yaml:"s3"`
	GCS   GCS   `mapstructure:"gcs" json:"gcs" yaml:"gcs"`

	Compression Compression `mapstructure:"compression" json:"compression" yaml:"compression"`

	// TTLDays is the lifetime of a saved entry; 0 disables expiration.
	TTLDays int `mapstructure:"ttlDays" json:"ttlDays" yaml:"ttlDays" validate:"gte=0"`
	// MaxCacheSizeGB is the eviction budget; 0 disables eviction.
	MaxCacheSizeGB float64 `mapstructure:"maxCacheSizeGb" json:"maxCacheSizeGb" yaml:"maxCacheSizeGb" validate:"gte=0"`
}

// Local holds storage/local.Backend's options.
type Local struct {
	BasePath string `mapstructure:"basePath" json:"basePath" yaml:"basePath"`
}

// S3 holds storage/s3.Backend's options.
type S3 struct {
	Bucket         string `mapstructure:"bucket" json:"bucket" yaml:"bucket"`
	Region         string `mapstructure:"region" json:"region" yaml:"region"`
	Endpoint       string `mapstructure:"endpoint" json:"endpoint" yaml:"endpoint"`
	ForcePathStyle bool   `mapstructure:"forcePathStyle" json:"forcePathStyle" yaml:"forcePathStyle"`
	AccessKey      string `mapstructure:"accessKey" json:"accessKey" yaml:"accessKey"`
	SecretKey      string `mapstructure:"secretKey" json:"secretKey" yaml:"secretKey"`
	Prefix         string `mapstructure:"prefix" json:"prefix" yaml:"prefix"`
}

// GCS holds storage/gcs.Backend's options.
type GCS struct {
	Bucket string `mapstructure:"bucket" json:"bucket" yaml:"bucket"`
	Prefix string `mapstructure:"prefix" json:"prefix" yaml:"prefix"`
}

// Compression holds the caller's compression preference, before
// resolution by archive.ResolveCompressionMethod.
type Compression struct {
	Method string `mapstructure:"method" json:"method" yaml:"method" validate:"omitempty,oneof=auto zstd gzip none"`
	Level  int    `mapstructure:"level" json:"level" yaml:"level"`
}

// defaults holds the values applied before a config file or environment
// overrides them.
var defaults = Config{
	Backend:        "local",
	Compression:    Compression{Method: "auto"},
	TTLDays:        7,
	MaxCacheSizeGB: 10,
}
