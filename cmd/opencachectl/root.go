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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/amulya-labs/opencache/archive"
	"github.com/amulya-labs/opencache/config"
	"github.com/amulya-labs/opencache/engine"
	"github.com/amulya-labs/opencache/index"
	"github.com/amulya-labs/opencache/lock"
	"github.com/amulya-labs/opencache/logger"
	"github.com/amulya-labs/opencache/ocerr"
	"github.com/amulya-labs/opencache/scope"
	"github.com/amulya-labs/opencache/storage"
	"github.com/amulya-labs/opencache/storage/gcs"
	"github.com/amulya-labs/opencache/storage/local"
	"github.com/amulya-labs/opencache/storage/s3"
)

var (
	flagConfig   string
	flagLogLevel string
	flagWorkDir  string
)

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "opencachectl",
		Short:         "content-addressed build-artifact cache",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to config file (default: ./opencache.yaml)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug|info|warn|error)")
	root.PersistentFlags().StringVar(&flagWorkDir, "work-dir", "", "directory paths are archived from and restored into (default: cwd)")

	root.AddCommand(saveCommand(), restoreCommand(), resolveCommand(), existsCommand(), indexCommand())
	return root
}

// runtime bundles everything a subcommand needs after config is loaded.
type runtime struct {
	cfg config.Config
	log logger.Logger
	eng *engine.Engine
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.ParseLevel(flagLogLevel), os.Stderr)

	eng, err := buildEngine(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, log: log, eng: eng}, nil
}

// buildEngine wires the backend/index-store/lock-manager trio matching
// cfg.Backend and hands them to the engine.
func buildEngine(ctx context.Context, cfg config.Config, log logger.Logger) (*engine.Engine, error) {
	sc, ok := scope.New(cfg.Owner, cfg.Repo)
	if !ok {
		return nil, ocerr.Wrap(ocerr.InvalidInput, "buildEngine", nil, "owner and repo are required")
	}

	opts := engine.Options{
		TTLDays:        cfg.TTLDays,
		MaxCacheSizeGB: cfg.MaxCacheSizeGB,
		Compression: archive.CompressionRequest{
			Method: archive.ParseMethod(cfg.Compression.Method),
			Level:  cfg.Compression.Level,
		},
		WorkingDir: flagWorkDir,
	}

	switch cfg.Backend {
	case "", "local":
		basePath := cfg.Local.BasePath
		if basePath == "" {
			basePath = ".opencache"
		}
		backend := local.New(basePath, sc)
		scopeDir := backend.GetFullPath("")
		store := index.NewLocalStore(scopeDir, log)
		locks := lock.NewLocalManager(filepath.Join(scopeDir, "index.json.lock"), log)
		return engine.New(backend, store, locks, log, opts), nil

	case "s3":
		backend, err := s3.New(ctx, s3.Options{
			Bucket:         cfg.S3.Bucket,
			Region:         cfg.S3.Region,
			Endpoint:       cfg.S3.Endpoint,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			Prefix:         cfg.S3.Prefix,
		}, sc)
		if err != nil {
			return nil, err
		}
		return remoteEngine(backend, backend, log, opts), nil

	case "gcs":
		backend, err := gcs.New(ctx, gcs.Options{Bucket: cfg.GCS.Bucket, Prefix: cfg.GCS.Prefix}, sc)
		if err != nil {
			return nil, err
		}
		return remoteEngine(backend, backend, log, opts), nil

	default:
		return nil, ocerr.Wrap(ocerr.InvalidInput, "buildEngine", nil, "backend %q must be wired programmatically", cfg.Backend)
	}
}

// remoteConditional is the conditional-write capability both remote backends
// share; the index store and lock manager each declare their own structurally
// identical interface, satisfied by the same backend value.
type remoteConditional interface {
	index.ConditionalObjectStore
	lock.ConditionalObjectStore
}

func remoteEngine(backend storage.Backend, cond remoteConditional, log logger.Logger, opts engine.Options) *engine.Engine {
	store := index.NewRemoteStore(cond, "index.json", log)
	locks := lock.NewRemoteManager(cond, "locks/index.lock", log)
	return engine.New(backend, store, locks, log, opts)
}

func saveCommand() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "save --key <key> <path> [path...]",
		Short: "archive paths and commit them under key",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}

			entry, metrics, err := rt.eng.SaveWithMetrics(cmd.Context(), key, args)
			if err != nil {
				return err
			}

			rt.log.WithFields(logger.Fields{
				"key":      entry.Key,
				"bytes":    metrics.BytesTransferred,
				"ratio":    fmt.Sprintf("%.2f", metrics.CompressionRatio),
				"duration": metrics.Duration.String(),
			}).Infof("cache saved")

			return printJSON(cmd, entry)
		},
	}
	cmd.Flags().StringVarP(&key, "key", "k", "", "cache key (required)")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func restoreCommand() *cobra.Command {
	var key string
	var restoreKeys []string
	cmd := &cobra.Command{
		Use:   "restore --key <key> [--restore-key <prefix>]...",
		Short: "resolve key and extract the matching archive into the working directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}

			result, err := rt.eng.Resolve(cmd.Context(), key, restoreKeys)
			if err != nil {
				return err
			}
			if result.Entry == nil {
				rt.log.Infof("cache miss for %q", key)
				return printJSON(cmd, result)
			}

			metrics, err := rt.eng.RestoreWithMetrics(cmd.Context(), *result.Entry)
			if err != nil {
				return err
			}

			rt.log.WithFields(logger.Fields{
				"key":      result.MatchedKey,
				"exact":    result.IsExactMatch,
				"bytes":    metrics.BytesTransferred,
				"duration": metrics.Duration.String(),
			}).Infof("cache restored")

			return printJSON(cmd, result)
		},
	}
	cmd.Flags().StringVarP(&key, "key", "k", "", "primary cache key (required)")
	cmd.Flags().StringSliceVar(&restoreKeys, "restore-key", nil, "fallback key prefix, repeatable, tried in order")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func resolveCommand() *cobra.Command {
	var key string
	var restoreKeys []string
	cmd := &cobra.Command{
		Use:   "resolve --key <key> [--restore-key <prefix>]...",
		Short: "look a key up without touching the backend's archives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			result, err := rt.eng.Resolve(cmd.Context(), key, restoreKeys)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().StringVarP(&key, "key", "k", "", "primary cache key (required)")
	cmd.Flags().StringSliceVar(&restoreKeys, "restore-key", nil, "fallback key prefix, repeatable, tried in order")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func existsCommand() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "exists --key <key>",
		Short: "report whether a live entry exists for key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			found, err := rt.eng.Exists(cmd.Context(), key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), found)
			return nil
		},
	}
	cmd.Flags().StringVarP(&key, "key", "k", "", "cache key (required)")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func indexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "print a snapshot of the committed index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			idx, err := rt.eng.GetIndex(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, idx)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
