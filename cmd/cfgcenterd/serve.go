// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cfgcenter/cfgcenter/internal/center"
	"github.com/cfgcenter/cfgcenter/internal/cfgerr"
	"github.com/cfgcenter/cfgcenter/internal/logging"
	"github.com/cfgcenter/cfgcenter/internal/ruleparser"
	"github.com/cfgcenter/cfgcenter/internal/ssh"
	"github.com/cfgcenter/cfgcenter/internal/storage"
	"github.com/cfgcenter/cfgcenter/internal/storage/fsbackend"
	"github.com/cfgcenter/cfgcenter/internal/storage/gitbackend"
	"github.com/cfgcenter/cfgcenter/internal/telemetry"
)

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, err := logging.New(logging.Options{Development: viper.GetBool("dev")})
	if err != nil {
		return fmt.Errorf("cfgcenterd: build logger: %w", err)
	}
	cfgerr.SetPrintBackgroundErrors(viper.GetBool("print-background-errors"))

	backend, err := buildBackend(ctx, log)
	if err != nil {
		return fmt.Errorf("cfgcenterd: build storage backend: %w", err)
	}

	specs, err := parseNamespaceSpecs(viper.GetStringSlice("namespace"))
	if err != nil {
		return fmt.Errorf("cfgcenterd: parse --namespace: %w", err)
	}
	if len(specs) == 0 {
		return fmt.Errorf("cfgcenterd: no namespaces configured; pass at least one --namespace")
	}

	metrics := telemetry.New()
	metrics.MustRegister(prometheus.DefaultRegisterer)

	root, err := center.New(ctx, backend, ruleparser.New(), specs, center.WithLogger(log), center.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("cfgcenterd: start root center: %w", err)
	}
	defer root.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsAddr := viper.GetString("metrics-addr")
	srv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		log.Info("serving metrics", "addr", metricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "metrics server exited")
		}
	}()
	defer srv.Close()

	log.Info("cfgcenterd ready", "namespaces", len(specs))
	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func buildBackend(ctx context.Context, log logr.Logger) (storage.Backend, error) {
	switch b := viper.GetString("backend"); b {
	case "fs":
		basePath := viper.GetString("base-path")
		if basePath == "" {
			return nil, fmt.Errorf("--base-path is required for the fs backend")
		}
		return fsbackend.New(basePath), nil
	case "git":
		remoteURL := viper.GetString("remote-url")
		if remoteURL == "" {
			return nil, fmt.Errorf("--remote-url is required for the git backend")
		}
		cfg := gitbackend.Config{RemoteURL: remoteURL, Branch: viper.GetString("branch")}
		if strings.HasPrefix(remoteURL, "ssh://") || strings.Contains(remoteURL, "@") {
			auth, err := ssh.Resolve(log, ssh.Options{})
			if err != nil {
				return nil, fmt.Errorf("resolve ssh credentials: %w", err)
			}
			cfg.Auth = auth
		}
		return gitbackend.Open(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown --backend %q (want \"fs\" or \"git\")", b)
	}
}

// parseNamespaceSpecs turns "name:notify_level" strings into
// center.NamespaceSpec values. notify_level is one of "none", "global",
// "namespace", "maybe_changed_keys".
func parseNamespaceSpecs(raw []string) ([]center.NamespaceSpec, error) {
	specs := make([]center.NamespaceSpec, 0, len(raw))
	for _, entry := range raw {
		name, levelStr, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("namespace spec %q must be \"name:notify_level\"", entry)
		}
		level, err := parseNotifyLevel(levelStr)
		if err != nil {
			return nil, fmt.Errorf("namespace %q: %w", name, err)
		}
		specs = append(specs, center.NamespaceSpec{Name: name, NotifyLevel: level})
	}
	return specs, nil
}

func parseNotifyLevel(s string) (center.NotifyLevel, error) {
	switch s {
	case "none":
		return center.NoNotify, nil
	case "global":
		return center.NotifyWithoutChangedKeysByGlobal, nil
	case "namespace":
		return center.NotifyWithoutChangedKeysInNamespace, nil
	case "maybe_changed_keys":
		return center.NotifyWithMaybeChangedKeys, nil
	default:
		return 0, fmt.Errorf("unknown notify level %q", s)
	}
}
