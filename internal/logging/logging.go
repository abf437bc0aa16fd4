// SPDX-License-Identifier: Apache-2.0

// Package logging builds the logr.Logger facade the rest of cfgcenter
// logs through, backed by zap -- without a controller-runtime manager
// to register against, since this module has none.
package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	// Development selects a human-readable console encoder and debug
	// level; false selects JSON output at info level, suited to
	// production log aggregation.
	Development bool
}

// New builds a logr.Logger backed by a zap.Logger configured per opts.
func New(opts Options) (logr.Logger, error) {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	zl, err := cfg.Build()
	if err != nil {
		return logr.Logger{}, err
	}
	return zapr.NewLogger(zl), nil
}
