// Package options contains helpers shared by the CLI commands.
package options

import (
	"fmt"

	"github.com/urfave/cli"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rendezchat/rendez/pkg/config"
)

// GetConfigFromContext returns the configuration for a command: the
// defaults, overlaid with the file named by --config-path when given.
func GetConfigFromContext(ctx *cli.Context) (config.Config, error) {
	if path := ctx.String("config-path"); path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}

// HandleLoggingParams builds the logger the commands share: production
// encoding with a console sink, debug switching the level only.
func HandleLoggingParams(debug bool) (*zap.Logger, error) {
	cc := zap.NewProductionConfig()
	cc.DisableCaller = true
	cc.DisableStacktrace = true
	cc.Encoding = "console"
	cc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if debug {
		cc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	log, err := cc.Build()
	if err != nil {
		return nil, fmt.Errorf("unable to init logger: %w", err)
	}
	return log, nil
}
