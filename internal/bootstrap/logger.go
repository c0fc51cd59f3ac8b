package bootstrap

import (
	"go.uber.org/zap"

	"gopherai-docchat/internal/config"
)

// NewLogger returns a development logger for the dev env and a JSON
// production logger otherwise.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsDev() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("app", cfg.App.Name)), nil
}
