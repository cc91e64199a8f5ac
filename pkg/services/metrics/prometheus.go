package metrics

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rendezchat/rendez/pkg/config"
)

// NewPrometheusService creates a service exposing the process metrics
// in the prometheus text format.
func NewPrometheusService(cfg config.BasicService, log *zap.Logger) *Service {
	if log == nil {
		return nil
	}
	return newService("Prometheus", promhttp.Handler(), cfg, log)
}
