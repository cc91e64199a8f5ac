package metrics

import (
	"net/http"
	"net/http/pprof"

	"go.uber.org/zap"

	"github.com/rendezchat/rendez/pkg/config"
)

// NewPprofService creates a service exposing the net/http/pprof
// handlers.
func NewPprofService(cfg config.BasicService, log *zap.Logger) *Service {
	if log == nil {
		return nil
	}
	handler := http.NewServeMux()
	handler.HandleFunc("/debug/pprof/", pprof.Index)
	handler.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	handler.HandleFunc("/debug/pprof/profile", pprof.Profile)
	handler.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	handler.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return newService("Pprof", handler, cfg, log)
}
