package metrics

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/rendezchat/rendez/pkg/config"
)

// Service is an auxiliary HTTP endpoint of the directory server, used
// for Prometheus scraping and pprof.
type Service struct {
	srv  *http.Server
	cfg  config.BasicService
	log  *zap.Logger
	name string
}

func newService(name string, handler http.Handler, cfg config.BasicService, log *zap.Logger) *Service {
	return &Service{
		srv: &http.Server{
			Addr:    cfg.Addr(),
			Handler: handler,
		},
		cfg:  cfg,
		log:  log.With(zap.String("service", name)),
		name: name,
	}
}

// Start runs the service on its configured endpoint. It returns
// immediately; a disabled service is a no-op.
func (ms *Service) Start() {
	if !ms.cfg.Enabled {
		ms.log.Info("service hasn't started since it's disabled")
		return
	}
	ms.log.Info("service is running", zap.String("endpoint", ms.srv.Addr))
	go func() {
		err := ms.srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			ms.log.Error("service couldn't start on configured port", zap.Error(err))
		}
	}()
}

// ShutDown stops the service.
func (ms *Service) ShutDown() {
	if !ms.cfg.Enabled {
		return
	}
	ms.log.Info("shutting down service", zap.String("endpoint", ms.srv.Addr))
	if err := ms.srv.Shutdown(context.Background()); err != nil {
		ms.log.Error("can't shut service down", zap.Error(err))
	}
}
