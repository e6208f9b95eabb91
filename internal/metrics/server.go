package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	logx "github.com/Jocelyn-JE/AREA-51/pkg/logx"
)

// Server exposes /metrics over plain HTTP. Bind it to loopback; there is no
// auth on this surface.
type Server struct {
	srv *http.Server
	log logx.Logger
}

func NewServer(addr string, log logx.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Start serves in the background until Stop.
func (s *Server) Start() {
	go func() {
		s.log.Info("metrics listening", logx.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server failed", logx.Err(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
