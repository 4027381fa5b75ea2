package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"go-cryptopay/log"
)

const ShutdownTimeout = 15 * time.Second

// Start listens on host:port and serves handler until ctx is cancelled. The
// returned context is done once the server has stopped.
func Start(ctx context.Context, name, host, port string, handler http.Handler) (context.Context, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, err
	}
	return Serve(ctx, name, ln, handler), nil
}

// Serve is Start on an existing listener.
func Serve(ctx context.Context, name string, ln net.Listener, handler http.Handler) context.Context {
	logger := log.L().With(zap.String("server", name))
	stopped, cancel := context.WithCancel(context.Background())

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		defer cancel()
		logger.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
		}
	}()

	go func() {
		select {
		case <-stopped.Done():
			return
		case <-ctx.Done():
		}
		shutdownCtx, done := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
		logger.Info("server shut down")
	}()

	return stopped
}
