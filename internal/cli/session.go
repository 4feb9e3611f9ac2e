package cli

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz-attempt/internal/app"
	transport "quiz-attempt/internal/transport/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// runSession drives one attempt until the student leaves, the attempt completes or the
// process is interrupted. The checkpointer and the optional HTTP surface run alongside.
func runSession(ctx context.Context, rt *runtime, controller *app.Controller, in io.Reader, out io.Writer, portFlag string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.checkpointer().Run(gctx, controller)
	})

	finalPort := portFlag
	if finalPort == "" {
		finalPort = rt.cfg.Server.Port
	}
	if finalPort != "" {
		server := newServer(finalPort, rt, controller)
		g.Go(func() error {
			rt.logger.Info("serving attempt", zap.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer cancel()
		return newTerminal(controller, in, out, rt.logger).Run(gctx)
	})

	err := g.Wait()
	controller.Close()
	return err
}

func newServer(port string, rt *runtime, controller *app.Controller) *http.Server {
	wsHandler := transport.NewWSHandler(controller, rt.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.Handle("/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:        ":" + port,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}
}
