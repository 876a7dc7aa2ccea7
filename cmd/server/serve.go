package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"natrip-payments/internal/controller"
	"natrip-payments/internal/logging"
	"natrip-payments/internal/middleware"
)

var serveNoWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the payments HTTP API and the reconciliation worker",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoWorker, "no-worker", false, "do not start the reconciliation worker")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(a.log), middleware.CORS(a.cfg.AllowedOrigins))

	r.GET("/health", controller.NewHealthController(a.db).Health)
	limiter := middleware.NewIPRateLimiter(a.cfg.WebhookRatePerSecond, a.cfg.WebhookRateBurst)
	controller.NewPaymentController(a.payments, a.log).Register(r.Group("/api/payments"), limiter)

	if !serveNoWorker {
		go a.worker.Run(ctx)
	}

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("port", a.cfg.Port).Info("payments api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
