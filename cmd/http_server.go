package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/reservation-payments/internal/payment"
	"github.com/frahmantamala/reservation-payments/internal/transport"
	"github.com/frahmantamala/reservation-payments/internal/transport/middleware"
	"github.com/frahmantamala/reservation-payments/internal/transport/rest"
)

var withReconciler bool

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server exposing the payment lifecycle API`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

func init() {
	httpServerCmd.Flags().BoolVar(&withReconciler, "with-reconciler", false, "also run the payment reconciler in-process")
}

func startHTTPServer() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	router, err := setupRoutes(deps)
	if err != nil {
		deps.Logger.Error("failed to set up routes", "error", err)
		os.Exit(1)
	}

	if withReconciler {
		reconciler := payment.NewReconciler(deps.Service, deps.Store, payment.ReconcilerConfig(deps.Config.Reconciler), deps.Logger)
		go reconciler.Run(ctx)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		deps.Logger.Info("starting HTTP server",
			"address", addr,
			"payment_mode", deps.Config.Payment.Mode,
			"payment_enabled", deps.Config.Payment.Enabled)
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		deps.Logger.Info("received signal, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("server failed to start", "error", err)
			deps.Close()
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func setupRoutes(deps *Dependencies) (*chi.Mux, error) {
	router := chi.NewRouter()

	authenticator, err := newAuthenticator(deps)
	if err != nil {
		return nil, err
	}

	rest.RegisterAllRoutes(router, rest.RouterDeps{
		PaymentHandler: payment.NewHandler(deps.Service, deps.Logger),
		HealthHandler:  rest.NewHealthHandler(deps.Checks),
		Authenticator:  authenticator,
		Logger:         deps.Logger,
	})
	return router, nil
}

func newAuthenticator(deps *Dependencies) (*middleware.Authenticator, error) {
	security := deps.Config.Security
	if !security.AuthEnabled {
		deps.Logger.Warn("API authentication is disabled")
		return nil, nil
	}

	publicKey, err := security.GetPublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to load JWT public key: %w", err)
	}
	return middleware.NewAuthenticator(publicKey, security.JWTIssuer, transport.NewBaseHandler(deps.Logger.With(slog.String("component", "auth")))), nil
}
