package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stickerboard/internal/handlers"
	"stickerboard/internal/security"
	"stickerboard/internal/service"
)

const (
	shutdownTimeout = 15 * time.Second
	sweepInterval   = 10 * time.Minute

	// Auth endpoints accept this many requests per client IP per minute.
	authRequestsPerMinute = 20
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				rootOpts.Config.ServerPort = port
			}
			return runServer(cmd.Context(), rootOpts)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	return cmd
}

func runServer(ctx context.Context, opts *RootOptions) error {
	cfg, log := opts.Config, opts.Log

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Initialize services
	hasher := security.BcryptHasher{}
	authService := service.NewAuthService(st, hasher, cfg.TokenSecret, cfg.TokenTTL, log.Named("auth"))
	authService.SetStoreTimeout(cfg.StoreTimeout)

	emailService, err := service.NewEmailService(ctx, cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.AppBaseURL, cfg.EmailDebug, log)
	if err != nil {
		return fmt.Errorf("failed to initialize email service: %w", err)
	}

	boardService := service.NewBoardService(st, log.Named("boards"),
		service.WithStoreTimeout(cfg.StoreTimeout),
		service.WithDefaultImage(cfg.DefaultRewardImage),
		service.WithCompletionNotifier(service.NewCompletionMailer(emailService, st)))

	pinLimiter := security.NewRateLimiter(cfg.PinAttemptLimit, cfg.PinAttemptWindow)
	defer pinLimiter.Stop()
	ipLimiter := security.NewRateLimiter(authRequestsPerMinute, time.Minute)
	defer ipLimiter.Stop()

	guardLog := log.Named("parent")
	sessions := service.NewSessionRegistry(cfg.ParentSessionIdle, func() *service.ParentGuard {
		return service.NewParentGuard(st, authService, hasher, pinLimiter, guardLog)
	}, authService)
	go sessions.Run(ctx, sweepInterval)

	// Initialize handlers
	csrf := security.NewCSRFGenerator(cfg.CSRFSecret)
	handlerLog := log.Named("http")
	router := handlers.NewRouter(
		handlers.NewMiddleware(authService, sessions, csrf, ipLimiter, handlerLog),
		handlers.NewAuthHandler(authService, emailService, handlerLog),
		handlers.NewParentHandler(authService, csrf, handlerLog),
		handlers.NewBoardHandler(boardService, handlerLog),
		handlerLog,
	)

	// Board streams end when the server starts shutting down.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}
	server.RegisterOnShutdown(cancelBase)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal (ctx is canceled by main)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
