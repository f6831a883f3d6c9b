package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"icp-wizard/handler"
	"icp-wizard/internal/web"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web wizard and the relay API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().String("addr", ":8080", "Listen address")
	cmd.Flags().String("contact-email", "hello@yourdomain.com", "Address behind the landing page's Book a call link")
	return cmd
}

func (a *app) site(ctx context.Context) (http.Handler, error) {
	svc, err := a.relayService(ctx)
	if err != nil {
		return nil, err
	}
	h, err := handler.NewHandler(svc, handler.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	return web.New(h, web.WithContactEmail(a.cfg.ContactEmail), web.WithLogger(a.logger))
}

// serve runs until ctx is cancelled, then drains in-flight requests.
func (a *app) serve(ctx context.Context) error {
	site, err := a.site(ctx)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           site,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", a.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
