package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/you/go-flightgrid/internal/httpx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.JWTSecret == "" {
				return errors.New("auth.jwt_secret is required to serve (FLIGHTGRID_AUTH_JWT_SECRET)")
			}
			if addr != "" {
				a.cfg.ListenAddr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			runner, closeStore, err := a.newRunner(gctx)
			if err != nil {
				return err
			}
			defer closeStore()

			srv := &http.Server{
				Addr:              a.cfg.ListenAddr,
				Handler:           httpx.NewRouter(runner, a.cfg, a.log),
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      0,
				ReadHeaderTimeout: 10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			g.Go(func() error {
				a.log.Info("server listening", zap.String("addr", srv.Addr), zap.Bool("tls", a.cfg.TLSCertFile != ""))
				var err error
				if a.cfg.TLSCertFile != "" && a.cfg.TLSKeyFile != "" {
					err = srv.ListenAndServeTLS(a.cfg.TLSCertFile, a.cfg.TLSKeyFile)
				} else {
					err = srv.ListenAndServe()
				}
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			})
			g.Go(func() error {
				<-gctx.Done()
				a.log.Info("shutting down")
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				err := srv.Shutdown(sctx)
				// a running sweep sees ctx cancelled and stops after its current request
				runner.Wait()
				return err
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from server.addr)")
	return cmd
}
