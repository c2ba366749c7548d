/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	apihttp "github.com/HamedShams/sprint-pulse/internal/http"
	"github.com/HamedShams/sprint-pulse/internal/jobs"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, Telegram webhook and scheduled exports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		cron, err := jobs.NewCron(cfg, log, a.svc, a.locker)
		if err != nil {
			return err
		}
		router := apihttp.NewRouter(cfg, log, a.svc, cron)

		// Register Telegram webhook only if PUBLIC_BASE_URL is HTTPS
		if a.tg != nil && cfg.TelegramWebhookSecret != "" && strings.HasPrefix(strings.ToLower(cfg.PublicBaseURL), "https://") {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				webhookURL := strings.TrimRight(cfg.PublicBaseURL, "/") + "/telegram/webhook/" + cfg.TelegramWebhookSecret
				if err := a.tg.SetWebhook(ctx, webhookURL, cfg.TelegramWebhookSecret); err != nil {
					log.Error().Err(err).Msg("telegram setWebhook failed")
				} else {
					log.Info().Msg("telegram setWebhook ok")
				}
			}()
		}

		cron.Start()
		defer cron.Stop()

		srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Info().Msg("shutting down...")
		case err := <-errCh:
			log.Error().Err(err).Msg("http server error")
			return err
		}

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		return srv.Shutdown(shutdownCtx)
	},
}
