package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"rss_digest/internal/api"
	"rss_digest/internal/bot"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the Telegram bot and the warm scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.HTTPEnabled() {
		srv := api.New(a.svc, api.Config{
			Addr: a.cfg.HTTPAddr,
			Auth: api.AuthConfig{
				Secret: []byte(a.cfg.AuthSecret),
				Issuer: a.cfg.AuthIssuer,
			},
			CORSOrigins: a.cfg.CORSOrigins,
		}, a.log)
		g.Go(func() error { return srv.Run(ctx) })
	}

	if a.cfg.TelegramEnabled() {
		b, err := bot.New(a.cfg.TelegramBotToken, a.svc, a.cfg, a.log)
		if err != nil {
			return err
		}
		g.Go(func() error {
			b.Run(ctx)
			return nil
		})
	}

	if a.cfg.WarmInterval > 0 {
		g.Go(func() error {
			a.warm.Run(ctx)
			return nil
		})
	}

	a.log.Info("digestd started",
		"http", a.cfg.HTTPEnabled(),
		"telegram", a.cfg.TelegramEnabled(),
		"warm_interval", a.cfg.WarmInterval)

	err := g.Wait()
	a.log.Info("digestd stopped")
	return err
}
