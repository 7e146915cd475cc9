package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/KimMachineGun/automemlimit"
	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/nightfeed/cereal/internal"
)

type cli struct {
	Serve serveCmd `cmd:"" default:"withargs" help:"Poll sources, convert chapters, and deliver them."`
}

type serveCmd struct {
	DB      string `default:"data.db" help:"Path to the sqlite database."`
	Addr    string `default:":3000" help:"Listen address for the CRUD API."`
	Verbose bool   `short:"v" help:"Enable debug logging."`

	DiscoveryPeriod time.Duration `default:"5m" help:"How often sources are polled for new chapters."`
	WorkerPeriod    time.Duration `default:"10s" help:"How often hydration, conversion, and delivery run."`

	AWSAccessKey       string `env:"AWS_ACCESS_KEY" help:"Access key for the inbound email bucket."`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" help:"Secret key for the inbound email bucket."`
	AWSEmailBucket     string `env:"AWS_EMAIL_BUCKET" help:"Bucket receiving Patreon announcement email."`

	FromEmailAddress   string `env:"CEREAL_FROM_EMAIL_ADDRESS" help:"Sender address for chapter email."`
	MailgunAPIKey      string `env:"CEREAL_MAILGUN_API_KEY" help:"Mailgun API key."`
	MailgunAPIEndpoint string `env:"CEREAL_MAILGUN_API_ENDPOINT" help:"Mailgun API endpoint, including the sending domain."`
	PushoverToken      string `env:"CEREAL_PUSHOVER_TOKEN" help:"Pushover application token."`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	k := kong.Parse(&cli{},
		kong.Name("cereal"),
		kong.Description("A personal serial-fiction delivery service."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	if err := k.Run(); err != nil && !errors.Is(err, context.Canceled) {
		internal.Log(ctx).Error("fatal", "err", err)
		os.Exit(1)
	}
}

func (c *serveCmd) Run(ctx context.Context) error {
	if c.Verbose {
		internal.SetLogLevel(log.DebugLevel)
	}

	store, err := internal.NewStore(ctx, c.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	providers := &internal.Providers{}

	royalroad := internal.NewRoyalRoad()
	providers.RoyalRoad = royalroad
	providers.RoyalRoadBody = royalroad

	pale := internal.NewPale()
	providers.Pale = pale
	providers.PaleBody = pale

	if c.AWSEmailBucket != "" {
		mailbox, err := internal.NewS3Mailbox(ctx, c.AWSEmailBucket, c.AWSAccessKey, c.AWSSecretAccessKey)
		if err != nil {
			return err
		}
		wanderingInn := internal.NewWanderingInn(mailbox)
		providers.WanderingInn = wanderingInn
		providers.WanderingInnBody = wanderingInn
		providers.Apparatus = internal.NewApparatus(mailbox)
		providers.DailyGrind = internal.NewDailyGrind(mailbox)
	} else {
		internal.Log(ctx).Warn("no email bucket configured, patreon sources are disabled")
	}

	var mailer internal.Mailer
	if c.MailgunAPIKey != "" {
		mailer, err = internal.NewMailgunMailer(c.MailgunAPIEndpoint, c.MailgunAPIKey, c.FromEmailAddress)
		if err != nil {
			return err
		}
	} else {
		internal.Log(ctx).Warn("no mailgun key configured, email delivery is disabled")
	}

	var pusher internal.Pusher
	if c.PushoverToken != "" {
		pusher = internal.NewPushoverPusher(c.PushoverToken)
	} else {
		internal.Log(ctx).Warn("no pushover token configured, push notifications are disabled")
	}

	reg := internal.NewMetrics()
	metrics := internal.NewWorkerMetrics(reg)
	converter := internal.NewCalibre()

	discovery := internal.NewDiscovery(store, providers, c.DiscoveryPeriod, metrics)
	hydration := internal.NewHydration(store, providers, c.WorkerPeriod, metrics)
	conversion := internal.NewConversion(store, converter, c.WorkerPeriod, metrics)
	delivery := internal.NewDelivery(store, converter, mailer, pusher, c.WorkerPeriod, metrics)

	handler := internal.NewServer(store, reg)
	server := &http.Server{
		Addr:              c.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	internal.Log(ctx).Info("starting", "addr", c.Addr, "db", c.DB)

	internal.Supervise(ctx,
		internal.Task{Name: "http", Run: func(ctx context.Context) error {
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
			}()
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving: %w", err)
			}
			return ctx.Err()
		}},
		internal.Task{Name: "discovery", Run: discovery.Run},
		internal.Task{Name: "hydration", Run: hydration.Run},
		internal.Task{Name: "conversion", Run: conversion.Run},
		internal.Task{Name: "delivery", Run: delivery.Run},
	)
	return nil
}
