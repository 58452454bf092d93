package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"lunaralarm/internal/anniversary"
	"lunaralarm/internal/config"
	"lunaralarm/internal/dispatch"
	"lunaralarm/internal/ics"
	"lunaralarm/internal/ledger"
	appLog "lunaralarm/internal/log"
	"lunaralarm/internal/notify"
)

// feedTTL keeps parsed feeds for the duration of one run.
const feedTTL = 2 * time.Minute

// BuildOptions adjusts wiring for one-shot commands.
type BuildOptions struct {
	// DryRun uses an in-memory ledger and no delivery channels, so nothing
	// is recorded or sent.
	DryRun bool
}

// App holds every component built from a Config.
type App struct {
	Config   *config.Config
	Location *time.Location

	Source   *ics.FeedSource
	Matcher  anniversary.Matcher
	Upcoming *anniversary.PatternMatcher
	Ledger   *ledger.Client
	Service  *Service

	closers []io.Closer
}

// Build connects the ledger and delivery channels described by cfg.
func Build(ctx context.Context, cfg *config.Config, opts BuildOptions) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	policy, err := notify.NewDayOffsetPolicy(cfg.Offsets)
	if err != nil {
		return nil, err
	}

	sources := make([]ics.Source, 0, len(cfg.ICS))
	for _, c := range cfg.ICS {
		sources = append(sources, ics.Source{ID: c.ID, URL: c.URL, Username: c.Username, Password: c.Password})
	}
	feed := ics.NewFeedSource(ics.NewFetcher(cfg.CacheDir, cfg.FetchTimeout), sources, loc, feedTTL)

	matcher, err := anniversary.New(feed, anniversary.Options{
		Strategy:   cfg.Matcher.Strategy,
		Markers:    cfg.Matcher.Markers,
		WindowDays: cfg.Matcher.WindowDays,
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Location: loc,
		Source:   feed,
		Matcher:  matcher,
		Upcoming: anniversary.NewPatternMatcher(feed, cfg.Matcher.WindowDays),
	}

	ledgerOpts := ledger.Options{
		Driver:        cfg.Ledger.Driver,
		Path:          cfg.Ledger.Path,
		RedisAddr:     cfg.Ledger.Redis.Addr,
		RedisPassword: cfg.Ledger.Redis.Password,
		RedisDB:       cfg.Ledger.Redis.DB,
		KeyPrefix:     cfg.Ledger.Redis.KeyPrefix,
		PostgresDSN:   cfg.Ledger.PostgresDSN,
	}
	if opts.DryRun {
		ledgerOpts = ledger.Options{Driver: ledger.DriverMemory}
	}
	store, err := ledger.Open(ctx, ledgerOpts)
	if err != nil {
		return nil, err
	}
	a.Ledger = ledger.NewClient(store)
	a.closers = append(a.closers, a.Ledger)

	var channels []dispatch.Channel
	if !opts.DryRun {
		channels, err = a.channels()
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	d := dispatch.New(channels...)
	if len(d.Channels()) == 0 && !opts.DryRun {
		appLog.Warn("no delivery channel configured; notifications are only logged")
	}

	a.Service = NewService(notify.NewOrchestrator(matcher, a.Ledger, loc), policy, d, loc)
	appLog.Info("service ready",
		"strategy", cfg.Matcher.Strategy,
		"ledger", ledgerOpts.Driver,
		"channels", d.Channels(),
		"feeds", len(sources),
		"dry_run", opts.DryRun,
	)
	return a, nil
}

func (a *App) channels() ([]dispatch.Channel, error) {
	cfg := a.Config
	var out []dispatch.Channel
	if cfg.Telegram != nil {
		out = append(out, dispatch.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, cfg.Telegram.APIURL))
	}
	if cfg.Email != nil {
		out = append(out, dispatch.NewEmail(dispatch.EmailConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
		}))
	}
	if cfg.AMQP != nil {
		pub, err := dispatch.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.RoutingKey)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.closers = append(a.closers, pub)
		out = append(out, pub)
	}
	return out, nil
}

// Close releases the ledger and any broker connection.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
