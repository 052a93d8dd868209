package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventsync/internal/cache"
	"eventsync/internal/config"
	"eventsync/internal/domain"
	"eventsync/internal/draft"
	"eventsync/internal/identity"
	"eventsync/internal/realtime"
	"eventsync/internal/repository"
	"eventsync/internal/service"
	"eventsync/lib/logger/sl"
	"eventsync/lib/logger/slogpretty"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	eventID := os.Getenv("EVENTSYNC_EVENT_ID")
	if eventID == "" {
		log.Error("EVENTSYNC_EVENT_ID is required")
		os.Exit(1)
	}

	provider, err := buildIdentity(log)
	if err != nil {
		log.Error("failed to build identity", sl.Err(err))
		os.Exit(1)
	}

	drafts, err := draft.Open(cfg.Drafts.Path, log)
	if err != nil {
		// Drafts are best-effort; fall back to a store that won't survive
		// a restart rather than refusing to run.
		log.Warn("draft store unavailable, drafts will not persist", sl.Err(err))
		drafts, err = draft.Open(":memory:", log)
		if err != nil {
			log.Error("failed to open in-memory draft store", sl.Err(err))
			os.Exit(1)
		}
	}
	defer drafts.Close()

	rest := repository.NewRESTClient(cfg.API.BaseURL, provider, cfg.API.Timeout, log)
	channel := realtime.NewManager(cfg.Realtime.URL, log,
		realtime.WithReconnectPolicy(cfg.Realtime.ReconnectAttempts, cfg.Realtime.ReconnectDelay),
	)
	defer channel.Close()

	resources := cache.New(log)

	presence := service.NewPresenceTracker(channel, rest.Events(), resources, log)
	notes := service.NewNoteEngine(drafts, rest.UserActivities(), resources, provider.SubjectID(), log)
	partner := service.NewPartnerListener(channel, rest.UserActivities(), log)
	pairing := service.NewPairingCoordinator(rest.GroupActivities(), resources, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	presence.SetOnChange(func(activityID string) {
		onActivity(ctx, log, provider.SubjectID(), eventID, activityID, rest, resources, notes, partner, pairing)
	})

	if cfg.Metrics.Address != "" {
		go serveMetrics(cfg.Metrics.Address, log)
	}

	if err := presence.Start(ctx, eventID); err != nil {
		log.Error("failed to start presence tracking", sl.Err(err))
		os.Exit(1)
	}
	defer presence.Stop()
	defer partner.Stop()

	if activityID, err := presence.ActiveActivityID(ctx); err == nil && activityID != "" {
		onActivity(ctx, log, provider.SubjectID(), eventID, activityID, rest, resources, notes, partner, pairing)
	}

	log.Info("synchronized, waiting for broadcasts",
		slog.String("event_id", eventID),
		slog.String("user_id", provider.SubjectID()),
	)
	<-ctx.Done()
	log.Info("shutting down")
}

// onActivity runs the reconciliation for a newly active activity: reset the
// note engine, refresh pairing, re-point the partner listener, and deliver
// the server baseline once it arrives.
func onActivity(
	ctx context.Context,
	log *slog.Logger,
	userID, eventID, activityID string,
	rest *repository.RESTClient,
	resources *cache.Cache,
	notes *service.NoteEngine,
	partner *service.PartnerListener,
	pairing *service.PairingCoordinator,
) {
	log.Info("active activity changed", slog.String("activity_id", activityID))

	notes.SetActivity(activityID)

	if err := pairing.Observe(ctx, eventID, activityID); err != nil {
		log.Warn("pairing unavailable", sl.Err(err))
	}
	if group, ok := pairing.Group().GroupOf(userID); ok {
		notes.SetGroupID(group.ID)
	}

	partnerID := ""
	if p, ok := pairing.PartnerFor(userID); ok {
		partnerID = p.UserID
	}
	if err := partner.Observe(ctx, activityID, partnerID); err != nil {
		log.Warn("partner observation failed", sl.Err(err))
	}

	value, err := resources.Get(ctx, cache.UserActivityKey(activityID, userID), func(ctx context.Context) (any, error) {
		return rest.UserActivities().Get(ctx, activityID, userID)
	})
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Warn("baseline fetch failed", sl.Err(err))
		}
		return
	}
	notes.ApplyBaseline(value.(*domain.UserActivity))
}

func buildIdentity(log *slog.Logger) (identity.Provider, error) {
	token := os.Getenv("EVENTSYNC_TOKEN")
	if token == "" {
		return nil, errors.New("EVENTSYNC_TOKEN is required")
	}

	subject := os.Getenv("EVENTSYNC_USER_ID")
	if subject == "" {
		parsed, err := identity.SubjectFromToken(token)
		if err != nil {
			return nil, err
		}
		subject = parsed
	}

	fetch := func(ctx context.Context, forceRefresh bool) (string, error) {
		return token, nil
	}
	return identity.NewTokenSource(subject, false, fetch, log), nil
}

func serveMetrics(address string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(address, mux); err != nil {
		log.Error("metrics server stopped", sl.Err(err))
	}
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
