// Package scheduler runs the daily ingest and scan jobs and answers chat commands.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"ValueSentinel/internal/collector"
	"ValueSentinel/internal/model"
	"ValueSentinel/internal/notifier"
	"ValueSentinel/internal/risk"
	"ValueSentinel/internal/signal"
	"ValueSentinel/internal/store"
)

// Scheduler manages the cron jobs. Ingest writes valuations, scan raises signals; neither
// touches positions or actions.
type Scheduler struct {
	Cron      *cron.Cron
	Collector *collector.Collector
	Engine    *signal.Engine
	Risk      *risk.Checker
	Notifier  notifier.Notifier
	Ctx       context.Context

	db         *store.DB
	chatUserID int64
	log        zerolog.Logger
	now        func() time.Time
	running    sync.Mutex
}

// NewScheduler creates a new Scheduler. chatUserID is the portfolio whose signals are
// pushed to the chat and whose data the chat commands read.
func NewScheduler(ctx context.Context, db *store.DB, col *collector.Collector, eng *signal.Engine,
	checker *risk.Checker, n notifier.Notifier, chatUserID int64, log zerolog.Logger) *Scheduler {
	if n == nil {
		n = notifier.Nop{}
	}
	return &Scheduler{
		Cron:       cron.New(cron.WithSeconds()),
		Collector:  col,
		Engine:     eng,
		Risk:       checker,
		Notifier:   n,
		Ctx:        ctx,
		db:         db,
		chatUserID: chatUserID,
		log:        log.With().Str("service", "scheduler").Logger(),
		now:        time.Now,
	}
}

// SetClock replaces the wall clock, for tests.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// RegisterAll registers the ingest and scan jobs.
func (s *Scheduler) RegisterAll(ingestCron, scanCron string) error {
	if _, err := s.Cron.AddFunc(ingestCron, func() { s.Ingest(s.Ctx) }); err != nil {
		return fmt.Errorf("register ingest task: %w", err)
	}
	if _, err := s.Cron.AddFunc(scanCron, func() { s.Scan(s.Ctx) }); err != nil {
		return fmt.Errorf("register scan task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Int("jobs", len(s.Cron.Entries())).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunNow collects fresh quotes and scans immediately.
func (s *Scheduler) RunNow(ctx context.Context) ([]model.Signal, error) {
	ingestErr := s.Ingest(ctx)
	created, scanErr := s.Scan(ctx)
	return created, errors.Join(ingestErr, scanErr)
}

// Ingest collects quotes for every user.
func (s *Scheduler) Ingest(ctx context.Context) error {
	s.running.Lock()
	defer s.running.Unlock()

	users, err := s.db.Queries().ListUserIDs(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("list users")
		return err
	}
	var errs []error
	for _, uid := range users {
		res, err := s.Collector.Collect(ctx, uid)
		if err == nil {
			continue
		}
		errs = append(errs, err)
		s.log.Error().Err(err).Int64("user_id", uid).Msg("ingest")
		if uid == s.chatUserID {
			var failed []string
			if res != nil {
				failed = res.Failed
			}
			s.trySend(ctx, notifier.FormatIngestFailure(failed, err))
		}
	}
	return errors.Join(errs...)
}

// Scan evaluates every user's monitored assets and pushes the chat user's new signals.
// It returns the signals created for the chat user.
func (s *Scheduler) Scan(ctx context.Context) ([]model.Signal, error) {
	s.running.Lock()
	defer s.running.Unlock()

	users, err := s.db.Queries().ListUserIDs(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("list users")
		return nil, err
	}
	var (
		mine []model.Signal
		errs []error
	)
	for _, uid := range users {
		created, err := s.Engine.Scan(ctx, uid)
		if err != nil {
			errs = append(errs, err)
			s.log.Error().Err(err).Int64("user_id", uid).Msg("scan")
		}
		if uid != s.chatUserID {
			continue
		}
		mine = created
		assets, err := s.assetIndex(ctx, uid)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.trySend(ctx, notifier.FormatScanReport(s.now(), created, assets))
	}
	return mine, errors.Join(errs...)
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	cmd, _, _ := strings.Cut(strings.TrimSpace(command), " ")
	// commands addressed in groups look like /scan@SomeBot
	cmd, _, _ = strings.Cut(strings.ToLower(cmd), "@")

	switch cmd {
	case "/signals":
		open, err := s.Engine.Open(ctx, s.chatUserID)
		if err != nil {
			return "❌ " + err.Error()
		}
		assets, err := s.assetIndex(ctx, s.chatUserID)
		if err != nil {
			return "❌ " + err.Error()
		}
		return notifier.FormatOpenSignals(open, assets)
	case "/positions":
		sum, err := s.Risk.PositionSummary(ctx, s.chatUserID)
		if err != nil {
			return "❌ " + err.Error()
		}
		return notifier.FormatPositionSummary(sum)
	case "/scan":
		// the scan job sends its own report
		if _, err := s.RunNow(ctx); err != nil {
			s.log.Warn().Err(err).Msg("manual scan finished with errors")
		}
		return ""
	default:
		return notifier.FormatHelp()
	}
}

func (s *Scheduler) assetIndex(ctx context.Context, userID int64) (map[int64]model.Asset, error) {
	assets, err := s.db.Queries().ListAssets(ctx, userID, store.AssetFilter{})
	if err != nil {
		return nil, err
	}
	idx := make(map[int64]model.Asset, len(assets))
	for _, a := range assets {
		idx[a.ID] = a
	}
	return idx, nil
}

type retrier interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

func (s *Scheduler) trySend(ctx context.Context, text string) {
	var err error
	if r, ok := s.Notifier.(retrier); ok {
		err = r.SendWithRetry(ctx, text, 3)
	} else {
		err = s.Notifier.Send(ctx, text)
	}
	if err != nil {
		s.log.Error().Err(err).Msg("send notification")
	}
}
