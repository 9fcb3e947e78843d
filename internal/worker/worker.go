// Package worker implements the posting pipeline execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chicagolots/lotbot/internal/lotbot"
	"github.com/chicagolots/lotbot/internal/metrics"
)

// Config controls Worker behavior.
type Config struct {
	BatchSize    int
	PostInterval time.Duration
	Cooldown     time.Duration
}

// Worker drains the property store one record at a time: geocode the
// address, fetch an image, publish the post, record the outcome.
type Worker struct {
	store     lotbot.PropertyStore
	resolver  lotbot.LocationResolver
	imagery   lotbot.ImageAcquirer
	publisher lotbot.SocialPublisher
	clock     lotbot.Clock
	sleep     lotbot.SleepFunc
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	store lotbot.PropertyStore,
	resolver lotbot.LocationResolver,
	imagery lotbot.ImageAcquirer,
	publisher lotbot.SocialPublisher,
	clock lotbot.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	return &Worker{
		store:     store,
		resolver:  resolver,
		imagery:   imagery,
		publisher: publisher,
		clock:     clock,
		sleep:     lotbot.Sleep,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, processing batches until the context finishes. A cycle that
// fails unexpectedly logs and cools down rather than exiting; the only
// errors Run returns are store-level persistence failures, for which looping
// against a dead store would be worse than shutting down.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := w.runCycle(ctx); err != nil {
			var perr *lotbot.PersistenceError
			if errors.As(err, &perr) {
				w.logger.Error("property store failure, shutting down", zap.Error(err))
				return err
			}
			w.logger.Error("unexpected error in processing loop", zap.Error(err))
			metrics.LoopCooldown()
			if err := w.sleep(ctx, w.cfg.Cooldown); err != nil {
				return nil
			}
		}
	}
}

// runCycle executes one pass: statistics, one batch, one pacing sleep per
// record. Panics are converted to errors so a bug in one cycle never kills
// the process.
func (w *Worker) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in processing loop: %v", r)
		}
	}()

	// An interrupt takes effect at the top of the outer loop and in the
	// sleeps, never mid-record: in-flight processing and outcome recording
	// run on a detached context so a signal cannot turn a healthy record
	// into a stored failure.
	procCtx := context.WithoutCancel(ctx)

	stats, err := w.store.Statistics(procCtx)
	if err != nil {
		return err
	}
	metrics.SetRemaining(stats.Remaining)
	w.logger.Info("current statistics",
		zap.Int("total", stats.Total),
		zap.Int("posted", stats.Posted),
		zap.Int("permanently_failed", stats.PermanentlyFailed),
		zap.Int("remaining", stats.Remaining),
	)

	if stats.Remaining == 0 {
		// Graceful idle: new records might be imported out-of-band.
		w.logger.Info("no more properties to process")
		_ = w.sleep(ctx, w.cfg.PostInterval)
		return nil
	}

	batch, err := w.store.NextEligible(procCtx, w.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, prop := range batch {
		start := w.clock.Now()
		if procErr := w.processProperty(procCtx, prop); procErr != nil {
			w.logger.Error("processing property failed",
				zap.String("pin", prop.PIN),
				zap.Error(procErr),
			)
			metrics.RecordOutcome("failed", w.clock.Now().Sub(start))
			if recErr := w.store.RecordError(procCtx, prop.PIN, procErr.Error()); recErr != nil {
				return recErr
			}
		} else {
			metrics.RecordOutcome("posted", w.clock.Now().Sub(start))
		}

		// Pace outbound calls after every record, success or failure. An
		// interrupt only takes effect here, never mid-record.
		if err := w.sleep(ctx, w.cfg.PostInterval); err != nil {
			return nil
		}
	}
	return nil
}

// processProperty routes one record through the pipeline. Any returned
// error becomes a recorded failure for that record only.
func (w *Worker) processProperty(ctx context.Context, prop lotbot.Property) error {
	coords := prop.Coordinates
	if coords == nil {
		resolved, err := w.resolver.Resolve(ctx, prop.Address)
		if err != nil {
			return err
		}
		coords = &resolved
		// Cache coordinates so a later retry of this record skips geocoding.
		if err := w.store.SaveCoordinates(ctx, prop.PIN, resolved); err != nil {
			w.logger.Warn("caching coordinates failed", zap.String("pin", prop.PIN), zap.Error(err))
		}
	}

	imagePath, err := w.imagery.Acquire(ctx, prop.PIN, *coords)
	if err != nil {
		return err
	}

	text := w.publisher.FormatCaption(prop.PIN, prop.Address)
	postID, err := w.publisher.Publish(ctx, text, imagePath)
	if err != nil {
		return err
	}

	if err := w.store.RecordSuccess(ctx, prop.PIN, postID, imagePath, w.clock.Now()); err != nil {
		return err
	}

	w.logger.Info("posted property",
		zap.String("pin", prop.PIN),
		zap.String("post_id", postID),
		zap.String("image_path", imagePath),
	)
	return nil
}
