package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chicagolots/lotbot/internal/lotbot"
	memstore "github.com/chicagolots/lotbot/internal/store/memory"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeResolver struct {
	mu     sync.Mutex
	coords lotbot.Coordinates
	err    error
	calls  int
}

func (r *fakeResolver) Resolve(context.Context, string) (lotbot.Coordinates, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return lotbot.Coordinates{}, r.err
	}
	return r.coords, nil
}

type fakeImagery struct {
	mu      sync.Mutex
	path    string
	failPIN string
	calls   int
}

func (f *fakeImagery) Acquire(_ context.Context, pin string, coords lotbot.Coordinates) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if pin == f.failPIN {
		return "", &lotbot.ImageUnavailableError{Coordinates: coords, Reason: "no imagery"}
	}
	return f.path, nil
}

type publishedPost struct {
	text      string
	imagePath string
}

type fakePublisher struct {
	mu     sync.Mutex
	postID string
	err    error
	panics bool
	posts  []publishedPost
}

func (p *fakePublisher) Publish(_ context.Context, text, imagePath string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panics {
		panic("publisher bug")
	}
	if p.err != nil {
		return "", p.err
	}
	p.posts = append(p.posts, publishedPost{text: text, imagePath: imagePath})
	return p.postID, nil
}

func (p *fakePublisher) FormatCaption(pin, address string) string {
	return fmt.Sprintf("%s\nPIN: %s", address, pin)
}

type recordingSleep struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleep) durations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.slept...)
}

func newTestWorker(store lotbot.PropertyStore, resolver lotbot.LocationResolver, imagery lotbot.ImageAcquirer, publisher lotbot.SocialPublisher, cfg Config) (*Worker, *recordingSleep) {
	w := New(store, resolver, imagery, publisher, fakeClock{now: time.Unix(1700000000, 0).UTC()}, cfg, zap.NewNop())
	rec := &recordingSleep{}
	w.sleep = rec.sleep
	return w, rec
}

func TestWorker_SingleCycleSuccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.NewPropertyStore()
	require.NoError(t, store.AddProperty(ctx, lotbot.Property{PIN: "P1", Address: "123 Main St"}))

	resolver := &fakeResolver{coords: lotbot.Coordinates{Latitude: 41.0, Longitude: -87.0}}
	imagery := &fakeImagery{path: "images/P1.jpg"}
	publisher := &fakePublisher{postID: "abc123"}

	w, _ := newTestWorker(store, resolver, imagery, publisher, Config{BatchSize: 10, PostInterval: time.Hour})

	require.NoError(t, w.runCycle(ctx))

	entry, ok := store.History("P1")
	require.True(t, ok)
	require.Equal(t, "abc123", entry.PostID)
	require.Equal(t, "images/P1.jpg", entry.ImagePath)

	stats, err := store.Statistics(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Posted)
	require.Equal(t, 0, stats.Remaining)

	require.Len(t, publisher.posts, 1)
	require.Equal(t, "123 Main St\nPIN: P1", publisher.posts[0].text)
	require.Equal(t, "images/P1.jpg", publisher.posts[0].imagePath)
}

func TestWorker_OneFailureNeverAbortsTheBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.NewPropertyStore()
	require.NoError(t, store.AddProperty(ctx, lotbot.Property{PIN: "A", Address: "1 First St"}))
	require.NoError(t, store.AddProperty(ctx, lotbot.Property{PIN: "B", Address: "2 Second St"}))

	resolver := &fakeResolver{coords: lotbot.Coordinates{Latitude: 41.0, Longitude: -87.0}}
	imagery := &fakeImagery{path: "images/x.jpg", failPIN: "A"}
	publisher := &fakePublisher{postID: "post-b"}

	w, rec := newTestWorker(store, resolver, imagery, publisher, Config{BatchSize: 10, PostInterval: time.Minute})

	require.NoError(t, w.runCycle(ctx))

	props, err := store.NextEligible(ctx, 10)
	require.NoError(t, err)
	require.Len(t, props, 1)
	require.Equal(t, "A", props[0].PIN)
	require.Equal(t, 1, props[0].ErrorCount)
	require.Contains(t, props[0].LastError, "no imagery")

	_, ok := store.History("B")
	require.True(t, ok)

	// Pacing runs after every record, success or failure.
	require.Equal(t, []time.Duration{time.Minute, time.Minute}, rec.durations())
}

func TestWorker_GeocodingFailureRecorded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.NewPropertyStore()
	require.NoError(t, store.AddProperty(ctx, lotbot.Property{PIN: "A", Address: "nowhere"}))

	resolver := &fakeResolver{err: &lotbot.GeocodingError{Address: "nowhere", Attempts: 3}}
	imagery := &fakeImagery{path: "unused.jpg"}
	publisher := &fakePublisher{postID: "unused"}

	w, _ := newTestWorker(store, resolver, imagery, publisher, Config{BatchSize: 10})

	require.NoError(t, w.runCycle(ctx))

	props, err := store.NextEligible(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, props[0].ErrorCount)
	require.Contains(t, props[0].LastError, "geocoding")
	require.Equal(t, 0, imagery.calls)
	require.Empty(t, publisher.posts)
}

func TestWorker_CachedCoordinatesSkipGeocoding(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.NewPropertyStore()
	require.NoError(t, store.AddProperty(ctx, lotbot.Property{
		PIN:         "A",
		Address:     "1 First St",
		Coordinates: &lotbot.Coordinates{Latitude: 41.9, Longitude: -87.7},
	}))

	resolver := &fakeResolver{}
	imagery := &fakeImagery{path: "images/a.jpg"}
	publisher := &fakePublisher{postID: "post-a"}

	w, _ := newTestWorker(store, resolver, imagery, publisher, Config{BatchSize: 10})

	require.NoError(t, w.runCycle(ctx))
	require.Equal(t, 0, resolver.calls)

	_, ok := store.History("A")
	require.True(t, ok)
}

func TestWorker_IdleSleepsWhenNothingRemains(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.NewPropertyStore()

	w, rec := newTestWorker(store, &fakeResolver{}, &fakeImagery{}, &fakePublisher{}, Config{BatchSize: 10, PostInterval: time.Hour})

	require.NoError(t, w.runCycle(ctx))
	require.Equal(t, []time.Duration{time.Hour}, rec.durations())
}

func TestWorker_PanicTriggersCooldownAndLoopSurvives(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memstore.NewPropertyStore()
	require.NoError(t, store.AddProperty(ctx, lotbot.Property{PIN: "A", Address: "1 First St"}))

	resolver := &fakeResolver{coords: lotbot.Coordinates{Latitude: 41.0, Longitude: -87.0}}
	imagery := &fakeImagery{path: "images/a.jpg"}
	publisher := &fakePublisher{panics: true}

	cooldown := 123 * time.Second
	w, rec := newTestWorker(store, resolver, imagery, publisher, Config{BatchSize: 10, Cooldown: cooldown})

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		for _, d := range rec.durations() {
			if d == cooldown {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	// A panic is not a classified failure: nothing recorded for the record.
	props, err := store.NextEligible(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 0, props[0].ErrorCount)
}

// interruptingPublisher cancels the run context mid-publish, as an operator
// signal would, and fails only if the cancellation reached its own context.
type interruptingPublisher struct {
	cancel context.CancelFunc
	postID string
	posts  int
}

func (p *interruptingPublisher) Publish(ctx context.Context, _, _ string) (string, error) {
	p.cancel()
	if err := ctx.Err(); err != nil {
		return "", &lotbot.PostError{Err: err}
	}
	p.posts++
	return p.postID, nil
}

func (p *interruptingPublisher) FormatCaption(pin, address string) string {
	return fmt.Sprintf("%s\nPIN: %s", address, pin)
}

func TestWorker_InterruptFinishesInFlightRecord(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memstore.NewPropertyStore()
	require.NoError(t, store.AddProperty(ctx, lotbot.Property{PIN: "A", Address: "1 First St"}))

	resolver := &fakeResolver{coords: lotbot.Coordinates{Latitude: 41.0, Longitude: -87.0}}
	imagery := &fakeImagery{path: "images/a.jpg"}
	publisher := &interruptingPublisher{cancel: cancel, postID: "post-a"}

	w, _ := newTestWorker(store, resolver, imagery, publisher, Config{BatchSize: 10, PostInterval: time.Minute})

	require.NoError(t, w.Run(ctx))

	// The in-flight record ran to completion: posted, not recorded as failed.
	require.Equal(t, 1, publisher.posts)
	entry, ok := store.History("A")
	require.True(t, ok)
	require.Equal(t, "post-a", entry.PostID)

	props, err := store.NextEligible(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, props)

	stats, err := store.Statistics(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Posted)
	require.Equal(t, 0, stats.PermanentlyFailed)
}

// deadStore fails every operation as if the store were unreachable.
type deadStore struct{ memstore.PropertyStore }

func (d *deadStore) Statistics(context.Context) (lotbot.Statistics, error) {
	return lotbot.Statistics{}, &lotbot.PersistenceError{Op: "statistics", Err: errors.New("connection refused")}
}

func TestWorker_DeadStoreEscalatesToShutdown(t *testing.T) {
	t.Parallel()

	w, _ := newTestWorker(&deadStore{}, &fakeResolver{}, &fakeImagery{}, &fakePublisher{}, Config{BatchSize: 10})

	err := w.Run(context.Background())
	var perr *lotbot.PersistenceError
	require.True(t, errors.As(err, &perr))
}

// brokenRecorder delegates to memory but fails RecordError.
type brokenRecorder struct{ *memstore.PropertyStore }

func (b *brokenRecorder) RecordError(context.Context, string, string) error {
	return &lotbot.PersistenceError{Op: "record error", Err: errors.New("connection refused")}
}

func TestWorker_RecordErrorFailureEscalates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inner := memstore.NewPropertyStore()
	require.NoError(t, inner.AddProperty(ctx, lotbot.Property{PIN: "A", Address: "nowhere"}))

	store := &brokenRecorder{PropertyStore: inner}
	resolver := &fakeResolver{err: &lotbot.GeocodingError{Address: "nowhere", Attempts: 3}}

	w, _ := newTestWorker(store, resolver, &fakeImagery{}, &fakePublisher{}, Config{BatchSize: 10})

	err := w.Run(ctx)
	var perr *lotbot.PersistenceError
	require.True(t, errors.As(err, &perr))
}
