// Package buildqueue implements a deduplicated, bounded-concurrency FIFO:
// a producer-facing ingress channel, a dedup set keyed on container_name,
// and a cooperative dispatch loop that respects a fixed pool of build
// slots.
package buildqueue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-set/v3"

	"github.com/shipgit/shipgit/internal/buildid"
	"github.com/shipgit/shipgit/internal/metrics"
	"github.com/shipgit/shipgit/internal/store"
)

// ingressCapacity bounds the producer channel; HTTP handlers sending into
// it block once it fills, providing backpressure to producers.
const ingressCapacity = 32

const dispatchIdlePoll = 5 * time.Millisecond

const metricsLogInterval = 30 * time.Second

// Item is what the push path hands the queue after a successful
// receive-pack and working-copy sync.
type Item struct {
	ContainerName string
	ContainerSrc  string
	Owner         string
	Repo          string
}

// BuildItem is the queued unit: an Item plus its generated identity and
// enqueue time. Dedup identity is ContainerName alone.
type BuildItem struct {
	BuildID   uuid.UUID
	ProjectID string
	Item
	CreatedAt time.Time
}

// Dispatch is invoked once per popped BuildItem, with a slot already
// reserved for it; the caller (buildexec) is responsible for releasing the
// slot via the Queue's Release method when the build finishes.
type Dispatch func(ctx context.Context, item BuildItem)

// Queue owns all build-queue state: the FIFO, the dedup set, and the
// available-slot counter. Two long-lived loops (enqueue, dispatch) operate
// on it; no other code should mutate queue/inflight directly.
type Queue struct {
	store   store.ProjectStore
	log     *slog.Logger
	metrics *metrics.Metrics

	capacity  int64
	available atomic.Int64

	mu       sync.Mutex
	items    []BuildItem
	inflight *set.Set[string]

	ingress   chan Item
	scheduler gocron.Scheduler
}

func New(capacity int, st store.ProjectStore, log *slog.Logger) *Queue {
	q := &Queue{
		store:    st,
		log:      log,
		capacity: int64(capacity),
		inflight: set.New[string](0),
		ingress:  make(chan Item, ingressCapacity),
	}
	q.available.Store(int64(capacity))
	return q
}

// WithMetrics attaches a Metrics sink the periodic logger also reports to.
func (q *Queue) WithMetrics(m *metrics.Metrics) *Queue {
	q.metrics = m
	return q
}

// Enqueue hands item to the enqueue task. It blocks if the ingress channel
// is full, providing backpressure to producers.
func (q *Queue) Enqueue(ctx context.Context, item Item) {
	select {
	case q.ingress <- item:
	case <-ctx.Done():
	}
}

// Release returns a build slot to the pool, symmetric with the decrement
// dispatch performs when it pops an item. Callers (buildexec) must call
// this exactly once per dispatched BuildItem, regardless of outcome.
func (q *Queue) Release() {
	q.available.Add(1)
}

// Start launches the enqueue loop, the dispatch loop, and the periodic
// metrics logger. It returns immediately; all three stop when ctx is done.
func (q *Queue) Start(ctx context.Context, dispatch Dispatch) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	q.scheduler = scheduler

	if _, err := scheduler.NewJob(
		gocron.DurationJob(metricsLogInterval),
		gocron.NewTask(q.logMetrics),
	); err != nil {
		return err
	}
	scheduler.Start()

	go q.enqueueLoop(ctx)
	go q.dispatchLoop(ctx, dispatch)

	go func() {
		<-ctx.Done()
		_ = scheduler.Shutdown()
	}()

	return nil
}

func (q *Queue) logMetrics() {
	q.mu.Lock()
	queueLen := len(q.items)
	inflightSize := q.inflight.Size()
	q.mu.Unlock()

	available := q.available.Load()
	q.log.Info("build queue metrics",
		"available_slots", available,
		"queue_length", queueLen,
		"inflight_names_size", inflightSize,
	)

	if q.metrics != nil {
		q.metrics.QueueAvailable.Set(float64(available))
		q.metrics.QueueLength.Set(float64(queueLen))
		q.metrics.QueueInflightNames.Set(float64(inflightSize))
	}
}

func (q *Queue) enqueueLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-q.ingress:
			q.handleEnqueue(ctx, item)
		}
	}
}

func (q *Queue) handleEnqueue(ctx context.Context, item Item) {
	project, err := q.store.FindProject(ctx, item.Owner, item.Repo)
	if err != nil {
		q.log.Warn("dropping build item: project lookup failed",
			"owner", item.Owner, "repo", item.Repo, "err", err)
		return
	}

	q.mu.Lock()
	if q.inflight.Contains(item.ContainerName) {
		q.mu.Unlock()
		q.log.Debug("dropping duplicate build item", "container", item.ContainerName)
		return
	}
	q.mu.Unlock()

	buildID := buildid.New()
	if err := q.store.InsertBuild(ctx, buildID, project.ID); err != nil {
		q.log.Warn("dropping build item: insert build failed",
			"owner", item.Owner, "repo", item.Repo, "err", err)
		return
	}

	q.mu.Lock()
	q.items = append(q.items, BuildItem{
		BuildID:   buildID,
		ProjectID: project.ID,
		Item:      item,
		CreatedAt: time.Now(),
	})
	q.inflight.Insert(item.ContainerName)
	q.mu.Unlock()

	q.log.Info("build enqueued", "build_id", buildID, "container", item.ContainerName)
}

func (q *Queue) dispatchLoop(ctx context.Context, dispatch Dispatch) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, ok := q.tryPop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(dispatchIdlePoll):
			}
			continue
		}

		go dispatch(ctx, item)
	}
}

func (q *Queue) tryPop() (BuildItem, bool) {
	if q.available.Load() <= 0 {
		return BuildItem{}, false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return BuildItem{}, false
	}

	item := q.items[0]
	q.items = q.items[1:]
	q.inflight.Remove(item.ContainerName)
	q.available.Add(-1)

	return item, true
}

// Snapshot reports the current state for tests and diagnostics.
func (q *Queue) Snapshot() (availableSlots int64, queueLength int, inflightSize int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.available.Load(), len(q.items), q.inflight.Size()
}
