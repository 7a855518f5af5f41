package history

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-lifx/internal/light"
	"github.com/nerrad567/gray-logic-lifx/internal/service"
)

// Recorder defaults.
const (
	DefaultQueueSize     = 1024
	DefaultPruneInterval = time.Hour
	writeTimeout         = 5 * time.Second
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// Repository receives every write. Required.
	Repository Repository

	// Retention is how long entries are kept. 0 disables pruning.
	Retention time.Duration

	// PruneInterval is how often old entries are pruned. Default: 1h.
	PruneInterval time.Duration

	// QueueSize bounds pending writes. Default: 1024.
	QueueSize int

	// SkipReachability leaves reachable flips out of the log.
	SkipReachability bool

	Logger Logger
}

// write is one queued repository call.
type write func(ctx context.Context, repo Repository) error

// Ensure Recorder plugs into the service.
var (
	_ service.Extension          = (*Recorder)(nil)
	_ service.LightAddedListener = (*Recorder)(nil)
	_ light.ChangeListener       = (*Recorder)(nil)
)

// Recorder writes light changes to a Repository on its own goroutine.
//
// Thread Safety: all methods are safe for concurrent use.
type Recorder struct {
	opts  RecorderOptions
	queue chan write

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	started  atomic.Bool

	recorded atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
}

// NewRecorder creates a recorder. It runs once started by the service.
func NewRecorder(opts RecorderOptions) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = DefaultPruneInterval
	}
	return &Recorder{
		opts:  opts,
		queue: make(chan write, opts.QueueSize),
		done:  make(chan struct{}),
	}
}

// Name implements service.Extension.
func (r *Recorder) Name() string { return "history" }

// Start launches the writer and registers lights the host already knows.
// The writer outlives the start context: changes emitted while the service
// shuts down are still written, and only Stop ends it.
func (r *Recorder) Start(_ context.Context, host service.Host) error {
	if !r.started.CompareAndSwap(false, true) {
		return nil
	}
	r.wg.Add(1)
	go r.run()

	for _, l := range host.Lights() {
		r.OnLightAdded(l)
	}
	return nil
}

// Stop flushes queued writes and waits for the writer to exit.
// Safe to call multiple times.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}

// OnLightAdded registers the light in the registry.
func (r *Recorder) OnLightAdded(l *light.Light) {
	r.enqueue(upsert(l.Snapshot()))
}

// OnLightChange appends the change to the log and refreshes the registry
// row when an identifying property changed.
func (r *Recorder) OnLightChange(l *light.Light, p light.Property, oldValue, newValue any) {
	if p == light.PropertyReachable && r.opts.SkipReachability {
		return
	}
	c := Change{
		LightID:  light.FormatID(l.ID()),
		Property: p.String(),
		Old:      oldValue,
		New:      newValue,
		At:       time.Now(),
	}
	r.enqueue(func(ctx context.Context, repo Repository) error {
		return repo.RecordChange(ctx, c)
	})

	switch p {
	case light.PropertyLabel, light.PropertyProductInfo, light.PropertyReachable:
		r.enqueue(upsert(l.Snapshot()))
	}
}

func upsert(s light.State) write {
	rec := LightRecord{
		LightID:    light.FormatID(s.ID),
		Label:      s.Label,
		Address:    s.Address.String(),
		ProductID:  s.ProductInfo.ProductID,
		LastSeenAt: s.LastSeenAt,
	}
	return func(ctx context.Context, repo Repository) error {
		return repo.UpsertLight(ctx, rec)
	}
}

// enqueue never blocks; a full queue drops the write.
func (r *Recorder) enqueue(w write) {
	select {
	case r.queue <- w:
	default:
		if r.dropped.Add(1) == 1 {
			r.logWarn("history queue full, dropping writes")
		}
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.opts.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case w := <-r.queue:
			r.apply(w)
		case <-ticker.C:
			r.prune()
		case <-r.done:
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case w := <-r.queue:
			r.apply(w)
		default:
			return
		}
	}
}

func (r *Recorder) apply(w write) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := w(ctx, r.opts.Repository); err != nil {
		r.failed.Add(1)
		r.logError("history write failed", err)
		return
	}
	r.recorded.Add(1)
}

func (r *Recorder) prune() {
	if r.opts.Retention <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	n, err := r.opts.Repository.Prune(ctx, r.opts.Retention)
	if err != nil {
		r.logError("history prune failed", err)
		return
	}
	if n > 0 && r.opts.Logger != nil {
		r.opts.Logger.Info("history pruned", "rows", n)
	}
}

// Stats returns the number of writes applied, dropped and failed.
func (r *Recorder) Stats() (recorded, dropped, failed uint64) {
	return r.recorded.Load(), r.dropped.Load(), r.failed.Load()
}

func (r *Recorder) logWarn(msg string, kv ...any) {
	if r.opts.Logger != nil {
		r.opts.Logger.Warn(msg, kv...)
	}
}

func (r *Recorder) logError(msg string, err error) {
	if r.opts.Logger != nil {
		r.opts.Logger.Error(msg, "error", err)
	}
}
