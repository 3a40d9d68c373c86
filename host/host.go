package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/c360/streamplug/config"
	"github.com/c360/streamplug/connection"
	"github.com/c360/streamplug/errors"
	"github.com/c360/streamplug/events"
	"github.com/c360/streamplug/health"
	"github.com/c360/streamplug/message"
	"github.com/c360/streamplug/metric"
	"github.com/c360/streamplug/pkg/retry"
	"github.com/c360/streamplug/queue"
)

// closeTimeout bounds the teardown of one plugin session during shutdown,
// independent of the already-cancelled run context.
const closeTimeout = 5 * time.Second

// ClientFactory builds the client for one configured plugin instance.
// Factories are registered per driver name.
type ClientFactory func(cfg config.InstanceConfig) (connection.Client, error)

// RejectedHandler receives output batches that could not be delivered:
// fatal write failures and batches stranded by an exhausted connect budget.
// It is called from the output pump goroutine and must not block.
type RejectedHandler func(instance string, batch message.Batch, err error)

// Option configures a Host
type Option func(*Host)

// WithLogger attaches a structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		h.logger = logger
	}
}

// WithMetrics enables pump instrumentation on the given registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(h *Host) {
		h.registry = registry
	}
}

// WithEvents attaches a pipeline event publisher.
func WithEvents(publisher *events.Publisher) Option {
	return func(h *Host) {
		h.events = publisher
	}
}

// WithRejectedHandler sets the callback for undeliverable output batches.
// Without one, rejected batches are logged and dropped.
func WithRejectedHandler(fn RejectedHandler) Option {
	return func(h *Host) {
		h.rejected = fn
	}
}

// instance pairs one plugin connection with its configuration. Each
// instance is owned by exactly one pump goroutine; nothing here needs
// locking.
type instance struct {
	cfg     config.InstanceConfig
	conn    *connection.Connection
	limiter *rate.Limiter // inputs only, nil when unpaced

	// connectedOnce distinguishes a reconnect from the first session.
	connectedOnce bool
}

// Host owns the pipeline: one Connection per configured plugin instance,
// one pump goroutine per connection, and a bounded queue between every
// stage. Build it with New and drive it with Run.
type Host struct {
	cfg      config.PipelineConfig
	logger   *slog.Logger
	registry *metric.Registry
	events   *events.Publisher
	rejected RejectedHandler

	policy     errors.Policy
	connectCfg retry.Config
	metrics    *pumpMetrics

	inputs     []*instance
	processors []*instance
	outputs    []*instance
}

// New validates the pipeline configuration against the registered drivers
// and builds every plugin connection. Nothing connects until Run.
func New(cfg config.PipelineConfig, drivers map[string]ClientFactory, opts ...Option) (*Host, error) {
	h := &Host{
		cfg:        cfg,
		logger:     slog.Default(),
		policy:     errors.Policy{TreatTimeoutAsDisconnect: cfg.TimeoutAsDisconnect},
		connectCfg: cfg.Connect.RetryConfig(),
	}
	for _, opt := range opts {
		opt(h)
	}

	var err error
	h.metrics, err = newPumpMetrics(h.registry)
	if err != nil {
		return nil, err
	}

	build := func(role errors.Role, instances []config.InstanceConfig) ([]*instance, error) {
		built := make([]*instance, 0, len(instances))
		for _, ic := range instances {
			factory, ok := drivers[ic.Driver]
			if !ok {
				return nil, errors.WrapInvalid(
					fmt.Errorf("no driver registered for %q", ic.Driver),
					"host", "New", fmt.Sprintf("build instance %s", ic.Name))
			}
			client, err := factory(ic)
			if err != nil {
				return nil, errors.WrapInvalid(err, "host", "New",
					fmt.Sprintf("build instance %s", ic.Name))
			}
			inst := &instance{
				cfg: ic,
				conn: connection.New(ic.Name, role, client,
					connection.WithCallTimeout(cfg.CallTimeout.Std()),
					connection.WithLogger(h.logger),
					connection.WithPolicy(h.policy)),
			}
			if role == errors.RoleInput && ic.ReadRate > 0 {
				inst.limiter = rate.NewLimiter(rate.Limit(ic.ReadRate), 1)
			}
			built = append(built, inst)
		}
		return built, nil
	}

	if h.inputs, err = build(errors.RoleInput, cfg.Inputs); err != nil {
		return nil, err
	}
	if h.processors, err = build(errors.RoleProcessor, cfg.Processors); err != nil {
		return nil, err
	}
	if h.outputs, err = build(errors.RoleOutput, cfg.Outputs); err != nil {
		return nil, err
	}
	return h, nil
}

// Run starts every pump and blocks until the pipeline completes or ctx is
// cancelled. The pipeline completes when all input branches have finished
// and their batches have drained through to the outputs. Cancellation stops
// new work, abandons scheduled retries, and drives every connection to
// Closed before returning.
func (h *Host) Run(ctx context.Context) error {
	g, runCtx := errgroup.WithContext(ctx)

	h.events.Publish(runCtx, "", events.TypeStarted, "pipeline started", nil)
	defer h.events.Publish(context.Background(), "", events.TypeStopped, "pipeline stopped", nil)

	newQueue := func(stage string) *queue.Queue[message.Batch] {
		return queue.New(h.cfg.QueueCapacity,
			queue.WithDepthGauge[message.Batch](h.metrics.depthGauge(stage)))
	}

	// All inputs feed one merge queue; it closes only when every branch
	// has finished, so one exhausted input never ends the pipeline.
	merged := newQueue("merge")
	var inputWG sync.WaitGroup
	for _, in := range h.inputs {
		in := in
		inputWG.Add(1)
		g.Go(func() error {
			defer inputWG.Done()
			return h.runInputPump(runCtx, in, merged)
		})
	}
	g.Go(func() error {
		inputWG.Wait()
		merged.Close()
		return nil
	})

	// Processors chain in configuration order, one queue per hop. Each
	// pump closes its own downstream queue on exit.
	upstream := merged
	for i, proc := range h.processors {
		proc := proc
		in := upstream
		out := newQueue(fmt.Sprintf("processor_%d", i))
		g.Go(func() error {
			return h.runProcessorPump(runCtx, proc, in, out)
		})
		upstream = out
	}

	// A single output pulls straight from the chain; multiple outputs get
	// a copier that duplicates each batch into every output's own queue.
	feeds := make([]*queue.Queue[message.Batch], len(h.outputs))
	if len(h.outputs) == 1 {
		feeds[0] = upstream
	} else {
		for i, out := range h.outputs {
			feeds[i] = newQueue("output_" + out.cfg.Name)
		}
		in := upstream
		g.Go(func() error {
			return runFanOut(runCtx, in, feeds)
		})
	}
	for i, out := range h.outputs {
		out := out
		feed := feeds[i]
		g.Go(func() error {
			return h.runOutputPump(runCtx, out, feed)
		})
	}

	err := g.Wait()
	if err != nil {
		return err
	}
	return ctx.Err()
}

// Health reports the live state of every plugin connection, rolled up into
// one pipeline status. Safe to call while Run is active.
func (h *Host) Health() health.Status {
	var statuses []health.Status
	for _, group := range [][]*instance{h.inputs, h.processors, h.outputs} {
		for _, inst := range group {
			statuses = append(statuses, health.FromConnection(inst.conn))
		}
	}
	return health.Aggregate(h.cfg.Name, statuses)
}

// ensureConnected brings an instance to Connected, running the configured
// retry budget for generic connect failures. Server-requested backoffs set
// the sleep floor without consuming the budget. An exhausted budget closes
// the connection for good.
func (h *Host) ensureConnected(ctx context.Context, inst *instance) error {
	name := inst.cfg.Name
	switch inst.conn.State() {
	case connection.StateConnected:
		return nil
	case connection.StateClosed:
		return errors.ErrConnectionClosed
	}

	reconnecting := inst.connectedOnce
	start := time.Now()
	err := retry.Do(ctx, h.connectCfg, func() error {
		connectErr := inst.conn.Connect(ctx)
		if connectErr == nil {
			return nil
		}
		decision := h.policy.Classify(connectErr, inst.conn.Role(), errors.OpConnect)
		if decision.Action == errors.ActionRetryAfter {
			h.metrics.backedOff(name)
			h.events.Publish(ctx, name, events.TypeBackOff, "connect backoff requested", connectErr)
		}
		if errors.IsInvalid(connectErr) {
			// Connected or Closed already; retrying cannot change that.
			return retry.NonRetryable(connectErr)
		}
		return connectErr
	})
	if err != nil {
		if ctx.Err() == nil {
			h.closeConn(inst)
			h.metrics.fatal(name)
			h.events.Publish(ctx, name, events.TypeFatalError, "connect budget exhausted", err)
		}
		return err
	}

	h.metrics.observeConnect(name, time.Since(start))
	if reconnecting {
		h.metrics.reconnected(name)
		h.events.Publish(ctx, name, events.TypeReconnect, "plugin session re-established", nil)
	}
	inst.connectedOnce = true
	return nil
}

// closeConn drives one connection to Closed under its own bounded deadline.
func (h *Host) closeConn(inst *instance) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := inst.conn.Close(ctx); err != nil {
		h.logger.Warn("plugin close failed", "instance", inst.cfg.Name, "error", err)
	}
}

// reject surfaces an undeliverable output batch.
func (h *Host) reject(instance string, batch message.Batch, err error) {
	h.metrics.rejected(instance)
	if h.rejected != nil {
		h.rejected(instance, batch, err)
		return
	}
	h.logger.Error("dropping undeliverable batch",
		"instance", instance, "messages", batch.Len(), "error", err)
}
