package hue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zefau/huesync/internal/infrastructure/config"
	"github.com/zefau/huesync/internal/infrastructure/mqtt"
	"github.com/zefau/huesync/internal/tree"
)

// Logger is the leveled logging surface the bridge writes to.
// *logging.Logger satisfies it directly.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Bridge keeps the state tree and a Hue bridge in sync: it polls the
// bridge into the tree and turns user writes on the tree back into
// bridge commands.
//
// A Bridge runs at most three goroutines: the sync loop, the queue
// flush loop (when queueing is enabled) and the health report loop.
// User writes arrive on the store's handler goroutine and either join
// the queue or dispatch on their own goroutine.
type Bridge struct {
	cfg    *config.Config
	store  tree.Store
	client Connector
	health *HealthReporter

	appliances  map[string]*Appliance
	applianceMu sync.RWMutex

	// devices caches the last value written per path so unchanged
	// polls skip the store entirely.
	devices map[string]any
	cacheMu sync.Mutex

	lastActions map[string]ActionRecord
	rootAction  ActionRecord
	actionMu    sync.RWMutex

	aggregates Aggregates
	aggMu      sync.RWMutex

	queue *commandQueue

	interval      time.Duration
	retryInterval time.Duration

	syncMu         sync.RWMutex
	syncing        bool
	terminal       bool
	terminalReason string
	lastSync       time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// BridgeOptions holds the dependencies for a Bridge.
type BridgeOptions struct {
	// Config supplies sync, command and channel settings. Required.
	Config *config.Config

	// Store is the state tree the bridge maps into. Required.
	Store tree.Store

	// Client talks to the Hue bridge. Required.
	Client Connector

	// Health optionally receives periodic health reports. Nil disables
	// reporting.
	Health HealthPublisher

	// Logger receives the bridge's log output. May be nil.
	Logger Logger

	// Version is reported in health messages.
	Version string
}

// NewBridge creates a Bridge from its options.
//
// Returns:
//   - A bridge ready for Start, or an error naming the missing
//     dependency.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, errors.New("hue: config is required")
	}
	if opts.Store == nil {
		return nil, errors.New("hue: store is required")
	}
	if opts.Client == nil {
		return nil, errors.New("hue: client is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		cfg:           opts.Config,
		store:         opts.Store,
		client:        opts.Client,
		appliances:    make(map[string]*Appliance),
		devices:       make(map[string]any),
		lastActions:   make(map[string]ActionRecord),
		aggregates:    resetAggregates(),
		queue:         newCommandQueue(),
		interval:      opts.Config.GetSyncInterval(),
		retryInterval: defaultRetryInterval,
		done:          make(chan struct{}),
		ctx:           ctx,
		ctxCancel:     cancel,
		logger:        opts.Logger,
	}

	if b.interval > 0 && b.interval < minSyncInterval {
		b.logWarn("sync interval too aggressive, clamping",
			"configured", b.interval.String(), "minimum", minSyncInterval.String())
		b.interval = minSyncInterval
	}

	if opts.Health != nil {
		address := opts.Config.Bridge.Host
		if client, ok := opts.Client.(*Client); ok {
			address = client.Address()
		}
		b.health = NewHealthReporter(HealthReporterConfig{
			Topic:         mqtt.Topics{Prefix: opts.Config.MQTT.TopicPrefix}.Health(),
			Version:       opts.Version,
			BridgeAddress: address,
			Publisher:     opts.Health,
			Client:        opts.Client,
			Logger:        opts.Logger,
		})
	}
	return b, nil
}

// Start wires the write handler and launches the sync, flush and
// health loops. The context bounds the health reporter; the bridge's
// own lifetime ends with Stop.
func (b *Bridge) Start(ctx context.Context) error {
	if b.health != nil {
		b.health.PublishStarting()
	}

	b.store.OnWrite(b.handleWrite)

	b.wg.Add(1)
	go b.syncLoop()

	if b.cfg.Commands.QueueEnabled {
		b.wg.Add(1)
		go b.flushLoop()
	}

	if b.health != nil {
		b.health.Start(ctx)
	}

	b.logInfo("bridge started",
		"interval", b.interval.String(),
		"queue", b.cfg.Commands.QueueEnabled)
	return nil
}

// Stop ends every loop and waits for in-flight dispatches. Safe to
// call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.ctxCancel()
		if b.health != nil {
			b.health.Stop()
		}
		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// Health exposes the reporter so the MQTT connection can use its last
// will. Nil when reporting is disabled.
func (b *Bridge) Health() *HealthReporter {
	return b.health
}

// BridgeMetrics is a point-in-time view of the bridge for the status
// API.
type BridgeMetrics struct {
	Appliances     int         `json:"appliances"`
	QueueDepth     int         `json:"queue_depth"`
	Syncing        bool        `json:"syncing"`
	Terminal       bool        `json:"terminal"`
	TerminalReason string      `json:"terminal_reason,omitempty"`
	LastSync       *time.Time  `json:"last_sync,omitempty"`
	Aggregates     Aggregates  `json:"aggregates"`
	Transport      ClientStats `json:"transport"`
}

// Metrics snapshots the bridge state.
func (b *Bridge) Metrics() BridgeMetrics {
	b.syncMu.RLock()
	syncing, terminal, reason, last := b.syncing, b.terminal, b.terminalReason, b.lastSync
	b.syncMu.RUnlock()

	m := BridgeMetrics{
		Appliances:     b.applianceCount(),
		QueueDepth:     b.queue.depth(),
		Syncing:        syncing,
		Terminal:       terminal,
		TerminalReason: reason,
		Aggregates:     b.currentAggregates(),
		Transport:      b.client.Stats(),
	}
	if !last.IsZero() {
		m.LastSync = &last
	}
	return m
}

// SetLogger replaces the bridge's logger.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	defer b.loggerMu.Unlock()
	b.logger = logger
}

func (b *Bridge) applianceCount() int {
	b.applianceMu.RLock()
	defer b.applianceMu.RUnlock()
	return len(b.appliances)
}

func (b *Bridge) currentAggregates() Aggregates {
	b.aggMu.RLock()
	defer b.aggMu.RUnlock()
	return b.aggregates
}

func (b *Bridge) lastActionFor(path string) ActionRecord {
	b.actionMu.RLock()
	defer b.actionMu.RUnlock()
	return b.lastActions[path]
}

func (b *Bridge) lastRootAction() ActionRecord {
	b.actionMu.RLock()
	defer b.actionMu.RUnlock()
	return b.rootAction
}

func (b *Bridge) setLastAction(path string, rec ActionRecord) {
	b.actionMu.Lock()
	b.lastActions[path] = rec
	b.rootAction = rec
	b.actionMu.Unlock()
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.currentLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.currentLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.currentLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error, keysAndValues ...any) {
	if logger := b.currentLogger(); logger != nil {
		logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}

func (b *Bridge) currentLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}
