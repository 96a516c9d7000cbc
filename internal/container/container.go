package container

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/event"
	"github.com/garyjia/approval-engine/internal/infrastructure/metrics"
)

// Container owns the process-wide components of the approval service.
// Start opens them in dependency order; Close releases them in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	store      *StoreBundle
	directory  port.RoleDirectory
	publisher  port.EventPublisher
	metrics    *metrics.Recorder
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle

	// closers run last-in first-out
	closers []closer

	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

type closer struct {
	name string
	fn   func() error
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer validates cfg. Nothing is opened until Start.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("config is required")
	case logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Container{config: cfg, logger: logger}, nil
}

// Start opens the store (running migrations), the role directory, the event
// publisher and metrics, then wires the dispatcher and the services.
// A failure closes whatever was already opened.
func (c *Container) Start(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed.Load():
		return fmt.Errorf("container has been closed")
	case c.ready.Load():
		return fmt.Errorf("container already started")
	}

	defer func() {
		if err != nil {
			c.logger.Error("Container start failed, releasing components", zap.Error(err))
			c.release()
		}
	}()

	if c.store, err = ProvideStore(ctx, &c.config.Database, c.logger); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.push("database", c.store.Close)

	if c.directory, err = ProvideDirectory(ctx, &c.config.Directory, c.store.Members, c.logger); err != nil {
		return fmt.Errorf("failed to initialize directory: %w", err)
	}

	var closePublisher func() error
	if c.publisher, closePublisher, err = ProvidePublisher(&c.config.Messaging, c.logger); err != nil {
		return fmt.Errorf("failed to initialize publisher: %w", err)
	}
	c.push("publisher", closePublisher)

	if c.config.Metrics.Enabled {
		counts, err := c.store.Requests.CountPending(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed metrics: %w", err)
		}
		c.metrics = metrics.NewRecorder()
		c.metrics.SeedPending(counts)
	}

	c.dispatcher = ProvideDispatcher(c.logger)
	c.push("dispatcher", c.dispatcher.Close)

	c.services, err = ProvideServices(&ServiceDeps{
		Store:      c.store,
		Directory:  c.directory,
		Publisher:  c.publisher,
		Dispatcher: c.dispatcher,
		Metrics:    c.metrics,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	c.ready.Store(true)
	c.logger.Info("Container started",
		zap.String("driver", c.config.Database.Driver),
		zap.String("directory", c.config.Directory.Source),
		zap.Bool("nats", c.config.Messaging.Enabled),
		zap.Bool("metrics", c.metrics != nil),
	)
	return nil
}

// Close shuts down every opened component. It may be called once.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Swap(true) {
		return fmt.Errorf("container already closed")
	}
	c.ready.Store(false)

	if err := c.release(); err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}
	c.logger.Info("Container closed")
	return nil
}

func (c *Container) push(name string, fn func() error) {
	if fn != nil {
		c.closers = append(c.closers, closer{name: name, fn: fn})
	}
}

// release runs the registered closers in reverse and joins their errors
func (c *Container) release() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		cl := c.closers[i]
		if err := cl.fn(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", cl.name, err))
			continue
		}
		c.logger.Debug("Component closed", zap.String("component", cl.name))
	}
	c.closers = nil
	c.store, c.dispatcher, c.publisher = nil, nil, nil
	return errors.Join(errs...)
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health pings the database and reports which components are wired.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{Overall: true, Components: make(map[string]ComponentHealth, 3)}
	set := func(name string, h ComponentHealth) {
		status.Components[name] = h
		status.Overall = status.Overall && h.Healthy
	}

	switch {
	case c.store == nil:
		set("database", ComponentHealth{Message: "not initialized"})
	default:
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := c.store.Ping(pingCtx)
		cancel()
		if err != nil {
			set("database", ComponentHealth{Message: fmt.Sprintf("ping failed: %v", err)})
		} else {
			set("database", ComponentHealth{Healthy: true})
		}
	}

	if c.dispatcher == nil {
		set("dispatcher", ComponentHealth{Message: "not initialized"})
	} else {
		set("dispatcher", dispatcherHealth(c.dispatcher))
	}

	mode := "log only"
	if c.config.Messaging.Enabled {
		mode = "nats"
	}
	set("publisher", ComponentHealth{Healthy: c.publisher != nil, Message: mode})

	return status
}

// dispatcherHealth fails when some event type has no subscriber, since its
// transitions would then be dropped silently.
func dispatcherHealth(d dispatcher.Dispatcher) ComponentHealth {
	var missing []string
	total := 0
	for _, t := range event.AllTypes() {
		n := len(d.ListHandlers(t))
		if n == 0 {
			missing = append(missing, t.String())
		}
		total += n
	}
	if len(missing) > 0 {
		return ComponentHealth{Message: "no handlers for " + strings.Join(missing, ", ")}
	}
	return ComponentHealth{Healthy: true, Message: fmt.Sprintf("%d handlers", total)}
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Metrics returns the metrics recorder, nil when metrics are disabled.
func (c *Container) Metrics() *metrics.Recorder {
	return c.metrics
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}
