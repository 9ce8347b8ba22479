// Package monitor drives the collection cycle: before each pass it asks
// the auth layer for valid device sessions, fans collection out per
// device, persists the snapshots, and applies the retry policy the auth
// core deliberately does not own.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/netmon-dev/netmon/internal/collector"
	"github.com/netmon-dev/netmon/internal/config"
	"github.com/netmon-dev/netmon/internal/routerauth"
	"github.com/netmon-dev/netmon/internal/switchauth"
)

// ErrTooManyFailures stops the loop after the configured number of
// consecutive failed cycles.
var ErrTooManyFailures = errors.New("monitor: too many consecutive cycle failures")

// RouterSession is what the router collector needs from an authenticated
// session.
type RouterSession = collector.AuthedGetter

// RouterAuth supplies validated router sessions.
type RouterAuth interface {
	EnsureAuthenticated(ctx context.Context) (RouterSession, error)
	State() routerauth.State
}

// SwitchAuth performs switch logins. *switchauth.Client satisfies it.
type SwitchAuth interface {
	Login(ctx context.Context, address, username, password, operation string) (switchauth.Token, error)
}

// MetricsStore persists snapshots. *store.InfluxWriter satisfies it.
type MetricsStore interface {
	WriteSwitch(ctx context.Context, snapshot *collector.SwitchSnapshot) error
	WriteRouter(ctx context.Context, snapshot *collector.RouterSnapshot, routerIP string) error
}

// LogStore archives switch event logs. *store.LogArchive satisfies it; a
// nil LogStore disables archiving.
type LogStore interface {
	Archive(ctx context.Context, switchIP string, logs []collector.LogRecord) error
}

// Status is a point-in-time view of the loop for the management endpoint.
type Status struct {
	CycleCount        int       `json:"cycle_count"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	LastCycleOK       bool      `json:"last_cycle_ok"`
	LastCycleAt       time.Time `json:"last_cycle_at"`
	LastError         string    `json:"last_error,omitempty"`
	RouterAuthState   string    `json:"router_auth_state"`
}

// Monitor owns the polling loop for one router/switch pair.
type Monitor struct {
	cfg        *config.Config
	routerAuth RouterAuth
	switchAuth SwitchAuth
	metrics    MetricsStore
	logs       LogStore

	// Collection is pluggable so cycle behavior can be tested without
	// real devices; production wiring happens in New.
	collectRouter func(ctx context.Context, session RouterSession) (*collector.RouterSnapshot, error)
	collectSwitch func(ctx context.Context, token switchauth.Token) (*collector.SwitchSnapshot, error)

	mu          sync.Mutex
	status      Status
	switchToken *switchauth.Token
	intervals   struct {
		collection time.Duration
		retry      time.Duration
	}
}

// New builds a Monitor wired to the real collectors.
func New(cfg *config.Config, routerAuth RouterAuth, switchAuth SwitchAuth, metrics MetricsStore, logs LogStore) *Monitor {
	m := &Monitor{
		cfg:        cfg,
		routerAuth: routerAuth,
		switchAuth: switchAuth,
		metrics:    metrics,
		logs:       logs,
	}
	m.intervals.collection = cfg.CollectionInterval()
	m.intervals.retry = cfg.RetryInterval()

	routerCollector := &collector.RouterCollector{Delay: cfg.RequestDelay()}
	m.collectRouter = routerCollector.Collect
	m.collectSwitch = func(ctx context.Context, token switchauth.Token) (*collector.SwitchSnapshot, error) {
		c := &collector.SwitchCollector{Address: cfg.Switch.Address, Token: token, Delay: cfg.RequestDelay()}
		return c.Collect(ctx)
	}
	return m
}

// NewRouterAuth adapts the routerauth manager to the RouterAuth interface.
func NewRouterAuth(mgr *routerauth.Manager) RouterAuth {
	return managerAdapter{mgr: mgr}
}

type managerAdapter struct {
	mgr *routerauth.Manager
}

func (a managerAdapter) EnsureAuthenticated(ctx context.Context) (RouterSession, error) {
	session, err := a.mgr.EnsureAuthenticated(ctx)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (a managerAdapter) State() routerauth.State { return a.mgr.State() }

// Status returns a copy of the loop status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := m.status
	if m.routerAuth != nil {
		status.RouterAuthState = m.routerAuth.State().String()
	}
	return status
}

// SetIntervals updates the cycle pacing, used by config hot-reload.
func (m *Monitor) SetIntervals(collection, retry time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if collection > 0 {
		m.intervals.collection = collection
	}
	if retry > 0 {
		m.intervals.retry = retry
	}
}

// Run executes collection cycles until the context is cancelled or the
// consecutive-failure threshold is crossed. Cycles are separated by the
// collection interval after success and the retry interval after failure;
// the wait itself is cancellable, never a blocking sleep.
func (m *Monitor) Run(ctx context.Context) error {
	log.WithField("status", "started").Infof("monitoring loop started (interval %s)", m.intervals.collection)
	for {
		ok := m.RunCycle(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		m.mu.Lock()
		failures := m.status.ConsecutiveErrors
		interval := m.intervals.collection
		if !ok {
			interval = m.intervals.retry
		}
		m.mu.Unlock()

		if failures >= m.cfg.MaxConsecutiveErrors {
			log.WithField("errors", failures).Error("stopping: consecutive failure threshold reached")
			return ErrTooManyFailures
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunCycle performs one collection pass across the enabled devices and
// reports whether it fully succeeded. Router and switch are polled
// concurrently; they share no auth state, so one device's failure never
// blocks the other's collection.
func (m *Monitor) RunCycle(ctx context.Context) bool {
	cycleID := uuid.NewString()[:8]
	cycleLog := log.WithField("cycle_id", cycleID)

	m.mu.Lock()
	m.status.CycleCount++
	count := m.status.CycleCount
	m.mu.Unlock()

	cycleLog.Infof("cycle #%d started", count)
	start := time.Now()

	var group errgroup.Group
	if m.cfg.Router.Enabled {
		group.Go(func() error { return m.pollRouter(ctx, cycleLog) })
	}
	if m.cfg.Switch.Enabled {
		group.Go(func() error { return m.pollSwitch(ctx, cycleLog) })
	}
	err := group.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.LastCycleAt = time.Now()
	if err != nil {
		m.status.ConsecutiveErrors++
		m.status.LastCycleOK = false
		m.status.LastError = err.Error()
		cycleLog.WithFields(log.Fields{"errors": m.status.ConsecutiveErrors, "error": err}).
			Errorf("cycle #%d failed", count)
		return false
	}
	m.status.ConsecutiveErrors = 0
	m.status.LastCycleOK = true
	m.status.LastError = ""
	cycleLog.Infof("cycle #%d completed in %s", count, time.Since(start).Round(time.Millisecond))
	return true
}

func (m *Monitor) pollRouter(ctx context.Context, cycleLog *log.Entry) error {
	session, err := m.routerAuth.EnsureAuthenticated(ctx)
	if err != nil {
		return fmt.Errorf("router auth: %w", err)
	}
	snapshot, err := m.collectRouter(ctx, session)
	if err != nil {
		return err
	}
	if err = m.metrics.WriteRouter(ctx, snapshot, m.cfg.Router.Address); err != nil {
		return err
	}
	cycleLog.WithFields(log.Fields{
		"router":  m.cfg.Router.Address,
		"records": len(snapshot.Hosts),
	}).Infof("router: %d/%d hosts active, wan %s", snapshot.Summary.Active, snapshot.Summary.Total, snapshot.WAN.ConnectionStatus)
	return nil
}

// pollSwitch reuses the cached transaction token and falls back to one
// fresh login when collection fails, mirroring the router's
// validate-before-trust approach with the means the switch API offers.
func (m *Monitor) pollSwitch(ctx context.Context, cycleLog *log.Entry) error {
	m.mu.Lock()
	token := m.switchToken
	m.mu.Unlock()

	var snapshot *collector.SwitchSnapshot
	var err error
	if token != nil {
		if snapshot, err = m.collectSwitch(ctx, *token); err != nil {
			cycleLog.WithField("error", err).Warn("switch collection with cached token failed, re-authenticating")
			token = nil
		}
	}
	if token == nil {
		fresh, loginErr := m.switchAuth.Login(ctx, m.cfg.Switch.Address, m.cfg.Switch.Username, m.cfg.Switch.Password, "write")
		if loginErr != nil {
			return fmt.Errorf("switch auth: %w", loginErr)
		}
		token = &fresh
		m.mu.Lock()
		m.switchToken = token
		m.mu.Unlock()
		if snapshot, err = m.collectSwitch(ctx, *token); err != nil {
			return err
		}
	}

	if err = m.metrics.WriteSwitch(ctx, snapshot); err != nil {
		return err
	}
	if m.logs != nil {
		if err = m.logs.Archive(ctx, m.cfg.Switch.Address, snapshot.Logs); err != nil {
			return err
		}
	}
	cycleLog.WithFields(log.Fields{
		"switch":  m.cfg.Switch.Address,
		"records": len(snapshot.Ports) + len(snapshot.MACs) + len(snapshot.Logs),
	}).Infof("switch: cpu %.0f%%, %d ports, %d macs, %d logs",
		snapshot.CPU.UsagePercent, len(snapshot.Ports), len(snapshot.MACs), len(snapshot.Logs))
	return nil
}
