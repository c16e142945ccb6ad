package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/krabwidget/krab/internal/backend"
	"github.com/krabwidget/krab/internal/config"
	"github.com/krabwidget/krab/internal/events"
	"github.com/krabwidget/krab/internal/metrics"
	"github.com/krabwidget/krab/internal/persistence"
)

const persistTimeout = 5 * time.Second

// ConfigStore loads and saves the backend configuration.
type ConfigStore interface {
	Load(ctx context.Context) (config.Set, config.LoadState)
	Save(ctx context.Context, set config.Set) error
}

// HealthChecker probes a backend. *backend.HealthChecker implements it.
type HealthChecker interface {
	Check(ctx context.Context, k backend.Kind, cfg backend.Config) error
}

// Options wires a Dispatcher to its collaborators. Store is required; every
// other field has a default.
type Options struct {
	Store     ConfigStore
	Messages  persistence.MessageStore // nil keeps the log in memory only
	Transport *backend.Transport
	Checker   HealthChecker
	Bus       *events.EventBus
	Metrics   *metrics.Recorder
	Logger    logrus.FieldLogger

	HealthInterval time.Duration // periodic re-check while connected (default 60s)
	HealthTimeout  time.Duration // per probe (default 10s)
	ContextSize    int           // messages sent as context (default 10)
	HistoryLimit   int           // messages kept in storage (default 50)
	Clock          func() time.Time
}

func (o *Options) applyDefaults() {
	if o.Transport == nil {
		o.Transport = backend.NewTransport(nil)
	}
	if o.HealthTimeout <= 0 {
		o.HealthTimeout = backend.DefaultHealthTimeout
	}
	if o.Checker == nil {
		o.Checker = backend.NewHealthChecker(o.Transport, o.HealthTimeout)
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = 60 * time.Second
	}
	if o.ContextSize <= 0 {
		o.ContextSize = backend.DefaultContextSize
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 50
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Dispatcher owns the backend selection, the connection status and the
// chat log. All state lives on one owner goroutine; network calls run on the
// caller's goroutine (or the health watcher) and post their results back.
type Dispatcher struct {
	opts Options
	log  logrus.FieldLogger

	ops       chan func(*state)
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	connects singleflight.Group
	sendSem  chan struct{}
	tracker  *backend.RequestTracker

	st state
}

// New creates a Dispatcher and starts its owner goroutine. Call Start to
// load persisted state and Close to release it.
func New(opts Options) (*Dispatcher, error) {
	if opts.Store == nil {
		return nil, errors.New("dispatcher: config store is required")
	}
	opts.applyDefaults()

	d := &Dispatcher{
		opts:    opts,
		log:     opts.Logger.WithField("component", "dispatcher"),
		ops:     make(chan func(*state)),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		sendSem: make(chan struct{}, 1),
		tracker: backend.NewRequestTracker(),
		st: state{
			set:    config.DefaultSet(),
			status: backend.StatusDisconnected,
		},
	}
	go d.run()
	return d, nil
}

// Start loads the configuration and the persisted chat log. It reports
// where the configuration came from; a corrupted or unreachable store is
// logged and replaced by defaults.
func (d *Dispatcher) Start(ctx context.Context) (config.LoadState, error) {
	set, loadState := d.opts.Store.Load(ctx)
	if loadState == config.LoadCorrupted || loadState == config.LoadUnavailable {
		d.log.WithField("state", loadState.String()).Warn("backend configuration reset to defaults")
	}

	var history []backend.ChatMessage
	if d.opts.Messages != nil {
		var err error
		history, err = d.opts.Messages.RecentMessages(ctx, d.opts.HistoryLimit)
		if err != nil {
			d.log.WithError(err).Warn("could not restore chat history")
			history = nil
		}
	}

	err := d.do(func(s *state) {
		d.disconnect(s)
		s.set = set
		s.messages = history
		s.lastErr = ""
	})
	if err != nil {
		return loadState, err
	}

	d.log.WithFields(logrus.Fields{
		"backend":  set.Selected,
		"messages": len(history),
		"config":   loadState.String(),
	}).Info("dispatcher started")
	return loadState, nil
}

// AutoConnect connects when auto-connect is enabled and a backend is
// selected. It returns nil without connecting otherwise.
func (d *Dispatcher) AutoConnect(ctx context.Context) error {
	set := d.Configs()
	if !set.AutoConnect || set.Selected == backend.KindNone {
		return nil
	}
	return d.Connect(ctx)
}

// Close disconnects, cancelling in-flight calls, and stops the owner
// goroutine. Safe to call multiple times.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		d.do(func(s *state) {
			d.disconnect(s)
		})
		close(d.quit)
		<-d.done
	})
	return nil
}

// Status returns the current connection status.
func (d *Dispatcher) Status() backend.Status {
	status := backend.StatusDisconnected
	d.do(func(s *state) { status = s.status })
	return status
}

// Kind returns the selected backend kind.
func (d *Dispatcher) Kind() backend.Kind {
	kind := backend.KindNone
	d.do(func(s *state) { kind = s.set.Selected })
	return kind
}

// LastError returns the most recent connect or send error message.
func (d *Dispatcher) LastError() string {
	var msg string
	d.do(func(s *state) { msg = s.lastErr })
	return msg
}

// Messages returns a copy of the session log.
func (d *Dispatcher) Messages() []backend.ChatMessage {
	var out []backend.ChatMessage
	d.do(func(s *state) {
		out = make([]backend.ChatMessage, len(s.messages))
		copy(out, s.messages)
	})
	return out
}

// Configs returns a snapshot of the backend configuration.
func (d *Dispatcher) Configs() config.Set {
	var out config.Set
	if err := d.do(func(s *state) { out = s.set.Clone() }); err != nil {
		return config.DefaultSet()
	}
	return out
}

// UpdateConfig replaces the saved settings of k. Changing the settings of
// the selected backend disconnects it so the next connect re-validates.
func (d *Dispatcher) UpdateConfig(ctx context.Context, k backend.Kind, cfg backend.Config) error {
	if _, ok := backend.Describe(k); !ok || k == backend.KindNone {
		return fmt.Errorf("update config: unknown backend kind %q", k)
	}

	var saveErr error
	err := d.do(func(s *state) {
		if s.set.Backend(k) == cfg {
			return
		}
		s.set = s.set.WithBackend(k, cfg)
		if k == s.set.Selected && s.status != backend.StatusDisconnected {
			d.disconnect(s)
		}
		saveErr = d.saveConfig(ctx, s)
	})
	if err != nil {
		return err
	}
	return saveErr
}

// SetAutoConnect toggles whether Start-up connects automatically.
func (d *Dispatcher) SetAutoConnect(ctx context.Context, enabled bool) error {
	var saveErr error
	err := d.do(func(s *state) {
		if s.set.AutoConnect == enabled {
			return
		}
		s.set.AutoConnect = enabled
		saveErr = d.saveConfig(ctx, s)
	})
	if err != nil {
		return err
	}
	return saveErr
}

// ClearMessages empties the session log and the persisted history.
func (d *Dispatcher) ClearMessages(ctx context.Context) error {
	var clearErr error
	err := d.do(func(s *state) {
		s.messages = nil
		if d.opts.Messages == nil {
			return
		}
		ctx, cancel := context.WithTimeout(ctx, persistTimeout)
		defer cancel()
		clearErr = d.opts.Messages.ClearMessages(ctx)
	})
	if err != nil {
		return err
	}
	if clearErr != nil {
		return fmt.Errorf("clear history: %w", clearErr)
	}
	return nil
}

// saveConfig persists s.set. Failures are logged and returned; the
// in-memory configuration stays authoritative.
func (d *Dispatcher) saveConfig(ctx context.Context, s *state) error {
	if err := d.opts.Store.Save(ctx, s.set); err != nil {
		d.log.WithError(err).Warn("could not save backend configuration")
		return err
	}
	return nil
}

// setStatus records a transition and notifies subscribers.
func (d *Dispatcher) setStatus(s *state, to backend.Status, errMsg string) {
	from := s.status
	switch to {
	case backend.StatusError:
		s.lastErr = errMsg
	case backend.StatusConnecting, backend.StatusConnected:
		s.lastErr = ""
	}
	if from == to && to != backend.StatusError {
		return
	}
	s.status = to

	kind := s.set.Selected
	d.opts.Metrics.SetStatus(kind, to)

	entry := d.log.WithFields(logrus.Fields{"backend": kind, "status": to.String()})
	switch to {
	case backend.StatusConnected:
		desc, _ := backend.Describe(kind)
		entry.Infof("Connected to %s!", desc.DisplayName)
	case backend.StatusError:
		entry.WithField("error", errMsg).Warn("backend error")
	default:
		entry.Debug("status changed")
	}

	d.publish(events.StatusChangedEvent{
		Backend:   kind,
		From:      from,
		To:        to,
		Err:       errMsg,
		Timestamp: d.opts.Clock(),
	})
}

// appendMessage adds a message to the log and persists it.
func (d *Dispatcher) appendMessage(s *state, fromUser bool, text string) backend.ChatMessage {
	at := d.stamp(s)
	var msg backend.ChatMessage
	if fromUser {
		msg = backend.NewUserMessage(text, at)
	} else {
		msg = backend.NewAssistantMessage(text, at)
	}
	s.messages = append(s.messages, msg)

	d.publish(events.MessageAppendedEvent{Backend: s.set.Selected, Message: msg})

	if d.opts.Messages != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := d.opts.Messages.AppendMessage(ctx, msg, d.opts.HistoryLimit); err != nil {
			d.log.WithError(err).Warn("could not persist message")
		}
	}
	return msg
}

func (d *Dispatcher) publish(ev events.Event) {
	if d.opts.Bus != nil {
		d.opts.Bus.Publish(ev)
	}
}
