package dispatcher

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/krabwidget/krab/internal/backend"
	"github.com/krabwidget/krab/internal/events"
)

// SelectBackend switches to kind. Switching disconnects first, cancelling
// in-flight calls and the health watcher, and persists the selection.
// With autoConnect set, Connect runs right after.
func (d *Dispatcher) SelectBackend(ctx context.Context, kind backend.Kind, autoConnect bool) error {
	if !kind.Valid() {
		return fmt.Errorf("select backend: unknown backend kind %q", kind)
	}

	var (
		changed bool
		active  bool
		saveErr error
	)
	err := d.do(func(s *state) {
		prev := s.set.Selected
		if prev == kind {
			active = s.status == backend.StatusConnected || s.status == backend.StatusConnecting
			return
		}

		d.disconnect(s)
		s.set.Selected = kind
		changed = true

		d.log.WithFields(logrus.Fields{"backend": kind, "previous": prev}).Info("backend selected")
		d.publish(events.BackendSelectedEvent{Backend: kind, Previous: prev, Timestamp: d.opts.Clock()})
		saveErr = d.saveConfig(ctx, s)
	})
	if err != nil {
		return err
	}

	if autoConnect && kind != backend.KindNone && (changed || !active) {
		return d.Connect(ctx)
	}
	if saveErr != nil {
		return fmt.Errorf("select backend: %w", saveErr)
	}
	return nil
}

// Connect validates the selected backend. Concurrent calls within the same
// connection generation share one health check.
func (d *Dispatcher) Connect(ctx context.Context) error {
	var gen uint64
	if err := d.do(func(s *state) { gen = s.gen }); err != nil {
		return err
	}

	_, err, _ := d.connects.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		return nil, d.connect(ctx)
	})
	return err
}

func (d *Dispatcher) connect(ctx context.Context) error {
	var (
		kind backend.Kind
		cfg  backend.Config
		gen  uint64
	)
	err := d.do(func(s *state) {
		kind = s.set.Selected
		d.stopWatcher(s)
		if kind == backend.KindNone {
			d.setStatus(s, backend.StatusDisconnected, "")
			return
		}
		cfg = s.set.Backend(kind)
		gen = s.gen
		d.setStatus(s, backend.StatusConnecting, "")
	})
	if err != nil {
		return err
	}
	if kind == backend.KindNone {
		return nil
	}

	checkErr := d.check(ctx, kind, cfg)

	stale := false
	err = d.do(func(s *state) {
		if s.gen != gen {
			stale = true
			return
		}
		if checkErr != nil {
			d.setStatus(s, backend.StatusError, checkErr.Error())
			return
		}
		d.setStatus(s, backend.StatusConnected, "")
		d.startWatcher(s, kind, gen)
	})
	if err != nil {
		return err
	}
	if stale {
		return ErrCanceled
	}
	return checkErr
}

// Disconnect cancels the health watcher and in-flight calls and sets the
// status to disconnected. Calling it again has no further effect.
func (d *Dispatcher) Disconnect() {
	d.do(func(s *state) {
		d.disconnect(s)
	})
}

func (d *Dispatcher) disconnect(s *state) {
	s.gen++
	if n := d.tracker.CancelAll(); n > 0 {
		d.log.WithField("requests", n).Debug("canceled in-flight requests")
	}
	d.stopWatcher(s)
	d.setStatus(s, backend.StatusDisconnected, "")
}

// check runs one tracked health check.
func (d *Dispatcher) check(ctx context.Context, kind backend.Kind, cfg backend.Config) error {
	ctx, release := d.tracker.Scope(ctx)
	defer release()

	err := d.opts.Checker.Check(ctx, kind, cfg)
	d.opts.Metrics.RecordHealthCheck(kind, err)
	return err
}
