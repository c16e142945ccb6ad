package dispatcher

import (
	"context"

	"github.com/cenkalti/backoff/v4"

	"github.com/krabwidget/krab/internal/backend"
)

// ConnectionLost is recorded when a periodic re-check fails.
const ConnectionLost = "Connection lost"

func (d *Dispatcher) startWatcher(s *state, kind backend.Kind, gen uint64) {
	d.stopWatcher(s)
	ctx, cancel := context.WithCancel(context.Background())
	s.stopHealth = cancel
	go d.watch(ctx, kind, gen)
}

func (d *Dispatcher) stopWatcher(s *state) {
	if s.stopHealth != nil {
		s.stopHealth()
		s.stopHealth = nil
	}
}

// watch re-checks the backend every HealthInterval while it stays connected
// under generation gen. The first failure moves the dispatcher to the error
// state and ends the watcher; there is no automatic reconnect.
func (d *Dispatcher) watch(ctx context.Context, kind backend.Kind, gen uint64) {
	ticker := backoff.NewTicker(backoff.WithContext(backoff.NewConstantBackOff(d.opts.HealthInterval), ctx))
	defer ticker.Stop()

	// The ticker fires once right away; connect has just checked.
	if _, ok := <-ticker.C; !ok {
		return
	}

	for range ticker.C {
		var (
			cfg     backend.Config
			current bool
		)
		err := d.do(func(s *state) {
			current = s.gen == gen && s.status == backend.StatusConnected
			cfg = s.set.Backend(kind)
		})
		if err != nil || !current {
			return
		}

		checkErr := d.check(ctx, kind, cfg)
		if ctx.Err() != nil {
			return
		}
		if checkErr == nil {
			continue
		}

		d.do(func(s *state) {
			if s.gen != gen || s.status != backend.StatusConnected {
				return
			}
			d.log.WithField("backend", kind).WithError(checkErr).Warn("health check failed")
			d.stopWatcher(s)
			d.setStatus(s, backend.StatusError, ConnectionLost)
		})
		return
	}
}
