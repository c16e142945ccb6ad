package dispatcher

import (
	"errors"
	"time"

	"github.com/krabwidget/krab/internal/backend"
	"github.com/krabwidget/krab/internal/config"
)

var (
	// ErrClosed is returned by operations on a closed Dispatcher.
	ErrClosed = errors.New("dispatcher: closed")

	// ErrCanceled is returned by a connect or send whose result arrived
	// after a disconnect or backend switch. Such results are discarded.
	ErrCanceled = errors.New("dispatcher: canceled by disconnect")
)

// state is everything the owner goroutine protects. Only functions passed
// to do may touch it.
type state struct {
	set      config.Set
	status   backend.Status
	lastErr  string
	messages []backend.ChatMessage

	// gen increases on every disconnect. Work started under an older
	// generation must not mutate state when it completes.
	gen uint64

	stopHealth func()
}

// run is the owner goroutine. It executes posted operations one at a time
// until Close.
func (d *Dispatcher) run() {
	defer close(d.done)

	for {
		select {
		case <-d.quit:
			return
		case op := <-d.ops:
			op(&d.st)
		}
	}
}

// do posts fn to the owner goroutine and waits for it to finish.
// fn must not block on I/O other than local persistence and must never
// call do itself.
func (d *Dispatcher) do(fn func(s *state)) error {
	ran := make(chan struct{})
	op := func(s *state) {
		defer close(ran)
		fn(s)
	}

	select {
	case d.ops <- op:
	case <-d.done:
		return ErrClosed
	}

	<-ran
	return nil
}

// stamp returns a timestamp that keeps the log strictly ascending.
func (d *Dispatcher) stamp(s *state) time.Time {
	at := d.opts.Clock()
	if n := len(s.messages); n > 0 && !at.After(s.messages[n-1].Timestamp) {
		at = s.messages[n-1].Timestamp.Add(time.Nanosecond)
	}
	return at
}
