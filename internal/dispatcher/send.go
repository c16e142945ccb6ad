package dispatcher

import (
	"context"
	"time"

	"github.com/krabwidget/krab/internal/backend"
	"github.com/krabwidget/krab/internal/events"
)

// SendMessage appends text as a user message, sends it with the rolling
// context to the selected backend and appends the reply.
//
// The user message stays in the log when the call fails; no assistant
// message is added then and the connection status is left unchanged.
// Sends are serialised: a second call waits until the first has finished.
func (d *Dispatcher) SendMessage(ctx context.Context, text string) (string, error) {
	select {
	case d.sendSem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-d.sendSem }()

	var (
		kind     backend.Kind
		cfg      backend.Config
		gen      uint64
		window   []backend.ContextEntry
		rejected error
	)
	err := d.do(func(s *state) {
		kind = s.set.Selected
		switch {
		case kind == backend.KindNone:
			rejected = &backend.Error{Kind: backend.NotConfigured, Backend: kind, Detail: "no backend selected"}
			return
		case s.status != backend.StatusConnected:
			rejected = &backend.Error{Kind: backend.NotConnected, Backend: kind}
			return
		}

		// The window is taken before the new message joins the log.
		window = backend.ContextWindow(s.messages, d.opts.ContextSize)
		d.appendMessage(s, true, text)
		cfg = s.set.Backend(kind)
		gen = s.gen
	})
	if err != nil {
		return "", err
	}
	if rejected != nil {
		d.opts.Metrics.RecordRejectedSend(kind, rejected)
		return "", rejected
	}

	start := time.Now()
	reply, sendErr := d.exchange(ctx, kind, cfg, window, text)
	d.opts.Metrics.RecordSend(kind, time.Since(start), sendErr)

	stale := false
	err = d.do(func(s *state) {
		if s.gen != gen {
			stale = true
			return
		}
		if sendErr != nil {
			s.lastErr = sendErr.Error()
			d.log.WithField("backend", kind).WithError(sendErr).Warn("send failed")
			d.publish(events.SendFailedEvent{Backend: kind, Text: text, Err: sendErr, Timestamp: d.opts.Clock()})
			return
		}
		d.appendMessage(s, false, reply)
	})
	if err != nil {
		return "", err
	}
	if stale {
		return "", ErrCanceled
	}
	if sendErr != nil {
		return "", sendErr
	}
	return reply, nil
}

// exchange builds, performs and parses one chat request.
func (d *Dispatcher) exchange(ctx context.Context, kind backend.Kind, cfg backend.Config, window []backend.ContextEntry, text string) (string, error) {
	b, err := backend.NewBuilder(kind)
	if err != nil {
		return "", err
	}
	spec, err := b.BuildRequest(window, text, cfg)
	if err != nil {
		return "", err
	}

	ctx, release := d.tracker.Scope(ctx)
	defer release()

	status, body, err := d.opts.Transport.Execute(ctx, kind, spec)
	if err != nil {
		return "", err
	}
	return b.ParseResponse(status, body)
}
