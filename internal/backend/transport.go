package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-cleanhttp"
)

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 4 << 20

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Transport executes request specs.
type Transport struct {
	client   Doer
	breakers *Breakers
}

type exchangeResult struct {
	status int
	body   []byte
}

// NewTransport wraps client. A nil client selects a pooled client from
// go-cleanhttp.
func NewTransport(client Doer) *Transport {
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
	}
	return &Transport{client: client}
}

// WithBreakers makes t fail fast for a kind whose endpoint keeps failing at
// the network level.
func (t *Transport) WithBreakers(b *Breakers) *Transport {
	t.breakers = b
	return t
}

// Execute performs spec and returns the status code and body. Only
// transport-level failures are errors; any HTTP status is returned as is.
func (t *Transport) Execute(ctx context.Context, k Kind, spec RequestSpec) (int, []byte, error) {
	if t.breakers == nil {
		res, err := t.execute(ctx, k, spec)
		return res.status, res.body, err
	}
	res, err := t.breakers.call(k, func() (exchangeResult, error) {
		return t.execute(ctx, k, spec)
	})
	return res.status, res.body, err
}

func (t *Transport) execute(ctx context.Context, k Kind, spec RequestSpec) (exchangeResult, error) {
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if spec.Body != nil {
		body = bytes.NewReader(spec.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, spec.URL, body)
	if err != nil {
		return exchangeResult{}, &Error{Kind: InvalidURL, Backend: k, Detail: spec.URL, Err: err}
	}
	for name, values := range spec.Header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return exchangeResult{}, transportError(k, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return exchangeResult{status: resp.StatusCode}, transportError(k, fmt.Errorf("read response: %w", err))
	}
	return exchangeResult{status: resp.StatusCode, body: data}, nil
}

func transportError(k Kind, err error) *Error {
	e := &Error{Kind: TransportError, Backend: k, Err: err}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		e.Detail = "timed out"
	case errors.Is(err, context.Canceled):
		e.Detail = "canceled"
	}
	return e
}
