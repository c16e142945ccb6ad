package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/krabwidget/krab/internal/backend"
	"github.com/krabwidget/krab/internal/config"
	"github.com/krabwidget/krab/internal/events"
	"github.com/krabwidget/krab/internal/persistence"
)

type checkerFunc func(ctx context.Context, k backend.Kind, cfg backend.Config) error

func (f checkerFunc) Check(ctx context.Context, k backend.Kind, cfg backend.Config) error {
	return f(ctx, k, cfg)
}

type fixture struct {
	d     *Dispatcher
	store *persistence.SQLiteStore
	cfg   *config.Store
	bus   *events.EventBus
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newFixture(t *testing.T, tweak func(*Options)) *fixture {
	t.Helper()

	store, err := persistence.NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	log := quietLogger()
	f := &fixture{
		store: store,
		cfg:   config.NewStore(store, log),
		bus:   events.NewEventBus(),
	}
	opts := Options{
		Store:    f.cfg,
		Messages: store,
		Bus:      f.bus,
		Logger:   log,
	}
	if tweak != nil {
		tweak(&opts)
	}

	d, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
		f.bus.Close()
	})
	f.d = d
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if _, err := f.d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ollamaServer answers the tags probe and replies to every generate call
// with reply.
func ollamaServer(t *testing.T, reply string, prompts chan<- string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			fmt.Fprint(w, `{"models":[]}`)
		case "/api/generate":
			var body struct {
				Prompt string `json:"prompt"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			if prompts != nil {
				prompts <- body.Prompt
			}
			json.NewEncoder(w).Encode(map[string]any{"response": reply, "done": true})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func connectOllama(t *testing.T, f *fixture, baseURL string) {
	t.Helper()
	ctx := context.Background()
	if err := f.d.UpdateConfig(ctx, backend.KindOllama, backend.Config{BaseURL: baseURL, Model: "llama3.2"}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if err := f.d.SelectBackend(ctx, backend.KindOllama, false); err != nil {
		t.Fatalf("SelectBackend: %v", err)
	}
	if err := f.d.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

func TestNew_RequiresStore(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without a config store")
	}
}

func TestConnect_UnconfiguredBackendsFail(t *testing.T) {
	for _, kind := range backend.Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			f := newFixture(t, nil)
			f.start(t)
			ctx := context.Background()

			if err := f.d.SelectBackend(ctx, kind, false); err != nil {
				t.Fatalf("SelectBackend: %v", err)
			}
			err := f.d.Connect(ctx)
			if err == nil {
				t.Fatal("Connect should fail without configuration")
			}
			if !errors.Is(err, backend.ErrNotConfigured) && !errors.Is(err, backend.ErrInvalidCredentials) {
				t.Errorf("Connect error = %v, want a configuration error", err)
			}
			if got := f.d.Status(); got != backend.StatusError {
				t.Errorf("Status = %s, want error", got)
			}
			if f.d.LastError() != err.Error() {
				t.Errorf("LastError = %q, want %q", f.d.LastError(), err.Error())
			}
		})
	}
}

func TestConnect_NoneIsDisconnected(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)

	if err := f.d.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := f.d.Status(); got != backend.StatusDisconnected {
		t.Errorf("Status = %s, want disconnected", got)
	}
}

func TestDisconnect_Idempotent(t *testing.T) {
	srv := ollamaServer(t, "hi", nil)
	f := newFixture(t, func(o *Options) { o.HealthInterval = 10 * time.Millisecond })
	f.start(t)
	connectOllama(t, f, srv.URL)

	f.d.Disconnect()
	first := f.d.Status()
	var gen uint64
	var watching bool
	f.d.do(func(s *state) { gen, watching = s.gen, s.stopHealth != nil })

	f.d.Disconnect()
	if got := f.d.Status(); got != first || got != backend.StatusDisconnected {
		t.Errorf("Status after second Disconnect = %s, want %s", got, first)
	}
	f.d.do(func(s *state) {
		if s.stopHealth != nil || watching {
			t.Error("health watcher should be stopped")
		}
		if s.gen != gen+1 {
			t.Errorf("gen = %d, want %d", s.gen, gen+1)
		}
	})
	if n := f.d.tracker.Count(); n != 0 {
		t.Errorf("in-flight requests = %d, want 0", n)
	}
}

func TestOllamaEndToEnd(t *testing.T) {
	srv := ollamaServer(t, "hi there", nil)
	f := newFixture(t, nil)
	f.start(t)
	ctx := context.Background()

	if err := f.d.UpdateConfig(ctx, backend.KindOllama, backend.Config{BaseURL: srv.URL, Model: "llama3.2"}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if err := f.d.SelectBackend(ctx, backend.KindOllama, false); err != nil {
		t.Fatalf("SelectBackend: %v", err)
	}

	statusCh := f.bus.Subscribe(16, events.TopicConnection)
	if err := f.d.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var transitions []string
	for len(transitions) < 2 {
		select {
		case ev := <-statusCh:
			if sc, ok := ev.(events.StatusChangedEvent); ok {
				transitions = append(transitions, sc.From.String()+"->"+sc.To.String())
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("status events = %v, want two transitions", transitions)
		}
	}
	want := []string{"disconnected->connecting", "connecting->connected"}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %s, want %s", i, transitions[i], want[i])
		}
	}

	reply, err := f.d.SendMessage(ctx, "hello")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if reply != "hi there" {
		t.Errorf("reply = %q, want %q", reply, "hi there")
	}

	msgs := f.d.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(msgs))
	}
	if !msgs[0].FromUser || msgs[0].Content != "hello" {
		t.Errorf("first message = %+v, want user hello", msgs[0])
	}
	if msgs[1].FromUser || msgs[1].Content != "hi there" {
		t.Errorf("second message = %+v, want assistant hi there", msgs[1])
	}
	if !msgs[1].Timestamp.After(msgs[0].Timestamp) {
		t.Error("assistant message should be stamped after the user message")
	}

	stored, err := f.store.RecentMessages(ctx, 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("persisted messages = %d, want 2", len(stored))
	}
}

func TestSendMessage_FailureKeepsConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			fmt.Fprint(w, `{"models":[]}`)
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newFixture(t, nil)
	f.start(t)
	connectOllama(t, f, srv.URL)

	failed := f.bus.Subscribe(4, events.TopicChat)

	_, err := f.d.SendMessage(context.Background(), "x")
	if !errors.Is(err, backend.ErrRequestFailed) {
		t.Fatalf("SendMessage error = %v, want RequestFailed", err)
	}
	var be *backend.Error
	if !errors.As(err, &be) || be.Status != http.StatusInternalServerError {
		t.Errorf("error = %#v, want status 500", err)
	}

	msgs := f.d.Messages()
	if len(msgs) != 1 || !msgs[0].FromUser || msgs[0].Content != "x" {
		t.Errorf("Messages = %+v, want only the user message", msgs)
	}
	if got := f.d.Status(); got != backend.StatusConnected {
		t.Errorf("Status = %s, want connected", got)
	}
	if f.d.LastError() == "" {
		t.Error("LastError should record the send failure")
	}

	sawFailure := false
	timeout := time.After(2 * time.Second)
	for !sawFailure {
		select {
		case ev := <-failed:
			_, sawFailure = ev.(events.SendFailedEvent)
		case <-timeout:
			t.Fatal("no SendFailedEvent published")
		}
	}
}

func TestSendMessage_Rejected(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)
	ctx := context.Background()

	if _, err := f.d.SendMessage(ctx, "hi"); !errors.Is(err, backend.ErrNotConfigured) {
		t.Errorf("send with no backend: err = %v, want NotConfigured", err)
	}

	if err := f.d.SelectBackend(ctx, backend.KindOllama, false); err != nil {
		t.Fatalf("SelectBackend: %v", err)
	}
	if _, err := f.d.SendMessage(ctx, "hi"); !errors.Is(err, backend.ErrNotConnected) {
		t.Errorf("send while disconnected: err = %v, want NotConnected", err)
	}
	if n := len(f.d.Messages()); n != 0 {
		t.Errorf("len(Messages) = %d, want 0", n)
	}
}

func TestSendMessage_RollingContext(t *testing.T) {
	requests := make(chan []backend.ContextEntry, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/v1/chat/completions":
			var body struct {
				Messages []backend.ContextEntry `json:"messages"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			requests <- body.Messages
			fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := newFixture(t, nil)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		var msg backend.ChatMessage
		if i%2 == 0 {
			msg = backend.NewUserMessage(fmt.Sprintf("m%d", i), at)
		} else {
			msg = backend.NewAssistantMessage(fmt.Sprintf("m%d", i), at)
		}
		if err := f.store.AppendMessage(ctx, msg, 50); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
	f.start(t)

	if err := f.d.UpdateConfig(ctx, backend.KindOpenClaw, backend.Config{BaseURL: srv.URL, Model: "default"}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if err := f.d.SelectBackend(ctx, backend.KindOpenClaw, true); err != nil {
		t.Fatalf("SelectBackend: %v", err)
	}
	if _, err := f.d.SendMessage(ctx, "next"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	got := <-requests

	// system prompt + 10 context entries + new message
	if len(got) != 12 {
		t.Fatalf("request messages = %d, want 12", len(got))
	}
	if got[0].Role != backend.RoleSystem {
		t.Errorf("first role = %s, want system", got[0].Role)
	}
	for i, entry := range got[1:11] {
		want := fmt.Sprintf("m%d", i+5)
		if entry.Content != want {
			t.Errorf("context[%d] = %q, want %q", i, entry.Content, want)
		}
	}
	if last := got[11]; last.Role != backend.RoleUser || last.Content != "next" {
		t.Errorf("last entry = %+v, want user next", last)
	}
}

func TestHealthWatcher_ConnectionLost(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			fmt.Fprint(w, `{"models":[]}`)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := newFixture(t, func(o *Options) { o.HealthInterval = 20 * time.Millisecond })
	f.start(t)
	connectOllama(t, f, srv.URL)

	healthy.Store(false)
	waitFor(t, "connection loss", func() bool { return f.d.Status() == backend.StatusError })

	if got := f.d.LastError(); got != ConnectionLost {
		t.Errorf("LastError = %q, want %q", got, ConnectionLost)
	}
	f.d.do(func(s *state) {
		if s.stopHealth != nil {
			t.Error("watcher should stop after a failed check")
		}
	})
}

func TestDisconnect_CancelsInFlightSend(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			fmt.Fprint(w, `{"models":[]}`)
			return
		}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	f := newFixture(t, nil)
	f.start(t)
	connectOllama(t, f, srv.URL)

	errCh := make(chan error, 1)
	go func() {
		_, err := f.d.SendMessage(context.Background(), "slow")
		errCh <- err
	}()

	waitFor(t, "request in flight", func() bool { return f.d.tracker.Count() > 0 })
	f.d.Disconnect()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrCanceled) {
			t.Errorf("SendMessage error = %v, want ErrCanceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("send was not canceled")
	}

	msgs := f.d.Messages()
	if len(msgs) != 1 || !msgs[0].FromUser {
		t.Errorf("Messages = %+v, want only the user message", msgs)
	}
	if got := f.d.Status(); got != backend.StatusDisconnected {
		t.Errorf("Status = %s, want disconnected", got)
	}
}

func TestConnect_StaleResultDiscarded(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	checker := checkerFunc(func(ctx context.Context, k backend.Kind, cfg backend.Config) error {
		close(entered)
		<-release
		return nil
	})

	f := newFixture(t, func(o *Options) { o.Checker = checker })
	f.start(t)
	ctx := context.Background()
	if err := f.d.SelectBackend(ctx, backend.KindCustom, false); err != nil {
		t.Fatalf("SelectBackend: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- f.d.Connect(ctx) }()

	<-entered
	f.d.Disconnect()
	close(release)

	if err := <-errCh; !errors.Is(err, ErrCanceled) {
		t.Errorf("Connect error = %v, want ErrCanceled", err)
	}
	if got := f.d.Status(); got != backend.StatusDisconnected {
		t.Errorf("Status = %s, want disconnected", got)
	}
}

func TestConnect_SharesInFlightCheck(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	checker := checkerFunc(func(ctx context.Context, k backend.Kind, cfg backend.Config) error {
		calls.Add(1)
		<-release
		return nil
	})

	f := newFixture(t, func(o *Options) { o.Checker = checker })
	f.start(t)
	ctx := context.Background()
	if err := f.d.SelectBackend(ctx, backend.KindCustom, false); err != nil {
		t.Fatalf("SelectBackend: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.d.Connect(ctx)
		}(i)
	}

	waitFor(t, "connecting", func() bool { return f.d.Status() == backend.StatusConnecting })
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Connect[%d] = %v, want nil", i, err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("health checks = %d, want 1", n)
	}
	if got := f.d.Status(); got != backend.StatusConnected {
		t.Errorf("Status = %s, want connected", got)
	}
}

func TestSendMessage_Serialized(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			fmt.Fprint(w, `{"models":[]}`)
			return
		}
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		fmt.Fprint(w, `{"response":"ok","done":true}`)
	}))
	defer srv.Close()

	f := newFixture(t, nil)
	f.start(t)
	connectOllama(t, f, srv.URL)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f.d.SendMessage(context.Background(), fmt.Sprintf("q%d", i)); err != nil {
				t.Errorf("SendMessage: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if n := maxInFlight.Load(); n != 1 {
		t.Errorf("max concurrent requests = %d, want 1", n)
	}
	msgs := f.d.Messages()
	if len(msgs) != 6 {
		t.Fatalf("len(Messages) = %d, want 6", len(msgs))
	}
	for i, m := range msgs {
		if wantUser := i%2 == 0; m.FromUser != wantUser {
			t.Errorf("message %d FromUser = %v, want %v", i, m.FromUser, wantUser)
		}
	}
}

func TestSelectBackend_PersistsSelection(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)
	ctx := context.Background()

	custom := backend.Config{BaseURL: "http://localhost:9000", Token: "t"}
	if err := f.d.UpdateConfig(ctx, backend.KindCustom, custom); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}

	selected := f.bus.Subscribe(4, events.TopicConnection)
	if err := f.d.SelectBackend(ctx, backend.KindAnthropic, false); err != nil {
		t.Fatalf("SelectBackend: %v", err)
	}

	set, loaded := f.cfg.Load(ctx)
	if loaded != config.LoadOK {
		t.Fatalf("load state = %s, want ok", loaded)
	}
	if set.Selected != backend.KindAnthropic {
		t.Errorf("Selected = %s, want anthropic", set.Selected)
	}
	if got := set.Backend(backend.KindCustom); got != custom {
		t.Errorf("custom config = %+v, want %+v", got, custom)
	}

	select {
	case ev := <-selected:
		sel, ok := ev.(events.BackendSelectedEvent)
		if !ok || sel.Backend != backend.KindAnthropic || sel.Previous != backend.KindNone {
			t.Errorf("event = %#v, want anthropic selected from none", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no BackendSelectedEvent published")
	}

	if err := f.d.SelectBackend(ctx, "gemini", false); err == nil {
		t.Error("SelectBackend should reject unknown kinds")
	}
}

func TestSelectBackend_SwitchDisconnects(t *testing.T) {
	srv := ollamaServer(t, "hi", nil)
	f := newFixture(t, nil)
	f.start(t)
	connectOllama(t, f, srv.URL)

	if err := f.d.SelectBackend(context.Background(), backend.KindOpenAI, false); err != nil {
		t.Fatalf("SelectBackend: %v", err)
	}
	if got := f.d.Status(); got != backend.StatusDisconnected {
		t.Errorf("Status = %s, want disconnected", got)
	}
	if got := f.d.Kind(); got != backend.KindOpenAI {
		t.Errorf("Kind = %s, want openai", got)
	}
}

func TestUpdateConfig_DisconnectsSelected(t *testing.T) {
	srv := ollamaServer(t, "hi", nil)
	f := newFixture(t, nil)
	f.start(t)
	connectOllama(t, f, srv.URL)
	ctx := context.Background()

	// Another kind's settings leave the connection alone.
	if err := f.d.UpdateConfig(ctx, backend.KindOpenAI, backend.Config{Token: "sk-x", Model: "gpt-4o"}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if got := f.d.Status(); got != backend.StatusConnected {
		t.Fatalf("Status = %s, want connected", got)
	}

	if err := f.d.UpdateConfig(ctx, backend.KindOllama, backend.Config{BaseURL: srv.URL, Model: "mistral"}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if got := f.d.Status(); got != backend.StatusDisconnected {
		t.Errorf("Status = %s, want disconnected", got)
	}
	if got := f.d.Configs().Backend(backend.KindOllama).Model; got != "mistral" {
		t.Errorf("model = %q, want mistral", got)
	}

	if err := f.d.UpdateConfig(ctx, backend.KindNone, backend.Config{}); err == nil {
		t.Error("UpdateConfig should reject the none kind")
	}
}

func TestStart_RestoresState(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	set := config.DefaultSet().WithBackend(backend.KindOllama, backend.Config{BaseURL: "http://localhost:11434", Model: "phi"})
	set.Selected = backend.KindOllama
	set.AutoConnect = false
	if err := f.cfg.Save(ctx, set); err != nil {
		t.Fatalf("Save: %v", err)
	}
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := f.store.AppendMessage(ctx, backend.NewUserMessage("earlier", at), 50); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	loaded, err := f.d.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if loaded != config.LoadOK {
		t.Errorf("load state = %s, want ok", loaded)
	}
	if got := f.d.Kind(); got != backend.KindOllama {
		t.Errorf("Kind = %s, want ollama", got)
	}
	if got := f.d.Configs().Backend(backend.KindOllama).Model; got != "phi" {
		t.Errorf("model = %q, want phi", got)
	}
	msgs := f.d.Messages()
	if len(msgs) != 1 || msgs[0].Content != "earlier" {
		t.Errorf("Messages = %+v, want the restored message", msgs)
	}

	// Auto-connect disabled: nothing happens.
	if err := f.d.AutoConnect(ctx); err != nil {
		t.Errorf("AutoConnect: %v", err)
	}
	if got := f.d.Status(); got != backend.StatusDisconnected {
		t.Errorf("Status = %s, want disconnected", got)
	}
}

func TestAutoConnect(t *testing.T) {
	srv := ollamaServer(t, "hi", nil)
	f := newFixture(t, nil)
	ctx := context.Background()

	set := config.DefaultSet().WithBackend(backend.KindOllama, backend.Config{BaseURL: srv.URL, Model: "llama3.2"})
	set.Selected = backend.KindOllama
	if err := f.cfg.Save(ctx, set); err != nil {
		t.Fatalf("Save: %v", err)
	}
	f.start(t)

	if err := f.d.AutoConnect(ctx); err != nil {
		t.Fatalf("AutoConnect: %v", err)
	}
	if got := f.d.Status(); got != backend.StatusConnected {
		t.Errorf("Status = %s, want connected", got)
	}
}

func TestClearMessages(t *testing.T) {
	srv := ollamaServer(t, "hi", nil)
	f := newFixture(t, nil)
	f.start(t)
	connectOllama(t, f, srv.URL)
	ctx := context.Background()

	if _, err := f.d.SendMessage(ctx, "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if err := f.d.ClearMessages(ctx); err != nil {
		t.Fatalf("ClearMessages: %v", err)
	}
	if n := len(f.d.Messages()); n != 0 {
		t.Errorf("len(Messages) = %d, want 0", n)
	}
	stored, err := f.store.RecentMessages(ctx, 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("persisted messages = %d, want 0", len(stored))
	}
}

func TestOllamaPromptCarriesHistory(t *testing.T) {
	prompts := make(chan string, 2)
	srv := ollamaServer(t, "pong", prompts)
	f := newFixture(t, nil)
	f.start(t)
	connectOllama(t, f, srv.URL)
	ctx := context.Background()

	for _, text := range []string{"ping", "again"} {
		if _, err := f.d.SendMessage(ctx, text); err != nil {
			t.Fatalf("SendMessage(%q): %v", text, err)
		}
	}
	<-prompts
	second := <-prompts

	want := "User: ping\n\nKrab: pong\n\nUser: again\n\nKrab:"
	if !strings.HasSuffix(second, want) {
		t.Errorf("prompt = %q, want suffix %q", second, want)
	}
}

func TestClosed(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)
	f.d.Close()

	if err := f.d.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect after Close = %v, want ErrClosed", err)
	}
	if _, err := f.d.SendMessage(context.Background(), "hi"); !errors.Is(err, ErrClosed) {
		t.Errorf("SendMessage after Close = %v, want ErrClosed", err)
	}
	if err := f.d.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestSetAutoConnect_Persists(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)
	ctx := context.Background()

	if err := f.d.SetAutoConnect(ctx, false); err != nil {
		t.Fatalf("SetAutoConnect: %v", err)
	}
	set, loaded := f.cfg.Load(ctx)
	if loaded != config.LoadOK {
		t.Fatalf("load state = %s, want ok", loaded)
	}
	if set.AutoConnect {
		t.Error("AutoConnect should be persisted as false")
	}
	if f.d.Configs().AutoConnect {
		t.Error("Configs().AutoConnect should be false")
	}
}
