package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pocusai/internal/models"
	"pocusai/internal/service/ai"
	"pocusai/internal/service/assistant"
	"pocusai/internal/sessions"
	"pocusai/internal/storage"
	"pocusai/internal/usage"
)

type nopIdentity struct{}

func (nopIdentity) Logout(context.Context) error { return nil }

func echoGenerator() ai.Generator {
	return ai.GeneratorFunc(func(_ context.Context, req ai.Request) (string, error) {
		return "ai: " + req.Turn.Parts[len(req.Turn.Parts)-1].Text, nil
	})
}

func newTestManager(t *testing.T, gen ai.Generator, cfg DispatcherConfig) *Manager {
	t.Helper()
	records := storage.NewRecords(storage.NewMemoryBackend())
	store := sessions.NewStore(records)
	counter := usage.NewCounter(records)
	m := NewManager(NewDispatcher(cfg, gen), func(_ string, g ai.Generator) *assistant.Conversation {
		return assistant.NewConversation(assistant.Options{Language: "en", Temperature: 0.2}, g, store, counter, nopIdentity{})
	})
	t.Cleanup(m.Stop)
	return m
}

func TestManagerConversationPerUser(t *testing.T) {
	manager := newTestManager(t, echoGenerator(), DispatcherConfig{MinWorkers: 1, MaxWorkers: 2, QueueSize: 8})

	a := manager.Conversation("u1")
	if manager.Conversation("u1") != a {
		t.Fatalf("expected the same conversation for the same user")
	}
	if manager.Conversation("u2") == a {
		t.Fatalf("users must not share a conversation")
	}
	if manager.Active() != 2 {
		t.Fatalf("expected 2 active conversations, got %d", manager.Active())
	}

	if err := a.SelectMode(models.ModeAdult); err != nil {
		t.Fatalf("select mode: %v", err)
	}
	reply, err := a.SendUserTurn(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.IsError || reply.Text != "ai: hello" {
		t.Fatalf("unexpected reply %+v", reply)
	}

	manager.ResetUser("u1")
	if manager.Active() != 1 {
		t.Fatalf("expected user state removed after reset")
	}
	if a.Snapshot().State != assistant.NoModeSelected {
		t.Fatalf("reset conversation should return to mode selection")
	}
	if manager.Conversation("u1") == a {
		t.Fatalf("expected a fresh conversation after reset")
	}

	manager.Purge()
	if manager.Active() != 0 {
		t.Fatalf("purge did not clear conversations")
	}
	// resetting an unknown user is a no-op
	manager.ResetUser("ghost")
}

func textRequest(label string) ai.Request {
	return ai.Request{Turn: ai.Turn{Parts: []ai.Part{{Text: label}}}}
}

func queuedJob(user, label string) Job {
	return Job{Type: generate, UserID: user, ctx: context.Background(), req: textRequest(label), result: make(chan jobResult, 1)}
}

// blockingGenerator holds the "block" request until release is closed and
// records the order of every other request.
type blockingGenerator struct {
	started chan struct{}
	release chan struct{}

	mu    sync.Mutex
	order []string
}

func newBlockingGenerator() *blockingGenerator {
	return &blockingGenerator{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *blockingGenerator) Generate(_ context.Context, req ai.Request) (string, error) {
	label := req.Turn.Parts[0].Text
	if label == "block" {
		close(g.started)
		<-g.release
		return label, nil
	}
	g.mu.Lock()
	g.order = append(g.order, label)
	g.mu.Unlock()
	return label, nil
}

func (g *blockingGenerator) position(label string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, l := range g.order {
		if l == label {
			return i
		}
	}
	return -1
}

func TestDispatcherRoundRobinAcrossUsers(t *testing.T) {
	gen := newBlockingGenerator()
	d := NewDispatcher(DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 16}, gen)
	defer d.Stop()

	results := make(chan error, 2)
	go func() {
		_, err := d.Submit(context.Background(), "x", textRequest("block"))
		results <- err
	}()
	<-gen.started

	// the only worker is busy, so the dispatcher stalls acquiring one for y1
	go func() {
		_, err := d.Submit(context.Background(), "y", textRequest("y1"))
		results <- err
	}()
	waitFor(t, func() bool { return len(d.jobQueue) == 0 && d.pendingFor("y") == 0 })

	jobs := []Job{queuedJob("a", "a1"), queuedJob("a", "a2"), queuedJob("b", "b1")}
	d.mu.Lock()
	for _, job := range jobs {
		d.enqueueLocked(job)
	}
	d.mu.Unlock()

	close(gen.release)
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	for _, job := range jobs {
		select {
		case res := <-job.result:
			if res.err != nil {
				t.Fatalf("job %s: %v", res.text, res.err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("queued job did not run")
		}
	}

	a1, b1, a2 := gen.position("a1"), gen.position("b1"), gen.position("a2")
	if !(a1 < b1 && b1 < a2) {
		t.Fatalf("expected a1, b1, a2 in round robin order, got %v", gen.order)
	}
}

func TestDispatcherQueueFullAndCancel(t *testing.T) {
	gen := newBlockingGenerator()
	d := NewDispatcher(DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1}, gen)
	defer d.Stop()

	results := make(chan error, 3)
	submit := func(user, label string) {
		go func() {
			_, err := d.Submit(context.Background(), user, textRequest(label))
			results <- err
		}()
	}

	submit("u", "block")
	<-gen.started
	submit("y", "y1")
	waitFor(t, func() bool { return len(d.jobQueue) == 0 && d.pendingFor("y") == 0 })
	submit("v", "v1")
	waitFor(t, func() bool { return len(d.jobQueue) == 1 })

	if _, err := d.Submit(context.Background(), "w", textRequest("w1")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	queued := queuedJob("u", "u2")
	d.enqueueJob(queued)
	d.CancelUser("u")
	select {
	case res := <-queued.result:
		if !errors.Is(res.err, ErrCanceled) {
			t.Fatalf("expected queued job canceled, got %v", res.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("canceled job did not return")
	}

	close(gen.release)
	for i := 0; i < 3; i++ {
		select {
		case err := <-results:
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("job did not complete")
		}
	}
	if gen.position("u2") != -1 {
		t.Fatalf("canceled job must not reach the model")
	}
}

func TestSubmitReturnsWhenStoppedAfterDrain(t *testing.T) {
	// no run loop: the job lands after dispatching already ended
	d := &Dispatcher{
		jobQueue: make(chan Job, 1),
		stopCh:   make(chan struct{}),
	}

	done := make(chan error, 1)
	go func() {
		_, err := d.Submit(context.Background(), "u", textRequest("late"))
		done <- err
	}()
	waitFor(t, func() bool { return len(d.jobQueue) == 1 })
	close(d.stopCh)

	select {
	case err := <-done:
		if !errors.Is(err, ErrStopped) {
			t.Fatalf("expected ErrStopped, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("submit did not return after stop")
	}
}

func TestPoolRetiresIdleWorkers(t *testing.T) {
	p := newJobChannelPool(0, 2, 10*time.Millisecond, echoGenerator())
	defer p.close()

	a := p.acquire()
	b := p.acquire()
	if p.size() != 2 {
		t.Fatalf("expected 2 workers, got %d", p.size())
	}
	p.Release(a)
	p.Release(b)
	waitFor(t, func() bool { return p.size() == 0 })
}

func (d *Dispatcher) pendingFor(userID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if q := d.queues[userID]; q != nil {
		return len(q.jobs)
	}
	return 0
}

func (d *Dispatcher) idleWorkers() int {
	d.pool.mu.Lock()
	defer d.pool.mu.Unlock()
	return len(d.pool.idle)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
