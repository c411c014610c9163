package queue

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sflow/user-access/internal/core/domain"
	"github.com/sflow/user-access/internal/core/ports"
)

type scriptedDeleter struct {
	mu       sync.Mutex
	failures map[string][]error
	calls    map[string]int
	done     chan string
}

func newScriptedDeleter() *scriptedDeleter {
	return &scriptedDeleter{
		failures: make(map[string][]error),
		calls:    make(map[string]int),
		done:     make(chan string, 16),
	}
}

func (d *scriptedDeleter) DeleteUser(_ context.Context, subjectID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[subjectID]++
	if errs := d.failures[subjectID]; len(errs) > 0 {
		err := errs[0]
		d.failures[subjectID] = errs[1:]
		if len(d.failures[subjectID]) == 0 && !errors.Is(err, domain.ErrIdentityProviderUnavailable) {
			d.done <- subjectID
		}
		return err
	}
	d.done <- subjectID
	return nil
}

func (d *scriptedDeleter) callCount(subjectID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[subjectID]
}

func fastOptions() Options {
	return Options{
		Workers:        2,
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		MaxElapsed:     time.Second,
		AttemptTimeout: time.Second,
	}
}

func startReconciler(t *testing.T, r *Reconciler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = r.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
}

func waitDone(t *testing.T, d *scriptedDeleter, subject string) {
	t.Helper()
	select {
	case got := <-d.done:
		require.Equal(t, subject, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", subject)
	}
}

func TestReconciler_RetriesUntilSuccess(t *testing.T) {
	d := newScriptedDeleter()
	d.failures["sub-1"] = []error{domain.ErrIdentityProviderUnavailable, domain.ErrIdentityProviderUnavailable}
	r := NewReconciler(d, fastOptions(), zerolog.Nop())
	startReconciler(t, r)

	require.NoError(t, r.Enqueue(ports.DeletionTask{UserID: 7, SubjectID: "sub-1"}))

	waitDone(t, d, "sub-1")
	assert.Equal(t, 3, d.callCount("sub-1"))
}

func TestReconciler_PermanentErrorStopsImmediately(t *testing.T) {
	d := newScriptedDeleter()
	d.failures["sub-2"] = []error{errors.New("admin delete user: unexpected status 403")}
	r := NewReconciler(d, fastOptions(), zerolog.Nop())
	startReconciler(t, r)

	require.NoError(t, r.Enqueue(ports.DeletionTask{UserID: 8, SubjectID: "sub-2"}))

	waitDone(t, d, "sub-2")
	// Give a wrongly retrying worker the chance to call again.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, d.callCount("sub-2"))
}

func TestReconciler_GivesUpAfterMaxAttempts(t *testing.T) {
	d := newScriptedDeleter()
	unavailable := make([]error, 10)
	for i := range unavailable {
		unavailable[i] = domain.ErrIdentityProviderUnavailable
	}
	d.failures["sub-3"] = unavailable

	opts := fastOptions()
	opts.MaxAttempts = 3
	r := NewReconciler(d, opts, zerolog.Nop())
	startReconciler(t, r)

	require.NoError(t, r.Enqueue(ports.DeletionTask{UserID: 9, SubjectID: "sub-3"}))

	require.Eventually(t, func() bool { return d.callCount("sub-3") == 3 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, d.callCount("sub-3"))
}

func TestReconciler_EnqueueFull(t *testing.T) {
	r := NewReconciler(newScriptedDeleter(), Options{Workers: 1}, zerolog.Nop())

	for i := 0; i < channelBuffer; i++ {
		require.NoError(t, r.Enqueue(ports.DeletionTask{SubjectID: "sub"}))
	}
	assert.ErrorIs(t, r.Enqueue(ports.DeletionTask{SubjectID: "sub"}), ErrQueueFull)
}

func TestReconciler_ShardIndexIsStable(t *testing.T) {
	r := NewReconciler(newScriptedDeleter(), Options{Workers: 8}, zerolog.Nop())

	first := r.shardIndex("kc-42")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, r.shardIndex("kc-42"))
	}
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 8)
}

func TestReconciler_RunReturnsOnCancel(t *testing.T) {
	r := NewReconciler(newScriptedDeleter(), fastOptions(), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func runUntilStopped(t *testing.T, r *Reconciler, ctx context.Context) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestReconciler_EnqueueAfterStopIsRefused(t *testing.T) {
	d := newScriptedDeleter()
	r := NewReconciler(d, Options{Workers: 1}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runUntilStopped(t, r, ctx)

	err := r.Enqueue(ports.DeletionTask{UserID: 7, SubjectID: "sub-7"})

	assert.ErrorIs(t, err, ErrReconcilerStopped)
	assert.Equal(t, 0, d.callCount("sub-7"))
}

func TestReconciler_BufferedTasksLoggedAsAbandonedOnStop(t *testing.T) {
	d := newScriptedDeleter()
	var buf bytes.Buffer
	r := NewReconciler(d, Options{Workers: 1}, zerolog.New(&buf))

	require.NoError(t, r.Enqueue(ports.DeletionTask{UserID: 11, SubjectID: "sub-11"}))
	require.NoError(t, r.Enqueue(ports.DeletionTask{UserID: 12, SubjectID: "sub-12"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runUntilStopped(t, r, ctx)

	out := buf.String()
	assert.Contains(t, out, `"subject":"sub-11"`)
	assert.Contains(t, out, `"subject":"sub-12"`)
	assert.Equal(t, 2, strings.Count(out, "upstream deletion abandoned"))
	assert.Equal(t, 0, d.callCount("sub-11")+d.callCount("sub-12"))
}
