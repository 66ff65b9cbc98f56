package memory_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dejobratic/storefront/internal/orders/adapters/memory"
	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// unreachableRepository fails every lookup the way a lost database does.
type unreachableRepository struct {
	*memory.Repository
}

func (unreachableRepository) GetByNumber(context.Context, string) (*domain.Order, error) {
	return nil, errors.New("dial tcp 127.0.0.1:5432: connection refused")
}

// consumeUntil runs Consume in the background until done reports true.
func consumeUntil(t *testing.T, q *memory.FollowupQueue, handler func(context.Context, domain.Followup) error, done func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- q.Consume(ctx, handler) }()

	deadline := time.Now().Add(2 * time.Second)
	for !done() {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("condition not reached before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-stopped; err != nil {
		t.Fatalf("consume returned %v", err)
	}
}

func TestFollowupQueueRejectsWhenFull(t *testing.T) {
	q := memory.NewFollowupQueue(1, quietLogger())
	ctx := context.Background()

	if err := q.Enqueue(ctx, domain.Followup{OrderNumber: "A"}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, domain.Followup{OrderNumber: "B"}); err != memory.ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 queued followup, got %d", q.Len())
	}
}

func TestFollowupQueueConsume(t *testing.T) {
	q := memory.NewFollowupQueue(4, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, n := range []string{"A", "B"} {
		if err := q.Enqueue(ctx, domain.Followup{OrderNumber: n, Task: domain.TaskClearCart}); err != nil {
			t.Fatalf("enqueue %s: %v", n, err)
		}
	}

	var (
		mu  sync.Mutex
		got []string
		wg  sync.WaitGroup
	)
	wg.Add(2)
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, func(_ context.Context, f domain.Followup) error {
			mu.Lock()
			got = append(got, f.OrderNumber)
			mu.Unlock()
			wg.Done()
			return nil
		})
	}()

	wg.Wait()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("consume returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("consume did not stop after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("unexpected consumption order: %v", got)
	}
}

func TestFollowupQueueKeepsFailedFollowups(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	q := memory.NewFollowupQueue(4, logger, memory.WithRedeliveryDelay(0), memory.WithMaxRedeliveries(1))

	repo := unreachableRepository{memory.NewRepository()}
	runner := commands.NewPostCommitRunner(commands.PostCommitDeps{Logger: logger})
	retrier := commands.NewFollowupRetrier(repo, runner, q, nil, 5, logger)

	followup := domain.Followup{Task: domain.TaskEarnLoyalty, OrderNumber: "ORD-1", CustomerID: "cust-1", Attempt: 1}
	if err := q.Enqueue(context.Background(), followup); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	consumeUntil(t, q, retrier.Handle, func() bool { return len(q.DeadLetters()) == 1 })

	dead := q.DeadLetters()[0]
	if dead.OrderNumber != "ORD-1" || dead.Task != domain.TaskEarnLoyalty {
		t.Errorf("unexpected dead letter %+v", dead)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}

	out := logs.String()
	for _, want := range []string{"followup handler failed", "followup dead-lettered", "order_number=ORD-1", "task=earn_loyalty", "connection refused"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log to contain %q, got:\n%s", want, out)
		}
	}
}

func TestFollowupQueueRedeliversAfterTransientFailure(t *testing.T) {
	q := memory.NewFollowupQueue(4, quietLogger(), memory.WithRedeliveryDelay(time.Millisecond))
	if err := q.Enqueue(context.Background(), domain.Followup{OrderNumber: "ORD-2", Task: domain.TaskClearCart}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var (
		mu    sync.Mutex
		calls int
	)
	handler := func(context.Context, domain.Followup) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return errors.New("temporarily unavailable")
		}
		return nil
	}

	consumeUntil(t, q, handler, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	})

	if len(q.DeadLetters()) != 0 {
		t.Errorf("expected no dead letters, got %+v", q.DeadLetters())
	}
}
