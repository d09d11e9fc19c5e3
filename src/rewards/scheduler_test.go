package rewards

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSchedulerStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)
	st := newFakeStore()
	st.batchTs = time.Now()
	sc := NewScheduler(NewService(st, nil, nil, nil, testSettings()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sc.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerRunsOverdueBatch(t *testing.T) {
	defer goleak.VerifyNone(t)
	st := newFakeStore()
	exec := &fakeExec{payer: payerAddr}
	link(st, "u1", addr1)
	st.addCredit("u1", sak(3), time.Now().Add(-time.Hour))
	sc := NewScheduler(NewService(st, exec, nil, nil, testSettings()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sc.Run(ctx) }()
	assert.Eventually(t, func() bool {
		_, finished, _ := st.BatchState(context.Background())
		st.mu.Lock()
		defer st.mu.Unlock()
		return finished && len(st.payments) == 1
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestSchedulerInvalidCron(t *testing.T) {
	s := NewService(newFakeStore(), nil, nil, nil, testSettings())
	sc := &Scheduler{Svc: s, Cron: "not a cron"}
	assert.Error(t, sc.Run(context.Background()))
}
