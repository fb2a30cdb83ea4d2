package loop

import (
	"context"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
)

type countKicker struct{ n int }

func (k *countKicker) Kick() { k.n++ }

func TestNew_RejectsZeroInterval(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRunOnce_OrderAndKick(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	k := &countKicker{}
	l, err := New(Config{Interval: time.Millisecond, Kicker: k, Log: log})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	var order []string
	l.Add("a", TaskFunc(func() { order = append(order, "a") }))
	l.Add("b", TaskFunc(func() { order = append(order, "b") }))

	l.RunOnce()
	l.RunOnce()

	if len(order) != 4 || order[0] != "a" || order[1] != "b" || order[2] != "a" {
		t.Fatalf("order = %v", order)
	}
	if k.n != 2 {
		t.Fatalf("kicks = %d", k.n)
	}
}

func TestRunOnce_WarnsOnOverrun(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	l, _ := New(Config{Interval: time.Millisecond, Log: log})
	l.Add("slow", TaskFunc(func() { time.Sleep(20 * time.Millisecond) }))

	l.RunOnce()

	if e := hook.LastEntry(); e == nil || e.Message != "main loop pass overran" {
		t.Fatalf("no overrun warning")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	l, _ := New(Config{Interval: time.Millisecond, Log: log})

	passes := make(chan struct{}, 100)
	l.Add("tick", TaskFunc(func() {
		select {
		case passes <- struct{}{}:
		default:
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case <-passes:
	case <-time.After(time.Second):
		t.Fatalf("no pass ran")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run err=%v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return")
	}
}
