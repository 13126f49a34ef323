package lifecycle

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type testComponent struct {
	name      string
	startErr  error
	stopErr   error
	events    *[]string
	startCall int
	stopCall  int
}

func (c *testComponent) Start(context.Context) error {
	c.startCall++
	*c.events = append(*c.events, "start:"+c.name)
	return c.startErr
}

func (c *testComponent) Stop(context.Context) error {
	c.stopCall++
	*c.events = append(*c.events, "stop:"+c.name)
	return c.stopErr
}

func newRuntime(components ...*testComponent) *Runtime {
	r := NewRuntime()
	for _, c := range components {
		r.Register(c.name, c)
	}
	return r
}

func TestRuntimeStartStopOrder(t *testing.T) {
	t.Parallel()

	events := make([]string, 0, 6)
	r := newRuntime(
		&testComponent{name: "one", events: &events},
		&testComponent{name: "two", events: &events},
		&testComponent{name: "three", events: &events},
	)
	r.Register("nil", nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start runtime: %v", err)
	}
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("stop runtime: %v", err)
	}

	expected := []string{"start:one", "start:two", "start:three", "stop:three", "stop:two", "stop:one"}
	if !reflect.DeepEqual(events, expected) {
		t.Fatalf("unexpected order: got %v want %v", events, expected)
	}
}

func TestRuntimeStartFailureStopsStartedComponents(t *testing.T) {
	t.Parallel()

	events := make([]string, 0, 4)
	startErr := errors.New("boom")
	c1 := &testComponent{name: "one", events: &events}
	c2 := &testComponent{name: "two", events: &events, startErr: startErr}
	c3 := &testComponent{name: "three", events: &events}

	err := newRuntime(c1, c2, c3).Start(context.Background())
	if !errors.Is(err, startErr) {
		t.Fatalf("unexpected start error: %v", err)
	}
	if !strings.Contains(err.Error(), "start two") {
		t.Fatalf("error should name the component: %v", err)
	}
	if c1.stopCall != 1 || c2.stopCall != 0 || c3.stopCall != 0 {
		t.Fatalf("unexpected stop calls: c1=%d c2=%d c3=%d", c1.stopCall, c2.stopCall, c3.stopCall)
	}
	if expected := []string{"start:one", "start:two", "stop:one"}; !reflect.DeepEqual(events, expected) {
		t.Fatalf("unexpected events: %v", events)
	}
}

func TestRuntimeStopJoinsErrors(t *testing.T) {
	t.Parallel()

	events := make([]string, 0, 4)
	errOne, errTwo := errors.New("one failed"), errors.New("two failed")
	r := newRuntime(
		&testComponent{name: "one", events: &events, stopErr: errOne},
		&testComponent{name: "two", events: &events, stopErr: errTwo},
	)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start runtime: %v", err)
	}
	err := r.Stop(context.Background())
	if !errors.Is(err, errOne) || !errors.Is(err, errTwo) {
		t.Fatalf("expected both stop errors, got %v", err)
	}
}

func TestHook(t *testing.T) {
	t.Parallel()

	var stopped bool
	h := Hook{OnStop: func(context.Context) error {
		stopped = true
		return nil
	}}
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("nil start hook must succeed: %v", err)
	}
	if err := h.Stop(context.Background()); err != nil || !stopped {
		t.Fatalf("stop hook not called: %v", err)
	}
}
