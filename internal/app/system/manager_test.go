package system

import (
	"context"
	"errors"
	"testing"
)

type recordingService struct {
	name   string
	log    *[]string
	failOn string
}

func (r recordingService) Name() string { return r.name }

func (r recordingService) Start(context.Context) error {
	if r.failOn == "start" {
		return errors.New("boom")
	}
	*r.log = append(*r.log, "start:"+r.name)
	return nil
}

func (r recordingService) Stop(context.Context) error {
	*r.log = append(*r.log, "stop:"+r.name)
	return nil
}

func TestManagerOrdering(t *testing.T) {
	var log []string
	m := NewManager()
	for _, name := range []string{"ledger", "sweeper"} {
		if err := m.Register(recordingService{name: name, log: &log}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	if err := m.Register(NoopService{ServiceName: "ledger"}); err == nil {
		t.Fatal("expected duplicate name to be rejected")
	}

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:ledger", "start:sweeper", "stop:sweeper", "stop:ledger"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log = %v, want %v", log, want)
		}
	}
}

func TestManagerStartFailureRollsBack(t *testing.T) {
	var log []string
	m := NewManager()
	_ = m.Register(recordingService{name: "a", log: &log})
	_ = m.Register(recordingService{name: "b", log: &log, failOn: "start"})

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected start failure")
	}
	if len(log) != 2 || log[1] != "stop:a" {
		t.Fatalf("expected a to be stopped after failure, got %v", log)
	}
}

type describedService struct {
	NoopService
}

func (d describedService) Descriptor() Descriptor {
	return Descriptor{Name: d.ServiceName, Domain: "inventory"}.WithCapabilities("reserve")
}

func TestManagerDescriptors(t *testing.T) {
	m := NewManager()
	if err := m.Register(describedService{NoopService{ServiceName: "ledger"}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(NoopService{ServiceName: "plain"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	got := m.Descriptors()
	if len(got) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(got))
	}
	if got[0].Domain != "inventory" || len(got[0].Capabilities) != 1 || got[0].Capabilities[0] != "reserve" {
		t.Fatalf("unexpected described service %+v", got[0])
	}
	if got[1].Name != "plain" || got[1].Domain != "" {
		t.Fatalf("unexpected plain service %+v", got[1])
	}
}
