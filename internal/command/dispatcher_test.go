package command

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/camfleet-core/internal/device"
	"github.com/nerrad567/camfleet-core/internal/transport"
)

// fakeTransport records dispatch calls and can be told to fail.
type fakeTransport struct {
	mu      sync.Mutex
	calls   [][]string
	actions []transport.Action
	params  []transport.Params
	fail    bool

	// block, when set, holds each dispatch until the channel closes.
	block chan struct{}
}

func (f *fakeTransport) Scan(context.Context) ([]transport.Descriptor, error) { return nil, nil }
func (f *fakeTransport) HealthCheck(context.Context, string) error            { return nil }
func (f *fakeTransport) Provision(context.Context, string, string, string) error {
	return nil
}

func (f *fakeTransport) DispatchCommand(_ context.Context, ids []string, action transport.Action, params transport.Params) error {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), ids...))
	f.actions = append(f.actions, action)
	f.params = append(f.params, params)
	fail := f.fail
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if fail {
		return errors.New("batch refused")
	}
	return nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func seedFleet(t *testing.T, states map[string]device.State) *device.Registry {
	t.Helper()
	reg := device.NewRegistry(nil)
	ctx := context.Background()
	for id, state := range states {
		d := &device.Device{ID: id, Name: "Cam " + id, Transport: device.TransportCOHN}
		if err := reg.Upsert(ctx, d); err != nil {
			t.Fatalf("seeding %s: %v", id, err)
		}
		if state != device.StateDisconnected {
			reg.UpdateState(ctx, id, state, "seed")
		}
	}
	return reg
}

func TestDispatchSelectsByPredicate(t *testing.T) {
	reg := seedFleet(t, map[string]device.State{
		"cam-1": device.StateConnected,
		"cam-2": device.StateDisconnected,
		"cam-3": device.StateConnected,
	})
	tr := &fakeTransport{}
	d := New(reg, tr)

	res := d.Dispatch(context.Background(), transport.ActionSetCaptureSettings,
		transport.Params{FPS: 120}, Connected)
	if !res.OK {
		t.Fatalf("Dispatch failed: %s", res.Message)
	}

	if tr.callCount() != 1 {
		t.Fatalf("transport called %d times, want exactly 1", tr.callCount())
	}
	got := strings.Join(tr.calls[0], ",")
	if got != "cam-1,cam-3" {
		t.Errorf("batched ids = %q, want cam-1,cam-3", got)
	}
	if tr.params[0].FPS != 120 {
		t.Errorf("params not carried: %+v", tr.params[0])
	}
}

func TestDispatchEmptySelectionSkipsTransport(t *testing.T) {
	reg := seedFleet(t, map[string]device.State{
		"cam-1": device.StateDisconnected,
	})
	tr := &fakeTransport{}
	d := New(reg, tr)

	res := d.Dispatch(context.Background(), transport.ActionStartCapture, transport.Params{}, Connected)
	if !res.OK {
		t.Fatalf("empty dispatch should succeed, got %s", res.Message)
	}
	if res.Message != "nothing to do" {
		t.Errorf("message = %q, want %q", res.Message, "nothing to do")
	}
	if tr.callCount() != 0 {
		t.Error("transport called for an empty selection")
	}
}

func TestDispatchFailureReported(t *testing.T) {
	reg := seedFleet(t, map[string]device.State{
		"cam-1": device.StateConnected,
	})
	tr := &fakeTransport{fail: true}
	d := New(reg, tr)

	res := d.Dispatch(context.Background(), transport.ActionStartCapture, transport.Params{}, Connected)
	if res.OK {
		t.Fatal("failed batch reported success")
	}

	// No retry at this layer: one call, whatever the outcome.
	if tr.callCount() != 1 {
		t.Errorf("transport called %d times, want 1", tr.callCount())
	}

	// Recording flags must be untouched on failure.
	got, _ := reg.Get("cam-1")
	if got.Recording {
		t.Error("recording flag set despite batch failure")
	}
}

func TestDispatchTracksRecordingState(t *testing.T) {
	reg := seedFleet(t, map[string]device.State{
		"cam-1": device.StateConnected,
		"cam-2": device.StateConnected,
	})
	tr := &fakeTransport{}
	d := New(reg, tr)
	ctx := context.Background()

	if res := d.Dispatch(ctx, transport.ActionStartCapture, transport.Params{}, Connected); !res.OK {
		t.Fatalf("start failed: %s", res.Message)
	}
	for _, id := range []string{"cam-1", "cam-2"} {
		got, _ := reg.Get(id)
		if !got.Recording {
			t.Errorf("%s not recording after start", id)
		}
	}

	if res := d.Dispatch(ctx, transport.ActionStopCapture, transport.Params{}, Connected); !res.OK {
		t.Fatalf("stop failed: %s", res.Message)
	}
	for _, id := range []string{"cam-1", "cam-2"} {
		got, _ := reg.Get(id)
		if got.Recording {
			t.Errorf("%s still recording after stop", id)
		}
	}
}

func TestDispatchNilPredicateDefaultsToConnected(t *testing.T) {
	reg := seedFleet(t, map[string]device.State{
		"cam-1": device.StateConnected,
		"cam-2": device.StateFailed,
	})
	tr := &fakeTransport{}
	d := New(reg, tr)

	res := d.Dispatch(context.Background(), transport.ActionStartCapture, transport.Params{}, nil)
	if !res.OK {
		t.Fatalf("Dispatch failed: %s", res.Message)
	}
	if len(tr.calls[0]) != 1 || tr.calls[0][0] != "cam-1" {
		t.Errorf("batched ids = %v, want only cam-1", tr.calls[0])
	}
}

func TestDispatchRejectsWhileBatchInFlight(t *testing.T) {
	reg := seedFleet(t, map[string]device.State{
		"cam-1": device.StateConnected,
	})
	tr := &fakeTransport{block: make(chan struct{})}
	d := New(reg, tr)

	first := make(chan Result, 1)
	go func() {
		first <- d.Dispatch(context.Background(), transport.ActionStartCapture, transport.Params{}, nil)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !d.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("first batch never started")
		}
		time.Sleep(time.Millisecond)
	}

	res := d.Dispatch(context.Background(), transport.ActionStopCapture, transport.Params{}, nil)
	if res.OK {
		t.Error("concurrent dispatch should be rejected")
	}
	if !strings.Contains(res.Message, "in flight") {
		t.Errorf("message = %q, want in-flight rejection", res.Message)
	}
	if tr.callCount() != 1 {
		t.Errorf("transport calls = %d, want only the held batch", tr.callCount())
	}

	close(tr.block)
	if res := <-first; !res.OK {
		t.Fatalf("held batch failed: %s", res.Message)
	}
	if d.Busy() {
		t.Error("busy flag not released after batch completed")
	}

	// The empty-selection early return must release the slot too.
	reg.UpdateState(context.Background(), "cam-1", device.StateDisconnected, "powered off")
	res = d.Dispatch(context.Background(), transport.ActionStopCapture, transport.Params{}, nil)
	if !res.OK || res.Message != "nothing to do" {
		t.Fatalf("empty dispatch = %v %q", res.OK, res.Message)
	}
	if d.Busy() {
		t.Error("busy flag not released after empty selection")
	}
}
