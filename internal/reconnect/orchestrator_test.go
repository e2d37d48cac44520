package reconnect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/camfleet-core/internal/device"
	"github.com/nerrad567/camfleet-core/internal/transport"
)

// fakeTransport scripts provisioning outcomes per device.
type fakeTransport struct {
	mu         sync.Mutex
	failAlways map[string]bool
	failFirstN map[string]int
	provisions map[string]int

	// onProvision, when set, runs after each provisioning call.
	onProvision func(deviceID string)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		failAlways: make(map[string]bool),
		failFirstN: make(map[string]int),
		provisions: make(map[string]int),
	}
}

func (f *fakeTransport) Scan(context.Context) ([]transport.Descriptor, error) {
	return nil, nil
}

func (f *fakeTransport) HealthCheck(_ context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAlways[deviceID] {
		return errors.New("unreachable")
	}
	return nil
}

func (f *fakeTransport) Provision(_ context.Context, deviceID, _, _ string) error {
	f.mu.Lock()
	f.provisions[deviceID]++
	count := f.provisions[deviceID]
	fail := f.failAlways[deviceID] || count <= f.failFirstN[deviceID]
	callback := f.onProvision
	f.mu.Unlock()

	if callback != nil {
		callback(deviceID)
	}
	if fail {
		return errors.New("provisioning refused")
	}
	return nil
}

func (f *fakeTransport) DispatchCommand(context.Context, []string, transport.Action, transport.Params) error {
	return nil
}

func (f *fakeTransport) provisionCount(deviceID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.provisions[deviceID]
}

// staticCreds is a CredentialSource with one fixed credential.
type staticCreds struct{ ssid, password string }

func (s staticCreds) ActiveCredential() (string, string, bool) {
	return s.ssid, s.password, s.ssid != ""
}

func testConfig() Config {
	return Config{
		MaxAttempts: 3,
		SettleDelay: time.Millisecond,
		RetryDelay:  20 * time.Millisecond,
		GraceDelay:  30 * time.Millisecond,
	}
}

func seedBatch(t *testing.T, reg *device.Registry, ids ...string) []device.Device {
	t.Helper()
	ctx := context.Background()
	batch := make([]device.Device, 0, len(ids))
	for _, id := range ids {
		d := &device.Device{ID: id, Name: "Cam " + id, Transport: device.TransportBLE}
		if err := reg.Upsert(ctx, d); err != nil {
			t.Fatalf("seeding %s: %v", id, err)
		}
		fresh, _ := reg.Get(id)
		batch = append(batch, *fresh)
	}
	return batch
}

func waitForRun(t *testing.T, o *Orchestrator) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		o.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reconnection run did not finish")
	}
}

func TestRunAllSucceedFirstAttempt(t *testing.T) {
	reg := device.NewRegistry(nil)
	tr := newFakeTransport()
	o := New(reg, tr, staticCreds{"StadiumNet", "pw"}, testConfig())

	batch := seedBatch(t, reg, "cam-1", "cam-2", "cam-3")
	job, err := o.Start(context.Background(), batch, nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// A fully successful run auto-completes after the grace delay.
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not auto-complete")
	}

	snap := job.Snapshot()
	if snap.Reconnected != 3 || snap.Failed != 0 {
		t.Errorf("counts = %d/%d, want 3/0", snap.Reconnected, snap.Failed)
	}
	if snap.Outcome != "all reconnected" {
		t.Errorf("outcome = %q, want %q", snap.Outcome, "all reconnected")
	}
	for _, id := range []string{"cam-1", "cam-2", "cam-3"} {
		d, _ := reg.Get(id)
		if d.State != device.StateConnected {
			t.Errorf("%s state = %q, want connected", id, d.State)
		}
		if d.ReconnectAttempt != 0 {
			t.Errorf("%s attempt counter = %d, want 0 after success", id, d.ReconnectAttempt)
		}
	}
	waitForRun(t, o)
}

func TestRunBoundedAttemptsThenFailed(t *testing.T) {
	reg := device.NewRegistry(nil)
	tr := newFakeTransport()
	tr.failAlways["cam-1"] = true
	o := New(reg, tr, staticCreds{"StadiumNet", "pw"}, testConfig())

	batch := seedBatch(t, reg, "cam-1")
	job, err := o.Start(context.Background(), batch, nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForRun(t, o)

	if got := tr.provisionCount("cam-1"); got != 3 {
		t.Errorf("provision attempts = %d, want exactly 3", got)
	}

	snap := job.Snapshot()
	if snap.Failed != 1 || snap.Reconnected != 0 {
		t.Errorf("counts = %d/%d, want 0/1", snap.Reconnected, snap.Failed)
	}
	if snap.Outcome != "all failed" {
		t.Errorf("outcome = %q, want %q", snap.Outcome, "all failed")
	}

	d, _ := reg.Get("cam-1")
	if d.State != device.StateFailed {
		t.Errorf("state = %q, want failed", d.State)
	}

	// Failed runs never auto-complete.
	select {
	case <-job.Done():
		t.Error("job with failures auto-completed")
	case <-time.After(100 * time.Millisecond):
	}

	o.Dismiss()
	select {
	case <-job.Done():
	case <-time.After(time.Second):
		t.Error("Dismiss did not complete the job")
	}
}

func TestRunSucceedsOnRetry(t *testing.T) {
	reg := device.NewRegistry(nil)
	tr := newFakeTransport()
	tr.failFirstN["cam-1"] = 2
	o := New(reg, tr, staticCreds{"StadiumNet", "pw"}, testConfig())

	batch := seedBatch(t, reg, "cam-1")
	job, err := o.Start(context.Background(), batch, nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForRun(t, o)

	if got := tr.provisionCount("cam-1"); got != 3 {
		t.Errorf("provision attempts = %d, want 3", got)
	}
	if snap := job.Snapshot(); snap.Reconnected != 1 || snap.Failed != 0 {
		t.Errorf("counts = %d/%d, want 1/0", snap.Reconnected, snap.Failed)
	}
}

func TestRunMixedOutcomeConservation(t *testing.T) {
	reg := device.NewRegistry(nil)
	tr := newFakeTransport()
	tr.failAlways["cam-2"] = true
	o := New(reg, tr, staticCreds{"StadiumNet", "pw"}, testConfig())

	batch := seedBatch(t, reg, "cam-1", "cam-2", "cam-3")
	job, err := o.Start(context.Background(), batch, nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForRun(t, o)

	snap := job.Snapshot()
	if snap.Reconnected+snap.Failed != len(batch) {
		t.Errorf("conservation violated: %d + %d != %d", snap.Reconnected, snap.Failed, len(batch))
	}
	if snap.Outcome != "2 reconnected, 1 failed" {
		t.Errorf("outcome = %q", snap.Outcome)
	}
}

func TestRunCancellationLeavesRemainderPending(t *testing.T) {
	reg := device.NewRegistry(nil)
	tr := newFakeTransport()
	o := New(reg, tr, staticCreds{"StadiumNet", "pw"}, testConfig())

	// Cancel as soon as the first device's provisioning call happens;
	// that attempt completes, then the batch stops.
	tr.onProvision = func(deviceID string) {
		if deviceID == "cam-1" {
			o.Cancel()
		}
	}

	batch := seedBatch(t, reg, "cam-1", "cam-2", "cam-3")
	job, err := o.Start(context.Background(), batch, nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForRun(t, o)

	snap := job.Snapshot()
	if snap.Reconnected != 1 {
		t.Errorf("reconnected = %d, want 1 (first device completes its attempt)", snap.Reconnected)
	}
	if tr.provisionCount("cam-2") != 0 || tr.provisionCount("cam-3") != 0 {
		t.Error("devices after the cancellation point were attempted")
	}
	if snap.Status["cam-3"] != StatusPending && snap.Status["cam-3"] != StatusCancelled {
		t.Errorf("cam-3 status = %q, want pending or cancelled", snap.Status["cam-3"])
	}

	// Cancelled runs never auto-complete, even with zero failures.
	select {
	case <-job.Done():
		t.Error("cancelled job auto-completed")
	case <-time.After(100 * time.Millisecond):
	}

	// Cancellation never rolls back devices that made it to connected.
	d, _ := reg.Get("cam-1")
	if d.State != device.StateConnected {
		t.Errorf("cam-1 state = %q after cancel, want connected", d.State)
	}
}

func TestRunCancellationInterruptsRetryDelay(t *testing.T) {
	reg := device.NewRegistry(nil)
	tr := newFakeTransport()
	tr.failAlways["cam-1"] = true

	cfg := testConfig()
	cfg.RetryDelay = 5 * time.Second // cancellation must not wait this out
	o := New(reg, tr, staticCreds{"StadiumNet", "pw"}, cfg)

	batch := seedBatch(t, reg, "cam-1")
	job, err := o.Start(context.Background(), batch, nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Wait for the first attempt, then cancel during the retry delay.
	deadline := time.After(2 * time.Second)
	for tr.provisionCount("cam-1") == 0 {
		select {
		case <-deadline:
			t.Fatal("first attempt never ran")
		case <-time.After(time.Millisecond):
		}
	}
	start := time.Now()
	o.Cancel()
	waitForRun(t, o)

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("run took %s after cancel; retry delay was not interrupted", elapsed)
	}
	if got := tr.provisionCount("cam-1"); got != 1 {
		t.Errorf("provision attempts = %d after cancel, want 1", got)
	}

	status, _ := job.statusOf("cam-1")
	if status != StatusCancelled {
		t.Errorf("status = %q, want cancelled", status)
	}
	d, _ := reg.Get("cam-1")
	if d.State != device.StateDisconnected {
		t.Errorf("state = %q after cancelled attempt, want disconnected", d.State)
	}
}

func TestStartRejectsConcurrentJob(t *testing.T) {
	reg := device.NewRegistry(nil)
	tr := newFakeTransport()
	tr.failAlways["cam-1"] = true
	o := New(reg, tr, staticCreds{"StadiumNet", "pw"}, testConfig())

	batch := seedBatch(t, reg, "cam-1")
	if _, err := o.Start(context.Background(), batch, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := o.Start(context.Background(), batch, nil); !errors.Is(err, ErrJobInProgress) {
		t.Errorf("second Start err = %v, want ErrJobInProgress", err)
	}
	if !o.Busy() {
		t.Error("Busy() = false during an active run")
	}
	waitForRun(t, o)
}

func TestStartRejectsEmptyBatch(t *testing.T) {
	o := New(device.NewRegistry(nil), newFakeTransport(), nil, testConfig())
	if _, err := o.Start(context.Background(), nil, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("err = %v, want ErrEmptyBatch", err)
	}
}

func TestRetryDeviceAfterFailure(t *testing.T) {
	reg := device.NewRegistry(nil)
	tr := newFakeTransport()
	tr.failAlways["cam-1"] = true
	o := New(reg, tr, staticCreds{"StadiumNet", "pw"}, testConfig())

	batch := seedBatch(t, reg, "cam-1")
	job, err := o.Start(context.Background(), batch, nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForRun(t, o)

	// The camera comes back; an explicit retry should now succeed.
	tr.mu.Lock()
	tr.failAlways["cam-1"] = false
	tr.mu.Unlock()

	o.RetryDevice(context.Background(), "cam-1")
	waitForRun(t, o)

	status, _ := job.statusOf("cam-1")
	if status != StatusConnected {
		t.Errorf("status after retry = %q, want connected", status)
	}
	d, _ := reg.Get("cam-1")
	if d.State != device.StateConnected {
		t.Errorf("state after retry = %q, want connected", d.State)
	}

	// Retry of an unknown device is a silent no-op.
	o.RetryDevice(context.Background(), "ghost")
	waitForRun(t, o)
}

func TestSkipDevice(t *testing.T) {
	reg := device.NewRegistry(nil)
	tr := newFakeTransport()
	tr.failAlways["cam-1"] = true
	o := New(reg, tr, staticCreds{"StadiumNet", "pw"}, testConfig())

	batch := seedBatch(t, reg, "cam-1")
	job, err := o.Start(context.Background(), batch, nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForRun(t, o)
	before := tr.provisionCount("cam-1")

	// Terminal devices cannot be skipped again.
	o.SkipDevice(context.Background(), "cam-1")
	snap := job.Snapshot()
	if snap.Failed != 1 {
		t.Errorf("failed = %d after skipping a terminal device, want 1", snap.Failed)
	}

	if tr.provisionCount("cam-1") != before {
		t.Error("skip issued a transport call")
	}

	// Unknown device is a silent no-op.
	o.SkipDevice(context.Background(), "ghost")
}

func TestSkipPendingDevice(t *testing.T) {
	reg := device.NewRegistry(nil)
	tr := newFakeTransport()
	o := New(reg, tr, staticCreds{"StadiumNet", "pw"}, testConfig())

	batch := seedBatch(t, reg, "cam-1")
	job, _ := o.Start(context.Background(), batch, nil)
	waitForRun(t, o)

	// Simulate a pending entry and skip it.
	job.setStatus("cam-1", StatusPending)
	o.SkipDevice(context.Background(), "cam-1")

	status, _ := job.statusOf("cam-1")
	if status != StatusSkipped {
		t.Errorf("status = %q, want skipped", status)
	}
	d, _ := reg.Get("cam-1")
	if d.State != device.StateFailed {
		t.Errorf("state = %q, want failed", d.State)
	}
	if tr.provisionCount("cam-1") > 1 {
		t.Error("skip issued extra transport calls")
	}
}

func TestSkipDuringBatchIsNeverAttempted(t *testing.T) {
	reg := device.NewRegistry(nil)
	tr := newFakeTransport()

	hold := make(chan struct{})
	released := make(chan struct{})
	var once sync.Once
	tr.onProvision = func(deviceID string) {
		if deviceID == "cam-1" {
			once.Do(func() {
				close(hold)
				<-released
			})
		}
	}

	o := New(reg, tr, staticCreds{"StadiumNet", "pw"}, testConfig())
	batch := seedBatch(t, reg, "cam-1", "cam-2")
	job, err := o.Start(context.Background(), batch, nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Skip the still-pending second device while the first is
	// mid-provision, then let the batch loop continue.
	<-hold
	o.SkipDevice(context.Background(), "cam-2")
	close(released)
	waitForRun(t, o)

	if n := tr.provisionCount("cam-2"); n != 0 {
		t.Errorf("skipped device was provisioned %d times, want 0", n)
	}
	snap := job.Snapshot()
	if snap.Status["cam-2"] != StatusSkipped {
		t.Errorf("cam-2 status = %q, want skipped", snap.Status["cam-2"])
	}
	if snap.Reconnected != 1 || snap.Failed != 1 {
		t.Errorf("counters = %d reconnected, %d failed, want 1 and 1",
			snap.Reconnected, snap.Failed)
	}
	if total := snap.Reconnected + snap.Failed; total != len(batch) {
		t.Errorf("reconnected + failed = %d, want %d", total, len(batch))
	}
	d, _ := reg.Get("cam-2")
	if d.State != device.StateFailed {
		t.Errorf("cam-2 state = %q, want failed", d.State)
	}
}

func TestRetryDeviceReconcilesCountersAndOutcome(t *testing.T) {
	reg := device.NewRegistry(nil)
	tr := newFakeTransport()
	tr.failAlways["cam-1"] = true
	o := New(reg, tr, staticCreds{"StadiumNet", "pw"}, testConfig())

	batch := seedBatch(t, reg, "cam-1")
	job, err := o.Start(context.Background(), batch, nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForRun(t, o)

	snap := job.Snapshot()
	if snap.Failed != 1 || snap.Outcome != "all failed" {
		t.Fatalf("after run: %d failed, outcome %q", snap.Failed, snap.Outcome)
	}

	tr.mu.Lock()
	tr.failAlways["cam-1"] = false
	tr.mu.Unlock()

	o.RetryDevice(context.Background(), "cam-1")
	waitForRun(t, o)

	snap = job.Snapshot()
	if snap.Status["cam-1"] != StatusConnected {
		t.Errorf("status after retry = %q, want connected", snap.Status["cam-1"])
	}
	if snap.Reconnected != 1 || snap.Failed != 0 {
		t.Errorf("counters after retry = %d reconnected, %d failed, want 1 and 0",
			snap.Reconnected, snap.Failed)
	}
	if total := snap.Reconnected + snap.Failed; total != len(batch) {
		t.Errorf("reconnected + failed = %d, want %d", total, len(batch))
	}
	if snap.Outcome != "all reconnected" {
		t.Errorf("outcome after retry = %q, want all reconnected", snap.Outcome)
	}
}

func TestFallbackCredentialUsed(t *testing.T) {
	reg := device.NewRegistry(nil)
	tr := newFakeTransport()
	// No saved profiles; the caller-supplied credential must be used.
	o := New(reg, tr, staticCreds{}, testConfig())

	batch := seedBatch(t, reg, "cam-1")
	job, err := o.Start(context.Background(), batch, &Credential{SSID: "EventNet", Password: "pw"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForRun(t, o)

	if snap := job.Snapshot(); snap.Reconnected != 1 {
		t.Errorf("reconnected = %d, want 1", snap.Reconnected)
	}
}

func TestNoCredentialsFailsWithoutTransportCalls(t *testing.T) {
	reg := device.NewRegistry(nil)
	tr := newFakeTransport()
	o := New(reg, tr, staticCreds{}, testConfig())

	batch := seedBatch(t, reg, "cam-1")
	job, err := o.Start(context.Background(), batch, nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForRun(t, o)

	if tr.provisionCount("cam-1") != 0 {
		t.Error("provisioning attempted with no credentials")
	}
	if snap := job.Snapshot(); snap.Failed != 1 {
		t.Errorf("failed = %d, want 1", snap.Failed)
	}
}
