package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"go-cryptopay/payment/asset"
	"go-cryptopay/payment/db"
	"go-cryptopay/payment/db/dbtest"
	"go-cryptopay/payment/ledger"
	"go-cryptopay/payment/reconcile"
)

const (
	wallet    = "Wallet111111111111111111111111111111111111"
	daddyMint = "4Cnk9EPnW5ixfLZatCPJjDB1PUtcRpVVgTQukm9epump"
)

var (
	assets = asset.NewSet("solana", "DADDY", daddyMint, "daddy-tate")
	t0     = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	cfg    = reconcile.Config{
		PollInterval:    time.Minute,
		StalenessWindow: 2 * time.Hour,
		LedgerTimeout:   time.Second,
		Concurrency:     4,
	}
)

type fakeLedger struct {
	mu        sync.Mutex
	transfers map[string]*ledger.Transfer
	earlier   map[string][]*ledger.Transfer // older candidates, oldest first
	errs      map[string]error
	calls     int
	hook      func() // runs before answering
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		transfers: map[string]*ledger.Transfer{},
		earlier:   map[string][]*ledger.Transfer{},
		errs:      map[string]error{},
	}
}

func (f *fakeLedger) FindTransfer(ctx context.Context, q ledger.Query) (*ledger.Transfer, error) {
	f.mu.Lock()
	f.calls++
	hook := f.hook
	candidates := append([]*ledger.Transfer(nil), f.earlier[q.Reference]...)
	if t := f.transfers[q.Reference]; t != nil {
		candidates = append(candidates, t)
	}
	err := f.errs[q.Reference]
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}

	var last *ledger.Transfer
	for _, t := range candidates {
		cp := *t
		if q.Accept == nil || q.Accept(&cp) {
			return &cp, nil
		}
		last = &cp
	}
	if last == nil {
		return nil, ledger.ErrNotFound
	}
	return last, nil
}

func (f *fakeLedger) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	calls atomic.Int32
	err   error
}

func (n *fakeNotifier) Notify(ctx context.Context, p *db.PaymentRequest) error {
	n.calls.Add(1)
	if p.Status != db.StatusVerified || p.Signature == "" {
		return errors.New("notified before verification")
	}
	return n.err
}

func pending(ref string, created time.Time) db.PaymentRequest {
	return db.PaymentRequest{
		Reference: ref,
		Recipient: wallet,
		Token:     "SOL",
		Amount:    decimal.RequireFromString("6.000000000"),
		CartTotal: decimal.NewFromInt(150),
		Status:    db.StatusPending,
		CreatedAt: created,
	}
}

func paid(ref, sig string) *ledger.Transfer {
	return &ledger.Transfer{
		Signature: sig,
		Recipient: wallet,
		Amount:    decimal.NewFromInt(6),
	}
}

func clock(at time.Time) reconcile.Option {
	return reconcile.WithClock(func() time.Time { return at })
}

func TestStaleRequestIsCancelledNotVerified(t *testing.T) {
	store := dbtest.NewMemory()
	store.Put(pending("stale", t0))
	l := newFakeLedger()
	l.transfers["stale"] = paid("stale", "sig")
	n := &fakeNotifier{}

	w := reconcile.NewWorker(store, l, n, assets, cfg, clock(t0.Add(2*time.Hour+time.Second)))
	report, err := w.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	p, _ := store.Get("stale")
	if p.Status != db.StatusCancelled || p.Signature != "" {
		t.Errorf("status %s signature %q, want cancelled with no signature", p.Status, p.Signature)
	}
	if report.Expired != 1 || report.Verified != 0 || report.Checked != 0 {
		t.Errorf("report = %+v", report)
	}
	if l.Calls() != 0 || n.calls.Load() != 0 {
		t.Errorf("cancelled request reached the ledger or the notifier")
	}

	// Later cycles leave it alone.
	w.RunCycle(context.Background())
	if p, _ := store.Get("stale"); p.Status != db.StatusCancelled {
		t.Errorf("status = %s after second cycle", p.Status)
	}
}

func TestRequestWithinWindowIsVerified(t *testing.T) {
	store := dbtest.NewMemory()
	store.Put(pending("fresh", t0))
	l := newFakeLedger()
	l.transfers["fresh"] = paid("fresh", "sig-fresh")
	n := &fakeNotifier{}
	now := t0.Add(2*time.Hour - time.Second)

	w := reconcile.NewWorker(store, l, n, assets, cfg, clock(now))
	report, err := w.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	p, _ := store.Get("fresh")
	if p.Status != db.StatusVerified || p.Signature != "sig-fresh" {
		t.Errorf("status %s signature %q", p.Status, p.Signature)
	}
	if p.VerifiedAt == nil || !p.VerifiedAt.Equal(now) {
		t.Errorf("verifiedAt = %v, want %v", p.VerifiedAt, now)
	}
	if report.Verified != 1 || report.Checked != 1 {
		t.Errorf("report = %+v", report)
	}
	if n.calls.Load() != 1 {
		t.Errorf("notified %d times, want 1", n.calls.Load())
	}

	report, _ = w.RunCycle(context.Background())
	if report.Checked != 0 || n.calls.Load() != 1 {
		t.Errorf("verified request checked again: %+v", report)
	}
}

func TestLaterTransactionSettlesAfterUnderpayment(t *testing.T) {
	store := dbtest.NewMemory()
	store.Put(pending("ref", t0))
	l := newFakeLedger()
	short := paid("ref", "sig-short")
	short.Amount = decimal.RequireFromString("0.000001")
	l.transfers["ref"] = short
	n := &fakeNotifier{}

	w := reconcile.NewWorker(store, l, n, assets, cfg, clock(t0.Add(time.Minute)))
	report, _ := w.RunCycle(context.Background())
	if report.Mismatched != 1 {
		t.Fatalf("first cycle report = %+v, want a mismatch", report)
	}
	if p, _ := store.Get("ref"); p.Status != db.StatusPending {
		t.Fatalf("status = %s after underpayment", p.Status)
	}

	// The customer pays in full with the same reference.
	l.mu.Lock()
	l.earlier["ref"] = []*ledger.Transfer{short}
	l.transfers["ref"] = paid("ref", "sig-full")
	l.mu.Unlock()

	report, _ = w.RunCycle(context.Background())
	p, _ := store.Get("ref")
	if p.Status != db.StatusVerified || p.Signature != "sig-full" {
		t.Errorf("status %s signature %q, want verified by sig-full", p.Status, p.Signature)
	}
	if report.Verified != 1 || n.calls.Load() != 1 {
		t.Errorf("report = %+v, notified %d times", report, n.calls.Load())
	}
}

func TestNotFoundStaysPending(t *testing.T) {
	store := dbtest.NewMemory()
	store.Put(pending("unpaid", t0))

	w := reconcile.NewWorker(store, newFakeLedger(), &fakeNotifier{}, assets, cfg, clock(t0.Add(time.Minute)))
	report, _ := w.RunCycle(context.Background())

	if p, _ := store.Get("unpaid"); p.Status != db.StatusPending {
		t.Errorf("status = %s, want pending", p.Status)
	}
	if report.NotFound != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestConcurrentWorkersVerifyOnce(t *testing.T) {
	store := dbtest.NewMemory()
	store.Put(pending("ref", t0))

	// Both workers must hold a ledger answer before either updates the store.
	var arrived sync.WaitGroup
	arrived.Add(2)
	l := newFakeLedger()
	l.transfers["ref"] = paid("ref", "sig")
	l.hook = func() {
		arrived.Done()
		arrived.Wait()
	}
	n := &fakeNotifier{}

	w1 := reconcile.NewWorker(store, l, n, assets, cfg, clock(t0.Add(time.Minute)))
	w2 := reconcile.NewWorker(store, l, n, assets, cfg, clock(t0.Add(time.Minute)))

	var wg sync.WaitGroup
	reports := make([]reconcile.CycleReport, 2)
	for i, w := range []*reconcile.Worker{w1, w2} {
		wg.Add(1)
		go func(i int, w *reconcile.Worker) {
			defer wg.Done()
			reports[i], _ = w.RunCycle(context.Background())
		}(i, w)
	}
	wg.Wait()

	if got := reports[0].Verified + reports[1].Verified; got != 1 {
		t.Errorf("verified %d times, want 1 (%+v)", got, reports)
	}
	if n.calls.Load() != 1 {
		t.Errorf("notified %d times, want 1", n.calls.Load())
	}
	if p, _ := store.Get("ref"); p.Status != db.StatusVerified {
		t.Errorf("status = %s", p.Status)
	}
}

func TestOverlappingCyclesSkipInFlight(t *testing.T) {
	store := dbtest.NewMemory()
	store.Put(pending("ref", t0))

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	l := newFakeLedger()
	l.transfers["ref"] = paid("ref", "sig")
	l.hook = func() {
		once.Do(func() { close(entered) })
		<-release
	}
	n := &fakeNotifier{}
	w := reconcile.NewWorker(store, l, n, assets, cfg, clock(t0.Add(time.Minute)))

	done := make(chan reconcile.CycleReport)
	go func() {
		r, _ := w.RunCycle(context.Background())
		done <- r
	}()
	<-entered

	second, err := w.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if second.Skipped != 1 || second.Checked != 0 {
		t.Errorf("second cycle = %+v, want the reference skipped", second)
	}

	close(release)
	first := <-done
	if first.Verified != 1 || n.calls.Load() != 1 {
		t.Errorf("first cycle = %+v, notified %d", first, n.calls.Load())
	}
}

func TestMismatchStaysPending(t *testing.T) {
	tests := []struct {
		name  string
		tr    *ledger.Transfer
		field string
	}{
		{"short amount", &ledger.Transfer{Signature: "s", Recipient: wallet, Amount: decimal.RequireFromString("5.999999999")}, "amount"},
		{"over amount", &ledger.Transfer{Signature: "s", Recipient: wallet, Amount: decimal.NewFromInt(7)}, "amount"},
		{"wrong asset", &ledger.Transfer{Signature: "s", Recipient: wallet, Mint: daddyMint, Amount: decimal.NewFromInt(6)}, "splToken"},
		{"not credited", &ledger.Transfer{Signature: "s"}, "recipient"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := dbtest.NewMemory()
			store.Put(pending("ref", t0))
			l := newFakeLedger()
			l.transfers["ref"] = tt.tr
			n := &fakeNotifier{}
			core, logs := observer.New(zapcore.InfoLevel)

			w := reconcile.NewWorker(store, l, n, assets, cfg,
				clock(t0.Add(time.Minute)), reconcile.WithLogger(zap.New(core)))
			report, _ := w.RunCycle(context.Background())

			p, _ := store.Get("ref")
			if p.Status != db.StatusPending || p.Signature != "" {
				t.Errorf("status %s signature %q, want pending with none", p.Status, p.Signature)
			}
			if report.Mismatched != 1 || n.calls.Load() != 0 {
				t.Errorf("report = %+v, notified %d", report, n.calls.Load())
			}

			entries := logs.FilterMessage("payment mismatch").All()
			if len(entries) != 1 {
				t.Fatalf("%d mismatch log entries, want 1", len(entries))
			}
			fields := entries[0].ContextMap()
			if fields["reference"] != "ref" {
				t.Errorf("log reference = %v", fields["reference"])
			}
			ms, ok := fields["fields"].([]reconcile.Mismatch)
			if !ok || len(ms) == 0 {
				t.Fatalf("log fields = %#v", fields["fields"])
			}
			found := false
			for _, m := range ms {
				found = found || m.Field == tt.field
			}
			if !found {
				t.Errorf("mismatch %v does not name %s", ms, tt.field)
			}
		})
	}
}

func TestFailuresAreIsolated(t *testing.T) {
	store := dbtest.NewMemory()
	store.Put(pending("broken", t0))
	store.Put(pending("slow", t0.Add(time.Second)))
	store.Put(pending("unpaid", t0.Add(2*time.Second)))
	store.Put(pending("paid", t0.Add(3*time.Second)))

	l := newFakeLedger()
	l.errs["broken"] = errors.New("connection reset")
	l.errs["slow"] = ledger.ErrQueryTimeout
	l.transfers["paid"] = paid("paid", "sig")
	n := &fakeNotifier{}

	w := reconcile.NewWorker(store, l, n, assets, cfg, clock(t0.Add(time.Minute)))
	report, err := w.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if report.Checked != 4 || report.Failed != 2 || report.NotFound != 1 || report.Verified != 1 {
		t.Errorf("report = %+v", report)
	}
	for _, ref := range []string{"broken", "slow", "unpaid"} {
		if p, _ := store.Get(ref); p.Status != db.StatusPending {
			t.Errorf("%s status = %s, want pending", ref, p.Status)
		}
	}
	if p, _ := store.Get("paid"); p.Status != db.StatusVerified {
		t.Errorf("paid status = %s", p.Status)
	}
}

func TestNotificationFailureKeepsVerified(t *testing.T) {
	store := dbtest.NewMemory()
	store.Put(pending("ref", t0))
	l := newFakeLedger()
	l.transfers["ref"] = paid("ref", "sig")
	n := &fakeNotifier{err: errors.New("webhook down")}
	core, logs := observer.New(zapcore.ErrorLevel)

	w := reconcile.NewWorker(store, l, n, assets, cfg,
		clock(t0.Add(time.Minute)), reconcile.WithLogger(zap.New(core)))
	report, _ := w.RunCycle(context.Background())

	if p, _ := store.Get("ref"); p.Status != db.StatusVerified {
		t.Errorf("status = %s, want verified", p.Status)
	}
	if report.Verified != 1 || n.calls.Load() != 1 {
		t.Errorf("report = %+v, notified %d", report, n.calls.Load())
	}
	if logs.FilterMessage("notification failed").Len() != 1 {
		t.Error("notification failure was not logged")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store := dbtest.NewMemory()
	store.Put(pending("ref", t0))
	l := newFakeLedger()

	c := cfg
	c.PollInterval = 10 * time.Millisecond
	w := reconcile.NewWorker(store, l, &fakeNotifier{}, assets, c, clock(t0.Add(time.Minute)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if l.Calls() < 2 {
		t.Errorf("ledger called %d times, want a cycle per tick", l.Calls())
	}
}
