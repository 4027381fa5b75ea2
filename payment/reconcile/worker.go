// Package reconcile drives pending payment requests to a terminal state by
// polling the ledger.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"go-cryptopay/log"
	"go-cryptopay/payment/asset"
	"go-cryptopay/payment/db"
	"go-cryptopay/payment/ledger"
)

type Finder interface {
	FindTransfer(ctx context.Context, q ledger.Query) (*ledger.Transfer, error)
}

type Notifier interface {
	Notify(ctx context.Context, p *db.PaymentRequest) error
}

type Config struct {
	PollInterval    time.Duration
	StalenessWindow time.Duration
	LedgerTimeout   time.Duration
	NotifyTimeout   time.Duration
	Concurrency     int
	BatchSize       int // pending requests checked per cycle, all when <= 0
}

// CycleReport counts what one cycle did.
type CycleReport struct {
	Expired    int64 `json:"expired"`
	Checked    int   `json:"checked"`
	Verified   int   `json:"verified"`
	Mismatched int   `json:"mismatched"`
	NotFound   int   `json:"notFound"`
	Failed     int   `json:"failed"`
	Skipped    int   `json:"skipped"` // already in flight, or settled elsewhere
}

func (r CycleReport) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt64("expired", r.Expired)
	enc.AddInt("checked", r.Checked)
	enc.AddInt("verified", r.Verified)
	enc.AddInt("mismatched", r.Mismatched)
	enc.AddInt("notFound", r.NotFound)
	enc.AddInt("failed", r.Failed)
	enc.AddInt("skipped", r.Skipped)
	return nil
}

type outcome int

const (
	outcomeNotFound outcome = iota
	outcomeVerified
	outcomeMismatched
	outcomeFailed
	outcomeSkipped
)

// Worker runs the expiration and verification passes.
type Worker struct {
	store    db.Store
	ledger   Finder
	notifier Notifier
	assets   asset.Set
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

type Option func(*Worker)

func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

func NewWorker(store db.Store, finder Finder, notifier Notifier, assets asset.Set, cfg Config, opts ...Option) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	w := &Worker{
		store:    store,
		ledger:   finder,
		notifier: notifier,
		assets:   assets,
		cfg:      cfg,
		logger:   log.L(),
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named("reconcile")
	return w
}

// Run starts a cycle right away and then every PollInterval until ctx is
// cancelled. A cycle in progress is allowed to finish.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.logger.Info("worker started",
		zap.Duration("interval", w.cfg.PollInterval),
		zap.Duration("staleness", w.cfg.StalenessWindow))
	for {
		if _, err := w.RunCycle(context.WithoutCancel(ctx)); err != nil {
			w.logger.Error("cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunCycle expires stale requests and then checks every remaining pending
// request against the ledger. Per-request failures are counted and logged;
// only store failures of the two passes abort the cycle.
func (w *Worker) RunCycle(ctx context.Context) (CycleReport, error) {
	var report CycleReport
	now := w.now()

	expired, err := w.store.ExpirePending(ctx, now.Add(-w.cfg.StalenessWindow), now)
	if err != nil {
		return report, fmt.Errorf("expiration pass: %w", err)
	}
	report.Expired = expired
	if expired > 0 {
		w.logger.Info("expired stale payment requests", zap.Int64("count", expired))
	}

	pending, err := w.store.ListByStatus(ctx, db.StatusPending, w.cfg.BatchSize)
	if err != nil {
		return report, fmt.Errorf("list pending: %w", err)
	}

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(w.cfg.Concurrency)
	tally := func(o outcome) {
		mu.Lock()
		defer mu.Unlock()
		switch o {
		case outcomeVerified:
			report.Verified++
		case outcomeMismatched:
			report.Mismatched++
		case outcomeNotFound:
			report.NotFound++
		case outcomeFailed:
			report.Failed++
		case outcomeSkipped:
			report.Skipped++
		}
	}

	for i := range pending {
		p := &pending[i]
		if !w.claim(p.Reference) {
			tally(outcomeSkipped)
			continue
		}
		report.Checked++
		g.Go(func() error {
			defer w.release(p.Reference)
			tally(w.verify(ctx, p))
			return nil
		})
	}
	g.Wait()

	w.logger.Debug("cycle done", zap.Object("report", report))
	return report, nil
}

func (w *Worker) claim(reference string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inflight[reference]; busy {
		return false
	}
	w.inflight[reference] = struct{}{}
	return true
}

func (w *Worker) release(reference string) {
	w.mu.Lock()
	delete(w.inflight, reference)
	w.mu.Unlock()
}

func (w *Worker) verify(ctx context.Context, p *db.PaymentRequest) outcome {
	logger := w.logger.With(zap.String("reference", p.Reference))

	a, err := w.assets.ForRecord(p.Token, p.SplToken)
	if err != nil {
		logger.Error("request has an unknown asset", zap.Error(err))
		return outcomeFailed
	}

	t, err := w.find(ctx, p, a)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return outcomeNotFound
	case err != nil:
		logger.Warn("ledger query failed", zap.Error(err))
		return outcomeFailed
	}

	if err := match(p, a, t); err != nil {
		var merr *MismatchError
		errors.As(err, &merr)
		logger.Warn("payment mismatch",
			zap.String("signature", t.Signature),
			zap.Any("fields", merr.Fields),
			zap.Error(err))
		return outcomeMismatched
	}

	at := w.now()
	ok, err := w.store.MarkVerified(ctx, p.Reference, t.Signature, at)
	if err != nil {
		logger.Error("mark verified", zap.Error(err))
		return outcomeFailed
	}
	if !ok {
		logger.Info("request settled elsewhere")
		return outcomeSkipped
	}

	p.Status = db.StatusVerified
	p.Signature = t.Signature
	p.VerifiedAt = &at
	p.UpdatedAt = at
	logger.Info("payment verified",
		zap.String("signature", t.Signature),
		zap.String("amount", p.Amount.String()),
		zap.String("token", p.Token))

	w.notify(ctx, logger, p)
	return outcomeVerified
}

// find looks for a transaction settling p. Earlier transactions carrying the
// reference that do not match, such as an underpayment, do not hide a later one
// that does.
func (w *Worker) find(ctx context.Context, p *db.PaymentRequest, a asset.Asset) (*ledger.Transfer, error) {
	if w.cfg.LedgerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.LedgerTimeout)
		defer cancel()
	}
	return w.ledger.FindTransfer(ctx, ledger.Query{
		Reference: p.Reference,
		Recipient: p.Recipient,
		Mint:      p.SplToken,
		Accept: func(t *ledger.Transfer) bool {
			return match(p, a, t) == nil
		},
	})
}

func (w *Worker) notify(ctx context.Context, logger *zap.Logger, p *db.PaymentRequest) {
	if w.notifier == nil {
		return
	}
	if w.cfg.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.NotifyTimeout)
		defer cancel()
	}
	if err := w.notifier.Notify(ctx, p); err != nil {
		logger.Error("notification failed", zap.Error(err))
		return
	}
	logger.Info("notification sent")
}
