package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	billingapp "jpusap-cobranzas/internal/billing/application"
)

// Clock provides time for cooldown bookkeeping.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders debtor reminders and sends them through a channel in batches.
type Notifier struct {
	channel        Channel
	template       *Template
	clock          Clock
	logger         *zap.Logger
	mu             sync.Mutex
	sent           map[string]sendRecord
	inflight       map[string]bool
	cooldown       time.Duration
	dedupeWindow   time.Duration
	requestTimeout time.Duration
	batchSize      int
	batchPause     time.Duration
	concurrency    int
	association    string
	paymentInfo    string
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithRequestTimeout bounds each send.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// WithCooldown sets a minimum interval between reminders to the same member.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical reminders within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithBatching sends size reminders at a time with pause between batches.
// Gateways throttle bursts, so batches are kept small.
func WithBatching(size int, pause time.Duration) Option {
	return func(n *Notifier) {
		if size > 0 {
			n.batchSize = size
		}
		if pause >= 0 {
			n.batchPause = pause
		}
	}
}

// WithConcurrency caps parallel sends inside a batch.
func WithConcurrency(limit int) Option {
	return func(n *Notifier) {
		if limit > 0 {
			n.concurrency = limit
		}
	}
}

// WithAssociation sets the signature and payment instructions appended to each reminder.
func WithAssociation(name, paymentInfo string) Option {
	return func(n *Notifier) {
		n.association = name
		n.paymentInfo = paymentInfo
	}
}

// NewNotifier constructs a reminder notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("reminder notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:        channel,
		template:       template,
		clock:          systemClock{},
		logger:         zap.NewNop(),
		sent:           make(map[string]sendRecord),
		inflight:       make(map[string]bool),
		requestTimeout: 5 * time.Second,
		batchSize:      20,
		concurrency:    4,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements application.ReminderNotifier. Send failures are counted, not
// returned; only cancellation aborts the run.
func (n *Notifier) Notify(ctx context.Context, reminders []billingapp.Reminder) (billingapp.ReminderResult, error) {
	var (
		result billingapp.ReminderResult
		resMu  sync.Mutex
	)
	count := func(field *int) {
		resMu.Lock()
		*field++
		resMu.Unlock()
	}

	for start := 0; start < len(reminders); start += n.batchSize {
		if start > 0 && n.batchPause > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(n.batchPause):
			}
		}
		end := start + n.batchSize
		if end > len(reminders) {
			end = len(reminders)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(n.concurrency)
		for _, reminder := range reminders[start:end] {
			reminder := reminder
			g.Go(func() error {
				switch n.dispatch(gctx, reminder) {
				case outcomeSent:
					count(&result.Sent)
				case outcomeSkipped:
					count(&result.Skipped)
				default:
					count(&result.Failed)
				}
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return result, err
		}
	}
	return result, nil
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (n *Notifier) dispatch(ctx context.Context, reminder billingapp.Reminder) outcome {
	content, err := n.template.Render(n.templateData(reminder))
	if err != nil {
		n.logger.Warn("render reminder failed", zap.String("empadronado_id", reminder.MemberID), zap.Error(err))
		return outcomeFailed
	}
	if !n.reserve(reminder.MemberID, content) {
		return outcomeSkipped
	}
	delivered := false
	defer func() { n.release(reminder.MemberID, content, delivered) }()
	if n.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.requestTimeout)
		defer cancel()
	}
	if err := n.channel.Send(ctx, Message{To: reminder.Phone, Text: content}); err != nil {
		n.logger.Warn("send reminder failed", zap.String("empadronado_id", reminder.MemberID), zap.Error(err))
		return outcomeFailed
	}
	delivered = true
	return outcomeSent
}

func (n *Notifier) templateData(reminder billingapp.Reminder) TemplateData {
	periods := make([]string, 0, len(reminder.Periods))
	for _, period := range reminder.Periods {
		periods = append(periods, period.Label())
	}
	name := reminder.MemberName
	if name == "" {
		name = reminder.MemberID
	}
	return TemplateData{
		MemberID:     reminder.MemberID,
		MemberName:   name,
		Tier:         string(reminder.Tier),
		TierLabel:    reminder.Tier.Label(),
		OverdueCount: reminder.OverdueCount,
		Periods:      strings.Join(periods, ", "),
		Debt:         "S/ " + reminder.DebtTotal.StringFixed(2),
		Association:  n.association,
		PaymentInfo:  n.paymentInfo,
	}
}

// reserve checks cooldown and dedupe and claims the member in one step, so two reminders for
// the same member in one batch cannot both go out. A claimed member is skipped until release.
func (n *Notifier) reserve(memberID, content string) bool {
	now := n.clock.Now().UTC()
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.inflight[memberID] {
		return false
	}
	if record, ok := n.sent[memberID]; ok {
		if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
			return false
		}
		if n.dedupeWindow > 0 && record.hash == hashContent(content) && now.Sub(record.at) < n.dedupeWindow {
			return false
		}
	}
	n.inflight[memberID] = true
	return true
}

func (n *Notifier) release(memberID, content string, delivered bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.inflight, memberID)
	if delivered {
		n.sent[memberID] = sendRecord{at: n.clock.Now().UTC(), hash: hashContent(content)}
	}
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
