// Package dispatch runs the sequential, paced send loop for one job.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/n42group/mailmerge/internal/logger"
	"github.com/n42group/mailmerge/internal/mail"
	"github.com/n42group/mailmerge/internal/pacing"
	"github.com/n42group/mailmerge/internal/recipients"
	"github.com/n42group/mailmerge/internal/render"
	"github.com/n42group/mailmerge/internal/sendlog"
)

// DefaultSendTimeout bounds a single Send call when none is configured.
const DefaultSendTimeout = 30 * time.Second

const recordTimeout = 5 * time.Second

// ErrNotAttempted marks recipients left over when the context ended.
var ErrNotAttempted = errors.New("not attempted: request ended before this recipient was reached")

// OpenError reports that the transport could not be opened, so nothing was sent.
type OpenError struct {
	Provider string
	Err      error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s transport: %v", e.Provider, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// Job is one unit of sending: a template, a sender and its recipients.
type Job struct {
	CampaignID string
	From       mail.Address
	Subject    string
	HTML       string
	Text       string
	Recipients []recipients.Recipient
	BatchSize  int
}

// Result is the outcome for one recipient.
type Result struct {
	Email     string `json:"email"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

// Summary aggregates the results of a job, in recipient order.
type Summary struct {
	OK           bool     `json:"ok"`
	Sent         int      `json:"sent"`
	Failed       int      `json:"failed"`
	Skipped      int      `json:"skipped"`
	NotAttempted int      `json:"notAttempted,omitempty"`
	Incomplete   bool     `json:"incomplete,omitempty"`
	Results      []Result `json:"results"`
}

// Dispatcher sends jobs through one transport.
type Dispatcher struct {
	Transport   mail.Transport
	Pacer       pacing.Pacer
	Renderer    render.Renderer
	SendLog     sendlog.Store
	SendTimeout time.Duration
	Log         *zap.Logger
}

// Run opens the transport and sends to every recipient in order. Recipients
// already in the send log for job.CampaignID are reported as skipped and do
// not count towards batching. PauseBatch runs once between consecutive
// batches. A single failed recipient never stops the loop; a cancelled ctx
// does, and the rest are reported with ErrNotAttempted.
//
// The returned error is non-nil only when nothing could be attempted.
func (d *Dispatcher) Run(ctx context.Context, job Job) (Summary, error) {
	log := d.Log
	if log == nil {
		log = logger.L()
	}
	pacer := d.Pacer
	if pacer == nil {
		pacer = pacing.Unpaced{}
	}
	timeout := d.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	batchSize := job.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	results := make([]Result, len(job.Recipients))
	summary := Summary{OK: true, Results: results}

	delivered, err := d.delivered(ctx, job.CampaignID)
	if err != nil {
		return summary, err
	}

	pending := make([]int, 0, len(job.Recipients))
	for i, r := range job.Recipients {
		if _, done := delivered[sendlog.NormalizeEmail(r.Email)]; done {
			results[i] = Result{Email: r.Email, OK: true, Skipped: true}
			summary.Skipped++
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return summary, nil
	}

	session, err := d.Transport.Open(ctx)
	if err != nil {
		return summary, &OpenError{Provider: d.Transport.Name(), Err: err}
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Debug("Closing mail session failed", zap.Error(cerr))
		}
	}()

	log.Info("Starting send loop",
		zap.String("provider", d.Transport.Name()),
		zap.String("campaign_id", job.CampaignID),
		zap.Int("recipients", len(pending)),
		zap.Int("skipped", summary.Skipped),
		zap.Int("batch_size", batchSize))

	for n, idx := range pending {
		if n > 0 && n%batchSize == 0 {
			if err := pacer.PauseBatch(ctx); err != nil {
				d.abandon(&summary, job, pending[n:], log, err)
				break
			}
		}
		if err := pacer.Acquire(ctx); err != nil {
			d.abandon(&summary, job, pending[n:], log, err)
			break
		}

		results[idx] = d.sendOne(ctx, session, job, job.Recipients[idx], timeout, log)
		if results[idx].OK {
			summary.Sent++
		} else {
			summary.Failed++
		}
	}

	log.Info("Send loop finished",
		zap.String("campaign_id", job.CampaignID),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("not_attempted", summary.NotAttempted))

	return summary, nil
}

func (d *Dispatcher) delivered(ctx context.Context, campaignID string) (map[string]struct{}, error) {
	if campaignID == "" || d.SendLog == nil {
		return nil, nil
	}
	delivered, err := d.SendLog.Delivered(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load send log for campaign %s: %w", campaignID, err)
	}
	return delivered, nil
}

func (d *Dispatcher) sendOne(ctx context.Context, session mail.Session, job Job, r recipients.Recipient, timeout time.Duration, log *zap.Logger) Result {
	msg := mail.NewMessage(
		job.From,
		mail.Address{Name: r.Name, Email: r.Email},
		job.Subject,
		d.Renderer.HTML(job.HTML, r.Name),
		d.Renderer.Text(job.Text, r.Name),
	)

	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	id, err := session.Send(sendCtx, msg)
	cancel()
	if err != nil {
		log.Warn("Send failed", zap.String("email", r.Email), zap.Error(err))
		return Result{Email: r.Email, OK: false, Error: err.Error()}
	}

	if job.CampaignID != "" && d.SendLog != nil {
		entry := sendlog.Entry{
			CampaignID: job.CampaignID,
			Email:      r.Email,
			Provider:   d.Transport.Name(),
			MessageID:  id,
			SentAt:     time.Now().UTC(),
		}
		// The mail is out; keep the record even if the invocation is ending.
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		err := d.SendLog.Record(recordCtx, entry)
		cancel()
		if err != nil {
			log.Warn("Recording send log entry failed", zap.String("email", r.Email), zap.Error(err))
		}
	}

	log.Debug("Sent", zap.String("email", r.Email), zap.String("message_id", id))
	return Result{Email: r.Email, OK: true, MessageID: id}
}

func (d *Dispatcher) abandon(summary *Summary, job Job, rest []int, log *zap.Logger, cause error) {
	log.Warn("Send loop stopped early", zap.Int("not_attempted", len(rest)), zap.Error(cause))
	summary.Incomplete = true
	for _, idx := range rest {
		summary.Results[idx] = Result{Email: job.Recipients[idx].Email, OK: false, Error: ErrNotAttempted.Error()}
		summary.NotAttempted++
		summary.Failed++
	}
}
