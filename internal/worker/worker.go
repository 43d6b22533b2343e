// Package worker consumes queued send batches.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/n42group/mailmerge/internal/config"
	"github.com/n42group/mailmerge/internal/dispatch"
	"github.com/n42group/mailmerge/internal/logger"
	"github.com/n42group/mailmerge/internal/mail"
	"github.com/n42group/mailmerge/internal/pacing"
	"github.com/n42group/mailmerge/internal/queue"
	"github.com/n42group/mailmerge/internal/render"
	"github.com/n42group/mailmerge/internal/sendlog"
)

// ErrIncomplete marks a batch cut short by the invocation deadline.
var ErrIncomplete = errors.New("batch ended before every recipient was attempted")

const publishTimeout = 10 * time.Second

// NextPublisher queues the batch that follows a finished one.
type NextPublisher interface {
	PublishNext(ctx context.Context, done queue.BatchJob) error
}

// Processor sends the batches delivered by SQS.
type Processor struct {
	cfg          *config.Config
	transport    mail.Transport
	transportErr error
	sendLog      sendlog.Store
	next         NextPublisher
	log          *zap.Logger
}

// NewProcessor builds the transport once per container. A configuration
// error is kept and fails every record so the messages stay queued. next
// queues the following batch of a job once a batch has been sent.
func NewProcessor(cfg *config.Config, newTransport func(*config.Config) (mail.Transport, error), store sendlog.Store, next NextPublisher) *Processor {
	if newTransport == nil {
		newTransport = mail.NewTransport
	}
	p := &Processor{
		cfg:     cfg,
		sendLog: store,
		next:    next,
		log:     logger.L().With(zap.String("component", "send-worker")),
	}
	p.transport, p.transportErr = newTransport(cfg)
	if p.transportErr != nil {
		p.log.Error("Mail transport is not configured", zap.Error(p.transportErr))
	}
	return p
}

// HandleSQSEvent processes every record and reports the ones that should be
// redelivered: malformed bodies, transport open failures and, when the send
// log makes a retry safe, batches cut short by the deadline. Per-recipient
// send failures are logged and not retried.
func (p *Processor) HandleSQSEvent(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	p.log.Info("Send worker handling SQS event", zap.Int("record_count", len(event.Records)))

	var resp events.SQSEventResponse
	for _, record := range event.Records {
		if err := p.processRecord(ctx, record); err != nil {
			p.log.Error("Failed to process send batch",
				zap.String("message_id", record.MessageId),
				zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}

	p.log.Info("Send worker finished",
		zap.Int("records", len(event.Records)),
		zap.Int("failed", len(resp.BatchItemFailures)))
	return resp, nil
}

func (p *Processor) processRecord(ctx context.Context, record events.SQSMessage) error {
	batch, err := queue.Decode(record.Body)
	if err != nil {
		return err
	}
	if p.transportErr != nil {
		return p.transportErr
	}

	log := p.log.With(
		zap.String("job_id", batch.JobID),
		zap.Int("batch_index", batch.BatchIndex),
		zap.Int("batch_count", batch.BatchCount),
		zap.String("message_id", record.MessageId))

	d := &dispatch.Dispatcher{
		Transport:   p.transport,
		Pacer:       pacing.NewIntervalPacer(time.Duration(batch.DelayMs)*time.Millisecond, 0),
		Renderer:    render.Renderer{EscapeName: p.cfg.EscapeName},
		SendLog:     p.sendLog,
		SendTimeout: p.cfg.SendTimeout,
		Log:         log,
	}
	summary, err := d.Run(ctx, batch.Job())
	if err != nil {
		return fmt.Errorf("batch %d of job %s: %w", batch.BatchIndex, batch.JobID, err)
	}

	for _, r := range summary.Results {
		if !r.OK {
			log.Warn("Recipient failed", zap.String("email", r.Email), zap.String("error", r.Error))
		}
	}
	log.Info("Batch sent",
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped))

	if summary.Incomplete {
		if p.retrySafe(batch) {
			return ErrIncomplete
		}
		log.Error("Batch incomplete and cannot be retried without a campaign send log",
			zap.Int("not_attempted", summary.NotAttempted))
	}
	return p.chain(ctx, batch, log)
}

// retrySafe reports whether redelivering batch cannot send twice to anyone.
func (p *Processor) retrySafe(batch queue.BatchJob) bool {
	return batch.CampaignID != "" && p.sendLog != nil
}

// chain queues the next batch of the job. It runs only after the current
// batch is done, which keeps the batches of one job from overlapping.
func (p *Processor) chain(ctx context.Context, batch queue.BatchJob, log *zap.Logger) error {
	if !batch.HasNext() {
		log.Info("Send job finished")
		return nil
	}
	if p.next == nil {
		log.Error("No queue configured for the next batch; remaining recipients were not sent",
			zap.Int("pending", len(batch.Pending)))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.next.PublishNext(ctx, batch); err != nil {
		if p.retrySafe(batch) {
			return fmt.Errorf("queue batch %d of job %s: %w", batch.BatchIndex+1, batch.JobID, err)
		}
		log.Error("Failed to queue the next batch; remaining recipients were not sent",
			zap.Int("pending", len(batch.Pending)),
			zap.Error(err))
		return nil
	}
	log.Info("Queued next batch",
		zap.Int("next_index", batch.BatchIndex+1),
		zap.Int("delay_ms", batch.BatchDelayMs))
	return nil
}
