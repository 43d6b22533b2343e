// Package queue hands send jobs to the send worker through SQS. Only the
// first batch is queued by the API; the worker queues each following batch
// once the previous one has finished, so batches never overlap.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/n42group/mailmerge/internal/dispatch"
	"github.com/n42group/mailmerge/internal/logger"
	"github.com/n42group/mailmerge/internal/mail"
	"github.com/n42group/mailmerge/internal/recipients"
)

// MaxDelaySeconds is the largest DelaySeconds SQS accepts.
const MaxDelaySeconds = 900

// MaxMessageBytes is the default SQS message size limit. The first message
// of a job carries every recipient, so it bounds the job size.
const MaxMessageBytes = 256 * 1024

// Message attribute names.
const (
	AttrJobID      = "JobID"
	AttrCampaignID = "CampaignID"
	AttrBatchIndex = "BatchIndex"
)

var (
	// ErrInvalidBatch is returned for message bodies that cannot be sent.
	ErrInvalidBatch = errors.New("invalid batch job")
	// ErrJobTooLarge is returned when the recipient list does not fit in one message.
	ErrJobTooLarge = errors.New("send job exceeds the SQS message size limit")
)

// SQSAPI is the subset of the SQS client used by the publisher.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// BatchJob is the body of one SQS message. Pending holds the recipients of
// every later batch of the job.
type BatchJob struct {
	JobID        string                 `json:"jobId"`
	CampaignID   string                 `json:"campaignId,omitempty"`
	BatchIndex   int                    `json:"batchIndex"`
	BatchCount   int                    `json:"batchCount"`
	Subject      string                 `json:"subject"`
	HTML         string                 `json:"html"`
	Text         string                 `json:"text,omitempty"`
	From         mail.Address           `json:"from"`
	DelayMs      int                    `json:"delayMs"`
	BatchDelayMs int                    `json:"batchDelayMs"`
	BatchSize    int                    `json:"batchSize"`
	Recipients   []recipients.Recipient `json:"recipients"`
	Pending      []recipients.Recipient `json:"pending,omitempty"`
}

// Job converts the batch back into a dispatch job covering only its recipients.
func (b BatchJob) Job() dispatch.Job {
	return dispatch.Job{
		CampaignID: b.CampaignID,
		From:       b.From,
		Subject:    b.Subject,
		HTML:       b.HTML,
		Text:       b.Text,
		Recipients: b.Recipients,
		BatchSize:  len(b.Recipients),
	}
}

// HasNext reports whether recipients remain after this batch.
func (b BatchJob) HasNext() bool {
	return len(b.Pending) > 0
}

// Next returns the batch that follows b.
func (b BatchJob) Next() BatchJob {
	n := b
	n.BatchIndex = b.BatchIndex + 1
	n.Recipients, n.Pending = split(b.Pending, b.BatchSize)
	return n
}

func split(rs []recipients.Recipient, size int) (head, rest []recipients.Recipient) {
	if size < 1 {
		size = 1
	}
	if len(rs) <= size {
		return rs, nil
	}
	return rs[:size], rs[size:]
}

// Decode parses and validates a message body.
func Decode(body string) (BatchJob, error) {
	var b BatchJob
	if err := json.Unmarshal([]byte(body), &b); err != nil {
		return BatchJob{}, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}
	if b.BatchSize < 1 {
		b.BatchSize = len(b.Recipients)
	}
	if b.JobID == "" || b.HTML == "" || len(b.Recipients) == 0 || b.From.Email == "" {
		return BatchJob{}, fmt.Errorf("%w: jobId, html, from and recipients are required", ErrInvalidBatch)
	}
	return b, nil
}

// Enqueued describes a job accepted for asynchronous sending.
type Enqueued struct {
	JobID      string `json:"jobId"`
	Batches    int    `json:"batches"`
	Recipients int    `json:"recipients"`
}

// Publisher writes batch jobs to one queue.
type Publisher struct {
	client   SQSAPI
	queueURL string
}

// NewPublisher returns a Publisher for queueURL.
func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL}
}

// DelaySeconds converts a pause into an SQS delivery delay. Partial seconds
// round up so a short pause is never dropped; the result is capped at
// MaxDelaySeconds.
func DelaySeconds(d time.Duration) int32 {
	if d <= 0 {
		return 0
	}
	secs := int64((d + time.Second - 1) / time.Second)
	if secs > MaxDelaySeconds {
		secs = MaxDelaySeconds
	}
	return int32(secs)
}

// Enqueue publishes the first batch of job for immediate delivery. The
// message carries the remaining recipients; the worker publishes each later
// batch with PublishNext after the previous one finished sending. On error
// nothing has been queued.
func (p *Publisher) Enqueue(ctx context.Context, job dispatch.Job, delay, batchDelay time.Duration) (Enqueued, error) {
	size := job.BatchSize
	if size < 1 {
		size = 1
	}
	first := BatchJob{
		JobID:        uuid.New().String(),
		CampaignID:   job.CampaignID,
		BatchCount:   (len(job.Recipients) + size - 1) / size,
		Subject:      job.Subject,
		HTML:         job.HTML,
		Text:         job.Text,
		From:         job.From,
		DelayMs:      int(delay / time.Millisecond),
		BatchDelayMs: int(batchDelay / time.Millisecond),
		BatchSize:    size,
	}
	first.Recipients, first.Pending = split(job.Recipients, size)

	if err := p.publish(ctx, first, 0); err != nil {
		return Enqueued{}, err
	}

	logger.Info("Enqueued send job",
		zap.String("job_id", first.JobID),
		zap.String("campaign_id", job.CampaignID),
		zap.Int("batches", first.BatchCount),
		zap.Int("recipients", len(job.Recipients)))

	return Enqueued{JobID: first.JobID, Batches: first.BatchCount, Recipients: len(job.Recipients)}, nil
}

// PublishNext queues the batch after done, delayed by the job's batch delay.
// It does nothing when done was the last batch.
func (p *Publisher) PublishNext(ctx context.Context, done BatchJob) error {
	if !done.HasNext() {
		return nil
	}
	next := done.Next()
	return p.publish(ctx, next, DelaySeconds(time.Duration(done.BatchDelayMs)*time.Millisecond))
}

func (p *Publisher) publish(ctx context.Context, batch BatchJob, delaySeconds int32) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal batch job: %w", err)
	}
	if len(body) > MaxMessageBytes {
		return fmt.Errorf("%w: %d bytes", ErrJobTooLarge, len(body))
	}

	attrs := map[string]types.MessageAttributeValue{
		AttrJobID:      {DataType: aws.String("String"), StringValue: aws.String(batch.JobID)},
		AttrBatchIndex: {DataType: aws.String("Number"), StringValue: aws.String(strconv.Itoa(batch.BatchIndex))},
	}
	if batch.CampaignID != "" {
		attrs[AttrCampaignID] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(batch.CampaignID)}
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(p.queueURL),
		MessageBody:       aws.String(string(body)),
		DelaySeconds:      delaySeconds,
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("failed to send batch %d to SQS: %w", batch.BatchIndex, err)
	}
	return nil
}
