package worker

import (
	"context"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/n42group/mailmerge/internal/logger"
	"github.com/n42group/mailmerge/internal/queue"
)

// DeadBatch describes one batch that exhausted its SQS redeliveries. Pending
// lists the later recipients of the job, which were never queued.
type DeadBatch struct {
	MessageID    string   `json:"messageId"`
	JobID        string   `json:"jobId,omitempty"`
	CampaignID   string   `json:"campaignId,omitempty"`
	BatchIndex   int      `json:"batchIndex"`
	ReceiveCount int      `json:"receiveCount"`
	Recipients   []string `json:"recipients,omitempty"`
	Pending      []string `json:"pending,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// DeadLetterHandler reports batches that landed in the dead-letter queue so
// an operator can resend them. It never asks for redelivery.
type DeadLetterHandler struct {
	log *zap.Logger
}

// NewDeadLetterHandler returns a handler logging through the global logger.
func NewDeadLetterHandler() *DeadLetterHandler {
	return &DeadLetterHandler{log: logger.L().With(zap.String("component", "send-dlq"))}
}

// HandleSQSEvent logs every dead batch and returns what it found.
func (h *DeadLetterHandler) HandleSQSEvent(_ context.Context, event events.SQSEvent) ([]DeadBatch, error) {
	out := make([]DeadBatch, 0, len(event.Records))
	for _, record := range event.Records {
		dead := Inspect(record)
		h.log.Error("Send batch dead-lettered",
			zap.String("message_id", dead.MessageID),
			zap.String("job_id", dead.JobID),
			zap.String("campaign_id", dead.CampaignID),
			zap.Int("batch_index", dead.BatchIndex),
			zap.Int("receive_count", dead.ReceiveCount),
			zap.Strings("recipients", dead.Recipients),
			zap.Strings("pending", dead.Pending),
			zap.String("error", dead.Error))
		out = append(out, dead)
	}
	h.log.Info("Dead-letter processing complete", zap.Int("batches", len(out)))
	return out, nil
}

// Inspect extracts what is known about a dead-lettered record. Attributes
// are read first so a corrupt body still yields the job ID.
func Inspect(record events.SQSMessage) DeadBatch {
	dead := DeadBatch{MessageID: record.MessageId}
	if n, err := strconv.Atoi(record.Attributes["ApproximateReceiveCount"]); err == nil {
		dead.ReceiveCount = n
	}
	if v, ok := record.MessageAttributes[queue.AttrJobID]; ok && v.StringValue != nil {
		dead.JobID = *v.StringValue
	}
	if v, ok := record.MessageAttributes[queue.AttrCampaignID]; ok && v.StringValue != nil {
		dead.CampaignID = *v.StringValue
	}

	batch, err := queue.Decode(record.Body)
	if err != nil {
		dead.Error = err.Error()
		return dead
	}
	dead.JobID = batch.JobID
	dead.CampaignID = batch.CampaignID
	dead.BatchIndex = batch.BatchIndex
	for _, r := range batch.Recipients {
		dead.Recipients = append(dead.Recipients, r.Email)
	}
	for _, r := range batch.Pending {
		dead.Pending = append(dead.Pending, r.Email)
	}
	return dead
}
