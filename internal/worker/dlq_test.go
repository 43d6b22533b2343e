package worker

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspect(t *testing.T) {
	job := "job-9"
	dead := Inspect(events.SQSMessage{
		MessageId:  "m-1",
		Body:       batchBody(t, "c1", "a@x.com", "b@x.com"),
		Attributes: map[string]string{"ApproximateReceiveCount": "4"},
		MessageAttributes: map[string]events.SQSMessageAttribute{
			"JobID": {StringValue: &job, DataType: "String"},
		},
	})

	assert.Equal(t, "m-1", dead.MessageID)
	assert.Equal(t, "job-1", dead.JobID)
	assert.Equal(t, "c1", dead.CampaignID)
	assert.Equal(t, 4, dead.ReceiveCount)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, dead.Recipients)
	assert.Empty(t, dead.Error)
}

func TestInspectListsPendingRecipients(t *testing.T) {
	dead := Inspect(events.SQSMessage{
		MessageId: "m-1",
		Body:      chainedBody(t, "", []string{"a@x.com"}, "b@x.com", "c@x.com"),
	})

	assert.Equal(t, []string{"a@x.com"}, dead.Recipients)
	assert.Equal(t, []string{"b@x.com", "c@x.com"}, dead.Pending)
}

func TestInspectCorruptBodyKeepsAttributes(t *testing.T) {
	job := "job-9"
	dead := Inspect(events.SQSMessage{
		MessageId: "m-2",
		Body:      "garbage",
		MessageAttributes: map[string]events.SQSMessageAttribute{
			"JobID": {StringValue: &job, DataType: "String"},
		},
	})

	assert.Equal(t, "job-9", dead.JobID)
	assert.Zero(t, dead.ReceiveCount)
	assert.NotEmpty(t, dead.Error)
}

func TestDeadLetterHandler(t *testing.T) {
	out, err := NewDeadLetterHandler().HandleSQSEvent(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m-1", Body: batchBody(t, "", "a@x.com")},
		{MessageId: "m-2", Body: "{}"},
	}})

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Empty(t, out[0].Error)
	assert.NotEmpty(t, out[1].Error)
}
