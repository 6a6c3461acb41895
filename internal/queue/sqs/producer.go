package sqsqueue

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// API is the subset of *sqs.Client used by the producer and consumer.
type API interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type Producer struct {
	SQS      API
	QueueURL string
}

// DispatchJob asks a worker to run one campaign.
type DispatchJob struct {
	JobID       string    `json:"jobId"`
	CampaignID  int64     `json:"campaignId"`
	RequestedAt time.Time `json:"requestedAt"`
}

func (p *Producer) EnqueueDispatch(ctx context.Context, job DispatchJob) error {
	in, err := p.messageInput(job)
	if err != nil {
		return err
	}
	_, err = p.SQS.SendMessage(ctx, in)
	return err
}

func (p *Producer) messageInput(job DispatchJob) (*sqs.SendMessageInput, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	in := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: str(string(body)),
	}
	// FIFO queues run jobs of one campaign one at a time.
	if strings.HasSuffix(p.QueueURL, ".fifo") {
		in.MessageGroupId = str(MessageGroupID(job.CampaignID))
		in.MessageDeduplicationId = str(job.JobID)
	}
	return in, nil
}

func MessageGroupID(campaignID int64) string {
	return "campaign:" + strconv.FormatInt(campaignID, 10)
}

func str(s string) *string { return &s }
