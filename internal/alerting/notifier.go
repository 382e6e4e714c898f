package alerting

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/lox/solixa/internal/config"
	"github.com/lox/solixa/internal/htmlutil"
)

// maxSMSLength is the longest message SNS accepts for SMS.
const maxSMSLength = 1600

// Notifier delivers a text message to a phone number.
type Notifier interface {
	Send(ctx context.Context, phone, message string) error
}

// Publisher is the subset of the SNS client used for SMS.
type Publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSNotifier struct {
	client   Publisher
	senderID string
}

func NewSNSNotifier(client Publisher, senderID string) *SNSNotifier {
	return &SNSNotifier{client: client, senderID: senderID}
}

// NewNotifier returns an SNS notifier when alerting is enabled, and a
// notifier that only logs otherwise.
func NewNotifier(ctx context.Context, cfg config.AlertingConfig) (Notifier, error) {
	if !cfg.Enabled {
		return LogNotifier{}, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSNSNotifier(sns.NewFromConfig(awsCfg), cfg.SenderID), nil
}

func (n *SNSNotifier) Send(ctx context.Context, phone, message string) error {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(htmlutil.Truncate(message, maxSMSLength)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
		},
	}
	if n.senderID != "" {
		input.MessageAttributes["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(n.senderID),
		}
	}
	out, err := n.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("publish sms: %w", err)
	}
	log.Printf("alerting: sent sms %s to %s", aws.ToString(out.MessageId), maskPhone(phone))
	return nil
}

// LogNotifier writes messages to the log instead of sending them.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, phone, message string) error {
	log.Printf("alerting: (disabled) would send to %s: %s", maskPhone(phone), message)
	return nil
}

func maskPhone(p string) string {
	if len(p) <= 4 {
		return p
	}
	return "***" + p[len(p)-4:]
}
