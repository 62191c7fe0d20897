package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	smithy "github.com/aws/smithy-go"

	"github.com/ignite/nuntius/internal/domain"
)

// SESTransport sends via AWS SES using the SDK v2. SES is stateless per
// call (no session to hold open), so Open only validates credentials by
// constructing the client; the connection manager's message-count-based
// recycling is a no-op here but still enforced uniformly across backends.
type SESTransport struct {
	region    string
	accessKey string
	secretKey string
	client    *sesv2.Client
}

// NewSESTransport builds a transport for the given region and static
// credentials. Empty accessKey/secretKey fall back to the SDK's default
// credential chain (environment, instance profile, etc).
func NewSESTransport(region, accessKey, secretKey string) *SESTransport {
	if region == "" {
		region = "us-east-1"
	}
	return &SESTransport{region: region, accessKey: accessKey, secretKey: secretKey}
}

func (t *SESTransport) Open(ctx context.Context) error {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(t.region)}
	if t.accessKey != "" && t.secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(t.accessKey, t.secretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("%w: ses config: %v", ErrServerDisconnected, err)
	}
	t.client = sesv2.NewFromConfig(cfg)
	return nil
}

func (t *SESTransport) Send(ctx context.Context, msg *domain.EmailMessage) (domain.SendOutcome, error) {
	if t.client == nil {
		return domain.SendOutcome{}, ErrServerDisconnected
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    &types.Body{},
			},
		},
	}
	if msg.HTMLBody != "" {
		input.Content.Simple.Body.Html = &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")}
	}
	if msg.TextBody != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.TextBody), Charset: aws.String("UTF-8")}
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}

	result, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return domain.SendOutcome{}, classifySESError(err)
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}
	return domain.SendOutcome{MessageID: messageID}, nil
}

func (t *SESTransport) Close() error {
	t.client = nil
	return nil
}

// classifySESError maps SES API error codes onto the connection manager's
// three buckets (spec.md §4.4, §4.7). MessageRejected and MailFromDomainNotVerified
// are per-recipient/per-sender content rejections; throttling and internal
// errors are transient; anything resembling a dropped connection reopens.
func classifySESError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "MessageRejected", "MailFromDomainNotVerifiedException", "AccountSuspendedException":
			return fmt.Errorf("%w: %v", ErrRecipientRefused, err)
		case "TooManyRequestsException", "ThrottlingException", "ServiceUnavailableException", "InternalServerErrorException":
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection reset") || strings.Contains(msg, "eof") || strings.Contains(msg, "broken pipe") {
		return fmt.Errorf("%w: %v", ErrServerDisconnected, err)
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}
