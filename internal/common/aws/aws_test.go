package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSES struct{ mock.Mock }

func (m *mockSES) SendEmail(ctx context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*ses.SendEmailOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSNS struct{ mock.Mock }

func (m *mockSNS) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*sns.PublishOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestSESClient_SendText(t *testing.T) {
	api := new(mockSES)
	api.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *ses.SendEmailInput) bool {
		return aws.ToString(in.Source) == "harness@example.com" &&
			len(in.Destination.ToAddresses) == 2 &&
			aws.ToString(in.Message.Subject.Data) == "Signup run finished" &&
			aws.ToString(in.Message.Body.Text.Data) == "23 records"
	})).Return(&ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil)

	id, err := NewSESClientWithAPI(api).SendText(context.Background(), "harness@example.com",
		[]string{"ops@example.com", "qa@example.com"}, "Signup run finished", "23 records")

	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	api.AssertExpectations(t)
}

func TestSESClient_SendTextError(t *testing.T) {
	api := new(mockSES)
	api.On("SendEmail", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	_, err := NewSESClientWithAPI(api).SendText(context.Background(), "a@example.com", []string{"b@example.com"}, "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestSNSClient_SendSMS(t *testing.T) {
	tests := []struct {
		name      string
		senderID  string
		wantAttrs int
	}{
		{name: "without sender id", senderID: "", wantAttrs: 1},
		{name: "with sender id", senderID: "LEAGUE", wantAttrs: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(mockSNS)
			api.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
				return aws.ToString(in.PhoneNumber) == "+15550100" && len(in.MessageAttributes) == tt.wantAttrs
			})).Return(&sns.PublishOutput{MessageId: aws.String("sms-1")}, nil)

			id, err := NewSNSClientWithAPI(api).SendSMS(context.Background(), "+15550100", tt.senderID, "2 failures")
			require.NoError(t, err)
			assert.Equal(t, "sms-1", id)
			api.AssertExpectations(t)
		})
	}
}
