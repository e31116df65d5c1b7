package notify

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"

	"github.com/zulandar/roundhouse/internal/models"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	AuthTestContext(ctx context.Context) (*slackapi.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// SlackAdapter posts completion notifications to one Slack channel.
type SlackAdapter struct {
	client    slackClient
	channelID string
}

// SlackOpts holds parameters for creating a SlackAdapter.
type SlackOpts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string
	// Client injects a mock instead of the real Slack API.
	Client slackClient
}

// NewSlack creates a Slack notification adapter.
func NewSlack(opts SlackOpts) (*SlackAdapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("notify: slack bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: slack channel is required")
	}
	client := opts.Client
	if client == nil {
		client = slackapi.New(opts.BotToken)
	}
	return &SlackAdapter{client: client, channelID: opts.ChannelID}, nil
}

// Connect verifies the token against the Slack API.
func (a *SlackAdapter) Connect(ctx context.Context) error {
	if _, err := a.client.AuthTestContext(ctx); err != nil {
		return fmt.Errorf("notify: slack auth: %w", err)
	}
	return nil
}

// Send posts the completion as an attachment.
func (a *SlackAdapter) Send(ctx context.Context, msg Message) error {
	color := "#36a64f"
	if msg.Status != models.StatusSuccess {
		color = "#d72b3f"
	}
	attachment := slackapi.Attachment{
		Color: color,
		Title: summary(msg),
		Fields: []slackapi.AttachmentField{
			{Title: "Agent", Value: msg.AgentID, Short: true},
			{Title: "Status", Value: msg.Status, Short: true},
			{Title: "Cost", Value: fmt.Sprintf("$%.4f", msg.CostUSD), Short: true},
			{Title: "Tokens", Value: fmt.Sprintf("%d", msg.Tokens), Short: true},
		},
	}
	if len(msg.Errors) > 0 {
		attachment.Text = msg.Errors[0]
	}
	_, _, err := a.client.PostMessageContext(ctx, a.channelID,
		slackapi.MsgOptionAttachments(attachment))
	if err != nil {
		return fmt.Errorf("notify: slack post: %w", err)
	}
	return nil
}

// Close is a no-op; the Slack web API client holds no connection.
func (a *SlackAdapter) Close() error { return nil }
