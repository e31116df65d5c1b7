package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/zulandar/roundhouse/internal/models"
)

// discordSession abstracts the discordgo.Session methods we use, enabling
// test mocks.
type discordSession interface {
	Open() error
	Close() error
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordAdapter posts completion notifications to one Discord channel.
type DiscordAdapter struct {
	sess      discordSession
	channelID string
}

// DiscordOpts holds parameters for creating a DiscordAdapter.
type DiscordOpts struct {
	BotToken  string
	ChannelID string
	// Session injects a mock instead of a real gateway session.
	Session discordSession
}

// NewDiscord creates a Discord notification adapter.
func NewDiscord(opts DiscordOpts) (*DiscordAdapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("notify: discord bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: discord channel is required")
	}
	sess := opts.Session
	if sess == nil {
		s, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("notify: discord session: %w", err)
		}
		sess = s
	}
	return &DiscordAdapter{sess: sess, channelID: opts.ChannelID}, nil
}

// Connect opens the gateway WebSocket.
func (a *DiscordAdapter) Connect(ctx context.Context) error {
	if err := a.sess.Open(); err != nil {
		return fmt.Errorf("notify: discord open: %w", err)
	}
	return nil
}

// Send posts the completion as an embed.
func (a *DiscordAdapter) Send(ctx context.Context, msg Message) error {
	color := 0x36a64f
	if msg.Status != models.StatusSuccess {
		color = 0xd72b3f
	}
	embed := &discordgo.MessageEmbed{
		Title: summary(msg),
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Agent", Value: msg.AgentID, Inline: true},
			{Name: "Status", Value: msg.Status, Inline: true},
			{Name: "Cost", Value: fmt.Sprintf("$%.4f", msg.CostUSD), Inline: true},
			{Name: "Tokens", Value: fmt.Sprintf("%d", msg.Tokens), Inline: true},
		},
	}
	if len(msg.Errors) > 0 {
		embed.Description = msg.Errors[0]
	}
	if _, err := a.sess.ChannelMessageSendEmbed(a.channelID, embed); err != nil {
		return fmt.Errorf("notify: discord send: %w", err)
	}
	return nil
}

// Close shuts down the gateway session.
func (a *DiscordAdapter) Close() error { return a.sess.Close() }
