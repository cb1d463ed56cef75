package telegram

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoutil"
)

// Member statuses as reported by the platform
const (
	StatusLeft   = "left"
	StatusKicked = "kicked"
)

// Member is a chat member snapshot
type Member struct {
	ID          int64
	Status      string
	Username    string
	DisplayName string
}

// IsGone reports whether the member has left or was kicked from the chat
func (m Member) IsGone() bool {
	return m.Status == StatusLeft || m.Status == StatusKicked
}

// Button describes a single inline URL button attached to an outgoing message
type Button struct {
	Text string
	URL  string
}

// Permissions is the subset of chat permissions the bot manages
type Permissions struct {
	CanSendMessages       bool
	CanSendMediaMessages  bool
	CanSendOtherMessages  bool
	CanAddWebPagePreviews bool
}

// FullPermissions re-grants everything a mute took away
func FullPermissions() Permissions {
	return Permissions{
		CanSendMessages:       true,
		CanSendMediaMessages:  true,
		CanSendOtherMessages:  true,
		CanAddWebPagePreviews: true,
	}
}

// API is the platform capability consumed by the moderation engine and the
// broadcast fan-out. Implemented by Client; test fakes implement it too.
type API interface {
	SendMessage(ctx context.Context, chatID int64, text string, button *Button) error
	SendPhoto(ctx context.Context, chatID int64, photoID, caption string, button *Button) error
	SendDocument(ctx context.Context, chatID int64, name string, data []byte) error
	GetChatAdministrators(ctx context.Context, chatID int64) ([]int64, error)
	GetChatMember(ctx context.Context, chatID, userID int64) (Member, error)
	RestrictMember(ctx context.Context, chatID, userID int64, until time.Time, perms Permissions) error
	KickMember(ctx context.Context, chatID, userID int64, until *time.Time) error
	UnbanMember(ctx context.Context, chatID, userID int64) error
}

// Client adapts telego to the API interface
type Client struct {
	bot *telego.Bot
}

// NewClient creates a new platform client
func NewClient(bot *telego.Bot) *Client {
	return &Client{bot: bot}
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, button *Button) error {
	params := &telego.SendMessageParams{
		ChatID:      telego.ChatID{ID: chatID},
		Text:        text,
		ReplyMarkup: inlineKeyboard(button),
	}

	_, err := c.bot.SendMessage(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

func (c *Client) SendPhoto(ctx context.Context, chatID int64, photoID, caption string, button *Button) error {
	params := &telego.SendPhotoParams{
		ChatID:      telego.ChatID{ID: chatID},
		Photo:       telego.InputFile{FileID: photoID},
		Caption:     caption,
		ReplyMarkup: inlineKeyboard(button),
	}

	_, err := c.bot.SendPhoto(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send photo: %w", err)
	}

	return nil
}

func (c *Client) SendDocument(ctx context.Context, chatID int64, name string, data []byte) error {
	params := &telego.SendDocumentParams{
		ChatID:   telego.ChatID{ID: chatID},
		Document: telegoutil.File(telegoutil.NameReader(bytes.NewReader(data), name)),
	}

	_, err := c.bot.SendDocument(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send document: %w", err)
	}

	return nil
}

func (c *Client) GetChatAdministrators(ctx context.Context, chatID int64) ([]int64, error) {
	admins, err := c.bot.GetChatAdministrators(ctx, &telego.GetChatAdministratorsParams{
		ChatID: telego.ChatID{ID: chatID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get chat administrators: %w", err)
	}

	ids := make([]int64, 0, len(admins))
	for _, admin := range admins {
		ids = append(ids, admin.MemberUser().ID)
	}

	return ids, nil
}

func (c *Client) GetChatMember(ctx context.Context, chatID, userID int64) (Member, error) {
	member, err := c.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: telego.ChatID{ID: chatID},
		UserID: userID,
	})
	if err != nil {
		return Member{}, fmt.Errorf("failed to get chat member: %w", err)
	}

	user := member.MemberUser()
	return Member{
		ID:          user.ID,
		Status:      member.MemberStatus(),
		Username:    user.Username,
		DisplayName: displayName(user),
	}, nil
}

func (c *Client) RestrictMember(ctx context.Context, chatID, userID int64, until time.Time, perms Permissions) error {
	var untilDate int64
	if !until.IsZero() {
		untilDate = until.Unix()
	}

	err := c.bot.RestrictChatMember(ctx, &telego.RestrictChatMemberParams{
		ChatID: telego.ChatID{ID: chatID},
		UserID: userID,
		Permissions: telego.ChatPermissions{
			CanSendMessages:       boolPtr(perms.CanSendMessages),
			CanSendAudios:         boolPtr(perms.CanSendMediaMessages),
			CanSendDocuments:      boolPtr(perms.CanSendMediaMessages),
			CanSendPhotos:         boolPtr(perms.CanSendMediaMessages),
			CanSendVideos:         boolPtr(perms.CanSendMediaMessages),
			CanSendVideoNotes:     boolPtr(perms.CanSendMediaMessages),
			CanSendVoiceNotes:     boolPtr(perms.CanSendMediaMessages),
			CanSendOtherMessages:  boolPtr(perms.CanSendOtherMessages),
			CanAddWebPagePreviews: boolPtr(perms.CanAddWebPagePreviews),
		},
		UntilDate: untilDate,
	})
	if err != nil {
		return fmt.Errorf("failed to restrict member: %w", err)
	}

	return nil
}

func (c *Client) KickMember(ctx context.Context, chatID, userID int64, until *time.Time) error {
	params := &telego.BanChatMemberParams{
		ChatID: telego.ChatID{ID: chatID},
		UserID: userID,
	}
	if until != nil {
		params.UntilDate = until.Unix()
	}

	if err := c.bot.BanChatMember(ctx, params); err != nil {
		return fmt.Errorf("failed to ban member: %w", err)
	}

	return nil
}

func (c *Client) UnbanMember(ctx context.Context, chatID, userID int64) error {
	err := c.bot.UnbanChatMember(ctx, &telego.UnbanChatMemberParams{
		ChatID: telego.ChatID{ID: chatID},
		UserID: userID,
	})
	if err != nil {
		return fmt.Errorf("failed to unban member: %w", err)
	}

	return nil
}

func boolPtr(b bool) *bool {
	return &b
}

func inlineKeyboard(button *Button) telego.ReplyMarkup {
	if button == nil {
		return nil
	}

	return &telego.InlineKeyboardMarkup{
		InlineKeyboard: [][]telego.InlineKeyboardButton{
			{
				{Text: button.Text, URL: button.URL},
			},
		},
	}
}

func displayName(user telego.User) string {
	if user.Username != "" {
		return "@" + user.Username
	}
	if user.FirstName != "" {
		return user.FirstName
	}
	return fmt.Sprintf("User %d", user.ID)
}
