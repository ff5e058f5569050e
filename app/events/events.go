// Package events provide event handlers for telegram bot. It listens to updates, passes messages to the moderator
// and enforces verdicts, i.e. deletes messages, mutes and bans users. It also handles admin commands,
// admin panel commands and inline keyboard callbacks.
package events

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"

	"github.com/umputun/tg-rspamd/app/bot"
)

//go:generate moq --out mocks/tb_api.go --pkg mocks --with-resets --skip-ensure . TbAPI
//go:generate moq --out mocks/moderator.go --pkg mocks --with-resets --skip-ensure . Moderator

// TbAPI is an interface for telegram bot API, only subset of methods used
type TbAPI interface {
	GetUpdatesChan(config tbapi.UpdateConfig) tbapi.UpdatesChannel
	Send(c tbapi.Chattable) (tbapi.Message, error)
	Request(c tbapi.Chattable) (*tbapi.APIResponse, error)
	GetChatAdministrators(config tbapi.ChatAdministratorsConfig) ([]tbapi.ChatMember, error)
}

// Moderator scores messages and returns verdicts
type Moderator interface {
	OnMessage(ctx context.Context, msg bot.Message) (bot.Verdict, error)
}

func escapeMarkDownV1Text(text string) string {
	escSymbols := []string{"_", "*", "`", "["}
	for _, esc := range escSymbols {
		text = strings.ReplaceAll(text, esc, "\\"+esc)
	}
	return text
}

// send a message to the telegram as markdown first and if failed - as plain text
func send(tbMsg tbapi.Chattable, tbAPI TbAPI) (tbapi.Message, error) {
	withParseMode := func(tbMsg tbapi.Chattable, parseMode string) tbapi.Chattable {
		switch msg := tbMsg.(type) {
		case tbapi.MessageConfig:
			msg.ParseMode = parseMode
			msg.LinkPreviewOptions = tbapi.LinkPreviewOptions{IsDisabled: true}
			return msg
		case tbapi.EditMessageTextConfig:
			msg.ParseMode = parseMode
			msg.LinkPreviewOptions = tbapi.LinkPreviewOptions{IsDisabled: true}
			return msg
		}
		return tbMsg // don't touch other types
	}

	msg := withParseMode(tbMsg, tbapi.ModeMarkdown) // try markdown first
	resp, err := tbAPI.Send(msg)
	if err != nil {
		log.Printf("[WARN] failed to send message as markdown, %v", err)
		msg = withParseMode(tbMsg, "") // try plain text
		if resp, err = tbAPI.Send(msg); err != nil {
			return tbapi.Message{}, fmt.Errorf("can't send message to telegram: %w", err)
		}
	}
	return resp, nil
}

// restrictRequest describes mute or ban of a user in a chat
type restrictRequest struct {
	tbAPI TbAPI

	userID   int64
	chatID   int64
	duration time.Duration // zero for permanent ban
	userName string

	dry bool
}

// mute restricts all user permissions for the duration.
// The bot must be an administrator in the supergroup with appropriate rights.
func mute(r restrictRequest) error {
	if r.dry {
		log.Printf("[INFO] dry run: mute user %s (%d) in %d for %v", r.userName, r.userID, r.chatID, r.duration)
		return nil
	}
	// telegram treats restrictions shorter than 30 seconds as permanent
	if r.duration < 30*time.Second {
		r.duration = time.Minute
	}
	resp, err := r.tbAPI.Request(tbapi.RestrictChatMemberConfig{
		ChatMemberConfig: tbapi.ChatMemberConfig{
			ChatConfig: tbapi.ChatConfig{ChatID: r.chatID},
			UserID:     r.userID,
		},
		UntilDate: time.Now().Add(r.duration).Unix(),
		Permissions: &tbapi.ChatPermissions{
			CanSendMessages:      false,
			CanSendAudios:        false,
			CanSendDocuments:     false,
			CanSendPhotos:        false,
			CanSendVideos:        false,
			CanSendVideoNotes:    false,
			CanSendVoiceNotes:    false,
			CanSendOtherMessages: false,
			CanChangeInfo:        false,
			CanInviteUsers:       false,
			CanPinMessages:       false,
		},
	})
	if err != nil {
		return fmt.Errorf("can't restrict user %d: %w", r.userID, err)
	}
	if !resp.Ok {
		return fmt.Errorf("restrict response is not Ok: %v", string(resp.Result))
	}
	log.Printf("[INFO] user %s (%d) muted in %d for %v", r.userName, r.userID, r.chatID, r.duration)
	return nil
}

// banPermanently bans user from the chat with no expiration
func banPermanently(r restrictRequest) error {
	if r.dry {
		log.Printf("[INFO] dry run: ban user %s (%d) in %d permanently", r.userName, r.userID, r.chatID)
		return nil
	}
	resp, err := r.tbAPI.Request(tbapi.BanChatMemberConfig{
		ChatMemberConfig: tbapi.ChatMemberConfig{
			ChatConfig: tbapi.ChatConfig{ChatID: r.chatID},
			UserID:     r.userID,
		},
	})
	if err != nil {
		return fmt.Errorf("can't ban user %d: %w", r.userID, err)
	}
	if !resp.Ok {
		return fmt.Errorf("ban response is not Ok: %v", string(resp.Result))
	}
	log.Printf("[INFO] user %s (%d) banned in %d permanently", r.userName, r.userID, r.chatID)
	return nil
}

func deleteMessage(tbAPI TbAPI, chatID int64, msgID int, dry bool) error {
	if dry {
		log.Printf("[INFO] dry run: delete message %d in %d", msgID, chatID)
		return nil
	}
	_, err := tbAPI.Request(tbapi.DeleteMessageConfig{BaseChatMessage: tbapi.BaseChatMessage{
		MessageID:  msgID,
		ChatConfig: tbapi.ChatConfig{ChatID: chatID},
	}})
	if err != nil {
		return fmt.Errorf("can't delete message %d in %d: %w", msgID, chatID, err)
	}
	return nil
}

func transform(msg *tbapi.Message) bot.Message {
	message := bot.Message{
		ID:        msg.MessageID,
		Sent:      msg.Time(),
		Text:      msg.Text,
		ChatID:    msg.Chat.ID,
		ChatTitle: msg.Chat.Title,
	}

	if msg.From != nil {
		message.From = bot.User{
			ID:          msg.From.ID,
			Username:    msg.From.UserName,
			DisplayName: strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName),
		}
	}

	if msg.SenderChat != nil {
		message.SenderChat = bot.SenderChat{
			ID:       msg.SenderChat.ID,
			UserName: msg.SenderChat.UserName,
		}
	}

	// fill in the message's reply-to message
	if msg.ReplyToMessage != nil {
		message.ReplyTo.ID = msg.ReplyToMessage.MessageID
		message.ReplyTo.Text = msg.ReplyToMessage.Text
		message.ReplyTo.Sent = msg.ReplyToMessage.Time()
		if msg.ReplyToMessage.From != nil {
			message.ReplyTo.From = bot.User{
				ID:          msg.ReplyToMessage.From.ID,
				Username:    msg.ReplyToMessage.From.UserName,
				DisplayName: strings.TrimSpace(msg.ReplyToMessage.From.FirstName + " " + msg.ReplyToMessage.From.LastName),
			}
		}
	}

	if msg.Caption != "" {
		if message.Text == "" {
			message.Text = msg.Caption
		} else {
			message.Text += "\n" + msg.Caption
		}
	}
	return message
}
