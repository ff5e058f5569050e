package events

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	tbapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/hashicorp/go-multierror"

	"github.com/umputun/tg-rspamd/app/bot"
)

// onCallback handles inline keyboard buttons:
//   - makeadmin:<chat> moderate the chat from the chat the button is in
//   - stats:<chat> show chat stats
//   - managefeat:<chat> show features of the chat
//   - feat:<chat>:<name> toggle the feature
//   - panel:<action> dashboard shortcuts
func (l *TelegramListener) onCallback(ctx context.Context, query *tbapi.CallbackQuery) error {
	if query.Message == nil || query.From == nil {
		return nil
	}
	kind, arg, _ := strings.Cut(query.Data, ":")
	from := bot.User{ID: query.From.ID, Username: query.From.UserName}
	fromChat := query.Message.Chat
	log.Printf("[DEBUG] callback %q from %s in %d", query.Data, userLabel(from), fromChat.ID)

	var answer string
	var resp cmdResponse
	var err error
	edit := false // response replaces the callback message instead of a new one
	switch kind {
	case "makeadmin":
		answer, err = l.cbMakeAdmin(ctx, from, fromChat.ID, arg)
	case "stats":
		resp, answer, err = l.cbChatCommand(ctx, from, arg, l.chatStats)
	case "managefeat":
		resp, answer, err = l.cbChatCommand(ctx, from, arg, l.featuresKeyboard)
	case "feat":
		resp, answer, err = l.cbToggleFeature(ctx, from, arg)
		edit = true
	case "panel":
		resp, answer, err = l.cbPanel(ctx, from, fromChat, arg)
	default:
		return nil
	}

	errs := new(multierror.Error)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("callback %q failed: %w", query.Data, err))
		answer = "error: " + err.Error()
	}
	switch {
	case resp.text != "" && edit:
		if err := l.editKeyboard(query, resp); err != nil {
			errs = multierror.Append(errs, err)
		}
	case resp.text != "":
		if err := l.reply(ctx, fromChat.ID, resp); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := l.answerCallback(query.ID, answer); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

// cbMakeAdmin makes adminChat the admin chat of the selected chat
func (l *TelegramListener) cbMakeAdmin(ctx context.Context, from bot.User, adminChat int64, arg string) (string, error) {
	chatID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid chat id %q", arg)
	}
	if !l.canManage(from, chatID) {
		return "You are not an admin of this chat", nil
	}
	if err := l.Store.SetAdminChat(ctx, chatID, adminChat); err != nil {
		return "", err
	}
	if err := l.Store.AddModeratedChat(ctx, adminChat, chatID); err != nil {
		return "", err
	}
	log.Printf("[INFO] chat %d is moderated from %d, set by %s", chatID, adminChat, userLabel(from))
	return fmt.Sprintf("Chat %s assigned for moderation!", l.chatName(ctx, chatID)), nil
}

// cbChatCommand runs fn for the chat from callback argument, if the user can manage the chat
func (l *TelegramListener) cbChatCommand(ctx context.Context, from bot.User, arg string,
	fn func(context.Context, int64) (cmdResponse, error)) (resp cmdResponse, answer string, err error) {
	chatID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return cmdResponse{}, "", fmt.Errorf("invalid chat id %q", arg)
	}
	if !l.canManage(from, chatID) {
		return cmdResponse{}, "You are not an admin of this chat", nil
	}
	resp, err = fn(ctx, chatID)
	return resp, "", err
}

// cbToggleFeature flips the feature of the chat, arg is "chat:name"
func (l *TelegramListener) cbToggleFeature(ctx context.Context, from bot.User, arg string) (resp cmdResponse, answer string, err error) {
	chatStr, name, ok := strings.Cut(arg, ":")
	chatID, err := strconv.ParseInt(chatStr, 10, 64)
	if !ok || err != nil || name == "" {
		return cmdResponse{}, "", fmt.Errorf("invalid feature %q", arg)
	}
	if !l.canManage(from, chatID) {
		return cmdResponse{}, "You are not an admin of this chat", nil
	}
	enabled, err := l.Store.FeatureEnabled(ctx, chatID, name)
	if err != nil {
		return cmdResponse{}, "", err
	}
	state := "enabled"
	if enabled {
		state = "disabled"
		err = l.Store.DisableFeature(ctx, chatID, name)
	} else {
		err = l.Store.EnableFeature(ctx, chatID, name)
	}
	if err != nil {
		return cmdResponse{}, "", err
	}
	log.Printf("[INFO] feature %s %s in %d by %s", name, state, chatID, userLabel(from))
	if resp, err = l.featuresKeyboard(ctx, chatID); err != nil {
		return cmdResponse{}, "", err
	}
	return resp, fmt.Sprintf("%s %s", name, state), nil
}

// cbPanel runs the panel command behind the dashboard button, with usual permission checks
func (l *TelegramListener) cbPanel(ctx context.Context, from bot.User, chat tbapi.Chat, action string) (resp cmdResponse, answer string, err error) {
	name, ok := dashboardActions[action]
	if !ok {
		return cmdResponse{}, "", fmt.Errorf("unknown panel action %q", action)
	}
	req := cmdRequest{name: name, chat: chat, user: from}
	resp, err = l.runPanelCommand(ctx, l.panelCmds[name], req)
	return resp, "", err
}

// canManage checks if the user is a superuser or an admin of the chat
func (l *TelegramListener) canManage(from bot.User, chatID int64) bool {
	return l.SuperUsers.IsSuper(from.Username, from.ID) || l.admins.isAdmin(chatID, from.ID)
}

// editKeyboard replaces text and keyboard of the callback message
func (l *TelegramListener) editKeyboard(query *tbapi.CallbackQuery, resp cmdResponse) error {
	editMsg := tbapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID, resp.text)
	editMsg.ReplyMarkup = resp.keyboard
	if _, err := send(editMsg, l.TbAPI); err != nil {
		return fmt.Errorf("failed to edit message %d: %w", query.Message.MessageID, err)
	}
	return nil
}

func (l *TelegramListener) answerCallback(id, text string) error {
	if _, err := l.TbAPI.Request(tbapi.NewCallback(id, text)); err != nil {
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}
