package events

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strconv"
	"strings"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/hashicorp/go-multierror"

	"github.com/umputun/tg-rspamd/app/bot"
	"github.com/umputun/tg-rspamd/app/learning"
	"github.com/umputun/tg-rspamd/app/panel"
	"github.com/umputun/tg-rspamd/app/storage"
	"github.com/umputun/tg-rspamd/app/trust"
)

// MuteDuration is how long a user is muted on the first and second ban
const MuteDuration = 3600 * time.Second

// permBanAfter is the number of previous bans after which the next ban is permanent
const permBanAfter = 2

// TelegramListener listens to tg updates, passes messages to the moderator and enforces verdicts.
// Commands and inline keyboard callbacks are handled here as well.
type TelegramListener struct {
	TbAPI      TbAPI
	Moderator  Moderator
	Store      *storage.Redis
	Trust      *trust.Manager
	Panel      *panel.Panel
	Bayes      *learning.Bayes
	Neural     *learning.Neural
	Fuzzy      *learning.Fuzzy
	SuperUsers SuperUsers
	BotID      int64         // bot's own user id, messages from it are trusted
	BotName    string        // bot's username, commands addressed to other bots are ignored
	RulesDir   string        // rspamd dir for custom regexp rules
	AdminsTTL  time.Duration // how long chat admins are cached
	Dry        bool

	admins     *chatAdmins
	adminCmds  map[string]cmdHandler
	panelCmds  map[string]panelCommand
	now        func() time.Time
	timeFormat string
}

// Do process all events, blocked call
func (l *TelegramListener) Do(ctx context.Context) error {
	log.Printf("[INFO] start telegram listener for bot %q (%d)", l.BotName, l.BotID)
	if l.Dry {
		log.Printf("[WARN] dry mode, no bans and no deletes")
	}
	l.init()

	u := tbapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "callback_query", "my_chat_member"}
	updates := l.TbAPI.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("telegram update chan closed")
			}
			if err := l.handleUpdate(ctx, update); err != nil {
				log.Printf("[WARN] failed to process update %d: %v", update.UpdateID, err)
			}
		}
	}
}

func (l *TelegramListener) init() {
	if l.now == nil {
		l.now = time.Now
	}
	if l.admins == nil {
		l.admins = newChatAdmins(l.TbAPI, l.AdminsTTL)
	}
	if l.adminCmds == nil {
		l.adminCmds = l.adminCommands()
	}
	if l.panelCmds == nil {
		l.panelCmds = l.panelCommands()
	}
	if l.timeFormat == "" {
		l.timeFormat = "2006-01-02 15:04:05"
	}
}

func (l *TelegramListener) handleUpdate(ctx context.Context, update tbapi.Update) error {
	switch {
	case update.MyChatMember != nil:
		return l.onMyChatMember(ctx, update.MyChatMember)
	case update.CallbackQuery != nil:
		return l.onCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		if strings.HasPrefix(update.Message.Text, "/") {
			return l.onCommand(ctx, update.Message)
		}
		return l.onMessage(ctx, update.Message)
	}
	return nil
}

// onMyChatMember keeps bot_chats of chat admins in sync with chats the bot is in
func (l *TelegramListener) onMyChatMember(ctx context.Context, upd *tbapi.ChatMemberUpdated) error {
	chatID := upd.Chat.ID
	status := upd.NewChatMember.Status
	log.Printf("[INFO] bot status in chat %d (%s) changed to %q by %d", chatID, upd.Chat.Title, status, upd.From.ID)

	errs := new(multierror.Error)
	switch status {
	case "member", "administrator", "creator":
		if upd.Chat.Title != "" {
			if err := l.Store.SetChatName(ctx, chatID, upd.Chat.Title); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
		for _, uid := range l.chatAdminIDs(chatID, upd.From.ID) {
			if err := l.Store.AddBotChat(ctx, uid, chatID); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	case "left", "kicked":
		for _, uid := range l.chatAdminIDs(chatID, upd.From.ID) {
			if err := l.Store.RemoveBotChat(ctx, uid, chatID); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}
	return errs.ErrorOrNil()
}

// chatAdminIDs returns admins of the chat including the user who changed the bot status.
// The bot can't list admins of a chat it was kicked from, cached list or the user is used then.
func (l *TelegramListener) chatAdminIDs(chatID, by int64) []int64 {
	ids, err := l.admins.list(chatID)
	if err != nil {
		log.Printf("[DEBUG] %v", err)
	}
	res := make([]int64, 0, len(ids)+1)
	res = append(res, ids...)
	if by != 0 && by != l.BotID && !slices.Contains(res, by) {
		res = append(res, by)
	}
	return res
}

// onMessage checks a regular message and enforces the verdict. Messages of superusers and chat admins
// are not checked, admin messages are marked trusted instead.
func (l *TelegramListener) onMessage(ctx context.Context, tbMsg *tbapi.Message) error {
	if tbMsg.Chat.Type == "private" {
		return nil
	}
	msg := transform(tbMsg)
	log.Printf("[DEBUG] incoming msg %d in %d from %s: %q", msg.ID, msg.ChatID, bot.DisplayName(msg), msg.Text)

	if msg.ChatTitle != "" {
		if err := l.Store.SetChatName(ctx, msg.ChatID, msg.ChatTitle); err != nil {
			log.Printf("[WARN] %v", err)
		}
	}

	if l.BotID != 0 && msg.From.ID == l.BotID {
		l.markTrusted(ctx, msg.ChatID, msg.ID, l.BotID, trust.TypeBot, msg.Sent)
		return nil
	}
	if l.admins.isAdmin(msg.ChatID, msg.From.ID) {
		l.markTrusted(ctx, msg.ChatID, msg.ID, msg.From.ID, trust.TypeAdmin, msg.Sent)
		return nil
	}
	if l.SuperUsers.IsSuper(msg.From.Username, msg.From.ID) {
		log.Printf("[DEBUG] superuser %s message, not checked", msg.From.Username)
		return nil
	}

	errs := new(multierror.Error)
	verdict, err := l.Moderator.OnMessage(ctx, msg)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("moderation of %d failed: %w", msg.ID, err))
	}
	if verdict.Action == bot.ActionNone || verdict.Action == "" {
		return errs.ErrorOrNil()
	}
	log.Printf("[INFO] message %d in %d from %s: %s", msg.ID, msg.ChatID, bot.DisplayName(msg), verdict)
	if err := l.enforce(ctx, msg, verdict); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

// enforce applies the verdict, i.e. deletes the message and mutes or bans the user, and notifies admins
func (l *TelegramListener) enforce(ctx context.Context, msg bot.Message, v bot.Verdict) error {
	errs := new(multierror.Error)
	user := escapeMarkDownV1Text(userLabel(msg.From))
	chat := escapeMarkDownV1Text(chatLabel(msg))

	var text string
	switch v.Action {
	case bot.ActionWarn:
		if err := l.Store.IncrChatField(ctx, msg.ChatID, storage.FieldWarned, 1); err != nil {
			errs = multierror.Append(errs, err)
		}
		text = fmt.Sprintf("Warning: message %d from user %s in chat %s looks like spam (score %.2f)", msg.ID, user, chat, v.Score)

	case bot.ActionDelete:
		if err := deleteMessage(l.TbAPI, msg.ChatID, msg.ID, l.Dry); err != nil {
			errs = multierror.Append(errs, err)
		}
		if err := l.Store.IncrChatField(ctx, msg.ChatID, storage.FieldDeleted, 1); err != nil {
			errs = multierror.Append(errs, err)
		}
		text = fmt.Sprintf("Deleted message %d from user %s in chat %s due to spam (score %.2f)", msg.ID, user, chat, v.Score)

	case bot.ActionBan:
		if err := deleteMessage(l.TbAPI, msg.ChatID, msg.ID, l.Dry); err != nil {
			errs = multierror.Append(errs, err)
		}
		var err error
		if text, err = l.ban(ctx, msg, user, chat); err != nil {
			errs = multierror.Append(errs, err)
		}

	default:
		return nil
	}

	if err := l.Store.IncrChatField(ctx, msg.ChatID, storage.FieldSpamCount, 1); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := l.notify(ctx, msg.ChatID, text); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

// ban mutes the user for an hour on the first and second ban, bans permanently on the third one.
// Returns notification text.
func (l *TelegramListener) ban(ctx context.Context, msg bot.Message, user, chat string) (string, error) {
	errs := new(multierror.Error)
	prev, err := l.Store.IncrBan(ctx, msg.From.ID)
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := l.Store.IncrChatField(ctx, msg.ChatID, storage.FieldBanned, 1); err != nil {
		errs = multierror.Append(errs, err)
	}

	req := restrictRequest{tbAPI: l.TbAPI, userID: msg.From.ID, chatID: msg.ChatID, userName: msg.From.Username, dry: l.Dry}
	if prev >= permBanAfter {
		if err := banPermanently(req); err != nil {
			errs = multierror.Append(errs, err)
		}
		if err := l.Store.MarkPermBanned(ctx, msg.From.ID); err != nil {
			errs = multierror.Append(errs, err)
		}
		return fmt.Sprintf("Permanently banned user %s in chat %s for spam (3rd ban)", user, chat), errs.ErrorOrNil()
	}

	req.duration = MuteDuration
	if err := mute(req); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := l.Store.SetBanReduction(ctx, msg.From.ID, l.now().Add(bot.BanReductionPeriod)); err != nil {
		errs = multierror.Append(errs, err)
	}
	return fmt.Sprintf("Deleted message %d from user %s in chat %s. Muted user for %d seconds. Ban count: %d/%d",
		msg.ID, user, chat, int(MuteDuration.Seconds()), prev+1, permBanAfter+1), errs.ErrorOrNil()
}

// notify sends the text to the admin chat of the chat, or to the chat itself if no admin chat set
func (l *TelegramListener) notify(ctx context.Context, chatID int64, text string) error {
	target := chatID
	adminChat, ok, err := l.Store.AdminChat(ctx, chatID)
	if err != nil {
		log.Printf("[WARN] %v", err)
	}
	if ok {
		target = adminChat
	}
	if l.Dry {
		log.Printf("[INFO] dry run, notification to %d: %s", target, text)
		return nil
	}
	_, err = l.send(ctx, tbapi.NewMessage(target, text))
	return err
}

// send the message and mark it trusted if sent to a group chat
func (l *TelegramListener) send(ctx context.Context, tbMsg tbapi.Chattable) (tbapi.Message, error) {
	resp, err := send(tbMsg, l.TbAPI)
	if err != nil {
		return resp, err
	}
	if resp.MessageID != 0 && resp.Chat.ID < 0 && l.BotID != 0 {
		l.markTrusted(ctx, resp.Chat.ID, resp.MessageID, l.BotID, trust.TypeBot, l.now())
	}
	return resp, nil
}

// reply sends the command response to the chat
func (l *TelegramListener) reply(ctx context.Context, chatID int64, resp cmdResponse) error {
	if resp.text == "" {
		return nil
	}
	tbMsg := tbapi.NewMessage(chatID, resp.text)
	if resp.keyboard != nil {
		tbMsg.ReplyMarkup = *resp.keyboard
	}
	_, err := l.send(ctx, tbMsg)
	return err
}

func (l *TelegramListener) markTrusted(ctx context.Context, chatID int64, msgID int, sender int64, t trust.Type, ts time.Time) {
	md := trust.Metadata{MsgID: msgID, ChatID: chatID, SenderID: sender, Type: t, Time: ts}
	ok, err := l.Trust.MarkTrustedAdvanced(ctx, md)
	if err != nil {
		log.Printf("[WARN] failed to mark message %d trusted: %v", msgID, err)
		return
	}
	if !ok {
		log.Printf("[DEBUG] message %d from %d not trusted, rate limit or trust rules", msgID, sender)
	}
}

// chatName returns stored name of the chat, or its id
func (l *TelegramListener) chatName(ctx context.Context, chatID int64) string {
	stats, err := l.Store.ChatStats(ctx, chatID)
	if err != nil {
		log.Printf("[WARN] %v", err)
	}
	if name := stats[storage.FieldName]; name != "" {
		return name
	}
	return strconv.FormatInt(chatID, 10)
}

func userLabel(u bot.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.DisplayName != "" {
		return fmt.Sprintf("%s (%d)", u.DisplayName, u.ID)
	}
	return strconv.FormatInt(u.ID, 10)
}

func chatLabel(msg bot.Message) string {
	if msg.ChatTitle != "" {
		return msg.ChatTitle
	}
	return strconv.FormatInt(msg.ChatID, 10)
}
