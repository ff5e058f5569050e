package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode"

	tbapi "github.com/OvyFlash/telegram-bot-api"

	"github.com/umputun/tg-rspamd/app/bot"
	"github.com/umputun/tg-rspamd/app/learning"
	"github.com/umputun/tg-rspamd/app/rspamd"
	"github.com/umputun/tg-rspamd/app/storage"
	"github.com/umputun/tg-rspamd/app/trust"
	"github.com/umputun/tg-rspamd/lib/luarule"
)

// cmdRequest is a parsed command message
type cmdRequest struct {
	name  string // command name, lower case, without slash and bot name
	args  string
	chat  tbapi.Chat
	user  bot.User
	reply *tbapi.Message // message the command replies to, nil if none
}

// cmdResponse is a text sent back to the chat, with optional inline keyboard
type cmdResponse struct {
	text     string
	keyboard *tbapi.InlineKeyboardMarkup
}

type cmdHandler func(ctx context.Context, req cmdRequest) (cmdResponse, error)

const helpText = `*Moderation commands*
/makeadmin - use this chat as admin chat and select chats to moderate
/managefeatures - toggle features of moderated chats
/stats - chat statistics
/reputation <user id> - user reputation and bans
/addregex SYMBOL|pattern|score - add custom rspamd regexp rule
/whitelist, /blacklist user|word add|remove|find value - manage lists
/enable, /disable <feature> - toggle feature in this chat
/marktrusted <msg id>|<bot|admin|verified> - mark message trusted
/truststats, /antievasionstats - trust statistics
/replyconfig [name|value] - reply-aware filtering settings
/selectivetrust [rule|value] - selective trust rules
/ratelimitstats [user id], /resetratelimit <user id> - rate limits
/spampatterns <user id> - reply spam patterns of the user
/learnspam, /learnham [msg id] - teach bayes, reply to a message or pass its id
/fuzzyadd [msg id] - add message to fuzzy storage
/bayesstats, /bayesreset - bayes classifier
/neuralstats, /neuralstatus, /neuralreset - neural network
/neuralfeatures <msg id> - learned features of the message
/migrate - move legacy reputation to the new format
/panelhelp - admin panel commands`

func (l *TelegramListener) adminCommands() map[string]cmdHandler {
	return map[string]cmdHandler{
		"help":             l.cmdHelp,
		"start":            l.cmdHelp,
		"makeadmin":        l.cmdMakeAdmin,
		"managefeatures":   l.cmdManageFeatures,
		"stats":            l.cmdStats,
		"reputation":       l.cmdReputation,
		"addregex":         l.cmdAddRegex,
		"whitelist":        l.listCommand(storage.Whitelist),
		"blacklist":        l.listCommand(storage.Blacklist),
		"enable":           l.featureCommand(true),
		"disable":          l.featureCommand(false),
		"marktrusted":      l.cmdMarkTrusted,
		"truststats":       l.cmdTrustStats,
		"replyconfig":      l.configCommand("replyconfig", "Reply-aware filtering settings", trust.ReplySettings),
		"selectivetrust":   l.configCommand("selectivetrust", "Selective trust rules", trust.TrustRules),
		"ratelimitstats":   l.cmdRateLimitStats,
		"resetratelimit":   l.cmdResetRateLimit,
		"spampatterns":     l.cmdSpamPatterns,
		"antievasionstats": l.cmdAntiEvasionStats,
		"learnspam":        l.learnCommand(learning.ClassSpam),
		"learnham":         l.learnCommand(learning.ClassHam),
		"fuzzyadd":         l.cmdFuzzyAdd,
		"bayesstats":       l.cmdBayesStats,
		"bayesreset":       l.cmdBayesReset,
		"neuralstats":      l.cmdNeuralStats,
		"neuralstatus":     l.cmdNeuralStatus,
		"neuralreset":      l.cmdNeuralReset,
		"neuralfeatures":   l.cmdNeuralFeatures,
		"migrate":          l.cmdMigrate,
	}
}

// onCommand runs admin or panel command. Unknown commands and admin commands of regular users
// are checked as regular messages.
func (l *TelegramListener) onCommand(ctx context.Context, msg *tbapi.Message) error {
	req, ok := l.parseCommand(msg)
	if !ok {
		return l.onMessage(ctx, msg)
	}

	var resp cmdResponse
	var err error
	if pc, ok := l.panelCmds[req.name]; ok {
		resp, err = l.runPanelCommand(ctx, pc, req)
	} else {
		h, ok := l.adminCmds[req.name]
		if !ok {
			return l.onMessage(ctx, msg)
		}
		if !l.canCommand(req) {
			log.Printf("[DEBUG] /%s from %s in %d is not a command, not an admin", req.name, userLabel(req.user), req.chat.ID)
			return l.onMessage(ctx, msg)
		}
		resp, err = h(ctx, req)
	}

	if err != nil {
		log.Printf("[WARN] command /%s from %s failed: %v", req.name, userLabel(req.user), err)
		resp = cmdResponse{text: "error: " + err.Error()}
	}
	return l.reply(ctx, req.chat.ID, resp)
}

// parseCommand splits "/cmd@bot args" message. Returns false for commands addressed to other bots.
func (l *TelegramListener) parseCommand(msg *tbapi.Message) (cmdRequest, bool) {
	if msg.From == nil {
		return cmdRequest{}, false
	}
	text := strings.TrimSpace(msg.Text)
	head, args := text, ""
	if idx := strings.IndexFunc(text, unicode.IsSpace); idx > 0 {
		head, args = text[:idx], strings.TrimSpace(text[idx:])
	}
	name := strings.ToLower(strings.TrimPrefix(head, "/"))
	if cmd, target, found := strings.Cut(name, "@"); found {
		if l.BotName != "" && !strings.EqualFold(target, l.BotName) {
			return cmdRequest{}, false
		}
		name = cmd
	}
	if name == "" {
		return cmdRequest{}, false
	}

	return cmdRequest{
		name: name,
		args: args,
		chat: msg.Chat,
		user: bot.User{
			ID:          msg.From.ID,
			Username:    msg.From.UserName,
			DisplayName: strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName),
		},
		reply: msg.ReplyToMessage,
	}, true
}

// canCommand checks if the user can run admin commands in the chat
func (l *TelegramListener) canCommand(req cmdRequest) bool {
	if req.chat.Type == "private" || l.SuperUsers.IsSuper(req.user.Username, req.user.ID) {
		return true
	}
	return l.admins.isAdmin(req.chat.ID, req.user.ID)
}

func (l *TelegramListener) cmdHelp(_ context.Context, _ cmdRequest) (cmdResponse, error) {
	return cmdResponse{text: helpText}, nil
}

// cmdMakeAdmin registers the chat as admin chat of the user and offers chats with the bot to moderate
func (l *TelegramListener) cmdMakeAdmin(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	if err := l.Store.AddAdminChat(ctx, req.user.ID, req.chat.ID); err != nil {
		return cmdResponse{}, err
	}
	chats, err := l.Store.BotChats(ctx, req.user.ID)
	if err != nil {
		return cmdResponse{}, err
	}
	rows := [][]tbapi.InlineKeyboardButton{}
	for _, id := range chats {
		if id == req.chat.ID {
			continue
		}
		rows = append(rows, tbapi.NewInlineKeyboardRow(
			tbapi.NewInlineKeyboardButtonData("Chat: "+l.chatName(ctx, id), fmt.Sprintf("makeadmin:%d", id))))
	}
	if len(rows) == 0 {
		return cmdResponse{text: "Admin chat registered. No other chats with the bot found, " +
			"add the bot to a chat as administrator first."}, nil
	}
	kb := tbapi.NewInlineKeyboardMarkup(rows...)
	return cmdResponse{text: "Admin chat registered! Select chats to moderate:", keyboard: &kb}, nil
}

// cmdManageFeatures shows moderated chats to pick, or features of the current chat if it moderates nothing
func (l *TelegramListener) cmdManageFeatures(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	chats, err := l.Store.ModeratedChats(ctx, req.chat.ID)
	if err != nil {
		return cmdResponse{}, err
	}
	if len(chats) == 0 {
		if req.chat.Type == "private" {
			return cmdResponse{text: "No moderated chats, use /makeadmin first"}, nil
		}
		return l.featuresKeyboard(ctx, req.chat.ID)
	}
	kb := l.chatsKeyboard(ctx, chats, "managefeat")
	return cmdResponse{text: "Select chat to manage features:", keyboard: &kb}, nil
}

// cmdStats shows stats of the chat, or offers moderated chats for admin chat
func (l *TelegramListener) cmdStats(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	chats, err := l.Store.ModeratedChats(ctx, req.chat.ID)
	if err != nil {
		return cmdResponse{}, err
	}
	if len(chats) > 0 {
		kb := l.chatsKeyboard(ctx, chats, "stats")
		return cmdResponse{text: "Select chat to show stats:", keyboard: &kb}, nil
	}
	return l.chatStats(ctx, req.chat.ID)
}

func (l *TelegramListener) chatStats(ctx context.Context, chatID int64) (cmdResponse, error) {
	stats, err := l.Store.ChatStats(ctx, chatID)
	if err != nil {
		return cmdResponse{}, err
	}
	name := l.chatName(ctx, chatID)
	keys := make([]string, 0, len(stats))
	for k := range stats {
		if k == storage.FieldName || k == storage.FieldAdminChat {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return cmdResponse{text: fmt.Sprintf("No stats for chat %s yet", escapeMarkDownV1Text(name))}, nil
	}
	sort.Strings(keys)
	lines := []string{fmt.Sprintf("*Stats of chat %s*", escapeMarkDownV1Text(name))}
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", escapeMarkDownV1Text(k), stats[k]))
	}
	return cmdResponse{text: strings.Join(lines, "\n")}, nil
}

func (l *TelegramListener) chatsKeyboard(ctx context.Context, chats []int64, prefix string) tbapi.InlineKeyboardMarkup {
	rows := make([][]tbapi.InlineKeyboardButton, 0, len(chats))
	for _, id := range chats {
		rows = append(rows, tbapi.NewInlineKeyboardRow(
			tbapi.NewInlineKeyboardButtonData(l.chatName(ctx, id), fmt.Sprintf("%s:%d", prefix, id))))
	}
	return tbapi.NewInlineKeyboardMarkup(rows...)
}

func (l *TelegramListener) featuresKeyboard(ctx context.Context, chatID int64) (cmdResponse, error) {
	all, err := l.Store.GlobalFeatures(ctx)
	if err != nil {
		return cmdResponse{}, err
	}
	enabled, err := l.Store.Features(ctx, chatID)
	if err != nil {
		return cmdResponse{}, err
	}
	rows := [][]tbapi.InlineKeyboardButton{}
	row := []tbapi.InlineKeyboardButton{}
	for _, name := range all {
		mark := "❌"
		if slices.Contains(enabled, name) {
			mark = "✅"
		}
		row = append(row, tbapi.NewInlineKeyboardButtonData(mark+" "+name, fmt.Sprintf("feat:%d:%s", chatID, name)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = []tbapi.InlineKeyboardButton{}
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	kb := tbapi.NewInlineKeyboardMarkup(rows...)
	text := fmt.Sprintf("Features of chat %s, %d of %d enabled:", escapeMarkDownV1Text(l.chatName(ctx, chatID)), len(enabled), len(all))
	return cmdResponse{text: text, keyboard: &kb}, nil
}

func (l *TelegramListener) cmdReputation(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	uid, err := parseUserID(req.args, "reputation")
	if err != nil {
		return cmdResponse{}, err
	}
	rep, err := l.Store.Reputation(ctx, uid)
	if err != nil {
		return cmdResponse{}, err
	}
	bans, err := l.Store.BanCount(ctx, uid)
	if err != nil {
		return cmdResponse{}, err
	}
	return cmdResponse{text: fmt.Sprintf("Reputation of user %d\nbad: %d\ngood: %d\nscore: %d\nbans: %d",
		uid, rep.Bad, rep.Good, rep.Score(), bans)}, nil
}

// cmdAddRegex writes custom regexp rule to rspamd rules dir and adds its symbol to features
func (l *TelegramListener) cmdAddRegex(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	if l.RulesDir == "" {
		return cmdResponse{}, errors.New("rspamd rules dir is not set")
	}
	rule, err := luarule.Parse(req.args)
	if err != nil {
		return cmdResponse{}, fmt.Errorf("usage: /addregex SYMBOL|pattern|score, %w", err)
	}
	path, err := rule.Write(l.RulesDir)
	if err != nil {
		return cmdResponse{}, err
	}
	if err := l.Store.AddGlobalFeature(ctx, strings.ToLower(rule.Symbol)); err != nil {
		return cmdResponse{}, err
	}
	log.Printf("[INFO] regexp rule %s added by %s to %s", rule.Symbol, userLabel(req.user), path)
	return cmdResponse{text: fmt.Sprintf("Rule %s with score %.2f added, reload rspamd to apply",
		escapeMarkDownV1Text(rule.Symbol), rule.Score)}, nil
}

// listCommand makes handler of /whitelist and /blacklist, args are "user|word add|remove|find value"
func (l *TelegramListener) listCommand(kind storage.ListKind) cmdHandler {
	return func(ctx context.Context, req cmdRequest) (cmdResponse, error) {
		usage := fmt.Errorf("usage: /%s user|word add|remove|find value", kind)
		parts := strings.SplitN(req.args, "|", 3)
		if len(parts) != 3 || strings.TrimSpace(parts[2]) == "" {
			return cmdResponse{}, usage
		}
		target, err := storage.ParseListTarget(parts[0])
		if err != nil {
			return cmdResponse{}, usage
		}
		value := strings.TrimSpace(parts[2])
		list := fmt.Sprintf("%s %s", kind, target)

		switch strings.ToLower(strings.TrimSpace(parts[1])) {
		case "add":
			added, err := l.Store.ListAdd(ctx, kind, target, value)
			if err != nil {
				return cmdResponse{}, err
			}
			if !added {
				return cmdResponse{text: fmt.Sprintf("%q is already in %s", value, list)}, nil
			}
			return cmdResponse{text: fmt.Sprintf("Added %q to %s", value, list)}, nil
		case "remove":
			removed, err := l.Store.ListRemove(ctx, kind, target, value)
			if err != nil {
				return cmdResponse{}, err
			}
			if !removed {
				return cmdResponse{text: fmt.Sprintf("%q is not in %s", value, list)}, nil
			}
			return cmdResponse{text: fmt.Sprintf("Removed %q from %s", value, list)}, nil
		case "find":
			found, err := l.Store.ListFind(ctx, kind, target, value)
			if err != nil {
				return cmdResponse{}, err
			}
			if len(found) == 0 {
				return cmdResponse{text: fmt.Sprintf("Nothing found in %s", list)}, nil
			}
			return cmdResponse{text: fmt.Sprintf("Found in %s:\n%s", list, strings.Join(found, "\n"))}, nil
		}
		return cmdResponse{}, usage
	}
}

// featureCommand makes handler of /enable and /disable
func (l *TelegramListener) featureCommand(enable bool) cmdHandler {
	return func(ctx context.Context, req cmdRequest) (cmdResponse, error) {
		if req.args == "" {
			all, err := l.Store.GlobalFeatures(ctx)
			if err != nil {
				return cmdResponse{}, err
			}
			return cmdResponse{}, fmt.Errorf("feature name required, one of: %s", strings.Join(all, ", "))
		}
		state := "enabled"
		fn := l.Store.EnableFeature
		if !enable {
			state, fn = "disabled", l.Store.DisableFeature
		}
		if err := fn(ctx, req.chat.ID, req.args); err != nil {
			return cmdResponse{}, err
		}
		return cmdResponse{text: fmt.Sprintf("Feature %s %s for this chat", escapeMarkDownV1Text(req.args), state)}, nil
	}
}

// cmdMarkTrusted marks the message trusted without rate limits and trust rules.
// Args are "msg id|type", the message can be given as a reply as well.
func (l *TelegramListener) cmdMarkTrusted(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	idStr, typeStr, _ := strings.Cut(req.args, "|")
	if req.reply != nil && !strings.Contains(req.args, "|") {
		idStr, typeStr = strconv.Itoa(req.reply.MessageID), req.args
	}
	msgID, err := strconv.Atoi(strings.TrimSpace(idStr))
	if err != nil {
		return cmdResponse{}, errors.New("usage: /marktrusted <msg id>|<bot|admin|verified>")
	}
	t := trust.TypeAdmin
	if strings.TrimSpace(typeStr) != "" {
		if t, err = trust.ParseType(typeStr); err != nil {
			return cmdResponse{}, err
		}
	}
	md := trust.Metadata{MsgID: msgID, ChatID: req.chat.ID, SenderID: req.user.ID, Type: t, Time: l.now()}
	if err := l.Trust.MarkTrusted(ctx, md); err != nil {
		return cmdResponse{}, err
	}
	return cmdResponse{text: fmt.Sprintf("Message %d marked as trusted (%s)", msgID, t)}, nil
}

func (l *TelegramListener) cmdTrustStats(ctx context.Context, _ cmdRequest) (cmdResponse, error) {
	st, err := l.Trust.Stats(ctx)
	if err != nil {
		return cmdResponse{}, err
	}
	return cmdResponse{text: fmt.Sprintf("Trusted messages: %d\nTracked replies: %d", st.Trusted, st.Replies)}, nil
}

// configCommand makes handler showing or changing trust config settings, args are "name|value"
func (l *TelegramListener) configCommand(cmd, title string, names []string) cmdHandler {
	return func(ctx context.Context, req cmdRequest) (cmdResponse, error) {
		if req.args == "" {
			cfg, err := l.Trust.Config(ctx)
			if err != nil {
				return cmdResponse{}, err
			}
			vals := cfg.Values()
			lines := []string{title + ":"}
			for _, n := range names {
				lines = append(lines, fmt.Sprintf("%s: %s", escapeMarkDownV1Text(n), vals[n]))
			}
			lines = append(lines, fmt.Sprintf("\nUsage: /%s name|value", cmd))
			return cmdResponse{text: strings.Join(lines, "\n")}, nil
		}

		name, value, ok := strings.Cut(req.args, "|")
		name = strings.ToLower(strings.TrimSpace(name))
		if !ok {
			return cmdResponse{}, fmt.Errorf("usage: /%s name|value", cmd)
		}
		if !slices.Contains(names, name) {
			return cmdResponse{}, fmt.Errorf("unknown setting %q, one of: %s", name, strings.Join(names, ", "))
		}
		cfg, err := l.Trust.SetConfig(ctx, name, value)
		if err != nil {
			return cmdResponse{}, err
		}
		log.Printf("[INFO] trust setting %s set to %s by %s", name, cfg.Values()[name], userLabel(req.user))
		return cmdResponse{text: fmt.Sprintf("Setting %s set to %s", escapeMarkDownV1Text(name), cfg.Values()[name])}, nil
	}
}

func (l *TelegramListener) cmdRateLimitStats(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	if req.args == "" {
		st, err := l.Trust.RateLimitStats(ctx)
		if err != nil {
			return cmdResponse{}, err
		}
		return cmdResponse{text: fmt.Sprintf("Rate limits, last hour\ntrusted messages: %d by %d users\nreplies: %d by %d users",
			st.TrustedTotal, st.TrustedUsers, st.ReplyTotal, st.ReplyUsers)}, nil
	}
	uid, err := parseUserID(req.args, "ratelimitstats")
	if err != nil {
		return cmdResponse{}, err
	}
	trusted, replies, err := l.Trust.UserRate(ctx, uid)
	if err != nil {
		return cmdResponse{}, err
	}
	return cmdResponse{text: fmt.Sprintf("Rate limits of user %d\ntrusted messages: %d/%d\nreplies: %d/%d",
		uid, trusted, trust.MaxTrustedPerHour, replies, trust.MaxRepliesPerHour)}, nil
}

func (l *TelegramListener) cmdResetRateLimit(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	uid, err := parseUserID(req.args, "resetratelimit")
	if err != nil {
		return cmdResponse{}, err
	}
	if err := l.Trust.ResetRateLimit(ctx, uid); err != nil {
		return cmdResponse{}, err
	}
	return cmdResponse{text: fmt.Sprintf("Rate limits of user %d reset", uid)}, nil
}

func (l *TelegramListener) cmdSpamPatterns(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	uid, err := parseUserID(req.args, "spampatterns")
	if err != nil {
		return cmdResponse{}, err
	}
	patterns, err := l.Trust.SpamPatterns(ctx, uid)
	if err != nil {
		return cmdResponse{}, err
	}
	if len(patterns) == 0 {
		return cmdResponse{text: fmt.Sprintf("No spam patterns recorded for user %d", uid)}, nil
	}
	return cmdResponse{text: fmt.Sprintf("Spam patterns of user %d: %s", uid,
		escapeMarkDownV1Text(strings.Join(patterns, ", ")))}, nil
}

func (l *TelegramListener) cmdAntiEvasionStats(ctx context.Context, _ cmdRequest) (cmdResponse, error) {
	st, err := l.Trust.AntiEvasionStats(ctx)
	if err != nil {
		return cmdResponse{}, err
	}
	return cmdResponse{text: fmt.Sprintf("Users with reply spam patterns: %d\nPatterns recorded: %d", st.Users, st.Patterns)}, nil
}

// learnCommand makes handler of /learnspam and /learnham
func (l *TelegramListener) learnCommand(class learning.Class) cmdHandler {
	return func(ctx context.Context, req cmdRequest) (cmdResponse, error) {
		msg, err := l.targetMessage(ctx, req)
		if err != nil {
			return cmdResponse{}, err
		}
		learn := l.Bayes.LearnSpam
		if class == learning.ClassHam {
			learn = l.Bayes.LearnHam
		}
		if err := learn(ctx, msg); err != nil {
			return cmdResponse{}, err
		}
		log.Printf("[INFO] message %s learned as %s by %s", learning.MessageKey(msg), class, userLabel(req.user))
		return cmdResponse{text: fmt.Sprintf("Message %d learned as %s", msg.ID, class)}, nil
	}
}

func (l *TelegramListener) cmdFuzzyAdd(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	msg, err := l.targetMessage(ctx, req)
	if err != nil {
		return cmdResponse{}, err
	}
	if err := l.Fuzzy.Teach(ctx, msg.Text); err != nil {
		return cmdResponse{}, err
	}
	return cmdResponse{text: fmt.Sprintf("Message %d added to fuzzy storage", msg.ID)}, nil
}

// targetMessage returns the message the command replies to, or the stored message with id from args
func (l *TelegramListener) targetMessage(ctx context.Context, req cmdRequest) (rspamd.Message, error) {
	if req.reply != nil {
		res := rspamd.Message{ID: req.reply.MessageID, ChatID: req.chat.ID, ChatTitle: req.chat.Title, Text: req.reply.Text}
		if res.Text == "" {
			res.Text = req.reply.Caption
		}
		if req.reply.From != nil {
			res.UserID, res.UserName = req.reply.From.ID, req.reply.From.UserName
		}
		return res, nil
	}
	if req.args == "" {
		return rspamd.Message{}, fmt.Errorf("reply to a message or pass its id, /%s <msg id>", req.name)
	}
	msgID, err := strconv.Atoi(req.args)
	if err != nil {
		return rspamd.Message{}, fmt.Errorf("invalid message id %q", req.args)
	}
	text, err := l.Store.LoadMessage(ctx, req.chat.ID, msgID)
	if errors.Is(err, storage.ErrNotFound) {
		return rspamd.Message{}, fmt.Errorf("message %d not found, messages are kept for a week", msgID)
	}
	if err != nil {
		return rspamd.Message{}, err
	}
	return rspamd.Message{ID: msgID, ChatID: req.chat.ID, ChatTitle: req.chat.Title, Text: text}, nil
}

func (l *TelegramListener) cmdBayesStats(ctx context.Context, _ cmdRequest) (cmdResponse, error) {
	info, err := l.Bayes.Info(ctx)
	if err != nil {
		return cmdResponse{}, err
	}
	return cmdResponse{text: fmt.Sprintf("*Bayes classifier: %s*\nspam messages: %d/%d (%d%%)\nham messages: %d/%d (%d%%)\n"+
		"spam tokens: %d\nham tokens: %d\nspam ratio: %d%%",
		info.Status(), info.SpamMessages, info.MinSpam, info.SpamProgress, info.HamMessages, info.MinHam, info.HamProgress,
		info.SpamTokens, info.HamTokens, info.SpamRatio)}, nil
}

func (l *TelegramListener) cmdBayesReset(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	if err := l.Bayes.Reset(ctx); err != nil {
		return cmdResponse{}, err
	}
	log.Printf("[INFO] bayes stats reset by %s", userLabel(req.user))
	return cmdResponse{text: "Bayes statistics reset"}, nil
}

func (l *TelegramListener) cmdNeuralStats(ctx context.Context, _ cmdRequest) (cmdResponse, error) {
	st, err := l.Neural.Stats(ctx)
	if err != nil {
		return cmdResponse{}, err
	}
	lastTraining := st.LastTraining
	if lastTraining == "" {
		lastTraining = "never"
	}
	return cmdResponse{text: fmt.Sprintf("*Neural network*\nmessages: %d (spam %d, ham %d)\ntraining iterations: %d\n"+
		"model accuracy: %.2f\nlast training: %s",
		st.TotalMessages, st.SpamMessages, st.HamMessages, st.TrainingIterations, st.ModelAccuracy, lastTraining)}, nil
}

func (l *TelegramListener) cmdNeuralStatus(ctx context.Context, _ cmdRequest) (cmdResponse, error) {
	st, err := l.Neural.Stats(ctx)
	if err != nil {
		return cmdResponse{}, err
	}
	bayesReady, err := l.Bayes.IsReady(ctx)
	if err != nil {
		return cmdResponse{}, err
	}
	status := "training"
	if st.Ready {
		status = "ready"
	}
	bayesStatus := "training"
	if bayesReady {
		bayesStatus = "ready"
	}
	return cmdResponse{text: fmt.Sprintf("Neural network: %s, %d/%d samples (%d%%)\nBayes classifier: %s",
		status, st.TotalMessages, learning.MinNeuralSamples, st.Progress, bayesStatus)}, nil
}

func (l *TelegramListener) cmdNeuralReset(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	if err := l.Neural.Reset(ctx); err != nil {
		return cmdResponse{}, err
	}
	log.Printf("[INFO] neural stats reset by %s", userLabel(req.user))
	return cmdResponse{text: "Neural network statistics reset"}, nil
}

// cmdNeuralFeatures shows learned features, id is "chat:msg" or message id in the current chat
func (l *TelegramListener) cmdNeuralFeatures(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	id := req.args
	if id == "" && req.reply != nil {
		id = strconv.Itoa(req.reply.MessageID)
	}
	if id == "" {
		return cmdResponse{}, errors.New("usage: /neuralfeatures <msg id>")
	}
	if !strings.Contains(id, ":") {
		msgID, err := strconv.Atoi(id)
		if err != nil {
			return cmdResponse{}, fmt.Errorf("invalid message id %q", id)
		}
		id = learning.MessageKey(rspamd.Message{ID: msgID, ChatID: req.chat.ID})
	}
	rec, ok, err := l.Neural.Features(ctx, id)
	if err != nil {
		return cmdResponse{}, err
	}
	if !ok {
		return cmdResponse{text: fmt.Sprintf("No features recorded for message %s", id)}, nil
	}
	data, err := json.MarshalIndent(rec.Features, "", "  ")
	if err != nil {
		return cmdResponse{}, fmt.Errorf("can't marshal features: %w", err)
	}
	return cmdResponse{text: fmt.Sprintf("Features of message %s, learned as %s at %s:\n```\n%s\n```",
		id, rec.LearningType, rec.Timestamp.Format(l.timeFormat), string(data))}, nil
}

func (l *TelegramListener) cmdMigrate(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	report, err := l.Store.MigrateReputation(ctx)
	if err != nil {
		return cmdResponse{}, fmt.Errorf("migration finished with errors, %s: %w", report, err)
	}
	log.Printf("[INFO] reputation migration by %s: %s", userLabel(req.user), report)
	return cmdResponse{text: "Reputation migration done, " + report.String()}, nil
}

func parseUserID(s, cmd string) (int64, error) {
	uid, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || uid == 0 {
		return 0, fmt.Errorf("usage: /%s <user id>", cmd)
	}
	return uid, nil
}
