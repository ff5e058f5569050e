package events

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/tg-rspamd/app/bot"
	"github.com/umputun/tg-rspamd/app/events/mocks"
	"github.com/umputun/tg-rspamd/app/learning"
	lmocks "github.com/umputun/tg-rspamd/app/learning/mocks"
	"github.com/umputun/tg-rspamd/app/rspamd"
	"github.com/umputun/tg-rspamd/app/storage"
	"github.com/umputun/tg-rspamd/app/trust"
)

var (
	adminUser = &tbapi.User{ID: testAdminID, UserName: "admin"}
	groupChat = tbapi.Chat{ID: testChatID, Type: "supergroup", Title: "test chat"}
)

func cmdMessage(from *tbapi.User, chat tbapi.Chat, text string) *tbapi.Message {
	return &tbapi.Message{MessageID: 500, Chat: chat, From: from, Text: text, Date: int(time.Now().Unix())}
}

// runCommand sends the command and returns the text of the reply, empty if nothing sent
func runCommand(t *testing.T, l *TelegramListener, tbAPI *mocks.TbAPIMock, msg *tbapi.Message) string {
	t.Helper()
	tbAPI.ResetCalls()
	require.NoError(t, l.onCommand(context.Background(), msg))
	calls := tbAPI.SendCalls()
	if len(calls) == 0 {
		return ""
	}
	require.Len(t, calls, 1)
	return calls[0].C.(tbapi.MessageConfig).Text
}

func TestTelegramListener_parseCommand(t *testing.T) {
	l := &TelegramListener{BotName: "tgbot"}
	tests := []struct {
		name     string
		text     string
		ok       bool
		cmd      string
		args     string
		withFrom bool
	}{
		{name: "simple", text: "/stats", ok: true, cmd: "stats", withFrom: true},
		{name: "with args", text: "/whitelist  user|add|123 ", ok: true, cmd: "whitelist", args: "user|add|123", withFrom: true},
		{name: "upper case", text: "/LearnSpam 42", ok: true, cmd: "learnspam", args: "42", withFrom: true},
		{name: "addressed to the bot", text: "/stats@TgBot", ok: true, cmd: "stats", withFrom: true},
		{name: "addressed to other bot", text: "/stats@otherbot", ok: false, withFrom: true},
		{name: "empty command", text: "/", ok: false, withFrom: true},
		{name: "no sender", text: "/stats", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &tbapi.Message{Text: tt.text, Chat: groupChat}
			if tt.withFrom {
				msg.From = &tbapi.User{ID: 1, UserName: "user", FirstName: "First", LastName: "Last"}
			}
			req, ok := l.parseCommand(msg)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, tt.cmd, req.name)
			assert.Equal(t, tt.args, req.args)
			assert.Equal(t, bot.User{ID: 1, Username: "user", DisplayName: "First Last"}, req.user)
			assert.Equal(t, testChatID, req.chat.ID)
		})
	}
}

func TestTelegramListener_commandPermissions(t *testing.T) {
	l, tbAPI, _ := prepListener(t, verdictModerator(bot.Verdict{}))

	t.Run("chat admin", func(t *testing.T) {
		assert.Equal(t, helpText, runCommand(t, l, tbAPI, cmdMessage(adminUser, groupChat, "/help")))
	})
	t.Run("superuser", func(t *testing.T) {
		assert.Equal(t, helpText, runCommand(t, l, tbAPI, cmdMessage(&tbapi.User{ID: 2, UserName: "super"}, groupChat, "/help")))
	})
	t.Run("private chat", func(t *testing.T) {
		private := tbapi.Chat{ID: testUserID, Type: "private"}
		assert.Equal(t, helpText, runCommand(t, l, tbAPI, cmdMessage(&tbapi.User{ID: testUserID}, private, "/start")))
	})
	t.Run("regular user gets no reply", func(t *testing.T) {
		assert.Empty(t, runCommand(t, l, tbAPI, cmdMessage(&tbapi.User{ID: testUserID}, groupChat, "/help")))
	})
	t.Run("unknown command gets no reply", func(t *testing.T) {
		assert.Empty(t, runCommand(t, l, tbAPI, cmdMessage(adminUser, groupChat, "/unknown")))
	})
	t.Run("failed command replies with error", func(t *testing.T) {
		text := runCommand(t, l, tbAPI, cmdMessage(adminUser, groupChat, "/reputation abc"))
		assert.Equal(t, "error: usage: /reputation <user id>", text)
	})
}

func TestTelegramListener_notCommandsModerated(t *testing.T) {
	spammer := &tbapi.User{ID: testUserID, UserName: "spammer"}
	tests := []struct {
		name string
		from *tbapi.User
		text string
		want int
	}{
		{name: "unknown command", from: spammer, text: "/buy cheap crypto http://spam.example", want: 1},
		{name: "admin command of regular user", from: spammer, text: "/stats http://spam.example", want: 1},
		{name: "command to other bot", from: spammer, text: "/start@otherbot http://spam.example", want: 1},
		{name: "unknown command of chat admin", from: adminUser, text: "/unknown", want: 0},
		{name: "admin command of chat admin", from: adminUser, text: "/help", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			moderator := verdictModerator(bot.Verdict{Action: bot.ActionDelete, Score: 10})
			l, tbAPI, _ := prepListener(t, moderator)
			upd := tbapi.Update{UpdateID: 1, Message: groupMessage(10, tt.from, tt.text)}
			require.NoError(t, l.handleUpdate(context.Background(), upd))

			require.Len(t, moderator.OnMessageCalls(), tt.want)
			deletes := requestsOf[tbapi.DeleteMessageConfig](tbAPI)
			require.Len(t, deletes, tt.want)
			if tt.want > 0 {
				assert.Equal(t, tt.text, moderator.OnMessageCalls()[0].Msg.Text)
				assert.Equal(t, 10, deletes[0].MessageID)
			}
		})
	}
}

func TestTelegramListener_listCommands(t *testing.T) {
	l, tbAPI, _ := prepListener(t, verdictModerator(bot.Verdict{}))
	ctx := context.Background()
	run := func(text string) string { return runCommand(t, l, tbAPI, cmdMessage(adminUser, groupChat, text)) }

	assert.Equal(t, `Added "123" to whitelist users`, run("/whitelist user|add|123"))
	assert.Equal(t, `"123" is already in whitelist users`, run("/whitelist user|add|123"))
	assert.Equal(t, `Added "casino" to blacklist words`, run("/blacklist word|add|casino"))

	ok, err := l.Store.InList(ctx, storage.Whitelist, storage.ListUsers, "123")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Contains(t, run("/blacklist word|find|casino"), "casino")
	assert.Equal(t, `Removed "casino" from blacklist words`, run("/blacklist word|remove|casino"))
	assert.Equal(t, `"casino" is not in blacklist words`, run("/blacklist word|remove|casino"))
	assert.Equal(t, "Nothing found in blacklist words", run("/blacklist word|find|casino"))
	assert.Equal(t, "error: usage: /whitelist user|word add|remove|find value", run("/whitelist bad"))
	assert.Equal(t, "error: usage: /whitelist user|word add|remove|find value", run("/whitelist chat|add|1"))
	assert.Equal(t, "error: usage: /whitelist user|word add|remove|find value", run("/whitelist user|drop|1"))
}

func TestTelegramListener_featureCommands(t *testing.T) {
	l, tbAPI, _ := prepListener(t, verdictModerator(bot.Verdict{}))
	ctx := context.Background()
	run := func(text string) string { return runCommand(t, l, tbAPI, cmdMessage(adminUser, groupChat, text)) }

	assert.Equal(t, "Feature caps disabled for this chat", run("/disable caps"))
	enabled, err := l.Store.FeatureEnabled(ctx, testChatID, "caps")
	require.NoError(t, err)
	assert.False(t, enabled)

	assert.Equal(t, "Feature caps enabled for this chat", run("/enable CAPS"))
	enabled, err = l.Store.FeatureEnabled(ctx, testChatID, "caps")
	require.NoError(t, err)
	assert.True(t, enabled)

	assert.Contains(t, run("/disable"), "error: feature name required, one of:")
	assert.Contains(t, run("/disable nonexistent"), "error:")

	t.Run("manage features of the current chat", func(t *testing.T) {
		require.NoError(t, l.Store.SetChatName(ctx, testChatID, "test chat"))
		tbAPI.ResetCalls()
		require.NoError(t, l.onCommand(ctx, cmdMessage(adminUser, groupChat, "/managefeatures")))
		require.Len(t, tbAPI.SendCalls(), 1)
		sent := tbAPI.SendCalls()[0].C.(tbapi.MessageConfig)
		all := len(storage.DefaultFeatures)
		assert.Contains(t, sent.Text, "Features of chat test chat")
		kb, ok := sent.ReplyMarkup.(tbapi.InlineKeyboardMarkup)
		require.True(t, ok)
		assert.Len(t, kb.InlineKeyboard, (all+1)/2)
		assert.Equal(t, "✅ ban", kb.InlineKeyboard[0][0].Text)
		require.NotNil(t, kb.InlineKeyboard[0][0].CallbackData)
		assert.Equal(t, "feat:-100123:ban", *kb.InlineKeyboard[0][0].CallbackData)
	})
}

func TestTelegramListener_statsAndReputation(t *testing.T) {
	l, tbAPI, _ := prepListener(t, verdictModerator(bot.Verdict{}))
	ctx := context.Background()
	run := func(text string) string { return runCommand(t, l, tbAPI, cmdMessage(adminUser, groupChat, text)) }

	require.NoError(t, l.Store.SetChatName(ctx, testChatID, "test chat"))
	assert.Equal(t, "No stats for chat test chat yet", run("/stats"))

	require.NoError(t, l.Store.IncrChatField(ctx, testChatID, storage.FieldSpamCount, 3))
	require.NoError(t, l.Store.IncrChatField(ctx, testChatID, storage.FieldDeleted, 2))
	assert.Equal(t, "*Stats of chat test chat*\ndeleted: 2\nspam\\_count: 3", run("/stats"))

	require.NoError(t, l.Store.AdjustReputation(ctx, testUserID, storage.RepBad, 2))
	_, err := l.Store.IncrBan(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, "Reputation of user 555\nbad: 2\ngood: 0\nscore: 2\nbans: 1", run("/reputation 555"))
}

func TestTelegramListener_cmdMakeAdmin(t *testing.T) {
	l, tbAPI, _ := prepListener(t, verdictModerator(bot.Verdict{}))
	ctx := context.Background()
	adminChat := tbapi.Chat{ID: -200, Type: "group", Title: "admins"}

	text := runCommand(t, l, tbAPI, cmdMessage(&tbapi.User{ID: 2, UserName: "super"}, adminChat, "/makeadmin"))
	assert.Contains(t, text, "No other chats with the bot found")

	require.NoError(t, l.Store.AddBotChat(ctx, 2, testChatID))
	require.NoError(t, l.Store.SetChatName(ctx, testChatID, "test chat"))
	tbAPI.ResetCalls()
	require.NoError(t, l.onCommand(ctx, cmdMessage(&tbapi.User{ID: 2, UserName: "super"}, adminChat, "/makeadmin")))
	require.Len(t, tbAPI.SendCalls(), 1)
	sent := tbAPI.SendCalls()[0].C.(tbapi.MessageConfig)
	assert.Equal(t, "Admin chat registered! Select chats to moderate:", sent.Text)
	kb := sent.ReplyMarkup.(tbapi.InlineKeyboardMarkup)
	require.Len(t, kb.InlineKeyboard, 1)
	assert.Equal(t, "Chat: test chat", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "makeadmin:-100123", *kb.InlineKeyboard[0][0].CallbackData)

	chats, err := l.Store.AdminChats(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{-200}, chats)
}

func TestTelegramListener_cmdAddRegex(t *testing.T) {
	l, tbAPI, _ := prepListener(t, verdictModerator(bot.Verdict{}))
	ctx := context.Background()

	text := runCommand(t, l, tbAPI, cmdMessage(adminUser, groupChat, "/addregex CRYPTO_SCAM|free\\s+crypto|5.5"))
	assert.Equal(t, "Rule CRYPTO\\_SCAM with score 5.50 added, reload rspamd to apply", text)
	data, err := os.ReadFile(filepath.Join(l.RulesDir, "telegram_regex_crypto_scam.lua"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "CRYPTO_SCAM")

	features, err := l.Store.GlobalFeatures(ctx)
	require.NoError(t, err)
	assert.Contains(t, features, "crypto_scam")

	assert.Contains(t, runCommand(t, l, tbAPI, cmdMessage(adminUser, groupChat, "/addregex bad")),
		"error: usage: /addregex SYMBOL|pattern|score")
}

func TestTelegramListener_cmdMarkTrusted(t *testing.T) {
	l, tbAPI, _ := prepListener(t, verdictModerator(bot.Verdict{}))
	ctx := context.Background()

	assert.Equal(t, "Message 42 marked as trusted (verified)",
		runCommand(t, l, tbAPI, cmdMessage(adminUser, groupChat, "/marktrusted 42|verified")))
	md, ok, err := l.Trust.Metadata(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, trust.TypeVerified, md.Type)
	assert.Equal(t, testChatID, md.ChatID)

	msg := cmdMessage(adminUser, groupChat, "/marktrusted")
	msg.ReplyToMessage = &tbapi.Message{MessageID: 43, Text: "pinned rules"}
	assert.Equal(t, "Message 43 marked as trusted (admin)", runCommand(t, l, tbAPI, msg))

	assert.Contains(t, runCommand(t, l, tbAPI, cmdMessage(adminUser, groupChat, "/marktrusted 44|owner")), "error:")
	assert.Equal(t, "error: usage: /marktrusted <msg id>|<bot|admin|verified>",
		runCommand(t, l, tbAPI, cmdMessage(adminUser, groupChat, "/marktrusted")))

	assert.Equal(t, "Trusted messages: 2\nTracked replies: 0",
		runCommand(t, l, tbAPI, cmdMessage(adminUser, groupChat, "/truststats")))
}

func TestTelegramListener_configCommands(t *testing.T) {
	l, tbAPI, _ := prepListener(t, verdictModerator(bot.Verdict{}))
	ctx := context.Background()
	run := func(text string) string { return runCommand(t, l, tbAPI, cmdMessage(adminUser, groupChat, text)) }

	text := run("/replyconfig")
	assert.Contains(t, text, "Reply-aware filtering settings:")
	assert.Contains(t, text, "rate\\_limit: true")
	assert.Contains(t, text, "Usage: /replyconfig name|value")

	assert.Equal(t, "Setting rate\\_limit set to false", run("/replyconfig rate_limit|false"))
	cfg, err := l.Trust.Config(ctx)
	require.NoError(t, err)
	assert.False(t, cfg.RateLimit)

	assert.Equal(t, "Setting trust\\_verified set to true", run("/selectivetrust trust_verified|true"))
	assert.Contains(t, run("/selectivetrust rate_limit|true"), "error: unknown setting \"rate_limit\"")
	assert.Contains(t, run("/replyconfig rate_limit"), "error: usage: /replyconfig name|value")
}

func TestTelegramListener_rateLimitCommands(t *testing.T) {
	l, tbAPI, _ := prepListener(t, verdictModerator(bot.Verdict{}))
	ctx := context.Background()
	run := func(text string) string { return runCommand(t, l, tbAPI, cmdMessage(adminUser, groupChat, text)) }

	ok, err := l.Trust.CanCreateTrusted(ctx, testUserID)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "Rate limits of user 555\ntrusted messages: 1/10\nreplies: 0/50", run("/ratelimitstats 555"))
	assert.Contains(t, run("/ratelimitstats"), "trusted messages: 1 by 1 users")
	assert.Equal(t, "Rate limits of user 555 reset", run("/resetratelimit 555"))
	assert.Equal(t, "Rate limits of user 555\ntrusted messages: 0/10\nreplies: 0/50", run("/ratelimitstats 555"))
	assert.Equal(t, "No spam patterns recorded for user 555", run("/spampatterns 555"))
	assert.Equal(t, "Users with reply spam patterns: 0\nPatterns recorded: 0", run("/antievasionstats"))
}

func TestTelegramListener_learnCommands(t *testing.T) {
	l, tbAPI, _ := prepListener(t, verdictModerator(bot.Verdict{}))
	ctx := context.Background()
	rspamdClient := &lmocks.RspamdClientMock{
		LearnSpamFunc: func(ctx context.Context, msg rspamd.Message) error { return nil },
		LearnHamFunc:  func(ctx context.Context, msg rspamd.Message) error { return nil },
		FuzzyAddFunc:  func(ctx context.Context, text string) error { return nil },
	}
	l.Bayes = learning.NewBayes(l.Store.Client(), rspamdClient, l.Neural)
	l.Fuzzy = learning.NewFuzzy(rspamdClient)
	run := func(msg *tbapi.Message) string { return runCommand(t, l, tbAPI, msg) }

	t.Run("learn spam by reply", func(t *testing.T) {
		msg := cmdMessage(adminUser, groupChat, "/learnspam")
		msg.ReplyToMessage = &tbapi.Message{MessageID: 10, Text: "cheap pills, best price online",
			From: &tbapi.User{ID: testUserID, UserName: "spammer"}}
		assert.Equal(t, "Message 10 learned as spam", run(msg))
		require.Len(t, rspamdClient.LearnSpamCalls(), 1)
		learned := rspamdClient.LearnSpamCalls()[0].Msg
		assert.Equal(t, 10, learned.ID)
		assert.Equal(t, testChatID, learned.ChatID)
		assert.Equal(t, testUserID, learned.UserID)

		assert.Contains(t, run(msg), "already been learned as spam")
	})

	t.Run("learn ham by stored id", func(t *testing.T) {
		require.NoError(t, l.Store.SaveMessage(ctx, testChatID, 11, "meeting moved to friday evening"))
		assert.Equal(t, "Message 11 learned as ham", run(cmdMessage(adminUser, groupChat, "/learnham 11")))
		require.Len(t, rspamdClient.LearnHamCalls(), 1)
		assert.Equal(t, "meeting moved to friday evening", rspamdClient.LearnHamCalls()[0].Msg.Text)
	})

	t.Run("unknown message", func(t *testing.T) {
		assert.Equal(t, "error: message 12 not found, messages are kept for a week",
			run(cmdMessage(adminUser, groupChat, "/learnham 12")))
		assert.Equal(t, "error: reply to a message or pass its id, /learnham <msg id>",
			run(cmdMessage(adminUser, groupChat, "/learnham")))
	})

	t.Run("fuzzy add", func(t *testing.T) {
		require.NoError(t, l.Store.SaveMessage(ctx, testChatID, 13, "join my channel for free signals"))
		assert.Equal(t, "Message 13 added to fuzzy storage", run(cmdMessage(adminUser, groupChat, "/fuzzyadd 13")))
		require.Len(t, rspamdClient.FuzzyAddCalls(), 1)
		assert.Equal(t, "join my channel for free signals", rspamdClient.FuzzyAddCalls()[0].Text)
	})

	t.Run("bayes stats and reset", func(t *testing.T) {
		text := run(cmdMessage(adminUser, groupChat, "/bayesstats"))
		assert.Contains(t, text, "spam messages: 1/200")
		assert.Contains(t, text, "ham messages: 1/200")
		assert.Equal(t, "Bayes statistics reset", run(cmdMessage(adminUser, groupChat, "/bayesreset")))
		assert.Contains(t, run(cmdMessage(adminUser, groupChat, "/bayesstats")), "spam messages: 0/200")
	})

	t.Run("neural status", func(t *testing.T) {
		text := run(cmdMessage(adminUser, groupChat, "/neuralstatus"))
		assert.Contains(t, text, "Neural network: training")
		assert.Contains(t, text, "Bayes classifier: training")
		assert.Contains(t, run(cmdMessage(adminUser, groupChat, "/neuralstats")), "*Neural network*")
		assert.Equal(t, "Neural network statistics reset", run(cmdMessage(adminUser, groupChat, "/neuralreset")))
		assert.Equal(t, "No features recorded for message -100123:99", run(cmdMessage(adminUser, groupChat, "/neuralfeatures 99")))
		assert.Equal(t, "error: usage: /neuralfeatures <msg id>", run(cmdMessage(adminUser, groupChat, "/neuralfeatures")))
	})
}

func TestTelegramListener_cmdMigrate(t *testing.T) {
	l, tbAPI, mr := prepListener(t, verdictModerator(bot.Verdict{}))
	mr.HSet(storage.UserKey(testUserID), storage.FieldRep, "3")

	text := runCommand(t, l, tbAPI, cmdMessage(adminUser, groupChat, "/migrate"))
	assert.Equal(t, "Reputation migration done, migrated: 1, skipped: 0, failed: 0", text)
	rep, err := l.Store.Reputation(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rep.Bad)
}
