package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/tg-rspamd/app/bot/mocks"
	"github.com/umputun/tg-rspamd/app/learning"
	"github.com/umputun/tg-rspamd/app/panel"
	"github.com/umputun/tg-rspamd/app/rspamd"
	"github.com/umputun/tg-rspamd/app/storage"
	"github.com/umputun/tg-rspamd/app/trust"
)

type moderatorEnv struct {
	mod      *Moderator
	mr       *miniredis.Miniredis
	store    *storage.Redis
	trust    *trust.Manager
	panel    *panel.Panel
	scanner  *mocks.ScannerMock
	learner  *mocks.LearnerMock
	recorder *mocks.ActionRecorderMock
	log      *bytes.Buffer
}

func prepModerator(t *testing.T, reply rspamd.Reply) *moderatorEnv {
	t.Helper()
	store, mr := prepStore(t)
	env := &moderatorEnv{
		mr:    mr,
		store: store,
		trust: trust.NewManager(store.Client(), store),
		panel: panel.New(store.Client()),
		scanner: &mocks.ScannerMock{CheckFunc: func(context.Context, rspamd.Message) (rspamd.Reply, error) {
			return reply, nil
		}},
		learner: &mocks.LearnerMock{AutoLearnFunc: func(_ context.Context, _ rspamd.Message, score float64) (learning.Class, error) {
			if score >= learning.AutoLearnSpamScore {
				return learning.ClassSpam, nil
			}
			return "", nil
		}},
		recorder: &mocks.ActionRecorderMock{AddFunc: func(context.Context, storage.ActionEntry) error { return nil }},
		log:      &bytes.Buffer{},
	}
	env.mod = NewModerator(ModeratorParams{
		Scanner:     env.scanner,
		Store:       store,
		Trust:       env.trust,
		Learner:     env.learner,
		Controls:    env.panel,
		Actions:     env.recorder,
		DecisionLog: env.log,
	})
	return env
}

func scored(score float64, symbols ...string) rspamd.Reply {
	res := rspamd.Reply{Score: score, Symbols: map[string]rspamd.Symbol{}}
	for _, s := range symbols {
		res.Symbols[s] = rspamd.Symbol{Name: s, Score: 1}
	}
	return res
}

func testMsg(text string) Message {
	return Message{ID: 10, ChatID: -100, ChatTitle: "test chat", Text: text,
		From: User{ID: 42, Username: "user42", DisplayName: "User 42"}}
}

func TestModerator_OnMessageScores(t *testing.T) {
	tests := []struct {
		name       string
		reply      rspamd.Reply
		wantAction Action
		wantScore  float64
		wantRep    string // reputation field changed, empty if none
		learned    string
	}{
		{"clean positive score", scored(1.5), ActionNone, 1.5, "", ""},
		{"clean negative score", scored(-2), ActionNone, -2, "good", ""},
		{"warn", scored(6, "R_SPAM_LINK"), ActionWarn, 6, "bad", "spam"},
		{"delete", scored(12, "R_SPAM_LINK"), ActionDelete, 12, "bad", "spam"},
		{"ban", scored(20), ActionBan, 20, "bad", "spam"},
		{"bad reputation pushes to ban", scored(11, SymbolReputationBad), ActionBan, 16, "bad", "spam"},
		{"good reputation softens", scored(5.5, SymbolReputationGood), ActionNone, 4.5, "", ""},
		{"bad wins over good", scored(1, SymbolReputationBad, SymbolReputationGood), ActionWarn, 6, "bad", "spam"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := prepModerator(t, tt.reply)
			v, err := env.mod.OnMessage(context.Background(), testMsg("some message text"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, v.Action)
			assert.InDelta(t, tt.wantScore, v.Score, 0.001)
			assert.InDelta(t, tt.reply.Score, v.RawScore, 0.001)
			assert.Equal(t, tt.learned, v.Learned)

			require.Len(t, env.scanner.CheckCalls(), 1)
			rmsg := env.scanner.CheckCalls()[0].Msg
			assert.Equal(t, rspamd.Message{ID: 10, ChatID: -100, ChatTitle: "test chat", UserID: 42,
				UserName: "user42", Text: "some message text"}, rmsg)
			require.Len(t, env.learner.AutoLearnCalls(), 1)
			assert.InDelta(t, tt.wantScore, env.learner.AutoLearnCalls()[0].Score, 0.001)

			env.mr.CheckGet(t, "tg:message:-100:10", "some message text")

			rep, _ := env.mr.HKeys("tg:reputation:user:42")
			if tt.wantRep == "" {
				assert.Empty(t, rep)
			} else {
				assert.Equal(t, []string{tt.wantRep}, rep)
				assert.Equal(t, "1", env.mr.HGet("tg:reputation:user:42", tt.wantRep))
			}

			if tt.wantAction == ActionNone {
				assert.Empty(t, env.recorder.AddCalls())
				assert.Empty(t, env.log.String())
				return
			}
			require.Len(t, env.recorder.AddCalls(), 1)
			entry := env.recorder.AddCalls()[0].Entry
			assert.Equal(t, string(tt.wantAction), entry.Action)
			assert.Equal(t, int64(42), entry.UserID)
			assert.Equal(t, "User 42", entry.UserName)
			assert.Equal(t, 10, entry.MsgID)

			var line struct {
				Action  string  `json:"action"`
				Verdict Verdict `json:"verdict"`
			}
			require.NoError(t, json.Unmarshal(env.log.Bytes(), &line))
			assert.Equal(t, string(tt.wantAction), line.Action)
			assert.InDelta(t, tt.wantScore, line.Verdict.Score, 0.001)
		})
	}
}

func TestModerator_OnMessageSkips(t *testing.T) {
	t.Run("empty text", func(t *testing.T) {
		env := prepModerator(t, scored(20))
		v, err := env.mod.OnMessage(context.Background(), testMsg("  "))
		require.NoError(t, err)
		assert.Equal(t, ActionNone, v.Action)
		assert.Empty(t, env.scanner.CheckCalls())
	})

	t.Run("emergency stop", func(t *testing.T) {
		env := prepModerator(t, scored(20))
		require.NoError(t, env.panel.EmergencyStop(context.Background(), 1))
		v, err := env.mod.OnMessage(context.Background(), testMsg("buy now"))
		require.NoError(t, err)
		assert.Equal(t, ActionNone, v.Action)
		assert.Empty(t, env.scanner.CheckCalls())
		assert.False(t, env.mr.Exists("tg:message:-100:10"))
	})

	t.Run("scan error", func(t *testing.T) {
		env := prepModerator(t, scored(0))
		env.scanner.CheckFunc = func(context.Context, rspamd.Message) (rspamd.Reply, error) {
			return rspamd.Reply{}, errors.New("connection refused")
		}
		v, err := env.mod.OnMessage(context.Background(), testMsg("buy now"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
		assert.Equal(t, ActionNone, v.Action)
		assert.Empty(t, env.learner.AutoLearnCalls())
		assert.Empty(t, env.recorder.AddCalls())
	})

	t.Run("learning disabled on panel", func(t *testing.T) {
		env := prepModerator(t, scored(12))
		_, err := env.panel.Configure(context.Background(), "bayes_learning_enabled", "off")
		require.NoError(t, err)
		v, err := env.mod.OnMessage(context.Background(), testMsg("buy now"))
		require.NoError(t, err)
		assert.Equal(t, ActionDelete, v.Action)
		assert.Empty(t, env.learner.AutoLearnCalls())
	})

	t.Run("recorder failure still returns verdict", func(t *testing.T) {
		env := prepModerator(t, scored(12))
		env.recorder.AddFunc = func(context.Context, storage.ActionEntry) error { return errors.New("db is gone") }
		v, err := env.mod.OnMessage(context.Background(), testMsg("buy now"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db is gone")
		assert.Equal(t, ActionDelete, v.Action)
	})
}

func TestModerator_Lists(t *testing.T) {
	ctx := context.Background()

	t.Run("whitelisted user", func(t *testing.T) {
		env := prepModerator(t, scored(20))
		_, err := env.store.ListAdd(ctx, storage.Whitelist, storage.ListUsers, "42")
		require.NoError(t, err)
		v, err := env.mod.OnMessage(ctx, testMsg("buy now"))
		require.NoError(t, err)
		assert.Equal(t, ActionNone, v.Action)
		assert.Empty(t, env.scanner.CheckCalls())
	})

	t.Run("blacklisted username", func(t *testing.T) {
		env := prepModerator(t, scored(0))
		_, err := env.store.ListAdd(ctx, storage.Blacklist, storage.ListUsers, "@user42")
		require.NoError(t, err)
		v, err := env.mod.OnMessage(ctx, testMsg("hello"))
		require.NoError(t, err)
		assert.Equal(t, ActionBan, v.Action)
		assert.Equal(t, ReasonBlacklistUser, v.Reason)
		assert.Empty(t, env.scanner.CheckCalls())
		assert.Empty(t, env.learner.AutoLearnCalls())
		require.Len(t, env.recorder.AddCalls(), 1)
		assert.Equal(t, []string{ReasonBlacklistUser}, env.recorder.AddCalls()[0].Entry.Symbols)
		assert.Equal(t, "1", env.mr.HGet("tg:reputation:user:42", "bad"))
	})

	t.Run("blacklisted word", func(t *testing.T) {
		env := prepModerator(t, scored(0))
		_, err := env.store.ListAdd(ctx, storage.Blacklist, storage.ListWords, "casino")
		require.NoError(t, err)
		v, err := env.mod.OnMessage(ctx, testMsg("best CASINO in town"))
		require.NoError(t, err)
		assert.Equal(t, ActionBan, v.Action)
		assert.Equal(t, ReasonBlacklistWord, v.Reason)
	})

	t.Run("blacklist feature disabled", func(t *testing.T) {
		env := prepModerator(t, scored(0))
		_, err := env.store.ListAdd(ctx, storage.Blacklist, storage.ListWords, "casino")
		require.NoError(t, err)
		require.NoError(t, env.store.DisableFeature(ctx, -100, "blacklist"))
		v, err := env.mod.OnMessage(ctx, testMsg("best casino in town"))
		require.NoError(t, err)
		assert.Equal(t, ActionNone, v.Action)
		assert.Len(t, env.scanner.CheckCalls(), 1)
	})
}

func TestModerator_TrustedReplies(t *testing.T) {
	ctx := context.Background()
	trusted := trust.Metadata{MsgID: 5, ChatID: -100, SenderID: 1, Type: trust.TypeAdmin, Time: time.Now()}

	t.Run("reply to trusted message softened", func(t *testing.T) {
		env := prepModerator(t, scored(6))
		require.NoError(t, env.trust.MarkTrusted(ctx, trusted))
		msg := testMsg("thanks for the info")
		msg.ReplyTo.ID = 5
		v, err := env.mod.OnMessage(ctx, msg)
		require.NoError(t, err)
		assert.InDelta(t, 4, v.Score, 0.001)
		assert.Equal(t, ActionNone, v.Action)
		assert.Equal(t, 5, v.TrustedTo)
		assert.Contains(t, v.Symbols, SymbolTrustedReply)

		trustedID, ok, err := env.trust.ReplyToTrusted(ctx, -100, 10)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 5, trustedID)
	})

	t.Run("evasion patterns add score", func(t *testing.T) {
		env := prepModerator(t, scored(6))
		require.NoError(t, env.trust.MarkTrusted(ctx, trusted))
		msg := testMsg("see http://a.example http://b.example http://c.example")
		msg.ReplyTo.ID = 5
		v, err := env.mod.OnMessage(ctx, msg)
		require.NoError(t, err)
		assert.InDelta(t, 5, v.Score, 0.001, "6 - 2 + 1")
		assert.Equal(t, ActionWarn, v.Action)
		assert.Contains(t, v.Symbols, "TG_REPLY_LINK_SPAM")
	})

	t.Run("trusted message from another chat ignored", func(t *testing.T) {
		env := prepModerator(t, scored(6))
		other := trusted
		other.ChatID = -200
		require.NoError(t, env.trust.MarkTrusted(ctx, other))
		msg := testMsg("thanks")
		msg.ReplyTo.ID = 5
		v, err := env.mod.OnMessage(ctx, msg)
		require.NoError(t, err)
		assert.InDelta(t, 6, v.Score, 0.001)
		assert.Equal(t, 0, v.TrustedTo)
	})

	t.Run("reply_aware disabled", func(t *testing.T) {
		env := prepModerator(t, scored(6))
		require.NoError(t, env.trust.MarkTrusted(ctx, trusted))
		require.NoError(t, env.store.DisableFeature(ctx, -100, "reply_aware"))
		msg := testMsg("thanks")
		msg.ReplyTo.ID = 5
		v, err := env.mod.OnMessage(ctx, msg)
		require.NoError(t, err)
		assert.InDelta(t, 6, v.Score, 0.001)
		assert.Equal(t, ActionWarn, v.Action)
	})
}
