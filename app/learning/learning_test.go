package learning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/tg-rspamd/app/learning/mocks"
	"github.com/umputun/tg-rspamd/app/rspamd"
)

func prepRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func okClient() *mocks.RspamdClientMock {
	return &mocks.RspamdClientMock{
		LearnSpamFunc: func(context.Context, rspamd.Message) error { return nil },
		LearnHamFunc:  func(context.Context, rspamd.Message) error { return nil },
		FuzzyAddFunc:  func(context.Context, string) error { return nil },
	}
}

func TestParseClass(t *testing.T) {
	c, err := ParseClass("spam")
	require.NoError(t, err)
	assert.Equal(t, ClassSpam, c)
	c, err = ParseClass("ham")
	require.NoError(t, err)
	assert.Equal(t, ClassHam, c)
	_, err = ParseClass("eggs")
	assert.Error(t, err)
}

func TestMessageKey(t *testing.T) {
	assert.Equal(t, "-100:42", MessageKey(rspamd.Message{ChatID: -100, ID: 42}))
}

func TestFuzzy_Teach(t *testing.T) {
	client := okClient()
	f := NewFuzzy(client)
	require.NoError(t, f.Teach(context.Background(), "some spam text with many words inside"))
	require.Len(t, client.FuzzyAddCalls(), 1)
	assert.Equal(t, "some spam text with many words inside", client.FuzzyAddCalls()[0].Text)

	client.FuzzyAddFunc = func(context.Context, string) error { return rspamd.ErrTooShort }
	err := f.Teach(context.Background(), "short")
	assert.ErrorIs(t, err, rspamd.ErrTooShort)
}

func TestBayes_Learn(t *testing.T) {
	rdb, mr := prepRedis(t)
	client := okClient()
	neural := NewNeural(rdb)
	neural.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	b := NewBayes(rdb, client, neural)
	ctx := context.Background()

	msg := rspamd.Message{ID: 1, ChatID: -100, UserID: 5, Text: "buy cheap pills at http://spam.example"}
	require.NoError(t, b.LearnSpam(ctx, msg))
	require.Len(t, client.LearnSpamCalls(), 1)
	assert.Equal(t, msg, client.LearnSpamCalls()[0].Msg)
	assert.Equal(t, bayesLearnedTTL, mr.TTL("tg:bayes:learned:spam:-100:1"))

	class, ok, err := b.Learned(ctx, "-100:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ClassSpam, class)

	err = b.LearnHam(ctx, msg)
	require.ErrorIs(t, err, ErrInvalidContent, "already learned")
	assert.Contains(t, err.Error(), "already been learned as spam")
	assert.Empty(t, client.LearnHamCalls())

	ham := rspamd.Message{ID: 2, ChatID: -100, UserID: 6, Text: "good morning everyone, nice weather"}
	require.NoError(t, b.LearnHam(ctx, ham))

	st, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, BayesStats{SpamMessages: 1, HamMessages: 1, Total: 2, SpamRatio: 50}, st)

	nst, err := neural.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), nst.TotalMessages)
	assert.Equal(t, int64(1), nst.SpamMessages)
	assert.Equal(t, int64(1), nst.HamMessages)
	assert.Equal(t, int64(0), nst.TrainingIterations)
	assert.Equal(t, "2024-05-01T12:00:00Z", nst.LastTraining)

	rec, ok, err := neural.Features(ctx, "-100:1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ClassSpam, rec.LearningType)
	assert.Equal(t, len(msg.Text), rec.ContentLength)
	assert.Equal(t, 1, rec.Features.LinkCount)
	assert.Equal(t, neuralFeaturesTTL, mr.TTL("neural:features:-100:1"))
}

func TestBayes_Validate(t *testing.T) {
	rdb, _ := prepRedis(t)
	b := NewBayes(rdb, okClient(), nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		text    string
		wantErr string
	}{
		{name: "empty", text: "   ", wantErr: "empty message"},
		{name: "short", text: "hi there", wantErr: "too short"},
		{name: "ok", text: "long enough message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.Validate(ctx, rspamd.Message{ID: 1, ChatID: 1, Text: tt.text})
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidContent)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBayes_LearnFailed(t *testing.T) {
	rdb, mr := prepRedis(t)
	client := okClient()
	client.LearnSpamFunc = func(context.Context, rspamd.Message) error {
		return &rspamd.StatusError{Code: 500, Body: "internal error"}
	}
	b := NewBayes(rdb, client, nil)

	err := b.LearnSpam(context.Background(), rspamd.Message{ID: 1, ChatID: 1, Text: "some spam message"})
	require.Error(t, err)
	assert.False(t, mr.Exists("tg:bayes:learned:spam:1:1"), "nothing recorded")
	assert.False(t, mr.Exists(bayesSpamMessages))
}

func TestBayes_AutoLearn(t *testing.T) {
	rdb, _ := prepRedis(t)
	client := okClient()
	b := NewBayes(rdb, client, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		id    int
		text  string
		score float64
		want  Class
	}{
		{name: "spam", id: 1, text: "cheap casino bonus now", score: 7, want: ClassSpam},
		{name: "spam threshold", id: 2, text: "cheap casino bonus now", score: 6.0, want: ClassSpam},
		{name: "ham", id: 3, text: "see you at the meeting", score: -1, want: ClassHam},
		{name: "ham threshold", id: 4, text: "see you at the meeting", score: -0.5, want: ClassHam},
		{name: "uncertain", id: 5, text: "see you at the meeting", score: 2, want: ""},
		{name: "too short skipped", id: 6, text: "hi", score: 10, want: ""},
		{name: "already learned skipped", id: 1, text: "cheap casino bonus now", score: 10, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.AutoLearn(ctx, rspamd.Message{ID: tt.id, ChatID: -1, Text: tt.text}, tt.score)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Len(t, client.LearnSpamCalls(), 2)
	assert.Len(t, client.LearnHamCalls(), 2)

	client.LearnHamFunc = func(context.Context, rspamd.Message) error { return errors.New("connection refused") }
	_, err := b.AutoLearn(ctx, rspamd.Message{ID: 10, ChatID: -1, Text: "normal conversation here"}, -3)
	require.Error(t, err)
}

func TestBayes_InfoAndReset(t *testing.T) {
	rdb, mr := prepRedis(t)
	b := NewBayes(rdb, okClient(), nil)
	ctx := context.Background()

	require.NoError(t, mr.Set(bayesSpamMessages, "250"))
	require.NoError(t, mr.Set(bayesHamMessages, "50"))
	_, err := mr.SAdd(bayesSpamTokens, "a", "b", "c")
	require.NoError(t, err)
	_, err = mr.SAdd(bayesHamTokens, "d")
	require.NoError(t, err)
	require.NoError(t, mr.Set("tg:bayes:learned:spam:1:1", "1"))

	info, err := b.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, BayesInfo{
		BayesStats:   BayesStats{SpamTokens: 3, HamTokens: 1, SpamMessages: 250, HamMessages: 50, Total: 300, SpamRatio: 83},
		Ready:        false,
		MinSpam:      MinSpamMessages,
		MinHam:       MinHamMessages,
		SpamProgress: 100,
		HamProgress:  25,
	}, info)
	assert.Equal(t, "Training", info.Status())

	require.NoError(t, mr.Set(bayesHamMessages, "200"))
	ready, err := b.IsReady(ctx)
	require.NoError(t, err)
	assert.True(t, ready)

	require.NoError(t, b.Reset(ctx))
	for _, k := range []string{bayesSpamMessages, bayesHamMessages, bayesSpamTokens, bayesHamTokens, "tg:bayes:learned:spam:1:1"} {
		assert.False(t, mr.Exists(k), k)
	}
	st, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, BayesStats{}, st)
}
