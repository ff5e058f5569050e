package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/umputun/tg-rspamd/app/learning"
	"github.com/umputun/tg-rspamd/app/metrics"
	"github.com/umputun/tg-rspamd/app/rspamd"
	"github.com/umputun/tg-rspamd/app/storage"
	"github.com/umputun/tg-rspamd/app/trust"
)

//go:generate moq --out mocks/scanner.go --pkg mocks --with-resets --skip-ensure . Scanner
//go:generate moq --out mocks/learner.go --pkg mocks --with-resets --skip-ensure . Learner
//go:generate moq --out mocks/action_recorder.go --pkg mocks --with-resets --skip-ensure . ActionRecorder

// reasons of forced verdicts and score adjusting symbols
const (
	ReasonBlacklistUser = "BLACKLIST_USER"
	ReasonBlacklistWord = "BLACKLIST_WORD"

	SymbolReputationBad  = "USER_REPUTATION_BAD"
	SymbolReputationGood = "USER_REPUTATION_GOOD"
	SymbolTrustedReply   = "TRUSTED_REPLY"

	reputationBadScore  = 5.0
	reputationGoodScore = -1.0
)

// Scanner checks messages with rspamd
type Scanner interface {
	Check(ctx context.Context, msg rspamd.Message) (rspamd.Reply, error)
}

// Learner teaches rspamd bayes with confidently scored messages
type Learner interface {
	AutoLearn(ctx context.Context, msg rspamd.Message, score float64) (learning.Class, error)
}

// ActionRecorder keeps the log of moderation actions
type ActionRecorder interface {
	Add(ctx context.Context, entry storage.ActionEntry) error
}

// Store is a subset of redis state used by the moderator
type Store interface {
	SaveMessage(ctx context.Context, chatID int64, msgID int, text string) error
	InList(ctx context.Context, kind storage.ListKind, target storage.ListTarget, value string) (bool, error)
	ListedWord(ctx context.Context, kind storage.ListKind, text string) (string, bool, error)
	FeatureEnabled(ctx context.Context, chatID int64, name string) (bool, error)
	AdjustReputation(ctx context.Context, uid int64, field storage.RepField, delta int64) error
}

// TrustChecker provides trusted messages and reply limits
type TrustChecker interface {
	Metadata(ctx context.Context, msgID int) (trust.Metadata, bool, error)
	Config(ctx context.Context) (trust.Config, error)
	ScoreReduction(ctx context.Context, uid int64, t trust.Type) (float64, error)
	ReplySpamPatterns(ctx context.Context, uid int64, text string) ([]string, error)
	CanReply(ctx context.Context, uid int64) (bool, error)
	TrackReply(ctx context.Context, chatID int64, trustedID, replyID int) error
}

// Controls is the admin panel switches affecting moderation
type Controls interface {
	Stopped(ctx context.Context) (bool, error)
	Settings(ctx context.Context) (map[string]string, error)
}

// Moderator scores messages with rspamd and decides what to do with them
type Moderator struct {
	ModeratorParams
}

// ModeratorParams defines moderator dependencies. Learner, Controls, Actions and DecisionLog are optional.
type ModeratorParams struct {
	Scanner     Scanner
	Store       Store
	Trust       TrustChecker
	Learner     Learner
	Controls    Controls
	Actions     ActionRecorder
	DecisionLog io.Writer // json lines of non-none verdicts
}

// NewModerator makes moderator
func NewModerator(params ModeratorParams) *Moderator {
	return &Moderator{ModeratorParams: params}
}

// OnMessage scores the message and returns the verdict. Scan failure returns ActionNone with error.
// Failures of secondary steps (reputation, trust, learning, logging) are collected and returned
// along with a valid verdict.
func (m *Moderator) OnMessage(ctx context.Context, msg Message) (Verdict, error) {
	if strings.TrimSpace(msg.Text) == "" || msg.From.ID == 0 {
		metrics.Messages.WithLabelValues("skipped").Inc()
		return Verdict{Action: ActionNone}, nil
	}

	if m.Controls != nil {
		stopped, err := m.Controls.Stopped(ctx)
		if err != nil {
			log.Printf("[WARN] can't check emergency stop: %v", err)
		}
		if stopped {
			log.Printf("[DEBUG] emergency stop, skip message %d in %d", msg.ID, msg.ChatID)
			metrics.Messages.WithLabelValues("skipped").Inc()
			return Verdict{Action: ActionNone}, nil
		}
	}

	errs := new(multierror.Error)
	if err := m.Store.SaveMessage(ctx, msg.ChatID, msg.ID, msg.Text); err != nil {
		errs = multierror.Append(errs, err)
	}

	verdict, forced, err := m.checkLists(ctx, msg)
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	if forced && verdict.Action == ActionNone {
		// whitelisted
		metrics.Messages.WithLabelValues("clean").Inc()
		return verdict, errs.ErrorOrNil()
	}

	if !forced {
		rmsg := m.rspamdMessage(msg)
		st := time.Now()
		reply, err := m.Scanner.Check(ctx, rmsg)
		metrics.ScanDuration.Observe(time.Since(st).Seconds())
		if err != nil {
			metrics.ScanErrors.Inc()
			metrics.Messages.WithLabelValues("error").Inc()
			return Verdict{Action: ActionNone}, fmt.Errorf("can't scan message %d in %d: %w", msg.ID, msg.ChatID, err)
		}
		verdict = Verdict{RawScore: reply.Score, Score: reply.Score, Symbols: reply.SymbolNames()}
		slices.Sort(verdict.Symbols)

		verdict.Score += reputationAdjustment(reply)
		if err := m.trustAdjustment(ctx, msg, &verdict); err != nil {
			errs = multierror.Append(errs, err)
		}
		verdict.Action = ActionForScore(verdict.Score)

		if m.learningEnabled(ctx) {
			class, err := m.Learner.AutoLearn(ctx, rmsg, verdict.Score)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("can't auto-learn message %d: %w", msg.ID, err))
			}
			verdict.Learned = string(class)
		}
	}

	if err := m.updateReputation(ctx, msg.From.ID, verdict); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := m.record(ctx, msg, verdict); err != nil {
		errs = multierror.Append(errs, err)
	}
	log.Printf("[DEBUG] message %d from %s in %d: %s", msg.ID, DisplayName(msg), msg.ChatID, verdict)
	return verdict, errs.ErrorOrNil()
}

// checkLists returns forced verdict for whitelisted and blacklisted users and blacklisted words
func (m *Moderator) checkLists(ctx context.Context, msg Message) (v Verdict, forced bool, err error) {
	ids := []string{strconv.FormatInt(msg.From.ID, 10)}
	if msg.From.Username != "" {
		ids = append(ids, msg.From.Username, "@"+msg.From.Username)
	}
	errs := new(multierror.Error)

	if m.featureEnabled(ctx, msg.ChatID, "whitelist") {
		for _, id := range ids {
			ok, err := m.Store.InList(ctx, storage.Whitelist, storage.ListUsers, id)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			if ok {
				log.Printf("[DEBUG] user %s is whitelisted", DisplayName(msg))
				return Verdict{Action: ActionNone}, true, errs.ErrorOrNil()
			}
		}
	}

	if !m.featureEnabled(ctx, msg.ChatID, "blacklist") {
		return Verdict{}, false, errs.ErrorOrNil()
	}
	for _, id := range ids {
		ok, err := m.Store.InList(ctx, storage.Blacklist, storage.ListUsers, id)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if ok {
			return Verdict{Action: ActionBan, Score: BanScore, Reason: ReasonBlacklistUser,
				Symbols: []string{ReasonBlacklistUser}}, true, errs.ErrorOrNil()
		}
	}
	word, ok, err := m.Store.ListedWord(ctx, storage.Blacklist, msg.Text)
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	if ok {
		log.Printf("[DEBUG] blacklisted word %q in message %d", word, msg.ID)
		return Verdict{Action: ActionBan, Score: BanScore, Reason: ReasonBlacklistWord,
			Symbols: []string{ReasonBlacklistWord}}, true, errs.ErrorOrNil()
	}
	return Verdict{}, false, errs.ErrorOrNil()
}

// reputationAdjustment returns score change for reputation symbols set by rspamd rules
func reputationAdjustment(reply rspamd.Reply) float64 {
	if reply.Has(SymbolReputationBad) {
		return reputationBadScore
	}
	if reply.Has(SymbolReputationGood) {
		return reputationGoodScore
	}
	return 0
}

// trustAdjustment softens score of a reply to a trusted message and penalizes evasion patterns in it
func (m *Moderator) trustAdjustment(ctx context.Context, msg Message, v *Verdict) error {
	if m.Trust == nil || msg.ReplyTo.ID == 0 || !m.featureEnabled(ctx, msg.ChatID, "reply_aware") {
		return nil
	}
	md, ok, err := m.Trust.Metadata(ctx, msg.ReplyTo.ID)
	if err != nil {
		return err
	}
	if !ok || md.ChatID != msg.ChatID {
		return nil
	}

	uid := msg.From.ID
	reduction, err := m.Trust.ScoreReduction(ctx, uid, md.Type)
	if err != nil {
		return err
	}
	v.Score += reduction
	v.TrustedTo = md.MsgID
	v.Symbols = append(v.Symbols, SymbolTrustedReply)

	patterns, err := m.Trust.ReplySpamPatterns(ctx, uid, msg.Text)
	if err != nil {
		return err
	}
	if len(patterns) > 0 {
		cfg, err := m.Trust.Config(ctx)
		if err != nil {
			return err
		}
		v.Score += cfg.MinSpamScore * float64(len(patterns))
		v.Symbols = append(v.Symbols, patterns...)
	}

	canReply, err := m.Trust.CanReply(ctx, uid)
	if err != nil {
		return err
	}
	if !canReply {
		log.Printf("[DEBUG] reply rate limit reached for %d, reply %d not tracked", uid, msg.ID)
		return nil
	}
	return m.Trust.TrackReply(ctx, msg.ChatID, md.MsgID, msg.ID)
}

func (m *Moderator) updateReputation(ctx context.Context, uid int64, v Verdict) error {
	switch {
	case v.Action != ActionNone:
		return m.Store.AdjustReputation(ctx, uid, storage.RepBad, 1)
	case v.Score <= 0:
		return m.Store.AdjustReputation(ctx, uid, storage.RepGood, 1)
	}
	return nil
}

// record updates metrics and writes non-none verdicts to the action log and decision log
func (m *Moderator) record(ctx context.Context, msg Message, v Verdict) error {
	if v.Action == ActionNone {
		metrics.Messages.WithLabelValues("clean").Inc()
		return nil
	}
	metrics.Messages.WithLabelValues("spam").Inc()
	metrics.Actions.WithLabelValues(string(v.Action)).Inc()

	errs := new(multierror.Error)
	entry := storage.ActionEntry{
		ChatID:    msg.ChatID,
		MsgID:     msg.ID,
		UserID:    msg.From.ID,
		UserName:  DisplayName(msg),
		Action:    string(v.Action),
		Score:     v.Score,
		Symbols:   v.Symbols,
		Text:      msg.Text,
		Timestamp: time.Now(),
	}
	if m.Actions != nil {
		if err := m.Actions.Add(ctx, entry); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("can't record action: %w", err))
		}
	}
	if m.DecisionLog != nil {
		line := struct {
			storage.ActionEntry
			Verdict Verdict `json:"verdict"`
		}{ActionEntry: entry, Verdict: v}
		data, err := json.Marshal(line)
		if err == nil {
			_, err = m.DecisionLog.Write(append(data, '\n'))
		}
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("can't write decision log: %w", err))
		}
	}
	return errs.ErrorOrNil()
}

func (m *Moderator) featureEnabled(ctx context.Context, chatID int64, name string) bool {
	ok, err := m.Store.FeatureEnabled(ctx, chatID, name)
	if err != nil {
		log.Printf("[WARN] can't check feature %s for %d: %v", name, chatID, err)
		return false
	}
	return ok
}

// learningEnabled checks the learner is set and bayes learning is not switched off on the admin panel
func (m *Moderator) learningEnabled(ctx context.Context) bool {
	if m.Learner == nil {
		return false
	}
	if m.Controls == nil {
		return true
	}
	settings, err := m.Controls.Settings(ctx)
	if err != nil {
		log.Printf("[WARN] can't get panel settings: %v", err)
		return true
	}
	return settings["bayes_learning_enabled"] != "false"
}

func (m *Moderator) rspamdMessage(msg Message) rspamd.Message {
	name := msg.From.Username
	if name == "" {
		name = DisplayName(msg)
	}
	return rspamd.Message{ID: msg.ID, ChatID: msg.ChatID, ChatTitle: msg.ChatTitle, UserID: msg.From.ID,
		UserName: name, Text: msg.Text}
}
