package bot

import (
	"fmt"
	"strings"
	"time"
)

// Action is a moderation action taken on a message
type Action string

// enum of actions, ordered by severity
const (
	ActionNone   Action = "none"
	ActionWarn   Action = "warn"
	ActionDelete Action = "delete"
	ActionBan    Action = "ban"
)

// score thresholds of actions
const (
	BanScore    = 15.0
	DeleteScore = 10.0
	WarnScore   = 5.0
)

// ActionForScore maps the final score to an action
func ActionForScore(score float64) Action {
	switch {
	case score >= BanScore:
		return ActionBan
	case score >= DeleteScore:
		return ActionDelete
	case score >= WarnScore:
		return ActionWarn
	default:
		return ActionNone
	}
}

// Verdict describes bot's decision on particular message
type Verdict struct {
	Action    Action   `json:"action"`
	Score     float64  `json:"score"`      // final score, rspamd score with reputation and trust adjustments
	RawScore  float64  `json:"raw_score"`  // score as returned by rspamd
	Symbols   []string `json:"symbols"`    // triggered rspamd symbols and forced reasons
	Reason    string   `json:"reason"`     // forced reason, i.e. BLACKLIST_USER, empty for scored verdicts
	TrustedTo int      `json:"trusted_to"` // trusted message the message replies to, 0 if none
	Learned   string   `json:"learned"`    // class auto-learned by bayes, empty if nothing learned
}

// String returns short verdict description for logs
func (v Verdict) String() string {
	if v.Reason != "" {
		return fmt.Sprintf("%s (%s)", v.Action, v.Reason)
	}
	return fmt.Sprintf("%s (score %.2f)", v.Action, v.Score)
}

// SenderChat is the sender of the message, sent on behalf of a chat. The
// channel itself for channel messages. The supergroup itself for messages
// from anonymous group administrators.
type SenderChat struct {
	ID       int64  `json:"id"`
	UserName string `json:"username,omitempty"`
}

// Message is primary record to pass data from/to bots
type Message struct {
	ID         int
	From       User
	SenderChat SenderChat `json:"sender_chat,omitempty"`
	ChatID     int64
	ChatTitle  string `json:",omitempty"`
	Sent       time.Time
	Text       string `json:",omitempty"`
	ReplyTo    struct {
		ID   int
		From User
		Text string `json:",omitempty"`
		Sent time.Time
	} `json:",omitempty"`
}

// User defines user info of the Message
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"user_name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// DisplayName returns user's display name or username or id
func DisplayName(msg Message) string {
	displayUsername := msg.From.DisplayName
	if displayUsername == "" {
		displayUsername = msg.From.Username
	}
	if displayUsername == "" {
		displayUsername = fmt.Sprintf("%d", msg.From.ID)
	}
	return strings.TrimSpace(displayUsername)
}
