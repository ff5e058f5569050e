// Package learning trains rspamd classifiers. Bayes learning goes through the rspamd controller and is tracked
// in redis, neural network statistics are kept in redis hash updated on every learned message, fuzzy storage
// is fed with texts of deleted spam.
package learning

import (
	"context"
	"errors"
	"fmt"

	"github.com/umputun/tg-rspamd/app/rspamd"
)

//go:generate moq --out mocks/rspamd_client.go --pkg mocks --with-resets --skip-ensure . RspamdClient

// RspamdClient is a subset of rspamd client used for training
type RspamdClient interface {
	LearnSpam(ctx context.Context, msg rspamd.Message) error
	LearnHam(ctx context.Context, msg rspamd.Message) error
	FuzzyAdd(ctx context.Context, text string) error
}

// Class is a learning class
type Class string

// enum of learning classes
const (
	ClassSpam Class = "spam"
	ClassHam  Class = "ham"
)

// ParseClass converts string to Class
func ParseClass(s string) (Class, error) {
	switch Class(s) {
	case ClassSpam, ClassHam:
		return Class(s), nil
	}
	return "", fmt.Errorf("unknown class %q", s)
}

// ErrInvalidContent returned when a message can't be learned, i.e. too short or learned already
var ErrInvalidContent = errors.New("invalid content for learning")

// MessageKey returns id of the message used in learning keys
func MessageKey(msg rspamd.Message) string {
	return fmt.Sprintf("%d:%d", msg.ChatID, msg.ID)
}

// Fuzzy teaches rspamd fuzzy storage with texts of spam messages
type Fuzzy struct {
	client RspamdClient
}

// NewFuzzy makes fuzzy trainer
func NewFuzzy(client RspamdClient) *Fuzzy {
	return &Fuzzy{client: client}
}

// Teach adds the text to fuzzy storage. Short texts are rejected with rspamd.ErrTooShort.
func (f *Fuzzy) Teach(ctx context.Context, text string) error {
	if err := f.client.FuzzyAdd(ctx, text); err != nil {
		return fmt.Errorf("fuzzy teach failed: %w", err)
	}
	return nil
}
