package learning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/umputun/tg-rspamd/app/rspamd"
	"github.com/umputun/tg-rspamd/lib/textfeat"
)

const (
	neuralStatsKey       = "neural:stats"
	neuralModelKey       = "neural:model"
	neuralFeaturesPrefix = "neural:features:"
	neuralFeaturesTTL    = 7 * 24 * time.Hour

	// MinNeuralSamples is the number of learned messages neural network needs to be ready
	MinNeuralSamples = 100
)

// neural network classification results
const (
	NeuralSpam      = "spam"
	NeuralHam       = "ham"
	NeuralUncertain = "uncertain"
	NeuralNone      = "none"
)

// NeuralStats is a state of neural network training
type NeuralStats struct {
	TotalMessages      int64   `json:"total_messages"`
	SpamMessages       int64   `json:"spam_messages"`
	HamMessages        int64   `json:"ham_messages"`
	TrainingIterations int64   `json:"training_iterations"`
	ModelAccuracy      float64 `json:"model_accuracy"`
	LastTraining       string  `json:"last_training"`
	Ready              bool    `json:"is_ready"`
	Progress           int64   `json:"progress_percent"`
}

// FeatureRecord is a training record of a learned message
type FeatureRecord struct {
	MessageID     string            `json:"message_id"`
	ContentLength int               `json:"content_length"`
	LearningType  Class             `json:"learning_type"`
	Timestamp     time.Time         `json:"timestamp"`
	Features      textfeat.Features `json:"features"`
}

// Neural reads and maintains neural network training stats
type Neural struct {
	rdb redis.UniversalClient
	now func() time.Time
}

// NewNeural makes neural network manager
func NewNeural(rdb redis.UniversalClient) *Neural {
	return &Neural{rdb: rdb, now: time.Now}
}

// Stats returns training stats, zeros for missing fields
func (n *Neural) Stats(ctx context.Context) (NeuralStats, error) {
	vals, err := n.rdb.HGetAll(ctx, neuralStatsKey).Result()
	if err != nil {
		return NeuralStats{}, fmt.Errorf("can't get neural stats: %w", err)
	}
	res := NeuralStats{LastTraining: "Never"}
	res.TotalMessages, _ = strconv.ParseInt(vals["total_messages"], 10, 64)
	res.SpamMessages, _ = strconv.ParseInt(vals["spam_messages"], 10, 64)
	res.HamMessages, _ = strconv.ParseInt(vals["ham_messages"], 10, 64)
	res.TrainingIterations, _ = strconv.ParseInt(vals["training_iterations"], 10, 64)
	res.ModelAccuracy, _ = strconv.ParseFloat(vals["model_accuracy"], 64)
	if v := vals["last_training"]; v != "" {
		res.LastTraining = v
	}
	res.Ready = res.TotalMessages >= MinNeuralSamples && res.TrainingIterations > 0
	res.Progress = progress(res.TotalMessages, MinNeuralSamples)
	return res, nil
}

// IsReady checks if the network has enough samples and was trained at least once
func (n *Neural) IsReady(ctx context.Context) (bool, error) {
	st, err := n.Stats(ctx)
	if err != nil {
		return false, err
	}
	return st.Ready, nil
}

// Reset removes neural network data and initializes stats with zeros
func (n *Neural) Reset(ctx context.Context) error {
	keys := []string{neuralStatsKey, neuralModelKey}
	iter := n.rdb.Scan(ctx, 0, neuralFeaturesPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("can't scan neural features: %w", err)
	}

	_, err := n.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.HSet(ctx, neuralStatsKey, "total_messages", 0, "spam_messages", 0, "ham_messages", 0,
			"training_iterations", 0, "model_accuracy", "0.0", "last_training", "Never")
		return nil
	})
	if err != nil {
		return fmt.Errorf("can't reset neural data: %w", err)
	}
	log.Printf("[INFO] neural network data reset")
	return nil
}

// Features returns stored training features of the message
func (n *Neural) Features(ctx context.Context, id string) (FeatureRecord, bool, error) {
	data, err := n.rdb.Get(ctx, neuralFeaturesPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return FeatureRecord{}, false, nil
	}
	if err != nil {
		return FeatureRecord{}, false, fmt.Errorf("can't get features of %s: %w", id, err)
	}
	res := FeatureRecord{}
	if err := json.Unmarshal(data, &res); err != nil {
		return FeatureRecord{}, false, fmt.Errorf("can't unmarshal features of %s: %w", id, err)
	}
	return res, true, nil
}

// Classify returns neural network verdict from scan reply symbols
func (n *Neural) Classify(reply rspamd.Reply) string {
	switch {
	case reply.Has("NEURAL_SPAM"):
		return NeuralSpam
	case reply.Has("NEURAL_HAM"):
		return NeuralHam
	case reply.Has("NEURAL_UNCERTAIN"):
		return NeuralUncertain
	}
	return NeuralNone
}

// Confidence returns absolute sum of neural symbols scores
func (n *Neural) Confidence(reply rspamd.Reply) float64 {
	sum := 0.0
	for name, s := range reply.Symbols {
		if strings.HasPrefix(name, "NEURAL_") {
			sum += s.Score
		}
	}
	return math.Abs(sum)
}

// HasNeuralSymbols checks if the reply has any neural symbol
func (n *Neural) HasNeuralSymbols(reply rspamd.Reply) bool {
	for name := range reply.Symbols {
		if strings.HasPrefix(name, "NEURAL_") {
			return true
		}
	}
	return false
}

// recordTraining updates stats for a learned message and keeps its features for a week
func (n *Neural) recordTraining(ctx context.Context, class Class, id, text string) error {
	now := n.now()
	rec := FeatureRecord{
		MessageID:     id,
		ContentLength: len(text),
		LearningType:  class,
		Timestamp:     now.UTC(),
		Features:      textfeat.Extract(text),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("can't marshal features: %w", err)
	}

	_, err = n.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, neuralStatsKey, "total_messages", 1)
		pipe.HIncrBy(ctx, neuralStatsKey, string(class)+"_messages", 1)
		pipe.HSet(ctx, neuralStatsKey, "last_training", now.Format(time.RFC3339))
		pipe.Set(ctx, neuralFeaturesPrefix+id, data, neuralFeaturesTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("can't update neural stats: %w", err)
	}

	// training iterations are counted once the network has enough samples
	st, err := n.Stats(ctx)
	if err != nil {
		return err
	}
	if st.TotalMessages < MinNeuralSamples {
		return nil
	}
	if err := n.rdb.HIncrBy(ctx, neuralStatsKey, "training_iterations", 1).Err(); err != nil {
		return fmt.Errorf("can't increment training iterations: %w", err)
	}
	return nil
}
