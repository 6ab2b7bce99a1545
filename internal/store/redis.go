package store

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/handywriterz/handywriterz/config"
)

const (
	statusKeyPrefix     = "handywriterz:workflow:"
	progressChanPrefix  = "handywriterz:progress:"
	statusTTL           = 24 * time.Hour
	progressPublishWait = 2 * time.Second
)

// ProgressPublisher pushes workflow progress into Redis: a status key for
// polling plus a pub/sub channel for streaming consumers. It implements
// core.ProgressReporter; publishing is fire-and-forget and never surfaces
// errors into the pipeline.
type ProgressPublisher struct {
	rdb    *redis.Client
	logger *log.Logger
}

func NewProgressPublisher(ctx context.Context, cfg config.RedisConfig) (*ProgressPublisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &ProgressPublisher{
		rdb:    rdb,
		logger: log.New(log.Writer(), "[PROGRESS] ", log.LstdFlags),
	}, nil
}

// ProgressEvent is the published payload.
type ProgressEvent struct {
	ConversationID string    `json:"conversation_id"`
	Stage          string    `json:"stage"`
	Percent        float64   `json:"percent"`
	At             time.Time `json:"at"`
}

func (p *ProgressPublisher) Report(conversationID, stage string, percent float64) {
	ctx, cancel := context.WithTimeout(context.Background(), progressPublishWait)
	defer cancel()

	ev := ProgressEvent{
		ConversationID: conversationID,
		Stage:          stage,
		Percent:        percent,
		At:             time.Now(),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	pipe := p.rdb.Pipeline()
	pipe.Set(ctx, statusKeyPrefix+conversationID, payload, statusTTL)
	pipe.Publish(ctx, progressChanPrefix+conversationID, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		p.logger.Printf("warn: publishing progress for %s: %v", conversationID, err)
	}
}

// Latest returns the last published progress event for a conversation.
func (p *ProgressPublisher) Latest(ctx context.Context, conversationID string) (ProgressEvent, bool, error) {
	payload, err := p.rdb.Get(ctx, statusKeyPrefix+conversationID).Bytes()
	if err == redis.Nil {
		return ProgressEvent{}, false, nil
	}
	if err != nil {
		return ProgressEvent{}, false, err
	}
	var ev ProgressEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ProgressEvent{}, false, err
	}
	return ev, true, nil
}

// Subscribe returns the pub/sub stream for one conversation's progress.
// Callers own the returned PubSub and must Close it.
func (p *ProgressPublisher) Subscribe(ctx context.Context, conversationID string) *redis.PubSub {
	return p.rdb.Subscribe(ctx, progressChanPrefix+conversationID)
}

func (p *ProgressPublisher) Close() error { return p.rdb.Close() }
