// Package usage keeps the anonymous, global usage statistics shown on the
// administration dashboard.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"pocusai/internal/locale"
	"pocusai/internal/models"
	"pocusai/internal/storage"
)

// Counter records one event per user turn. Updates are serialised within the
// process; concurrent writers in other processes may lose increments.
type Counter struct {
	records *storage.Records
	now     func() time.Time

	mu sync.Mutex
}

func NewCounter(records *storage.Records) *Counter {
	records.RegisterMigration(storage.KeyUsageCounters, migrateCounters)
	return &Counter{records: records, now: time.Now}
}

// WithClock overrides the time source.
func (c *Counter) WithClock(now func() time.Time) *Counter {
	c.now = now
	return c
}

// Record counts one message under topic, or the uncategorized bucket when topic is empty.
func (c *Counter) Record(ctx context.Context, topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	counters, err := c.load(ctx)
	if err != nil {
		return err
	}
	now := c.now()
	if topic == "" {
		topic = locale.UncategorizedTopic
	}
	counters.TotalMessages++
	counters.LastActive = now
	counters.HourlyUsage[now.Hour()]++
	counters.TopicCounts[topic]++
	return c.records.Save(ctx, storage.KeyUsageCounters, counters)
}

// Snapshot returns the current counters, seeding them on first access.
func (c *Counter) Snapshot(ctx context.Context) (models.UsageCounters, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	counters, err := c.load(ctx)
	if err != nil {
		return models.UsageCounters{}, err
	}
	return counters.Clone(), nil
}

func (c *Counter) load(ctx context.Context) (models.UsageCounters, error) {
	var counters models.UsageCounters
	ok, err := c.records.Load(ctx, storage.KeyUsageCounters, &counters)
	if err != nil {
		return models.UsageCounters{}, err
	}
	if !ok {
		counters = Seed(c.now())
		if err := c.records.Save(ctx, storage.KeyUsageCounters, counters); err != nil {
			return models.UsageCounters{}, err
		}
		return counters, nil
	}
	if counters.TopicCounts == nil {
		counters.TopicCounts = make(map[string]int)
	}
	if counters.HourlyUsage == nil {
		counters.HourlyUsage = make(map[int]int)
	}
	return counters, nil
}

// Seed returns the demonstration values installed on first access.
func Seed(now time.Time) models.UsageCounters {
	return models.UsageCounters{
		TopicCounts: map[string]int{
			"Intussusception": 12,
			"Appendicitis":    8,
			"eFAST":           15,
			"Pneumothorax":    7,
			"Pneumonia":       5,
			"AAA":             4,
			"DVT":             9,
		},
		HourlyUsage: map[int]int{
			9: 5, 10: 12, 11: 8, 14: 15, 15: 10, 16: 6, 20: 4,
		},
		TotalMessages: 60,
		LastActive:    now,
	}
}

// TopicCount is a single topic bucket.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// TopTopics returns the n largest topic buckets, ties broken by name. n <= 0
// returns every bucket.
func TopTopics(counters models.UsageCounters, n int) []TopicCount {
	out := make([]TopicCount, 0, len(counters.TopicCounts))
	for topic, count := range counters.TopicCounts {
		out = append(out, TopicCount{Topic: topic, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Topic < out[j].Topic
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

type legacyCounters struct {
	TopicCounts   map[string]int `json:"topicCounts"`
	HourlyUsage   map[int]int    `json:"hourlyUsage"`
	TotalMessages int            `json:"totalMessages"`
	LastActive    int64          `json:"lastActive"`
}

func migrateCounters(raw []byte) (json.RawMessage, error) {
	var legacy legacyCounters
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, fmt.Errorf("decode legacy usage counters: %w", err)
	}
	return json.Marshal(models.UsageCounters{
		TopicCounts:   legacy.TopicCounts,
		HourlyUsage:   legacy.HourlyUsage,
		TotalMessages: legacy.TotalMessages,
		LastActive:    time.UnixMilli(legacy.LastActive),
	})
}
