package models

import "time"

// UsageCounters aggregates anonymous usage statistics.
type UsageCounters struct {
	TopicCounts   map[string]int `json:"topic_counts"`
	HourlyUsage   map[int]int    `json:"hourly_usage"`
	TotalMessages int            `json:"total_messages"`
	LastActive    time.Time      `json:"last_active"`
}

// Clone deep-copies the counter maps.
func (u UsageCounters) Clone() UsageCounters {
	out := UsageCounters{
		TopicCounts:   make(map[string]int, len(u.TopicCounts)),
		HourlyUsage:   make(map[int]int, len(u.HourlyUsage)),
		TotalMessages: u.TotalMessages,
		LastActive:    u.LastActive,
	}
	for k, v := range u.TopicCounts {
		out.TopicCounts[k] = v
	}
	for k, v := range u.HourlyUsage {
		out.HourlyUsage[k] = v
	}
	return out
}
