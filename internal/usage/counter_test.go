package usage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pocusai/internal/storage"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSnapshotSeedsOnFirstAccess(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	counter := NewCounter(storage.NewRecords(backend))

	snap, err := counter.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 60, snap.TotalMessages)
	assert.Equal(t, 15, snap.TopicCounts["eFAST"])
	assert.Equal(t, 15, snap.HourlyUsage[14])

	_, err = backend.Get(ctx, storage.KeyUsageCounters)
	require.NoError(t, err, "seed values must be persisted")
}

func TestRecord(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 14, 30, 0, 0, time.Local)
	counter := NewCounter(storage.NewRecords(storage.NewMemoryBackend())).WithClock(fixedClock(at))

	require.NoError(t, counter.Record(ctx, "eFAST (Trauma)"))
	require.NoError(t, counter.Record(ctx, ""))

	snap, err := counter.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 62, snap.TotalMessages)
	assert.Equal(t, 1, snap.TopicCounts["eFAST (Trauma)"])
	assert.Equal(t, 1, snap.TopicCounts["General Query"])
	assert.Equal(t, 17, snap.HourlyUsage[14])
	assert.True(t, snap.LastActive.Equal(at))
}

func TestRecordIsSerialised(t *testing.T) {
	ctx := context.Background()
	counter := NewCounter(storage.NewRecords(storage.NewMemoryBackend()))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, counter.Record(ctx, "DVT"))
		}()
	}
	wg.Wait()

	snap, err := counter.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 80, snap.TotalMessages)
	assert.Equal(t, 29, snap.TopicCounts["DVT"])
}

func TestSnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	counter := NewCounter(storage.NewRecords(storage.NewMemoryBackend()))
	snap, err := counter.Snapshot(ctx)
	require.NoError(t, err)
	snap.TopicCounts["AAA"] = 1000

	again, err := counter.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, again.TopicCounts["AAA"])
}

func TestTopTopics(t *testing.T) {
	top := TopTopics(Seed(time.Now()), 3)
	require.Len(t, top, 3)
	assert.Equal(t, TopicCount{Topic: "eFAST", Count: 15}, top[0])
	assert.Equal(t, TopicCount{Topic: "Intussusception", Count: 12}, top[1])
	assert.Equal(t, TopicCount{Topic: "DVT", Count: 9}, top[2])

	assert.Len(t, TopTopics(Seed(time.Now()), 0), 7)
}

func TestLegacyCountersMigrate(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	legacy := `{"topicCounts":{"AAA":2},"hourlyUsage":{"9":3},"totalMessages":5,"lastActive":1700000000000}`
	require.NoError(t, backend.Set(ctx, storage.KeyUsageCounters, []byte(legacy)))

	counter := NewCounter(storage.NewRecords(backend))
	snap, err := counter.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, snap.TotalMessages)
	assert.Equal(t, 2, snap.TopicCounts["AAA"])
	assert.Equal(t, 3, snap.HourlyUsage[9])
	assert.Equal(t, int64(1700000000000), snap.LastActive.UnixMilli())
}
