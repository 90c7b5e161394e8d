package ingest

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/loadwatch/internal/model"
)

// DefaultDepth is the number of records kept per entity and per channel
const DefaultDepth = 48

// Feed keeps the most recent activity records per entity and message batches
// per channel, each ordered oldest first.
type Feed struct {
	logger *zap.Logger
	depth  int
	now    func() time.Time

	mu       sync.RWMutex
	activity map[string][]model.ActivityRecord
	teamOf   map[string]string
	batches  map[string][]model.MessageBatch
}

// NewFeed creates an empty feed
func NewFeed(depth int, logger *zap.Logger) *Feed {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Feed{
		logger:   logger.Named("feed"),
		depth:    depth,
		now:      time.Now,
		activity: make(map[string][]model.ActivityRecord),
		teamOf:   make(map[string]string),
		batches:  make(map[string][]model.MessageBatch),
	}
}

// RecordActivity adds an activity record. A zero timestamp is set to now.
func (f *Feed) RecordActivity(_ context.Context, rec model.ActivityRecord) error {
	if rec.EntityID == "" {
		return ErrMissingEntity
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = f.now()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	records := f.activity[rec.EntityID]
	i := sort.Search(len(records), func(i int) bool {
		return records[i].Timestamp.After(rec.Timestamp)
	})
	records = append(records, model.ActivityRecord{})
	copy(records[i+1:], records[i:])
	records[i] = rec
	if len(records) > f.depth {
		records = records[len(records)-f.depth:]
	}
	f.activity[rec.EntityID] = records

	// membership follows the newest record
	latest := records[len(records)-1]
	if latest.TeamID != "" {
		f.teamOf[rec.EntityID] = latest.TeamID
	}

	f.logger.Debug("Activity recorded",
		zap.String("entity_id", rec.EntityID),
		zap.Int("depth", len(records)))
	return nil
}

// RecordBatch adds a channel message batch. A zero window start is set to now.
func (f *Feed) RecordBatch(_ context.Context, batch model.MessageBatch) error {
	if batch.ChannelID == "" {
		return ErrMissingChannel
	}
	if batch.WindowStart.IsZero() {
		batch.WindowStart = f.now()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	batches := f.batches[batch.ChannelID]
	i := sort.Search(len(batches), func(i int) bool {
		return batches[i].WindowStart.After(batch.WindowStart)
	})
	batches = append(batches, model.MessageBatch{})
	copy(batches[i+1:], batches[i:])
	batches[i] = batch
	if len(batches) > f.depth {
		batches = batches[len(batches)-f.depth:]
	}
	f.batches[batch.ChannelID] = batches

	f.logger.Debug("Message batch recorded",
		zap.String("channel_id", batch.ChannelID),
		zap.Int("messages", len(batch.Messages)))
	return nil
}

// Entities returns every entity with recorded activity, sorted
func (f *Feed) Entities() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return sortedKeys(f.activity)
}

// History returns a copy of an entity's records, oldest first
func (f *Feed) History(entityID string) []model.ActivityRecord {
	f.mu.RLock()
	defer f.mu.RUnlock()

	records := f.activity[entityID]
	out := make([]model.ActivityRecord, len(records))
	copy(out, records)
	return out
}

// Latest returns an entity's newest record
func (f *Feed) Latest(entityID string) (model.ActivityRecord, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	records := f.activity[entityID]
	if len(records) == 0 {
		return model.ActivityRecord{}, false
	}
	return records[len(records)-1], true
}

// Teams returns team id to sorted member ids, built from the team_id of each
// entity's newest record that carries one.
func (f *Feed) Teams() map[string][]string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	teams := make(map[string][]string)
	for entity, team := range f.teamOf {
		teams[team] = append(teams[team], entity)
	}
	for _, members := range teams {
		sort.Strings(members)
	}
	return teams
}

// Channels returns every channel with recorded batches, sorted
func (f *Feed) Channels() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return sortedKeys(f.batches)
}

// ChannelBatches returns a copy of a channel's batches, oldest first
func (f *Feed) ChannelBatches(channelID string) []model.MessageBatch {
	f.mu.RLock()
	defer f.mu.RUnlock()

	batches := f.batches[channelID]
	out := make([]model.MessageBatch, len(batches))
	copy(out, batches)
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
