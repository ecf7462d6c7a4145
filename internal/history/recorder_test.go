package history

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/banshee-data/pathview/internal/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_WritesAndPrunes(t *testing.T) {
	s := openTestStore(t)
	r := NewRecorder(s, 3)
	r.Start()

	for i := 1; i <= 5; i++ {
		r.Record(FeedStatus, uint64(i), feed.StatusSnapshot{Valid: i%2 == 0, Message: "tick"})
	}
	r.Stop()

	st := r.Stats()
	assert.Equal(t, uint64(5), st.Written)
	assert.Zero(t, st.Dropped)
	assert.Zero(t, st.Failed)

	ctx := context.Background()
	n, err := s.Count(ctx, FeedStatus)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	latest, err := s.Latest(ctx, FeedStatus)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), latest.Version)
	var got feed.StatusSnapshot
	require.NoError(t, json.Unmarshal([]byte(latest.Payload), &got))
	assert.Equal(t, feed.StatusSnapshot{Valid: false, Message: "tick"}, got)
}

func TestRecorder_RecordPath(t *testing.T) {
	s := openTestStore(t)
	r := NewRecorder(s, 0)
	r.Start()
	r.RecordPath(7, &feed.Path{Points: []feed.Waypoint{
		{X: 0}, {X: 1, Grasp: feed.Bool(true)}, {X: 2, Grasp: feed.Bool(false)},
	}})
	r.Stop()

	ctx := context.Background()
	latest, err := s.Latest(ctx, FeedPath)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), latest.Version)

	stored, err := feed.DecodePath([]byte(latest.Payload))
	require.NoError(t, err, "payload %s", latest.Payload)
	require.Equal(t, 3, stored.Len())
	assert.Nil(t, stored.Points[0].Grasp)
	require.NotNil(t, stored.Points[1].Grasp)
	assert.True(t, *stored.Points[1].Grasp)
	assert.Equal(t, 2.0, stored.Points[2].X)

	sum, err := s.LatestPathSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Waypoints)
	assert.Equal(t, 1, sum.GraspClose)
	assert.Equal(t, 1, sum.GraspOpen)
	assert.InDelta(t, 2.0, sum.LengthM, 1e-9)
}

func TestRecorder_DropsAfterStop(t *testing.T) {
	s := openTestStore(t)
	r := NewRecorder(s, 0)
	r.Start()
	r.Stop()
	r.Stop()

	r.Record(FeedCode, 1, feed.CodeSnapshot{})
	assert.Equal(t, uint64(1), r.Stats().Dropped)
	n, err := s.Count(context.Background(), FeedCode)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	s := openTestStore(t)
	r := NewRecorder(s, 0)
	// Not started, so nothing drains the queue.
	for i := 0; i < DefaultQueueSize+5; i++ {
		r.Record(FeedCode, uint64(i), feed.CodeSnapshot{})
	}
	assert.Equal(t, uint64(5), r.Stats().Dropped)
	assert.Equal(t, DefaultQueueSize, r.Stats().Queued)

	r.Start()
	r.Stop()
	assert.Equal(t, uint64(DefaultQueueSize), r.Stats().Written)
}
