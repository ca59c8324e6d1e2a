package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeNode struct {
	mu      sync.Mutex
	played  []string
	stops   int
	paused  []bool
	volumes []int
	destroy int
	failOn  map[string]error
}

func (n *fakeNode) Play(_ context.Context, _ string, t Track, _ int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.failOn[t.Title]; err != nil {
		return err
	}
	n.played = append(n.played, t.Title)
	return nil
}

func (n *fakeNode) Stop(context.Context, string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stops++
	return nil
}

func (n *fakeNode) Pause(_ context.Context, _ string, paused bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paused = append(n.paused, paused)
	return nil
}

func (n *fakeNode) SetVolume(_ context.Context, _ string, v int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.volumes = append(n.volumes, v)
	return nil
}

func (n *fakeNode) Destroy(context.Context, string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.destroy++
	return nil
}

type fakeGateway struct {
	mu      sync.Mutex
	joins   []string
	leaves  int
	joinErr error
	leaveEr error
}

func (g *fakeGateway) JoinChannel(_, channelID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.joinErr != nil {
		return g.joinErr
	}
	g.joins = append(g.joins, channelID)
	return nil
}

func (g *fakeGateway) LeaveChannel(string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaves++
	return g.leaveEr
}

func (g *fakeGateway) leaveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.leaves
}

func newTestManager(t *testing.T, grace time.Duration) (*Manager, *fakeNode, *fakeGateway) {
	node := &fakeNode{failOn: map[string]error{}}
	gw := &fakeGateway{}
	m := NewManager(node, gw, Options{DefaultVolume: 50, Mode247Grace: grace}, zaptest.NewLogger(t).Sugar())
	return m, node, gw
}

func track(title string) Track {
	return NewTrack(Track{Title: title, URL: "https://example.com/" + title, Encoded: "enc-" + title})
}

func connected(t *testing.T, m *Manager) *GuildPlayer {
	t.Helper()
	p := m.Get("g1")
	joined, err := p.Join(context.Background(), "voice-1", "text-1")
	require.NoError(t, err)
	require.True(t, joined)
	return p
}

func TestManagerGetIsLookupOrCreate(t *testing.T) {
	m, _, _ := newTestManager(t, time.Minute)

	_, ok := m.Lookup("g1")
	assert.False(t, ok)

	p := m.Get("g1")
	assert.Same(t, p, m.Get("g1"))
	assert.Equal(t, StateIdle, p.State())
	assert.Equal(t, 50, p.Snapshot().Volume)
}

func TestJoinRules(t *testing.T) {
	m, _, gw := newTestManager(t, time.Minute)
	p := m.Get("g1")
	ctx := context.Background()

	_, err := p.Join(ctx, "", "text")
	assert.ErrorIs(t, err, ErrNotInVoice)

	joined, err := p.Join(ctx, "voice-1", "text")
	require.NoError(t, err)
	assert.True(t, joined)
	assert.Equal(t, StateConnected, p.State())

	joined, err = p.Join(ctx, "voice-1", "text")
	require.NoError(t, err)
	assert.False(t, joined, "same channel is a no-op")

	_, err = p.Join(ctx, "voice-2", "text")
	assert.ErrorIs(t, err, ErrConnectedElsewhere)
	assert.Equal(t, []string{"voice-1"}, gw.joins)
}

func TestJoinFailureIsVoiceError(t *testing.T) {
	m, _, gw := newTestManager(t, time.Minute)
	gw.joinErr = errors.New("missing permissions")

	_, err := m.Get("g1").Join(context.Background(), "voice-1", "text")
	var verr *VoiceError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "join", verr.Op)
	assert.Equal(t, StateIdle, m.Get("g1").State())
}

func TestPlayRequiresConnection(t *testing.T) {
	m, _, _ := newTestManager(t, time.Minute)
	_, err := m.Get("g1").Play(context.Background(), track("a"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPlayStartsThenEnqueues(t *testing.T) {
	m, node, _ := newTestManager(t, time.Minute)
	p := connected(t, m)
	ctx := context.Background()

	res, err := p.Play(ctx, track("a"))
	require.NoError(t, err)
	require.NotNil(t, res.Started)
	assert.Equal(t, "a", res.Started.Title)
	assert.Equal(t, StatePlaying, p.State())

	res, err = p.Play(ctx, track("b"), track("c"))
	require.NoError(t, err)
	assert.Nil(t, res.Started)
	assert.Equal(t, 1, res.Position)

	s := p.Snapshot()
	assert.Equal(t, "a", s.Current.Title)
	assert.Equal(t, []string{"b", "c"}, titles(s.Queue))
	assert.Equal(t, []string{"a"}, node.played)
}

func TestPlaySkipsTracksTheNodeRejects(t *testing.T) {
	m, node, _ := newTestManager(t, time.Minute)
	node.failOn["bad"] = errors.New("no matches")
	p := connected(t, m)

	res, err := p.Play(context.Background(), track("bad"), track("good"))
	require.NoError(t, err)
	require.NotNil(t, res.Started)
	assert.Equal(t, "good", res.Started.Title)
}

func TestPauseResume(t *testing.T) {
	m, node, _ := newTestManager(t, time.Minute)
	p := connected(t, m)
	ctx := context.Background()

	assert.ErrorIs(t, p.Pause(ctx), ErrNothingPlaying)
	assert.ErrorIs(t, p.Resume(ctx), ErrNothingPlaying)

	_, err := p.Play(ctx, track("a"))
	require.NoError(t, err)

	assert.ErrorIs(t, p.Resume(ctx), ErrAlreadyPlaying)
	require.NoError(t, p.Pause(ctx))
	assert.Equal(t, StatePaused, p.State())
	assert.ErrorIs(t, p.Pause(ctx), ErrAlreadyPaused)

	require.NoError(t, p.Resume(ctx))
	assert.Equal(t, StatePlaying, p.State())
	assert.Equal(t, []bool{true, false}, node.paused)
}

func TestSkipAdvancesOrEmpties(t *testing.T) {
	m, node, _ := newTestManager(t, time.Minute)
	p := connected(t, m)
	ctx := context.Background()

	_, _, err := p.Skip(ctx)
	assert.ErrorIs(t, err, ErrNothingPlaying)

	_, err = p.Play(ctx, track("a"), track("b"))
	require.NoError(t, err)

	skipped, next, err := p.Skip(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", skipped.Title)
	require.NotNil(t, next)
	assert.Equal(t, "b", next.Title)

	skipped, next, err = p.Skip(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", skipped.Title)
	assert.Nil(t, next)
	assert.Equal(t, StateConnected, p.State())
	assert.Equal(t, 1, node.stops)
}

func TestSkipWithLoopSongKeepsTrackIdentity(t *testing.T) {
	m, _, _ := newTestManager(t, time.Minute)
	p := connected(t, m)
	ctx := context.Background()

	_, err := p.Play(ctx, track("a"), track("b"))
	require.NoError(t, err)
	p.SetLoop(LoopSong)

	before := p.Snapshot().Current
	skipped, next, err := p.Skip(ctx)
	require.NoError(t, err)

	require.NotNil(t, next)
	assert.Equal(t, skipped.Title, next.Title)
	assert.Equal(t, skipped.URL, next.URL)
	assert.Equal(t, before.ID, next.ID)
	assert.Equal(t, []string{"b"}, titles(p.Snapshot().Queue))
}

func TestTrackEndedHonoursLoopModes(t *testing.T) {
	ctx := context.Background()

	t.Run("none", func(t *testing.T) {
		m, _, _ := newTestManager(t, time.Minute)
		p := connected(t, m)
		_, _ = p.Play(ctx, track("a"), track("b"))

		p.TrackEnded(ctx, "enc-a", EndFinished)
		s := p.Snapshot()
		assert.Equal(t, "b", s.Current.Title)
		assert.Empty(t, s.Queue)

		p.TrackEnded(ctx, "enc-b", EndFinished)
		assert.Equal(t, StateConnected, p.State())
	})

	t.Run("song", func(t *testing.T) {
		m, _, _ := newTestManager(t, time.Minute)
		p := connected(t, m)
		_, _ = p.Play(ctx, track("a"), track("b"))
		p.SetLoop(LoopSong)

		p.TrackEnded(ctx, "enc-a", EndFinished)
		s := p.Snapshot()
		assert.Equal(t, "a", s.Current.Title)
		assert.Equal(t, []string{"b"}, titles(s.Queue))
	})

	t.Run("queue", func(t *testing.T) {
		m, _, _ := newTestManager(t, time.Minute)
		p := connected(t, m)
		_, _ = p.Play(ctx, track("a"), track("b"))
		p.SetLoop(LoopQueue)

		p.TrackEnded(ctx, "enc-a", EndFinished)
		s := p.Snapshot()
		assert.Equal(t, "b", s.Current.Title)
		assert.Equal(t, []string{"a"}, titles(s.Queue))
	})

	t.Run("ignores self-inflicted and stale ends", func(t *testing.T) {
		m, _, _ := newTestManager(t, time.Minute)
		p := connected(t, m)
		_, _ = p.Play(ctx, track("a"), track("b"))

		p.TrackEnded(ctx, "enc-a", EndReplaced)
		p.TrackEnded(ctx, "enc-zzz", EndFinished)
		assert.Equal(t, "a", p.Snapshot().Current.Title)
	})

	t.Run("load failure does not loop", func(t *testing.T) {
		m, _, _ := newTestManager(t, time.Minute)
		p := connected(t, m)
		_, _ = p.Play(ctx, track("a"))
		p.SetLoop(LoopSong)

		p.TrackEnded(ctx, "enc-a", EndLoadFailed)
		assert.Equal(t, StateConnected, p.State())
	})

	t.Run("load failure drops the track from a looped queue", func(t *testing.T) {
		m, node, _ := newTestManager(t, time.Minute)
		p := connected(t, m)
		_, _ = p.Play(ctx, track("broken"), track("b"))
		p.SetLoop(LoopQueue)

		p.TrackEnded(ctx, "enc-broken", EndLoadFailed)
		s := p.Snapshot()
		assert.Equal(t, "b", s.Current.Title)
		assert.Empty(t, s.Queue)

		p.TrackEnded(ctx, "enc-b", EndFinished)
		assert.Equal(t, "b", p.Snapshot().Current.Title)

		p.TrackEnded(ctx, "enc-b", EndLoadFailed)
		assert.Equal(t, StateConnected, p.State())
		assert.Equal(t, []string{"broken", "b", "b"}, node.played)
	})
}

func TestStopKeepsConnection(t *testing.T) {
	m, _, _ := newTestManager(t, time.Minute)
	p := connected(t, m)
	ctx := context.Background()
	_, _ = p.Play(ctx, track("a"), track("b"))

	require.NoError(t, p.Stop(ctx))
	s := p.Snapshot()
	assert.Equal(t, StateConnected, s.State)
	assert.Nil(t, s.Current)
	assert.Empty(t, s.Queue)
}

func TestLeaveResetsEverythingAndIsIdempotent(t *testing.T) {
	m, node, gw := newTestManager(t, time.Minute)
	p := connected(t, m)
	ctx := context.Background()
	_, _ = p.Play(ctx, track("a"), track("b"))
	_, err := p.Set247(ctx, true, "", "")
	require.NoError(t, err)
	require.NoError(t, p.SetVolume(ctx, 80))

	require.NoError(t, p.Leave(ctx))
	s := p.Snapshot()
	assert.Equal(t, StateIdle, s.State)
	assert.False(t, s.Mode247)
	assert.Empty(t, s.Queue)
	assert.Equal(t, 50, s.Volume)
	assert.Equal(t, 1, node.destroy)

	require.NoError(t, p.Leave(ctx))
	assert.Equal(t, 1, gw.leaveCount())
}

func TestLeaveFailureStillClearsState(t *testing.T) {
	m, _, gw := newTestManager(t, time.Minute)
	p := connected(t, m)
	gw.leaveEr = errors.New("gateway closed")

	err := p.Leave(context.Background())
	var verr *VoiceError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, StateIdle, p.State())
}

func TestDisconnectedRespects247(t *testing.T) {
	ctx := context.Background()

	m, _, _ := newTestManager(t, time.Minute)
	p := connected(t, m)
	_, _ = p.Play(ctx, track("a"), track("b"))
	p.Disconnected(ctx)
	s := p.Snapshot()
	assert.Equal(t, StateIdle, s.State)
	assert.Nil(t, s.Current)
	assert.Empty(t, s.Queue)

	m, _, _ = newTestManager(t, time.Minute)
	p = connected(t, m)
	_, _ = p.Play(ctx, track("a"), track("b"))
	_, _ = p.Set247(ctx, true, "", "")
	p.Disconnected(ctx)
	s = p.Snapshot()
	assert.Equal(t, StateIdle, s.State)
	assert.Nil(t, s.Current)
	assert.True(t, s.Mode247)
	assert.Equal(t, []string{"b"}, titles(s.Queue))
}

func TestMoved(t *testing.T) {
	m, _, _ := newTestManager(t, time.Minute)
	p := connected(t, m)
	p.Moved("voice-9")
	assert.Equal(t, "voice-9", p.Snapshot().VoiceChannelID)
}

func TestSet247EnableJoinsCallerChannel(t *testing.T) {
	m, _, gw := newTestManager(t, time.Minute)
	p := m.Get("g1")
	ctx := context.Background()

	_, err := p.Set247(ctx, true, "", "text")
	assert.ErrorIs(t, err, ErrNotInVoice)

	joined, err := p.Set247(ctx, true, "voice-3", "text")
	require.NoError(t, err)
	assert.True(t, joined)
	assert.True(t, p.Mode247())
	assert.Equal(t, StateConnected, p.State(), "24/7 does not start playback")
	assert.Equal(t, []string{"voice-3"}, gw.joins)
}

func TestSet247DisableLeavesAfterGrace(t *testing.T) {
	m, _, gw := newTestManager(t, 20*time.Millisecond)
	p := connected(t, m)
	ctx := context.Background()

	_, _ = p.Set247(ctx, true, "", "")
	_, err := p.Set247(ctx, false, "", "")
	require.NoError(t, err)
	assert.True(t, p.Pending(TimerGrace))

	assert.Eventually(t, func() bool { return p.State() == StateIdle }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, gw.leaveCount())
}

func TestSet247DisableGraceRevalidates(t *testing.T) {
	m, _, gw := newTestManager(t, 30*time.Millisecond)
	p := connected(t, m)
	ctx := context.Background()

	_, _ = p.Set247(ctx, false, "", "")
	_, err := p.Set247(ctx, true, "", "")
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, StateConnected, p.State())
	assert.Zero(t, gw.leaveCount())
}

func TestSet247DisableWhilePlayingStays(t *testing.T) {
	m, _, _ := newTestManager(t, 10*time.Millisecond)
	p := connected(t, m)
	ctx := context.Background()
	_, _ = p.Play(ctx, track("a"))

	_, _ = p.Set247(ctx, false, "", "")
	assert.False(t, p.Pending(TimerGrace))
}

func TestVolumeShuffleClear(t *testing.T) {
	m, node, _ := newTestManager(t, time.Minute)
	p := connected(t, m)
	ctx := context.Background()

	assert.ErrorIs(t, p.SetVolume(ctx, 0), ErrInvalidVolume)
	assert.ErrorIs(t, p.SetVolume(ctx, 101), ErrInvalidVolume)
	assert.ErrorIs(t, p.SetVolume(ctx, 40), ErrNothingPlaying)

	_, _ = p.Play(ctx, track("a"), track("b"))
	assert.ErrorIs(t, p.Shuffle(), ErrQueueTooShort)

	require.NoError(t, p.SetVolume(ctx, 40))
	assert.Equal(t, []int{40}, node.volumes)

	_, _ = p.Play(ctx, track("c"), track("d"))
	require.NoError(t, p.Shuffle())
	assert.ElementsMatch(t, []string{"b", "c", "d"}, titles(p.Snapshot().Queue))

	assert.Equal(t, 3, p.ClearQueue())
	assert.Equal(t, StatePlaying, p.State())
}

func TestPlayRadioReplacedByRequest(t *testing.T) {
	m, _, _ := newTestManager(t, time.Minute)
	p := connected(t, m)
	ctx := context.Background()

	require.NoError(t, p.PlayRadio(ctx, NewTrack(Track{Title: "lofi", IsStream: true})))
	assert.True(t, p.Snapshot().Radio)

	res, err := p.Play(ctx, track("a"))
	require.NoError(t, err)
	require.NotNil(t, res.Started)
	assert.Equal(t, "a", res.Started.Title)
	assert.False(t, p.Snapshot().Radio)
}

func TestScheduleCancelAndReplace(t *testing.T) {
	m, _, _ := newTestManager(t, time.Minute)
	p := m.Get("g1")

	var mu sync.Mutex
	fired := 0
	inc := func() { mu.Lock(); fired++; mu.Unlock() }

	p.Schedule(TimerIdle, 20*time.Millisecond, inc)
	p.Cancel(TimerIdle)
	assert.False(t, p.Pending(TimerIdle))

	assert.True(t, p.ScheduleOnce(TimerIdle, 20*time.Millisecond, inc))
	assert.False(t, p.ScheduleOnce(TimerIdle, 20*time.Millisecond, inc))

	assert.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return fired == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, fired)
	mu.Unlock()
}

func TestEventsArePublished(t *testing.T) {
	m, _, _ := newTestManager(t, time.Minute)
	p := connected(t, m)
	_, _ = p.Play(context.Background(), track("a"))

	select {
	case ev := <-m.Events():
		assert.Equal(t, StatusPlaying, ev.Status)
		assert.Equal(t, "text-1", ev.TextChannelID)
		assert.Equal(t, "a", ev.Track.Title)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
}

func TestManagerSnapshotsAndShutdown(t *testing.T) {
	m, _, _ := newTestManager(t, time.Minute)
	connected(t, m)
	m.Get("g2")

	assert.Equal(t, 1, m.ConnectedCount())
	require.Len(t, m.Snapshots(), 1)

	m.Shutdown(context.Background())
	assert.Zero(t, m.ConnectedCount())
}

func TestLoopModeParsing(t *testing.T) {
	mode, err := ParseLoopMode("Queue")
	require.NoError(t, err)
	assert.Equal(t, LoopQueue, mode)

	_, err = ParseLoopMode("forever")
	assert.Error(t, err)
}

func TestDurationString(t *testing.T) {
	assert.Equal(t, "3:05", Track{Duration: 185 * time.Second}.DurationString())
	assert.Equal(t, "1:00:01", Track{Duration: time.Hour + time.Second}.DurationString())
	assert.Equal(t, "LIVE", Track{IsStream: true}.DurationString())
}

func titles(ts []Track) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Title
	}
	return out
}
