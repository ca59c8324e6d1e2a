// Package playertest provides recording fakes of the audio node and voice
// gateway for tests outside the player package.
package playertest

import (
	"context"
	"sync"

	"github.com/keshon/lyrabot/internal/music/player"
)

// Node records audio node calls. Fail, when set, is returned by Play.
type Node struct {
	mu      sync.Mutex
	Played  []string
	Stops   int
	Paused  []bool
	Volumes []int
	Destroy int
	Fail    error
}

func (n *Node) Play(_ context.Context, _ string, t player.Track, _ int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Fail != nil {
		return n.Fail
	}
	n.Played = append(n.Played, t.Title)
	return nil
}

func (n *Node) Stop(context.Context, string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Stops++
	return nil
}

func (n *Node) Pause(_ context.Context, _ string, paused bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Paused = append(n.Paused, paused)
	return nil
}

func (n *Node) SetVolume(_ context.Context, _ string, v int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Volumes = append(n.Volumes, v)
	return nil
}

func (n *Node) Destroy(context.Context, string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Destroy++
	return nil
}

// PlayedTitles returns a copy of the titles sent to Play.
func (n *Node) PlayedTitles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.Played...)
}

// Gateway records voice joins and leaves.
type Gateway struct {
	mu       sync.Mutex
	Joins    []string
	Leaves   int
	JoinErr  error
	LeaveErr error
}

func (g *Gateway) JoinChannel(_, channelID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.JoinErr != nil {
		return g.JoinErr
	}
	g.Joins = append(g.Joins, channelID)
	return nil
}

func (g *Gateway) LeaveChannel(string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Leaves++
	return g.LeaveErr
}

// NewManager returns a manager over fresh fakes.
func NewManager() (*player.Manager, *Node, *Gateway) {
	n, g := &Node{}, &Gateway{}
	return player.NewManager(n, g, player.Options{DefaultVolume: 50}, nil), n, g
}

// Track builds a track with an encoded handle derived from the title.
func Track(title string) player.Track {
	return player.NewTrack(player.Track{Title: title, Encoded: "enc-" + title, Platform: "youtube"})
}
