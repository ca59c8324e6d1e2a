package ui

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/lyrabot/internal/music/player"
)

func TestLimitReachedShowsRelativeReset(t *testing.T) {
	reset := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	e := LimitReached(reset)
	assert.Equal(t, ColorWarning, e.Color)
	require.Len(t, e.Fields, 2)
	assert.Equal(t, fmt.Sprintf("<t:%d:R>", reset.Unix()), e.Fields[0].Value)
}

func TestContactButton(t *testing.T) {
	assert.Nil(t, ContactButton(""))
	rows := ContactButton("https://discord.gg/x")
	require.Len(t, rows, 1)
	btn := rows[0].(discordgo.ActionsRow).Components[0].(discordgo.Button)
	assert.Equal(t, discordgo.LinkButton, btn.Style)
	assert.Equal(t, "https://discord.gg/x", btn.URL)
}

func TestQueuePaging(t *testing.T) {
	var q []player.Track
	for i := 1; i <= 23; i++ {
		q = append(q, player.Track{Title: fmt.Sprintf("song %d", i), Duration: time.Minute})
	}
	cur := &player.Track{Title: "current"}

	e := Queue(cur, q, 3)
	assert.Contains(t, e.Description, "current")
	assert.Contains(t, e.Description, "**21.** song 21 `[1:00]`")
	assert.NotContains(t, e.Description, "song 20 ")
	assert.Contains(t, e.Description, "Page 3/3")

	e = Queue(nil, q, 99)
	assert.Contains(t, e.Description, "Page 3/3", "page is clamped")

	e = Queue(nil, q[:4], 1)
	assert.NotContains(t, e.Description, "Page")
	assert.Equal(t, 4, strings.Count(e.Description, "`["))

	e = Queue(nil, nil, 1)
	assert.Contains(t, e.Description, "Queue is empty")
}

func TestNowPlaying(t *testing.T) {
	e := NowPlaying(player.Track{Title: "Lofi", URL: "https://r", IsStream: true, Platform: "radio", Requester: "u1"}, 70)
	assert.Equal(t, "[Lofi](https://r)", e.Fields[0].Value)
	assert.Equal(t, "LIVE", e.Fields[1].Value)
	assert.Equal(t, "70%", e.Fields[2].Value)
	assert.Equal(t, "📻 radio", e.Fields[3].Value)
	assert.Equal(t, "<@u1>", e.Fields[4].Value)
}
