package lavalink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/keshon/lyrabot/internal/music/player"
)

var ErrNoMatches = errors.New("no tracks found")

// LoadError is a loadType=error answer.
type LoadError struct {
	Message  string
	Severity string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("track load failed (%s): %s", e.Severity, e.Message)
}

// LoadResult is what an identifier resolved to.
type LoadResult struct {
	Tracks []player.Track
	// Playlist is set when the identifier was a playlist.
	Playlist string
}

type loadResponse struct {
	LoadType string          `json:"loadType"`
	Data     json.RawMessage `json:"data"`
}

// Load resolves an identifier (URL or prefixed search) into tracks.
// Search results are narrowed to the best match.
func (c *Client) Load(ctx context.Context, identifier, requester string) (LoadResult, error) {
	var resp loadResponse
	q := url.Values{"identifier": {identifier}}
	if err := c.do(ctx, http.MethodGet, "/v4/loadtracks", q, nil, &resp); err != nil {
		return LoadResult{}, err
	}

	switch resp.LoadType {
	case "track":
		var td trackData
		if err := json.Unmarshal(resp.Data, &td); err != nil {
			return LoadResult{}, fmt.Errorf("decode track: %w", err)
		}
		return LoadResult{Tracks: []player.Track{toTrack(td, requester)}}, nil
	case "search":
		var list []trackData
		if err := json.Unmarshal(resp.Data, &list); err != nil {
			return LoadResult{}, fmt.Errorf("decode search: %w", err)
		}
		if len(list) == 0 {
			return LoadResult{}, ErrNoMatches
		}
		return LoadResult{Tracks: []player.Track{toTrack(list[0], requester)}}, nil
	case "playlist":
		var pl struct {
			Info struct {
				Name string `json:"name"`
			} `json:"info"`
			Tracks []trackData `json:"tracks"`
		}
		if err := json.Unmarshal(resp.Data, &pl); err != nil {
			return LoadResult{}, fmt.Errorf("decode playlist: %w", err)
		}
		if len(pl.Tracks) == 0 {
			return LoadResult{}, ErrNoMatches
		}
		out := LoadResult{Playlist: pl.Info.Name, Tracks: make([]player.Track, 0, len(pl.Tracks))}
		for _, td := range pl.Tracks {
			out.Tracks = append(out.Tracks, toTrack(td, requester))
		}
		return out, nil
	case "empty":
		return LoadResult{}, ErrNoMatches
	case "error":
		var e exception
		_ = json.Unmarshal(resp.Data, &e)
		return LoadResult{}, &LoadError{Message: e.Message, Severity: e.Severity}
	default:
		return LoadResult{}, fmt.Errorf("unknown load type %q", resp.LoadType)
	}
}

var searchPrefixes = map[string]string{
	"youtube":    "ytsearch:",
	"soundcloud": "scsearch:",
	"spotify":    "spsearch:",
}

// Identifier turns user input into a load identifier. URLs pass through;
// anything else becomes a search on the given platform (YouTube by default).
func Identifier(query, platform string) string {
	query = strings.TrimSpace(query)
	if strings.HasPrefix(query, "http://") || strings.HasPrefix(query, "https://") {
		return query
	}
	prefix, ok := searchPrefixes[strings.ToLower(platform)]
	if !ok {
		prefix = searchPrefixes["youtube"]
	}
	return prefix + query
}

// Search loads query on platform.
func (c *Client) Search(ctx context.Context, query, platform, requester string) (LoadResult, error) {
	if strings.TrimSpace(query) == "" {
		return LoadResult{}, ErrNoMatches
	}
	return c.Load(ctx, Identifier(query, platform), requester)
}

func toTrack(td trackData, requester string) player.Track {
	t := player.Track{
		Title:     td.Info.Title,
		Duration:  time.Duration(td.Info.Length) * time.Millisecond,
		Platform:  td.Info.SourceName,
		Requester: requester,
		Encoded:   td.Encoded,
		IsStream:  td.Info.IsStream,
	}
	if td.Info.URI != nil {
		t.URL = *td.Info.URI
	} else {
		t.URL = td.Info.Identifier
	}
	if td.Info.ArtworkURL != nil {
		t.Thumbnail = *td.Info.ArtworkURL
	}
	if td.Info.Author != "" && !strings.Contains(t.Title, td.Info.Author) {
		t.Title = td.Info.Author + " - " + t.Title
	}
	return player.NewTrack(t)
}
