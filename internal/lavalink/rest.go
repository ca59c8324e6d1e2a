package lavalink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/keshon/lyrabot/internal/music/player"
	"github.com/keshon/lyrabot/pkg/retrylimit"
)

// HTTPError is a non-2xx answer from the node's REST API.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("lavalink: http %d", e.Status)
	}
	return fmt.Sprintf("lavalink: http %d: %s", e.Status, e.Message)
}

func (e *HTTPError) StatusCode() int { return e.Status }

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	u := *c.base
	u.Path = u.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	return retrylimit.Do(ctx, c.restCfg, c.limiter, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(payload))
		if err != nil {
			return retrylimit.Fatal(err)
		}
		req.Header.Set("Authorization", c.password)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			var e struct {
				Message string `json:"message"`
			}
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			_ = json.Unmarshal(raw, &e)
			return &HTTPError{Status: resp.StatusCode, Message: e.Message}
		}
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retrylimit.Fatal(fmt.Errorf("decode response: %w", err))
		}
		return nil
	})
}

func (c *Client) playerPath(guildID string) (string, error) {
	sid := c.SessionID()
	if sid == "" {
		return "", ErrNoSession
	}
	return "/v4/sessions/" + url.PathEscape(sid) + "/players/" + url.PathEscape(guildID), nil
}

func (c *Client) updatePlayer(ctx context.Context, guildID string, patch map[string]any) error {
	path, err := c.playerPath(guildID)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPatch, path, nil, patch, nil)
}

// Play starts t at the given volume, replacing whatever was playing.
func (c *Client) Play(ctx context.Context, guildID string, t player.Track, volume int) error {
	if t.Encoded == "" {
		return fmt.Errorf("track %q was not loaded by the node", t.Title)
	}
	return c.updatePlayer(ctx, guildID, map[string]any{
		"track":  map[string]any{"encoded": t.Encoded},
		"volume": volume,
		"paused": false,
	})
}

func (c *Client) Stop(ctx context.Context, guildID string) error {
	return c.updatePlayer(ctx, guildID, map[string]any{
		"track": map[string]any{"encoded": nil},
	})
}

func (c *Client) Pause(ctx context.Context, guildID string, paused bool) error {
	return c.updatePlayer(ctx, guildID, map[string]any{"paused": paused})
}

func (c *Client) SetVolume(ctx context.Context, guildID string, volume int) error {
	return c.updatePlayer(ctx, guildID, map[string]any{"volume": volume})
}

// Destroy removes the node-side player. A missing player or session is not an error.
func (c *Client) Destroy(ctx context.Context, guildID string) error {
	c.forgetVoice(guildID)
	path, err := c.playerPath(guildID)
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	if err != nil {
		return err
	}
	err = c.do(ctx, http.MethodDelete, path, nil, nil, nil)
	var he *HTTPError
	if errors.As(err, &he) && he.Status == http.StatusNotFound {
		return nil
	}
	return err
}

var _ player.AudioNode = (*Client)(nil)
