package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// JoinRelay connects to a room on a relay server. With an empty room a new one
// is created first; the room id is returned so it can be shared with the peer.
func JoinRelay(ctx context.Context, baseURL, room string) (*WSPort, string, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, "", fmt.Errorf("invalid relay URL: %w", err)
	}

	if room == "" {
		room, err = createRoom(ctx, base)
		if err != nil {
			return nil, "", err
		}
	}

	wsURL := *base
	switch base.Scheme {
	case "https", "wss":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = base.Path + "/rooms/" + url.PathEscape(room) + "/ws"

	port, err := Dial(ctx, wsURL.String())
	if err != nil {
		return nil, "", fmt.Errorf("join room %s: %w", room, err)
	}
	return port, room, nil
}

func createRoom(ctx context.Context, base *url.URL) (string, error) {
	httpURL := *base
	switch base.Scheme {
	case "wss":
		httpURL.Scheme = "https"
	case "ws":
		httpURL.Scheme = "http"
	}
	httpURL.Path = base.Path + "/rooms"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, httpURL.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create room: relay answered %s", resp.Status)
	}

	var body struct {
		Room string `json:"room"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("create room: decode response: %w", err)
	}
	if body.Room == "" {
		return "", fmt.Errorf("create room: relay returned no room id")
	}
	return body.Room, nil
}
