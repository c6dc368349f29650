// Package hyperliquid is the exchange client: it fetches the leaderboard
// and per-wallet clearinghouse state, absorbing transport failures into
// null results rather than propagating raw HTTP errors to callers.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Client talks to the Hyperliquid stats and info endpoints.
type Client struct {
	statsEndpoint string
	infoEndpoint  string
	timeout       time.Duration
	http          *http.Client
}

// NewClient constructs an exchange client. statsEndpoint is tried first for
// the leaderboard; infoEndpoint is the fallback and the home of
// clearinghouseState lookups.
func NewClient(statsEndpoint, infoEndpoint string, timeout time.Duration) *Client {
	return &Client{
		statsEndpoint: statsEndpoint,
		infoEndpoint:  infoEndpoint,
		timeout:       timeout,
		http:          &http.Client{},
	}
}

// FetchLeaderboard tries the stats endpoint first; on any failure it falls
// back to the info endpoint, and fails only when both fail.
func (c *Client) FetchLeaderboard(ctx context.Context) ([]LeaderboardRow, error) {
	rows, err := c.fetchLeaderboardFromStats(ctx)
	if err == nil {
		return rows, nil
	}
	statsErr := err

	rows, err = c.fetchLeaderboardFromInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("leaderboard fetch failed on both endpoints: stats=%v info=%w", statsErr, err)
	}
	logRawFallbackShape(rows)
	return rows, nil
}

func (c *Client) fetchLeaderboardFromStats(ctx context.Context) ([]LeaderboardRow, error) {
	url := c.statsEndpoint + "/Mainnet/leaderboard"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build leaderboard request: %w", err)
	}
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var resp leaderboardResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode leaderboard response: %w", err)
	}
	return dropRowsWithoutAddress(resp.LeaderboardRows), nil
}

func (c *Client) fetchLeaderboardFromInfo(ctx context.Context) ([]LeaderboardRow, error) {
	body, err := c.postInfo(ctx, map[string]any{"type": "leaderboard"})
	if err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode fallback leaderboard response: %w", err)
	}
	rowsRaw, ok := raw["leaderboardRows"]
	if !ok {
		return nil, fmt.Errorf("fallback leaderboard response missing leaderboardRows")
	}
	var rows []LeaderboardRow
	if err := json.Unmarshal(rowsRaw, &rows); err != nil {
		return nil, fmt.Errorf("decode fallback leaderboardRows: %w", err)
	}
	return dropRowsWithoutAddress(rows), nil
}

func dropRowsWithoutAddress(rows []LeaderboardRow) []LeaderboardRow {
	out := make([]LeaderboardRow, 0, len(rows))
	for _, r := range rows {
		if r.EthAddress == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// FetchWalletPositions returns the parsed clearinghouse state for a single
// wallet, or nil if the request failed for any reason (timeout, 429, other
// HTTP errors) — those are swallowed here, not raised.
func (c *Client) FetchWalletPositions(ctx context.Context, addr string) *ClearinghouseState {
	body, err := c.postInfo(ctx, map[string]any{"type": "clearinghouseState", "user": addr})
	if err != nil {
		return nil
	}
	var wire clearinghouseStateWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil
	}
	state := &ClearinghouseState{Positions: make([]Position, 0, len(wire.AssetPositions))}
	for _, ap := range wire.AssetPositions {
		szi := 0.0
		if ap.Position.Szi != "" {
			if v, perr := parseFloatLoose(ap.Position.Szi); perr == nil {
				szi = v
			}
		}
		state.Positions = append(state.Positions, Position{
			Coin:          ap.Position.Coin,
			Szi:           szi,
			EntryPx:       parseOptionalFloat(ap.Position.EntryPx),
			LiquidationPx: parseOptionalFloat(ap.Position.LiquidationPx),
			Leverage:      parseLeverage(ap.Position.Leverage),
			MarginUsed:    parseOptionalFloat(ap.Position.MarginUsed),
		})
	}
	return state
}

// FetchMultiple runs FetchWalletPositions over addrs with a concurrency
// bound of cap (default 8 when cap <= 0); it never returns an error — every
// individual failure becomes a nil entry in the result map.
func (c *Client) FetchMultiple(ctx context.Context, addrs []string, cap int) map[string]*ClearinghouseState {
	if cap <= 0 {
		cap = 8
	}
	sem := semaphore.NewWeighted(int64(cap))
	results := make(map[string]*ClearinghouseState, len(addrs))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, addr := range addrs {
		addr := addr
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				mu.Lock()
				results[addr] = nil
				mu.Unlock()
				return nil
			}
			defer sem.Release(1)

			state := c.FetchWalletPositions(gctx, addr)
			mu.Lock()
			results[addr] = state
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Client) postInfo(ctx context.Context, payload map[string]any) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode info request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.infoEndpoint+"/info", bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("build info request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	ctx, cancel := context.WithTimeout(req.Context(), c.timeout)
	defer cancel()
	req = req.WithContext(ctx)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

// logRawFallbackShape logs the number of rows parsed from a successful
// fallback leaderboard response. It logs only that count; the raw response
// body and its field layout are not logged. It never fails the call it's
// invoked from.
func logRawFallbackShape(rows []LeaderboardRow) {
	log.Printf("leaderboard fallback succeeded: %d rows parsed", len(rows))
}

func parseFloatLoose(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
