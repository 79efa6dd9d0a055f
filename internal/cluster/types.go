package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dreamware/partdiff/internal/config"
)

// NodeInfo identifies a rank process and the address its peers reach it at.
type NodeInfo struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

type RegisterRequest struct {
	Node NodeInfo `json:"node"`
}

// RankInfo binds a registered node to its rank index.
type RankInfo struct {
	Rank int      `json:"rank"`
	Node NodeInfo `json:"node"`
}

// WorldInfo is the process group as seen by the coordinator. Ranks is
// complete and ordered by rank once Ready is true.
type WorldInfo struct {
	Ready  bool          `json:"ready"`
	Size   int           `json:"size"`
	Ranks  []RankInfo    `json:"ranks"`
	Config config.Config `json:"config"`
}

// HaloMessage carries one row from rank From to the receiving rank.
type HaloMessage struct {
	From int       `json:"from"`
	Tag  int       `json:"tag"`
	Data []float64 `json:"data"`
}

// Collective operations served by the coordinator.
const (
	OpMax     = "max"
	OpBarrier = "barrier"
)

type CollectiveRequest struct {
	Rank  int     `json:"rank"`
	Round uint64  `json:"round"`
	Op    string  `json:"op"`
	Value float64 `json:"value"`
}

type CollectiveResponse struct {
	Round uint64  `json:"round"`
	Value float64 `json:"value"`
}

// ResultReport is what the reporting rank sends to the coordinator after a
// solve. Matrix holds the 9x9 display sample of the gathered grid.
type ResultReport struct {
	Ranks      int           `json:"ranks"`
	Iterations int           `json:"iterations"`
	Residual   float64       `json:"residual"`
	ElapsedMS  int64         `json:"elapsed_ms"`
	Config     config.Config `json:"config"`
	Matrix     [][]float64   `json:"matrix"`
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

// collectiveClient has no timeout: a collective blocks until every rank has
// joined, however long the slowest sweep takes. Callers bound it with ctx.
var collectiveClient = &http.Client{}

func PostJSON(ctx context.Context, url string, body any, out any) error {
	return postJSON(ctx, httpClient, url, body, out)
}

func postJSON(ctx context.Context, client *http.Client, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
