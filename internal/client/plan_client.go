package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/boristopalov/gridplan/pkg/core"
	"github.com/boristopalov/gridplan/pkg/planner"
)

var ErrMissingEndpoint = errors.New("no planner endpoint configured")

// PlanClient asks a remote planning server for subgoals
type PlanClient struct {
	endpoint string
	http     *http.Client
}

type ClientOption func(*PlanClient)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(p *PlanClient) {
		p.http = c
	}
}

// NewPlanClient targets endpoint, falling back to GRIDPLAN_PLANNER_URL.
// The endpoint is the server root; /plan is appended.
func NewPlanClient(endpoint string, opts ...ClientOption) (*PlanClient, error) {
	if endpoint == "" {
		endpoint = os.Getenv("GRIDPLAN_PLANNER_URL")
	}
	if endpoint == "" {
		return nil, ErrMissingEndpoint
	}
	c := &PlanClient{
		endpoint: strings.TrimRight(endpoint, "/") + "/plan",
		http:     &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	log.Println("Using planner endpoint", c.endpoint)
	return c, nil
}

func (c *PlanClient) Plan(ctx context.Context, summary string) ([]core.Subgoal, error) {
	payload, err := json.Marshal(map[string]string{"summary": summary})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach planner: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read planner response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		msg := gjson.GetBytes(body, "error").String()
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return nil, fmt.Errorf("planner returned %s: %s", resp.Status, msg)
	}
	return planner.ParseSubgoals(string(body))
}
