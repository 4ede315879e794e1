package agshttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/mind-engage/mindengage-grades/pkg/lti-ags-gradebook/gradebook"
)

const (
	mediaLineItem    = "application/vnd.ims.lis.v2.lineitem+json"
	mediaLineItemSet = "application/vnd.ims.lis.v2.lineitemcontainer+json"
	mediaScore       = "application/vnd.ims.lis.v1.score+json"
)

type Client struct {
	http *http.Client
}

var _ gradebook.AGSClient = (*Client)(nil)

type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

func New(cfg Config) *Client {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	h := cc.Client(context.Background())
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}
	return &Client{http: h}
}

type lineItemJSON struct {
	ID             string  `json:"id"`
	Label          string  `json:"label"`
	ScoreMaximum   float64 `json:"scoreMaximum"`
	ResourceID     string  `json:"resourceId"`
	ResourceLinkID string  `json:"resourceLinkId"`
}

func (it lineItemJSON) toLineItem() gradebook.LineItem {
	return gradebook.LineItem{
		ID: it.ID, Label: it.Label, ScoreMaximum: it.ScoreMaximum,
		ResourceID: it.ResourceID, ResourceLinkID: it.ResourceLinkID,
	}
}

func (c *Client) ListLineItems(ctx context.Context, lineItemsURL string, q map[string]string) ([]gradebook.LineItem, error) {
	u, err := url.Parse(lineItemsURL)
	if err != nil {
		return nil, fmt.Errorf("lineitems url: %w", err)
	}
	p := u.Query()
	for k, v := range q {
		p.Set(k, v)
	}
	u.RawQuery = p.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", mediaLineItemSet)
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("list line items: %s", res.Status)
	}
	var items []lineItemJSON
	if err := json.NewDecoder(res.Body).Decode(&items); err != nil {
		return nil, err
	}
	out := make([]gradebook.LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, it.toLineItem())
	}
	return out, nil
}

func (c *Client) CreateLineItem(ctx context.Context, lineItemsURL string, req gradebook.CreateLineItemReq) (gradebook.LineItem, error) {
	body, err := json.Marshal(map[string]any{
		"label": req.Label, "scoreMaximum": req.ScoreMaximum,
		"resourceId": req.ResourceID, "resourceLinkId": req.ResourceLinkID,
	})
	if err != nil {
		return gradebook.LineItem{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, lineItemsURL, bytes.NewReader(body))
	if err != nil {
		return gradebook.LineItem{}, err
	}
	httpReq.Header.Set("Content-Type", mediaLineItem)
	httpReq.Header.Set("Accept", mediaLineItem)
	res, err := c.http.Do(httpReq)
	if err != nil {
		return gradebook.LineItem{}, err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return gradebook.LineItem{}, fmt.Errorf("create line item: %s", res.Status)
	}
	var it lineItemJSON
	if err := json.NewDecoder(res.Body).Decode(&it); err != nil {
		return gradebook.LineItem{}, err
	}
	return it.toLineItem(), nil
}

// PostScore posts to {lineItemURL}/scores, keeping any query string.
func (c *Client) PostScore(ctx context.Context, lineItemURL string, s gradebook.Score) error {
	payload := map[string]any{
		"userId": s.UserID, "scoreGiven": s.ScoreGiven, "scoreMaximum": s.ScoreMaximum,
		"activityProgress": s.ActivityProgress, "gradingProgress": s.GradingProgress,
		"timestamp": s.Timestamp.Format(time.RFC3339),
	}
	if s.Comment != "" {
		payload["comment"] = s.Comment
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	u, err := url.Parse(lineItemURL)
	if err != nil {
		return fmt.Errorf("line item url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/scores"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", mediaScore)
	res, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return fmt.Errorf("post score: %s", res.Status)
	}
	return nil
}
