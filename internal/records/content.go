package records

import (
	"context"
	"fmt"
	"net/url"

	"github.com/event-recon/backend/internal/model"
)

// ContentItem is one entry of the unified-text response. RecordID is only
// set by content services that echo it.
type ContentItem struct {
	RecordID string `json:"recordId,omitempty"`
	Content  string `json:"content"`
}

// FetchContent returns text content for ids, in the order the service sends it.
func (c *Client) FetchContent(ctx context.Context, channel model.Channel, ids []string) ([]ContentItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	params := url.Values{}
	for _, id := range ids {
		params.Add("recordIds", id)
	}
	params.Set("channel", string(channel))

	var items []ContentItem
	if err := c.get(ctx, "get unify text", c.cfg.ContentEndpoint, params, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) hydrate(ctx context.Context, channel model.Channel, recs []model.Record) ([]model.Record, error) {
	if len(recs) == 0 {
		return recs, nil
	}

	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}

	items, err := c.FetchContent(ctx, channel, ids)
	if err != nil {
		return nil, err
	}
	if err := attachContent(recs, items); err != nil {
		return nil, fmt.Errorf("%s: %w", channel, err)
	}
	return recs, nil
}

// attachContent joins by record id when every item carries one and by
// position otherwise. Either way the counts must match.
func attachContent(recs []model.Record, items []ContentItem) error {
	if len(items) != len(recs) {
		return fmt.Errorf("%w: %d records, %d content items", ErrContentMisaligned, len(recs), len(items))
	}

	keyed := true
	byID := make(map[string]string, len(items))
	for _, it := range items {
		if it.RecordID == "" {
			keyed = false
			break
		}
		byID[it.RecordID] = it.Content
	}

	if !keyed {
		for i := range recs {
			recs[i].Content = items[i].Content
		}
		return nil
	}

	for i := range recs {
		content, ok := byID[recs[i].ID]
		if !ok {
			return fmt.Errorf("%w: no content for record %s", ErrContentMisaligned, recs[i].ID)
		}
		recs[i].Content = content
	}
	return nil
}
