package sentinel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/forest-guardian/vegindex-cli/internal/utils"
)

const catalogPageLimit = 100

type SearchRequest struct {
	AOI  *AOI
	From time.Time
	// To is inclusive; the whole day is searched.
	To            time.Time
	MaxCloudCover int
}

type catalogResponse struct {
	Features []struct {
		Properties struct {
			Datetime string `json:"datetime"`
		} `json:"properties"`
	} `json:"features"`
	Context struct {
		Next     *int `json:"next"`
		Returned int  `json:"returned"`
	} `json:"context"`
}

func buildSearchPayload(collection string, req SearchRequest, next *int) (map[string]interface{}, error) {
	geometry, err := req.AOI.GeoJSON()
	if err != nil {
		return nil, err
	}
	from, _ := DayRange(req.From)
	_, to := DayRange(req.To)

	payload := map[string]interface{}{
		"collections": []string{collection},
		"datetime":    fmt.Sprintf("%s/%s", from.Format(time.RFC3339), to.Format(time.RFC3339)),
		"intersects":  geometry,
		"filter":      fmt.Sprintf("eo:cloud_cover < %d", req.MaxCloudCover),
		"filter-lang": "cql2-text",
		"fields": map[string]interface{}{
			"include": []string{"properties.datetime"},
			"exclude": []string{},
		},
		"limit": catalogPageLimit,
	}
	if next != nil {
		payload["next"] = *next
	}
	return payload, nil
}

// Search returns the distinct acquisition days, sorted ascending, that
// intersect the AOI within the date range and have less cloud cover than
// the limit.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]time.Time, error) {
	if req.AOI == nil {
		return nil, ErrInvalidAOI
	}
	if req.To.Before(req.From) {
		return nil, fmt.Errorf("end date %s is before start date %s", req.To.Format(DateLayout), req.From.Format(DateLayout))
	}

	var dates []time.Time
	var next *int
	for {
		payload, err := buildSearchPayload(c.cfg.Collection, req, next)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal catalog request: %w", err)
		}

		content, err := c.post(ctx, c.cfg.CatalogURL, body, "application/geo+json")
		if err != nil {
			return nil, fmt.Errorf("catalog search failed: %w", err)
		}

		var resp catalogResponse
		if err := json.Unmarshal(content, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse catalog response: %w", err)
		}
		for _, f := range resp.Features {
			date, err := ParseAcquisitionDate(f.Properties.Datetime)
			if err != nil {
				return nil, err
			}
			dates = append(dates, date)
		}

		if resp.Context.Next == nil || len(resp.Features) == 0 {
			break
		}
		next = resp.Context.Next
	}

	return utils.UniqueDays(dates), nil
}

// ParseAcquisitionDate keeps the day of an RFC 3339 timestamp.
func ParseAcquisitionDate(datetime string) (time.Time, error) {
	if len(datetime) < len(DateLayout) {
		return time.Time{}, fmt.Errorf("invalid acquisition datetime %q", datetime)
	}
	date, err := time.Parse(DateLayout, datetime[:len(DateLayout)])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid acquisition datetime %q: %w", datetime, err)
	}
	return date, nil
}

// DayRange returns the first and last second of the day containing t, in
// UTC.
func DayRange(t time.Time) (time.Time, time.Time) {
	start := utils.Day(t)
	return start, start.Add(time.Hour*23 + time.Minute*59 + time.Second*59)
}
