package sentinel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	FormatTIFF = "image/tiff"
	FormatPNG  = "image/png"
)

type ProcessRequest struct {
	AOI *AOI
	// UseBBox sends the AOI bounding box instead of the polygon, so pixels
	// outside the polygon are not masked.
	UseBBox    bool
	From       time.Time
	To         time.Time
	Evalscript string
	Width      int
	Height     int
	// Format defaults to FormatTIFF.
	Format string
}

func buildProcessPayload(collection string, req ProcessRequest) (map[string]interface{}, error) {
	bounds := map[string]interface{}{}
	if req.UseBBox {
		bounds["bbox"] = req.AOI.BBox()
		bounds["properties"] = map[string]string{
			"crs": "http://www.opengis.net/def/crs/OGC/1.3/CRS84",
		}
	} else {
		geometry, err := req.AOI.GeoJSON()
		if err != nil {
			return nil, err
		}
		bounds["geometry"] = geometry
	}

	from, _ := DayRange(req.From)
	_, to := DayRange(req.To)

	return map[string]interface{}{
		"input": map[string]interface{}{
			"bounds": bounds,
			"data": []map[string]interface{}{
				{
					"type": collection,
					"dataFilter": map[string]interface{}{
						"timeRange": map[string]string{
							"from": from.Format(time.RFC3339),
							"to":   to.Format(time.RFC3339),
						},
						"mosaickingOrder": "mostRecent",
					},
				},
			},
		},
		"output": map[string]interface{}{
			"width":  req.Width,
			"height": req.Height,
			"responses": []map[string]interface{}{
				{
					"identifier": "default",
					"format": map[string]string{
						"type": req.Format,
					},
				},
			},
		},
		"evalscript": req.Evalscript,
	}, nil
}

// Process renders the evalscript over the AOI and returns the encoded image.
func (c *Client) Process(ctx context.Context, req ProcessRequest) ([]byte, error) {
	if req.AOI == nil {
		return nil, ErrInvalidAOI
	}
	if req.Evalscript == "" {
		return nil, errors.New("evalscript is required")
	}
	if req.Width <= 0 || req.Height <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", req.Width, req.Height)
	}
	if req.Format == "" {
		req.Format = FormatTIFF
	}

	payload, err := buildProcessPayload(c.cfg.Collection, req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	content, err := c.post(ctx, c.cfg.ProcessURL, body, req.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to request image for %s: %w", req.From.Format(DateLayout), err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: empty response for %s", ErrImageNotFound, req.From.Format(DateLayout))
	}
	return content, nil
}
