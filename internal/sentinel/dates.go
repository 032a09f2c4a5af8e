package sentinel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrNoNearbyAcquisition = errors.New("no acquisition found near the requested date")

type Searcher interface {
	Search(ctx context.Context, req SearchRequest) ([]time.Time, error)
}

// ImageSource is everything the delivery operations need from the imagery
// provider. *Client implements it.
type ImageSource interface {
	Searcher
	Process(ctx context.Context, req ProcessRequest) ([]byte, error)
}

var _ ImageSource = (*Client)(nil)

// FindNearestAvailableDate looks for an acquisition on target, then on
// target+1, target-1, target+2, target-2 and so on up to maxDays away.
func FindNearestAvailableDate(ctx context.Context, s Searcher, aoi *AOI, target time.Time, maxDays, maxCloudCover int) (time.Time, error) {
	target, _ = DayRange(target)

	for offset := 0; offset <= maxDays; offset++ {
		candidates := []time.Time{target.AddDate(0, 0, offset)}
		if offset > 0 {
			candidates = append(candidates, target.AddDate(0, 0, -offset))
		}

		for _, day := range candidates {
			if err := ctx.Err(); err != nil {
				return time.Time{}, err
			}
			dates, err := s.Search(ctx, SearchRequest{
				AOI:           aoi,
				From:          day,
				To:            day,
				MaxCloudCover: maxCloudCover,
			})
			if err != nil {
				return time.Time{}, fmt.Errorf("failed to search %s: %w", day.Format(DateLayout), err)
			}
			if len(dates) > 0 {
				logrus.WithFields(logrus.Fields{
					"target": target.Format(DateLayout),
					"found":  day.Format(DateLayout),
				}).Debug("nearest acquisition")
				return day, nil
			}
		}
	}

	return time.Time{}, fmt.Errorf("%w: %s within %d days", ErrNoNearbyAcquisition, target.Format(DateLayout), maxDays)
}
