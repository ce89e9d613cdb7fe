package pagination

import (
	"fmt"
	"strconv"
)

// Page size bounds for history page requests
const (
	DefaultPageSize = 50
	MinPageSize     = 1
	MaxPageSize     = 100
)

// Directions accepted on the wire
const (
	DirectionOlder = "older"
	DirectionNewer = "newer"
)

// PageParams represents a parsed history page request: a direction
// relative to a millisecond watermark. A missing watermark is only valid
// for older-direction requests and means "most recent page".
type PageParams struct {
	Direction string
	Watermark *int64
	PageSize  int
}

// ParsePageParams parses history page query parameters
func ParsePageParams(directionStr, watermarkStr, sizeStr string) (*PageParams, error) {
	direction := DirectionOlder
	switch directionStr {
	case "", DirectionOlder:
	case DirectionNewer:
		direction = DirectionNewer
	default:
		return nil, fmt.Errorf("invalid direction parameter: %q", directionStr)
	}

	var watermark *int64
	if watermarkStr != "" {
		ts, err := strconv.ParseInt(watermarkStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid watermark parameter: %w", err)
		}
		watermark = &ts
	}
	if direction == DirectionNewer && watermark == nil {
		return nil, fmt.Errorf("newer direction requires a watermark")
	}

	size := DefaultPageSize
	if sizeStr != "" {
		n, err := strconv.Atoi(sizeStr)
		if err != nil {
			return nil, fmt.Errorf("invalid page_size parameter: %w", err)
		}
		switch {
		case n < MinPageSize:
			size = MinPageSize
		case n > MaxPageSize:
			size = MaxPageSize
		default:
			size = n
		}
	}

	return &PageParams{Direction: direction, Watermark: watermark, PageSize: size}, nil
}
