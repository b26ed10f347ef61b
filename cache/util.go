package cache

import (
	"time"

	"github.com/contentsquare/reqengine/request"
)

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func priorityFromOrdinal(ordinal int) request.Priority {
	switch ordinal {
	case request.Critical.Ordinal():
		return request.Critical
	case request.High.Ordinal():
		return request.High
	case request.Normal.Ordinal():
		return request.Normal
	default:
		return request.Low
	}
}
