package main

import (
	"strconv"
	"strings"
	"time"
)

// timestampPolicy picks the header timestamp for each rebuild. With hold
// enabled, wall-clock values are rounded onto a recognisable pattern (the
// seconds ending in ...420 or ...69); once such a value is latched it is
// reused until the clock has moved more than margin past it. This keeps the
// header hash stable between mempool-driven rebuilds.
type timestampPolicy struct {
	hold   bool
	margin int64
	last   int64
}

func newTimestampPolicy(hold bool, margin time.Duration) *timestampPolicy {
	return &timestampPolicy{hold: hold, margin: int64(margin / time.Second)}
}

func (p *timestampPolicy) next(now int64) int64 {
	if !p.hold {
		p.last = now
		return p.last
	}
	ts := roundToHeldPattern(now)
	if isHeldTimestamp(p.last) {
		if ts > p.last+p.margin {
			p.last = ts
		}
	} else {
		p.last = ts
	}
	return p.last
}

// roundToHeldPattern rewrites ...4xy to ...420 and then ...6x to ...69.
func roundToHeldPattern(ts int64) int64 {
	s := strconv.FormatInt(ts, 10)
	if len(s) >= 3 && s[len(s)-3] == '4' {
		s = s[:len(s)-2] + "20"
	}
	if len(s) >= 2 && s[len(s)-2] == '6' {
		s = s[:len(s)-1] + "9"
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return ts
	}
	return v
}

func isHeldTimestamp(ts int64) bool {
	if ts <= 0 {
		return false
	}
	s := strconv.FormatInt(ts, 10)
	return strings.HasSuffix(s, "420") || strings.HasSuffix(s, "69")
}
