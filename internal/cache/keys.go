package cache

import (
	"fmt"
	"time"
)

// RateLimitKey names the counter for caller id in the fixed one-minute
// window containing now.
func RateLimitKey(id string, now time.Time) string {
	return fmt.Sprintf("chaosplan:ratelimit:%s:%d", id, now.Unix()/60)
}
