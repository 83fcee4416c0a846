package redis

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

func (st *trimerImpl) minID(backtime time.Duration) string {
	return minIDWithClock(st.clock, backtime)
}

func minIDWithClock(clock clockwork.Clock, backtime time.Duration) string {
	cutoffTime := clock.Now().Add(-backtime).UnixMilli()
	return fmt.Sprintf("%d-0", cutoffTime)
}
