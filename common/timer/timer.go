// Package timer provides a light mark based cost tracer for a logic unit of work
package timer

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// XTimer records named time points and reports the cost between them
type XTimer struct {
	bornTime int64
	latest   int64
	marks    []string
	costs    []int64
	mutex    sync.Mutex
}

func NewXTimer() *XTimer {
	now := time.Now().UnixNano()
	return &XTimer{
		bornTime: now,
		latest:   now,
	}
}

// Mark records the cost between now and the previous mark
func (t *XTimer) Mark(flag string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	now := time.Now().UnixNano()
	t.marks = append(t.marks, flag)
	t.costs = append(t.costs, now-t.latest)
	t.latest = now
}

// TotalCost returns the duration since the timer was created
func (t *XTimer) TotalCost() time.Duration {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return time.Duration(t.latest - t.bornTime)
}

// Print formats all marks as flag:costMs joined by comma
func (t *XTimer) Print() string {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	points := make([]string, 0, len(t.marks)+1)
	for i, flag := range t.marks {
		points = append(points, fmt.Sprintf("%s:%.3fms", flag, float64(t.costs[i])/float64(time.Millisecond)))
	}
	points = append(points, fmt.Sprintf("total:%.3fms", float64(t.latest-t.bornTime)/float64(time.Millisecond)))
	return strings.Join(points, ",")
}
