package logger

import (
	"sync"
	"sync/atomic"
)

type componentStat struct {
	warns  int64
	errors int64
}

// Per-component warn/error counters. Batch failures degrade the run
// silently otherwise, so the counts are surfaced once at the end of the
// run via RunSummary.
var components sync.Map // map[string]*componentStat

func recordWarn(component string) {
	stat := loadStat(component)
	atomic.AddInt64(&stat.warns, 1)
}

func recordError(component string) {
	stat := loadStat(component)
	atomic.AddInt64(&stat.errors, 1)
}

func loadStat(component string) *componentStat {
	v, _ := components.LoadOrStore(component, &componentStat{})
	return v.(*componentStat)
}

// RunSummary returns the accumulated warn/error counts per component,
// suitable for attaching to a final log entry.
func RunSummary() Fields {
	fields := Fields{}
	total := int64(0)
	components.Range(func(k, v any) bool {
		name := k.(string)
		stat := v.(*componentStat)
		warns := atomic.LoadInt64(&stat.warns)
		errs := atomic.LoadInt64(&stat.errors)
		if warns > 0 {
			fields[name+"_warns"] = warns
		}
		if errs > 0 {
			fields[name+"_errors"] = errs
		}
		total += warns + errs
		return true
	})
	fields["degraded"] = total > 0
	return fields
}
