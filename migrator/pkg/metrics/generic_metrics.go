package metrics

import "time"

type Counter interface {
	Add(valueToAdd int)
}

type Gauge interface {
	Add(valueToAdd int)
	Subtract(valueToSubtract int)
	Set(value float64)
}

type Histogram interface {
	Observe(d time.Duration)
}
