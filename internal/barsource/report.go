package barsource

import (
	"fmt"
	"time"
)

// AnomalyCode names a non-fatal data problem found while loading.
type AnomalyCode string

const (
	AnomalyOutOfRTH   AnomalyCode = "out_of_rth"
	AnomalyOutOfOrder AnomalyCode = "out_of_order"
	AnomalyGap        AnomalyCode = "gap"
)

// Anomaly is one class of problem in a symbol's data. First is the earliest affected timestamp.
type Anomaly struct {
	Symbol string
	Code   AnomalyCode
	Count  int
	First  time.Time
}

func (a Anomaly) String() string {
	return fmt.Sprintf("%s: %s x%d from %s", a.Symbol, a.Code, a.Count, a.First.UTC().Format(time.RFC3339))
}

// Report lists the anomalies of one symbol load, in detection order.
type Report struct {
	Symbol    string
	Anomalies []Anomaly
}

func (r *Report) add(code AnomalyCode, count int, first time.Time) {
	if count == 0 {
		return
	}
	r.Anomalies = append(r.Anomalies, Anomaly{Symbol: r.Symbol, Code: code, Count: count, First: first})
}

// Has reports whether an anomaly with code was recorded.
func (r Report) Has(code AnomalyCode) bool {
	for _, a := range r.Anomalies {
		if a.Code == code {
			return true
		}
	}
	return false
}
