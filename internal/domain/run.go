package domain

import "time"

// RunInfo identifies one engine run across every sink it writes to.
type RunInfo struct {
	ID        string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
}

// EventSummary describes the indicator table produced for one event.
type EventSummary struct {
	Event         string `json:"event"`
	IndexName     string `json:"index_name"`
	Rows          int    `json:"rows"`
	Cells         int    `json:"cells"`
	Years         []int  `json:"years"`
	ExtremeDays   int    `json:"extreme_days"`
	SustainedDays int    `json:"sustained_days"`
	HasSPI        bool   `json:"has_spi"`
	FromCache     bool   `json:"from_cache"`
}

// RunSummary is the outcome of a completed run.
type RunSummary struct {
	RunInfo
	FinishedAt time.Time      `json:"finished_at"`
	Events     []EventSummary `json:"events"`
}

// Summarize counts the cells, years and extreme days of a processed table.
func Summarize(t *Table, p EventProfile) EventSummary {
	s := EventSummary{
		Event:     t.Event,
		IndexName: p.IndexName,
		Rows:      len(t.Records),
		Cells:     len(t.Cells()),
		Years:     t.Years(),
		HasSPI:    t.HasSPI,
	}
	for i := range t.Records {
		switch t.Records[i].Ranking {
		case 1:
			s.ExtremeDays++
		case 2:
			s.ExtremeDays++
			s.SustainedDays++
		}
	}
	return s
}
