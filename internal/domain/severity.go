package domain

import (
	"fmt"
	"maps"
	"slices"
)

// SeverityMeasure computes consecutive-run severities for one (cell, year).
// deltas maps day-of-year to delta for the days still awaiting a severity.
//
// Days with a non-positive delta get 0. A run is a sequence of consecutive
// days with positive deltas; once it spans daysParam days (and never fewer
// than two) every day of the run receives the run's total delta. Days in
// shorter runs are left out of the result.
func SeverityMeasure(deltas map[int]float64, daysParam int) SeverityMap {
	days := slices.Sorted(maps.Keys(deltas))
	minRun := max(daysParam, 2)
	impact := make(SeverityMap, len(days))

	for i := 0; i < len(days); {
		if deltas[days[i]] <= 0 {
			impact[days[i]] = 0
			i++
			continue
		}

		j := i
		var sum float64
		for j < len(days) && deltas[days[j]] > 0 && (j == i || days[j] == days[j-1]+1) {
			sum += deltas[days[j]]
			j++
		}
		if j-i >= minRun {
			for k := i; k < j; k++ {
				impact[days[k]] = sum
			}
		}
		i = j
	}
	return impact
}

// AssignSeverity returns the measured severity for day, or 1.0 for an
// extreme day that never joined a sustained run.
func AssignSeverity(day int, measure SeverityMap) float64 {
	if s, ok := measure[day]; ok {
		return s
	}
	return 1.0
}

// Rank buckets an extreme day's severity: 2 when sustained, 1 otherwise.
func Rank(severity float64) int {
	if severity > 1 {
		return 2
	}
	return 1
}

type cellYear struct {
	year int
	cell CellKey
}

type scoredValue struct {
	severity float64
	ranking  int
}

// ComputeSeverityRanking assigns Severity and Ranking to every unscored record,
// one (cell, year) at a time. Results are written back by record ID and the
// backfill invariants are checked; any violation aborts with ErrIntegrity.
func ComputeSeverityRanking(records []DailyRecord, daysParam int) error {
	position := make(map[int]int, len(records))
	groups := make(map[cellYear][]int)
	var order []cellYear
	for i := range records {
		id := records[i].ID
		if _, dup := position[id]; dup {
			return newEngineError("compute severity", fmt.Sprintf("record id %d appears twice", id), ErrIntegrity)
		}
		position[id] = i

		key := cellYear{year: records[i].Year, cell: records[i].Cell()}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], id)
	}

	for _, key := range order {
		results, err := scoreCellYear(records, position, groups[key], daysParam)
		if err != nil {
			return fmt.Errorf("cell %s year %d: %w", key.cell, key.year, err)
		}

		written := 0
		for _, id := range groups[key] {
			v, ok := results[id]
			if !ok {
				continue
			}
			r := &records[position[id]]
			if r.ID != id {
				return newEngineError("compute severity", fmt.Sprintf("record id %d moved during backfill", id), ErrIntegrity)
			}
			r.Severity = v.severity
			r.Ranking = v.ranking
			r.Scored = true
			written++
		}
		if written != len(results) {
			return newEngineError("compute severity",
				fmt.Sprintf("wrote %d of %d severities for cell %s year %d", written, len(results), key.cell, key.year), ErrIntegrity)
		}

		for _, id := range groups[key] {
			if !records[position[id]].Scored {
				return newEngineError("compute severity",
					fmt.Sprintf("record id %d left without severity for cell %s year %d", id, key.cell, key.year), ErrIntegrity)
			}
		}
	}
	return nil
}

// scoreCellYear computes (severity, ranking) for the unscored records of one
// cell-year, keyed by record ID.
func scoreCellYear(records []DailyRecord, position map[int]int, ids []int, daysParam int) (map[int]scoredValue, error) {
	deltas := make(map[int]float64)
	var pending []int
	for _, id := range ids {
		r := records[position[id]]
		if r.Scored {
			continue
		}
		if _, dup := deltas[r.Day]; dup {
			return nil, newEngineError("compute severity", fmt.Sprintf("day %d appears twice", r.Day), ErrIntegrity)
		}
		deltas[r.Day] = r.Delta
		pending = append(pending, id)
	}
	if len(pending) != len(deltas) {
		return nil, newEngineError("compute severity",
			fmt.Sprintf("%d unscored rows but %d measured days", len(pending), len(deltas)), ErrIntegrity)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	measure := SeverityMeasure(deltas, daysParam)
	results := make(map[int]scoredValue, len(pending))
	for _, id := range pending {
		sev := AssignSeverity(records[position[id]].Day, measure)
		results[id] = scoredValue{severity: sev, ranking: Rank(sev)}
	}
	return results, nil
}
