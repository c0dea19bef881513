// Command validate checks exported indicator tables for internal
// consistency: unique cell-days, delta and extreme flags against the event's
// threshold, severity and ranking against consecutive extreme runs, and SPI
// values and categories. Event profiles come from the same environment the
// engine reads (EVENTS_FILE or the defaults).
//
// Usage:
//
//	go run ./cmd/validate -dir data/output
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/joho/godotenv"

	csvadapter "github.com/couchcryptid/weather-indicator-etl/internal/adapter/csv"
	"github.com/couchcryptid/weather-indicator-etl/internal/config"
	"github.com/couchcryptid/weather-indicator-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// maxReported caps the errors printed per phase.
const maxReported = 10

func main() {
	dir := flag.String("dir", "data/output", "directory holding exported indicator CSV files")
	tolerance := flag.Float64("tolerance", 1e-6, "absolute tolerance for severity sums")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}

	if code := run(*dir, cfg.Events, *tolerance); code != 0 {
		os.Exit(code)
	}
}

func run(dir string, profiles []domain.EventProfile, tolerance float64) int {
	fmt.Println("=== Weather Indicator Validation ===")
	fmt.Println()

	var phases []*phase
	for _, p := range profiles {
		path := filepath.Join(dir, p.IndicatorCacheName()+".csv")
		table, err := loadTable(path, p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load %s: %v\n", path, err)
			return 1
		}
		fmt.Printf("%s: %d rows from %s\n", p.Name, len(table.Records), path)

		phases = append(phases,
			validateCoverage(p, table),
			validateDeltas(p, table),
			validateSeverity(p, table, tolerance),
		)
		if p.SPI {
			phases = append(phases, validateSPI(p, table))
		}
	}

	fmt.Println()
	allPassed := true
	for _, ph := range phases {
		if ph.passed() {
			fmt.Printf("PASS  %s\n", ph.name)
			continue
		}
		allPassed = false
		fmt.Printf("FAIL  %s (%d errors)\n", ph.name, len(ph.errors))
		for i, e := range ph.errors {
			if i == maxReported {
				fmt.Printf("      ... %d more\n", len(ph.errors)-maxReported)
				break
			}
			fmt.Printf("      - %s\n", e)
		}
	}

	fmt.Println()
	if !allPassed {
		fmt.Println("RESULT: FAILED")
		return 1
	}
	fmt.Println("RESULT: ALL PHASES PASSED")
	return 0
}

func loadTable(path string, p domain.EventProfile) (*domain.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return csvadapter.ReadIndicators(f, p.Name, p.Column)
}

type cellDay struct {
	cell domain.CellKey
	date time.Time
}

// validateCoverage checks that no cell-day repeats and every cell covers the
// same years.
func validateCoverage(p domain.EventProfile, t *domain.Table) *phase {
	ph := &phase{name: p.Name + ": coverage"}
	seen := make(map[cellDay]bool, len(t.Records))
	years := make(map[domain.CellKey][]int)
	for _, r := range t.Records {
		k := cellDay{cell: r.Cell(), date: r.Date}
		if seen[k] {
			ph.errorf("cell %s day %s appears twice", k.cell, r.Date.Format(time.DateOnly))
		}
		seen[k] = true
		if !slices.Contains(years[k.cell], r.Year) {
			years[k.cell] = append(years[k.cell], r.Year)
		}
	}

	var want []int
	for cell, ys := range years {
		slices.Sort(ys)
		if want == nil {
			want = ys
			continue
		}
		if !slices.Equal(want, ys) {
			ph.errorf("cell %s covers years %v, other cells cover %v", cell, ys, want)
		}
	}
	return ph
}

// validateDeltas checks delta >= 0 and extreme == (delta > threshold).
func validateDeltas(p domain.EventProfile, t *domain.Table) *phase {
	ph := &phase{name: p.Name + ": deltas"}
	for _, r := range t.Records {
		if r.Delta < 0 {
			ph.errorf("cell %s %s: negative delta %g", r.Cell(), r.Date.Format(time.DateOnly), r.Delta)
		}
		if want := r.Delta > p.DeltaParam; r.Extreme != want {
			ph.errorf("cell %s %s: extreme=%t with delta %g and threshold %g",
				r.Cell(), r.Date.Format(time.DateOnly), r.Extreme, r.Delta, p.DeltaParam)
		}
	}
	return ph
}

// validateSeverity recomputes the expected severity of every extreme run and
// compares it with the exported severity and ranking.
func validateSeverity(p domain.EventProfile, t *domain.Table, tolerance float64) *phase {
	ph := &phase{name: p.Name + ": severity"}
	minRun := max(p.DaysParam, 2)

	groups := make(map[string][]domain.DailyRecord)
	for _, r := range t.Records {
		if !r.Extreme {
			if r.Severity != 0 || r.Ranking != 0 {
				ph.errorf("cell %s %s: non-extreme day has severity %g ranking %d",
					r.Cell(), r.Date.Format(time.DateOnly), r.Severity, r.Ranking)
			}
			continue
		}
		if r.Ranking != domain.Rank(r.Severity) {
			ph.errorf("cell %s %s: ranking %d does not match severity %g",
				r.Cell(), r.Date.Format(time.DateOnly), r.Ranking, r.Severity)
		}
		key := fmt.Sprintf("%s|%d", r.Cell(), r.Year)
		groups[key] = append(groups[key], r)
	}

	for key, days := range groups {
		slices.SortFunc(days, func(a, b domain.DailyRecord) int { return a.Day - b.Day })
		for i := 0; i < len(days); {
			j := i + 1
			sum := days[i].Delta
			for j < len(days) && days[j].Day == days[j-1].Day+1 {
				sum += days[j].Delta
				j++
			}
			want := 1.0
			if j-i >= minRun {
				want = sum
			}
			for k := i; k < j; k++ {
				if math.Abs(days[k].Severity-want) > tolerance {
					ph.errorf("%s day %d: severity %g, want %g (run of %d)", key, days[k].Day, days[k].Severity, want, j-i)
				}
			}
			i = j
		}
	}
	return ph
}

// validateSPI checks that SPI values are finite.
func validateSPI(p domain.EventProfile, t *domain.Table) *phase {
	ph := &phase{name: p.Name + ": spi"}
	if !t.HasSPI {
		ph.errorf("export has no spi column")
		return ph
	}
	counts := make(map[string]int)
	for _, r := range t.Records {
		if math.IsNaN(r.SPI) || math.IsInf(r.SPI, 0) {
			ph.errorf("cell %s %s: spi %g is not finite", r.Cell(), r.Date.Format(time.DateOnly), r.SPI)
			continue
		}
		counts[domain.SPICategory(r.SPI)]++
	}
	fmt.Printf("%s spi categories: %v\n", p.Name, counts)
	return ph
}
