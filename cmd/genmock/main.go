// Command genmock writes synthetic gridded daily temperature and
// precipitation CSV files shaped like the Nigeria reanalysis extracts. The
// series carry a latitude-dependent seasonal cycle, Gaussian day-to-day noise
// and injected heatwaves so every indicator stage has something to find.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out-dir data/raw \
//	  -start-year 2001 -end-year 2010 \
//	  -step 0.5 -heatwaves 6
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

type grid struct {
	lonMin, lonMax float64
	latMin, latMax float64
	step           float64
}

func (g grid) cells() [][2]float64 {
	var out [][2]float64
	for lon := g.lonMin; lon <= g.lonMax+1e-9; lon += g.step {
		for lat := g.latMin; lat <= g.latMax+1e-9; lat += g.step {
			out = append(out, [2]float64{round(lon, 3), round(lat, 3)})
		}
	}
	return out
}

// heatwave is a run of hot days at one cell.
type heatwave struct {
	cell   [2]float64
	start  time.Time
	days   int
	excess float64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out-dir", "data/raw", "directory for the generated CSV files")
	startYear := flag.Int("start-year", 2001, "first year to generate")
	endYear := flag.Int("end-year", 2005, "last year to generate")
	lonMin := flag.Float64("lon-min", 3, "western edge of the grid")
	lonMax := flag.Float64("lon-max", 5, "eastern edge of the grid")
	latMin := flag.Float64("lat-min", 6.5, "southern edge of the grid")
	latMax := flag.Float64("lat-max", 8.5, "northern edge of the grid")
	step := flag.Float64("step", 0.5, "grid spacing in degrees")
	heatwaves := flag.Int("heatwaves", 4, "number of injected heatwaves")
	seed := flag.Uint64("seed", 42, "random seed")
	flag.Parse()

	if *endYear < *startYear {
		flag.Usage()
		return fmt.Errorf("end-year %d is before start-year %d", *endYear, *startYear)
	}
	if *step <= 0 {
		return fmt.Errorf("step must be positive")
	}

	g := grid{lonMin: *lonMin, lonMax: *lonMax, latMin: *latMin, latMax: *latMax, step: *step}
	cells := g.cells()
	if len(cells) == 0 {
		return fmt.Errorf("empty grid")
	}
	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))

	waves := plantHeatwaves(rng, cells, *startYear, *endYear, *heatwaves)
	for _, w := range waves {
		log.Printf("heatwave: cell %g,%g from %s for %d days (+%.1f)", w.cell[0], w.cell[1], w.start.Format(time.DateOnly), w.days, w.excess)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	temps, err := writeSeries(filepath.Join(*outDir, "temperature.csv"), "temperature", cells, *startYear, *endYear,
		temperatureModel(rng, waves))
	if err != nil {
		return err
	}
	rain, err := writeSeries(filepath.Join(*outDir, "precipitation.csv"), "precipitation", cells, *startYear, *endYear,
		precipitationModel(rng))
	if err != nil {
		return err
	}

	printStats("temperature", temps)
	printStats("precipitation", rain)
	return nil
}

type valueModel func(cell [2]float64, day time.Time) float64

// temperatureModel peaks in March and April, runs hotter to the north and
// adds the planted heatwaves on top.
func temperatureModel(rng *rand.Rand, waves []heatwave) valueModel {
	noise := distuv.Normal{Mu: 0, Sigma: 1.2, Src: rng}
	return func(cell [2]float64, day time.Time) float64 {
		doy := float64(day.YearDay())
		base := 27 + 0.6*(cell[1]-6.5) + 3*math.Cos(2*math.Pi*(doy-100)/365.25)
		v := base + noise.Rand()
		for _, w := range waves {
			if w.cell == cell && !day.Before(w.start) && day.Before(w.start.AddDate(0, 0, w.days)) {
				v += w.excess
			}
		}
		return round(v, 2)
	}
}

// precipitationModel rains mostly in the April-September wet season with
// gamma-distributed daily totals.
func precipitationModel(rng *rand.Rand) valueModel {
	amount := distuv.Gamma{Alpha: 0.8, Beta: 0.1, Src: rng}
	return func(cell [2]float64, day time.Time) float64 {
		month := day.Month()
		chance := 0.08
		if month >= time.April && month <= time.September {
			chance = 0.45 + 0.03*(8.5-cell[1])
		}
		if rng.Float64() >= chance {
			return 0
		}
		return round(amount.Rand(), 2)
	}
}

func plantHeatwaves(rng *rand.Rand, cells [][2]float64, startYear, endYear, n int) []heatwave {
	waves := make([]heatwave, 0, n)
	for range n {
		year := startYear + rng.IntN(endYear-startYear+1)
		waves = append(waves, heatwave{
			cell:   cells[rng.IntN(len(cells))],
			start:  time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 30+rng.IntN(300)),
			days:   3 + rng.IntN(4),
			excess: 7 + 3*rng.Float64(),
		})
	}
	return waves
}

func writeSeries(path, column string, cells [][2]float64, startYear, endYear int, model valueModel) ([]float64, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"lon", "lat", "date", column}); err != nil {
		return nil, err
	}

	start := time.Date(startYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(endYear+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	var values []float64
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		for _, c := range cells {
			v := model(c, day)
			values = append(values, v)
			row := []string{
				strconv.FormatFloat(c[0], 'f', -1, 64),
				strconv.FormatFloat(c[1], 'f', -1, 64),
				day.Format(time.DateOnly),
				strconv.FormatFloat(v, 'f', -1, 64),
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	log.Printf("wrote %s: %d rows, %d cells", path, len(values), len(cells))
	return values, nil
}

func printStats(name string, values []float64) {
	mean, _ := stats.Mean(values)
	minV, _ := stats.Min(values)
	maxV, _ := stats.Max(values)
	p95, _ := stats.Percentile(values, 95)
	fmt.Printf("%s: n=%d mean=%.2f min=%.2f max=%.2f p95=%.2f\n", name, len(values), mean, minV, maxV, p95)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
