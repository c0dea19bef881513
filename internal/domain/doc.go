// Package domain computes extreme-weather exposure indicators from gridded
// daily climate series (ERA5 temperature, NASA precipitation) clipped to Nigeria.
//
// # Data Source
//
// Each input row is one grid cell on one calendar day:
//
//	lon, lat, date, <event>   e.g. 7.5, 9.0, 2012-04-03, 31.7
//
// Grid cells are identified by their exact (lon, lat) pair. The string form
// "{lon}-{lat}" (see [NewCellKey]) is the key used for persisted baselines.
// Coordinates come from the interpolated upstream grid, so two cells that
// differ only by floating-point noise are distinct cells.
//
// # Timescales
//
// "day" is the 1-based ordinal day within the calendar year (1..366), not the
// day of month. Month and year are derived from the same date. See
// [ExtractTimescales].
//
// # Baselines
//
// For every cell, each year's series is smoothed with a centered rolling mean
// (window 3 by default, partial windows at the year edges average only the
// values present). The smoothed years are averaged position by position, and
// a year that is shorter than the longest one contributes 0 at the missing
// positions. The resulting curve is indexed by day-1. See [ComputeThresholds].
//
// # Extremes
//
//	delta   = value - baseline[day-1], clamped to 0 when negative
//	extreme = delta > deltaParam   (strict; equality is not extreme)
//
// The delta parameter is caller policy: 5 °C for heatwaves and 15 mm for heavy
// rain in the default profiles.
//
// # Severity and ranking
//
// Within one (cell, year), consecutive extreme days form a run. A run that
// reaches daysParam days publishes the sum of all its deltas on every one of
// its days. Extreme days that never belong to such a run get severity 1.0.
//
//	ranking 0  not extreme (severity 0)
//	ranking 1  extreme but not sustained (severity <= 1)
//	ranking 2  sustained (severity > 1)
//
// # Drought
//
// The Standardized Precipitation Index is computed per cell from a trailing
// 90-day rolling mean fitted to a gamma distribution. See [ComputeSPI].
package domain
