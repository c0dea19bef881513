package domain

// ExtractTimescales derives Day (ordinal day of year), Month and Year from
// each record's Date.
func ExtractTimescales(records []DailyRecord) {
	for i := range records {
		d := records[i].Date
		records[i].Day = d.YearDay()
		records[i].Month = int(d.Month())
		records[i].Year = d.Year()
	}
}

// Batching splits items into consecutive chunks of at most size elements.
func Batching[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var batches [][]T
	for i := 0; i < len(items); i += size {
		end := min(i+size, len(items))
		batches = append(batches, items[i:end])
	}
	return batches
}
