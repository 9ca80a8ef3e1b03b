package formulas

import "time"

// MonthEndCloses resamples a daily close series to month-end closes.
// Dates and closes must be aligned and ascending; the close of the last
// observed trading day in each calendar month is taken.
func MonthEndCloses(dates []time.Time, closes []float64) []float64 {
	if len(dates) == 0 || len(dates) != len(closes) {
		return nil
	}

	var monthly []float64
	for i := range dates {
		last := i == len(dates)-1
		if !last {
			next := dates[i+1]
			if next.Year() == dates[i].Year() && next.Month() == dates[i].Month() {
				continue
			}
		}
		monthly = append(monthly, closes[i])
	}

	return monthly
}
