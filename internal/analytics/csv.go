package analytics

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

var csvHeader = []string{"Date", "Conversations", "Resolved", "Handovers", "Avg Messages"}

// WriteCSV writes the per-day series, one row per day after the header.
func WriteCSV(w io.Writer, days []DailyStat) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, d := range days {
		row := []string{
			d.Date,
			strconv.Itoa(d.Conversations),
			strconv.Itoa(d.Resolved),
			strconv.Itoa(d.Handovers),
			strconv.FormatFloat(d.AvgMessages, 'f', 2, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", d.Date, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
