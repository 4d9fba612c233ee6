package feed

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/marlinquant/backtester/pkg/errors"
)

// WriteCSV writes the feed as a headered OHLCV CSV that LoadCSV reads back
// unchanged.
func (f *Feed) WriteCSV(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to create %s", path)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to write %s", path)
	}

	for _, bar := range f.bars {
		record := []string{
			bar.Time.UTC().Format(time.RFC3339),
			formatPrice(bar.Open),
			formatPrice(bar.High),
			formatPrice(bar.Low),
			formatPrice(bar.Close),
			formatPrice(bar.Volume),
		}

		if err := writer.Write(record); err != nil {
			return errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to write %s", path)
		}
	}

	writer.Flush()

	return writer.Error()
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
