package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// LoadCSV builds a MemoryProvider from a close-price CSV with the columns
// symbol,timestamp,price (RFC3339 timestamps). A header row is skipped when
// present.
func LoadCSV(path string, maxGap time.Duration) (*MemoryProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open price file: %w", err)
	}
	defer f.Close()

	provider := NewMemoryProvider(maxGap)
	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 3

	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read price file %s: %w", path, err)
		}
		line++

		ts, err := time.Parse(time.RFC3339, record[1])
		if err != nil {
			if line == 1 {
				continue // header row
			}
			return nil, fmt.Errorf("price file %s line %d: bad timestamp %q", path, line, record[1])
		}

		price, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, fmt.Errorf("price file %s line %d: bad price %q", path, line, record[2])
		}

		provider.Add(record[0], PricePoint{Time: ts, Price: price})
	}

	return provider, nil
}
