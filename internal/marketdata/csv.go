package marketdata

import (
	"fmt"
	"os"
	"time"

	"github.com/gocarina/gocsv"
)

const csvDateLayout = "2006-01-02"

type barRecord struct {
	Symbol    string  `csv:"symbol"`
	Date      string  `csv:"date"`
	Open      float64 `csv:"open"`
	Close     float64 `csv:"close"`
	Avg       float64 `csv:"avg"`
	HighLimit float64 `csv:"high_limit"`
	LowLimit  float64 `csv:"low_limit"`
	AdjFactor float64 `csv:"adj_factor"`
	Halted    bool    `csv:"halted"`
}

// LoadPanelCSV reads a full price/limit panel from a csv file and returns an
// in-memory provider over it.
func LoadPanelCSV(path string) (*PanelProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open panel csv: %w", err)
	}
	defer f.Close()

	records := []barRecord{}
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, fmt.Errorf("failed to parse panel csv %s: %w", path, err)
	}

	bars := make([]Bar, 0, len(records))
	for i, r := range records {
		date, err := time.Parse(csvDateLayout, r.Date)
		if err != nil {
			return nil, fmt.Errorf("bad date %q on row %d: %w", r.Date, i+1, err)
		}
		bars = append(bars, Bar{
			Symbol:    r.Symbol,
			Date:      date,
			Open:      r.Open,
			Close:     r.Close,
			Avg:       r.Avg,
			HighLimit: r.HighLimit,
			LowLimit:  r.LowLimit,
			AdjFactor: r.AdjFactor,
			Halted:    r.Halted,
		})
	}

	return NewPanelProvider(bars)
}
