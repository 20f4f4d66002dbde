// Package dataset loads univariate time series and turns
// them into windowed forecasting samples.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/unixpickle/essentials"
)

// DefaultColumn is the series column read from site CSV
// files.
const DefaultColumn = "SpConductivity"

// SitePath returns the CSV path for a monitoring site.
func SitePath(dataDir, site string) string {
	return filepath.Join(dataDir, site+".csv")
}

// LoadSeries reads one numeric column from a CSV file
// whose first row is a header.
func LoadSeries(path, column string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, essentials.AddCtx("load series", err)
	}
	defer f.Close()
	series, err := ReadSeries(f, column)
	if err != nil {
		return nil, essentials.AddCtx("load series "+path, err)
	}
	return series, nil
}

// ReadSeries is like LoadSeries, but reads the CSV data
// from r.
func ReadSeries(r io.Reader, column string) ([]float64, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("missing header row")
	} else if err != nil {
		return nil, err
	}
	col := -1
	for i, name := range header {
		if strings.TrimSpace(name) == column {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("missing column %q", column)
	}

	var res []float64
	for row := 2; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		if col >= len(record) {
			return nil, fmt.Errorf("row %d: missing column %q", row, column)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: %v", row, err)
		}
		res = append(res, value)
	}
	return res, nil
}

// Split divides a series into consecutive train,
// validation and test parts.
//
// The test part holds the last predictionLength values and
// the validation part the predictionLength values before
// it.
func Split(series []float64, predictionLength int) (train, valid, test []float64,
	err error) {
	if predictionLength <= 0 {
		return nil, nil, nil, errors.New("split series: prediction length must be positive")
	}
	if len(series) <= 2*predictionLength {
		return nil, nil, nil, fmt.Errorf("split series: %d values cannot hold two "+
			"prediction lengths of %d plus training data", len(series), predictionLength)
	}
	n := len(series)
	return series[:n-2*predictionLength], series[n-2*predictionLength : n-predictionLength],
		series[n-predictionLength:], nil
}

// Sine generates a noisy sine wave with the given period.
//
// If rng is nil, the global random source is used.
func Sine(n int, period, noise float64, rng *rand.Rand) []float64 {
	norm := rand.NormFloat64
	if rng != nil {
		norm = rng.NormFloat64
	}
	res := make([]float64, n)
	for i := range res {
		res[i] = math.Sin(2*math.Pi*float64(i)/period) + noise*norm()
	}
	return res
}
