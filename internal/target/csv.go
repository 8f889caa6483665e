package target

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/GoSim-25-26J-441/spice-tuner/pkg/textfile"
)

// LoadCSV reads target points from a file with columns
// frequency_hz, magnitude_db, phase_deg and an optional weight (default 1).
// A leading header row and '#' comment lines are skipped.
func LoadCSV(path string) ([]Point, error) {
	doc, err := textfile.Read(path)
	if err != nil {
		return nil, err
	}
	points, err := ParseCSV(strings.NewReader(doc.Text))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return points, nil
}

// ParseCSV reads target points from r
func ParseCSV(r io.Reader) ([]Point, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var points []Point
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read target csv: %w", err)
		}
		row++

		if len(record) < 3 || len(record) > 4 {
			return nil, fmt.Errorf("row %d: expected 3 or 4 columns, got %d", row, len(record))
		}
		values := make([]float64, 4)
		values[3] = 1
		header := false
		for i, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				if row == 1 {
					header = true
					break
				}
				return nil, fmt.Errorf("row %d column %d: %q is not a number", row, i+1, field)
			}
			values[i] = v
		}
		if header {
			continue
		}
		points = append(points, Point{
			FrequencyHz: values[0],
			MagnitudeDB: values[1],
			PhaseDeg:    values[2],
			Weight:      values[3],
		})
	}

	if len(points) == 0 {
		return nil, ErrEmptyTable
	}
	return points, nil
}
