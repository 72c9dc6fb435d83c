package features

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrMalformedFile is reported when a feature file exists but cannot
	// be parsed as a headed numeric table.
	ErrMalformedFile = errors.New("malformed feature file")

	// ErrColumnNotFound is reported when a model asks for a column the
	// file's header does not carry.
	ErrColumnNotFound = errors.New("column not found")
)

// readMatrix parses a headed CSV file into its header and data rows.
// Empty cells and the spellings "na"/"nan" (any case) parse to NaN; rows
// are filtered downstream, never here.
func readMatrix(path string) ([]string, [][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: no header row", ErrMalformedFile)
	}

	var rows [][]float64
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
		}
		row := make([]float64, len(record))
		for i, cell := range record {
			v, err := parseCell(cell)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: row %d: %v", ErrMalformedFile, len(rows)+1, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: no data rows", ErrMalformedFile)
	}
	return header, rows, nil
}

func parseCell(cell string) (float64, error) {
	s := strings.TrimSpace(cell)
	if s == "" || strings.EqualFold(s, "na") || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", cell)
	}
	return v, nil
}

// indexHeader maps each column name to its position, keeping the first
// occurrence when a name repeats.
func indexHeader(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	return idx
}
