// SPDX-License-Identifier: MIT

package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/katalvlaran/qgen/formula"
	"github.com/katalvlaran/qgen/pedigree"
)

var errNoRows = errors.New("no data rows")

// readCSV returns the header and the data records of a comma-separated
// file. Lines starting with '#' are skipped.
func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comment = '#'
	r.TrimLeadingSpace = true
	recs, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(recs) < 2 {
		return nil, nil, fmt.Errorf("%s: %w", path, errNoRows)
	}

	return recs[0], recs[1:], nil
}

func isMissing(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "NA", "na", "NaN", "nan", ".":
		return true
	}

	return false
}

// parseValue reads a number; missing tokens become NaN.
func parseValue(s string) (float64, error) {
	if isMissing(s) {
		return math.NaN(), nil
	}

	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// genotypeFile is an individuals × markers table of allele dosages.
type genotypeFile struct {
	IDs     []string
	Markers []string
	Dosages [][]float64
}

// readGenotypes reads "id,marker1,marker2,..." rows.
func readGenotypes(path string) (*genotypeFile, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("%s: need an id column and at least one marker", path)
	}
	g := &genotypeFile{
		IDs:     make([]string, len(rows)),
		Markers: header[1:],
		Dosages: make([][]float64, len(rows)),
	}
	for i, rec := range rows {
		g.IDs[i] = rec[0]
		g.Dosages[i] = make([]float64, len(rec)-1)
		for j, s := range rec[1:] {
			if g.Dosages[i][j], err = parseValue(s); err != nil {
				return nil, fmt.Errorf("%s: row %d, marker %s: %w", path, i+1, g.Markers[j], err)
			}
		}
	}

	return g, nil
}

// readPhenotypes reads "id,trait,..." rows and returns the ids with the
// values of trait, the first data column when trait is empty.
func readPhenotypes(path, trait string) ([]string, []float64, string, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, nil, "", err
	}
	if len(header) < 2 {
		return nil, nil, "", fmt.Errorf("%s: need an id column and a trait column", path)
	}
	col := 1
	if trait != "" {
		col = -1
		for j, h := range header {
			if h == trait {
				col = j
			}
		}
		if col < 1 {
			return nil, nil, "", fmt.Errorf("%s: no trait column %q", path, trait)
		}
	}
	ids := make([]string, len(rows))
	y := make([]float64, len(rows))
	for i, rec := range rows {
		ids[i] = rec[0]
		if y[i], err = parseValue(rec[col]); err != nil {
			return nil, nil, "", fmt.Errorf("%s: row %d: %w", path, i+1, err)
		}
	}

	return ids, y, header[col], nil
}

// align orders values by ids; ids without a value get NaN.
func align(ids, keys []string, values []float64) ([]float64, error) {
	byID := make(map[string]float64, len(keys))
	for i, k := range keys {
		byID[k] = values[i]
	}
	out := make([]float64, len(ids))
	matched := 0
	for i, id := range ids {
		v, ok := byID[id]
		if !ok {
			v = math.NaN()
		} else {
			matched++
		}
		out[i] = v
	}
	if matched == 0 {
		return nil, errors.New("no phenotype matches a genotyped individual")
	}

	return out, nil
}

// readTable reads a data file into a formula.Table. A column is numeric
// when every present value parses as a number, unless it is listed in
// categorical.
func readTable(path string, categorical []string) (*formula.Table, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	forced := make(map[string]bool, len(categorical))
	for _, c := range categorical {
		forced[c] = true
	}
	t := formula.NewTable(len(rows))
	for j, name := range header {
		labels := make([]string, len(rows))
		values := make([]float64, len(rows))
		numeric := !forced[name]
		for i, rec := range rows {
			labels[i] = strings.TrimSpace(rec[j])
			if isMissing(labels[i]) {
				labels[i] = ""
			}
			if numeric {
				if values[i], err = parseValue(rec[j]); err != nil {
					numeric = false
				}
			}
		}
		if numeric {
			err = t.AddNumeric(name, values)
		} else {
			err = t.AddCategorical(name, labels)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	return t, nil
}

// readPedigree reads "id,sire,dam" rows.
func readPedigree(path string) ([]pedigree.Individual, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if len(header) < 3 {
		return nil, fmt.Errorf("%s: need id, sire and dam columns", path)
	}
	out := make([]pedigree.Individual, len(rows))
	for i, rec := range rows {
		out[i] = pedigree.Individual{ID: rec[0], Sire: parent(rec[1]), Dam: parent(rec[2])}
	}

	return out, nil
}

func parent(s string) string {
	if isMissing(s) {
		return ""
	}

	return strings.TrimSpace(s)
}

// writeCSV creates path and writes header and rows to it.
func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err = w.Write(header); err == nil {
		err = w.WriteAll(rows)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	return err
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}

	return strconv.FormatFloat(v, 'g', -1, 64)
}

// finite maps NaN and ±Inf to nil so reports stay encodable.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}

	return &v
}
