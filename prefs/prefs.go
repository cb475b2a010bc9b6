// Package prefs reads site-level amino-acid preference tables.
//
// A preference file is whitespace-separated text. The first
// non-comment line is a header naming the characters (amino acids or
// codons), every following line starts with a 1-based site number
// followed by one weight per character. Lines starting with '#' are
// ignored.
package prefs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Table maps a 1-based site position to the preference weights for
// that site. The inner map is keyed by amino-acid letter or codon.
type Table map[int]map[string]float64

// Read parses a preference table.
func Read(rd io.Reader) (Table, error) {
	scanner := bufio.NewScanner(rd)
	var header []string
	table := make(Table)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if header == nil {
			if len(fields) < 2 {
				return nil, errors.New("preference header needs a site column and at least one character")
			}
			header = fields[1:]
			continue
		}
		if len(fields) != len(header)+1 {
			return nil, fmt.Errorf("preference line has %d fields, expected %d", len(fields), len(header)+1)
		}
		site, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("invalid site number <%s>", fields[0])
		}
		if site < 1 {
			return nil, fmt.Errorf("site numbers are 1-based, got %d", site)
		}
		if _, ok := table[site]; ok {
			return nil, fmt.Errorf("duplicate preference entry for site %d", site)
		}
		row := make(map[string]float64, len(header))
		for i, field := range fields[1:] {
			w, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid preference value <%s> at site %d", field, site)
			}
			if w < 0 {
				return nil, fmt.Errorf("negative preference for %s at site %d", header[i], site)
			}
			row[header[i]] = w
		}
		table[site] = row
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return nil, errors.New("no preference entries found")
	}
	return table, nil
}

// Validate checks that the table covers every site of an alignment
// with nSites codon positions, and that each row has a positive total
// weight. It returns the first missing or broken site.
func (t Table) Validate(nSites int) error {
	for site := 1; site <= nSites; site++ {
		row, ok := t[site]
		if !ok {
			return fmt.Errorf("no preferences for site %d", site)
		}
		sum := 0.0
		for _, w := range row {
			sum += w
		}
		if sum <= 0 {
			return fmt.Errorf("preferences for site %d sum to zero", site)
		}
	}
	return nil
}

// Site returns the preference row for a 1-based site, or nil.
func (t Table) Site(pos int) map[string]float64 {
	return t[pos]
}
