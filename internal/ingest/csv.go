package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Expected upload header columns.
const (
	columnSerial = "S. No."
	columnName   = "Product Name"
	columnURLs   = "Input Image Urls"
)

// Record is one parsed upload row: a product with its source image URLs.
type Record struct {
	SerialNumber string
	ProductName  string
	SourceURLs   []string
}

// ErrEmptyFile indicates an upload with a header but no data rows.
var ErrEmptyFile = errors.New("csv contains no data rows")

var titleCaser = cases.Title(language.Und)

// ParseCSV reads an uploaded product CSV and returns its records in file
// order. The file must carry the "S. No.", "Product Name", and
// "Input Image Urls" columns (in any order); image URLs within a cell are
// comma-separated. Rows without a serial number or without any URL are
// rejected rather than silently dropped.
func ParseCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	// Rows with trailing columns omitted are tolerated; fieldAt treats them as empty.
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv missing header row")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	serialIdx, ok := columns[strings.ToLower(columnSerial)]
	if !ok {
		return nil, fmt.Errorf("csv missing %q column", columnSerial)
	}
	nameIdx, ok := columns[strings.ToLower(columnName)]
	if !ok {
		return nil, fmt.Errorf("csv missing %q column", columnName)
	}
	urlsIdx, ok := columns[strings.ToLower(columnURLs)]
	if !ok {
		return nil, fmt.Errorf("csv missing %q column", columnURLs)
	}

	var records []Record
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		line++

		serial := fieldAt(row, serialIdx)
		if serial == "" {
			return nil, fmt.Errorf("row %d: missing serial number", line)
		}
		urls := splitURLs(fieldAt(row, urlsIdx))
		if len(urls) == 0 {
			return nil, fmt.Errorf("row %d: no image urls", line)
		}

		records = append(records, Record{
			SerialNumber: serial,
			ProductName:  normalizeName(fieldAt(row, nameIdx)),
			SourceURLs:   urls,
		})
	}

	if len(records) == 0 {
		return nil, ErrEmptyFile
	}
	return records, nil
}

func fieldAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func splitURLs(cell string) []string {
	parts := strings.Split(cell, ",")
	urls := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}

// normalizeName title-cases names that arrive fully lower or upper cased and
// leaves mixed-case names untouched.
func normalizeName(name string) string {
	if name == "" {
		return name
	}
	hasUpper := strings.ContainsFunc(name, unicode.IsUpper)
	hasLower := strings.ContainsFunc(name, unicode.IsLower)
	if hasUpper && hasLower {
		return name
	}
	return titleCaser.String(strings.ToLower(name))
}
