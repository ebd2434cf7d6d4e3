// Package table reads batch input tables and writes result tables.
package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"imageBatch/internal/models"
)

const (
	ColSerialNumber    = "Serial Number"
	ColProductName     = "Product Name"
	ColInputImageURLs  = "Input Image Urls"
	ColOutputImageURLs = "Output Image Urls"
)

var (
	ErrParse  = errors.New("unreadable table")
	ErrSchema = errors.New("table is missing required columns")
)

var requiredColumns = []string{ColSerialNumber, ColProductName, ColInputImageURLs}

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var zipMagic = []byte{0x50, 0x4B, 0x03, 0x04}

// DetectFormat sniffs content; XLSX workbooks are ZIP archives.
func DetectFormat(data []byte) Format {
	if bytes.HasPrefix(data, zipMagic) {
		return FormatXLSX
	}
	return FormatCSV
}

func (f Format) Extension() string {
	return "." + string(f)
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// ParseInput decodes an input table and checks that the required columns are present.
// Extra columns are ignored and blank lines skipped.
func ParseInput(data []byte) ([]models.Row, error) {
	records, err := readRecords(data)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no header row", ErrParse)
	}

	index := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		name = strings.TrimSpace(name)
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrSchema, strings.Join(missing, ", "))
	}

	cell := func(record []string, col string) string {
		i := index[col]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	rows := make([]models.Row, 0, len(records)-1)
	for _, record := range records[1:] {
		if isBlank(record) {
			continue
		}
		rows = append(rows, models.Row{
			SerialNumber:   cell(record, ColSerialNumber),
			ProductName:    cell(record, ColProductName),
			InputImageURLs: SplitImageURLs(cell(record, ColInputImageURLs)),
		})
	}

	return rows, nil
}

func readRecords(data []byte) ([][]string, error) {
	if DetectFormat(data) == FormatXLSX {
		return readXLSX(data)
	}
	return readCSV(data)
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	var records [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrParse)
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return records, nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// SplitImageURLs splits a comma-joined cell, dropping blank entries.
func SplitImageURLs(cell string) []string {
	parts := strings.Split(cell, ",")
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			urls = append(urls, p)
		}
	}
	return urls
}

// EncodeResult writes the result table as CSV, one line per row in the given order.
func EncodeResult(rows []models.Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{ColSerialNumber, ColProductName, ColInputImageURLs, ColOutputImageURLs}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{
			row.SerialNumber,
			row.ProductName,
			strings.Join(row.InputImageURLs, ","),
			strings.Join(row.OutputImageURLs, ","),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
