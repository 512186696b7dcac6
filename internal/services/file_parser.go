package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/agroplatform/dictionary-service/internal/models"
	"github.com/xuri/excelize/v2"
)

// importColumns is the canonical header set for import files. Only code and
// name are required; the rest default to empty when the column is absent.
var importColumns = []string{
	"code", "name", "name_en", "name_ru", "name_uz",
	"icon", "color", "symbol", "sort_order", "is_active",
}

var requiredColumns = []string{"code", "name"}

// FileParser turns uploaded CSV and Excel files into import rows. Parsing is
// purely structural; semantic validation happens inside the import executor.
type FileParser struct{}

func NewFileParser() *FileParser {
	return &FileParser{}
}

// Parse dispatches on the file extension.
func (p *FileParser) Parse(reader io.Reader, filename string) ([]models.ImportRow, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".csv":
		return p.ParseCSV(reader)
	case ".xlsx", ".xls":
		return p.ParseExcel(reader)
	default:
		return nil, NewValidationError("file", "unsupported file format", ext)
	}
}

func (p *FileParser) ParseCSV(reader io.Reader) ([]models.ImportRow, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return p.parseRecords(records)
}

func (p *FileParser) ParseExcel(reader io.Reader) ([]models.ImportRow, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, NewValidationError("file", "Excel file has no sheets", nil)
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read Excel rows: %w", err)
	}
	return p.parseRecords(records)
}

func (p *FileParser) parseRecords(records [][]string) ([]models.ImportRow, error) {
	if len(records) < 2 {
		return nil, NewValidationError("file", "file must have a header row and at least one data row", len(records))
	}

	headerMap := make(map[string]int)
	for i, header := range records[0] {
		headerMap[strings.ToLower(strings.TrimSpace(header))] = i
	}
	for _, col := range requiredColumns {
		if _, exists := headerMap[col]; !exists {
			return nil, NewValidationError("headers", fmt.Sprintf("missing required column: %s", col), col)
		}
	}

	rows := make([]models.ImportRow, 0, len(records)-1)
	for rowIndex, record := range records[1:] {
		row, err := p.parseRecord(record, headerMap, rowIndex+2)
		if err != nil {
			return nil, err
		}
		rows = append(rows, *row)
	}
	return rows, nil
}

func (p *FileParser) parseRecord(record []string, headerMap map[string]int, lineNo int) (*models.ImportRow, error) {
	cell := func(column string) string {
		idx, exists := headerMap[column]
		if !exists || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}
	optional := func(column string) *string {
		if value := cell(column); value != "" {
			return &value
		}
		return nil
	}

	row := &models.ImportRow{
		Code:   cell("code"),
		Name:   cell("name"),
		NameEn: cell("name_en"),
		NameRu: cell("name_ru"),
		NameUz: cell("name_uz"),
		Icon:   optional("icon"),
		Color:  optional("color"),
		Symbol: optional("symbol"),
	}

	if value := cell("sort_order"); value != "" {
		sortOrder, err := strconv.Atoi(value)
		if err != nil {
			return nil, NewValidationError("sort_order", fmt.Sprintf("line %d: not a number", lineNo), value)
		}
		row.SortOrder = &sortOrder
	}
	if value := cell("is_active"); value != "" {
		isActive, err := strconv.ParseBool(value)
		if err != nil {
			return nil, NewValidationError("is_active", fmt.Sprintf("line %d: not a boolean", lineNo), value)
		}
		row.IsActive = &isActive
	}

	return row, nil
}

// ExportItemsToCSV renders the items as a CSV file using the same column set
// the importer accepts, so an export can be re-imported unchanged.
func (p *FileParser) ExportItemsToCSV(items []*models.DictionaryItem) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(importColumns); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, item := range items {
		if err := writer.Write(itemRecord(item)); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *FileParser) ExportItemsToExcel(items []*models.DictionaryItem) ([]byte, error) {
	f := excelize.NewFile()
	sheetName := "Items"

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}

	for i, header := range importColumns {
		cellRef, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cellRef, header); err != nil {
			return nil, fmt.Errorf("failed to write Excel header: %w", err)
		}
	}
	for rowIdx, item := range items {
		for colIdx, value := range itemRecord(item) {
			cellRef, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := f.SetCellValue(sheetName, cellRef, value); err != nil {
				return nil, fmt.Errorf("failed to write Excel cell: %w", err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func itemRecord(item *models.DictionaryItem) []string {
	deref := func(value *string) string {
		if value == nil {
			return ""
		}
		return *value
	}
	return []string{
		item.Code,
		item.Name,
		item.NameEn,
		item.NameRu,
		item.NameUz,
		deref(item.Icon),
		deref(item.Color),
		deref(item.Symbol),
		strconv.Itoa(item.SortOrder),
		strconv.FormatBool(item.IsActive),
	}
}
