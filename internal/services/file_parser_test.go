package services

import (
	"bytes"
	"strings"
	"testing"

	"github.com/agroplatform/dictionary-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestFileParser_ParseCSV(t *testing.T) {
	parser := NewFileParser()

	csvData := strings.Join([]string{
		"code,name,name_en,color,sort_order,is_active",
		"tractor,Трактор,Tractor,#1a7f37,10,true",
		"seeder,Сеялка,Seeder,,20,",
	}, "\n")

	rows, err := parser.ParseCSV(strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "tractor", rows[0].Code)
	assert.Equal(t, "Трактор", rows[0].Name)
	assert.Equal(t, "Tractor", rows[0].NameEn)
	require.NotNil(t, rows[0].Color)
	assert.Equal(t, "#1a7f37", *rows[0].Color)
	require.NotNil(t, rows[0].SortOrder)
	assert.Equal(t, 10, *rows[0].SortOrder)
	require.NotNil(t, rows[0].IsActive)
	assert.True(t, *rows[0].IsActive)

	// Absent optional cells stay nil rather than zero.
	assert.Nil(t, rows[1].Color)
	assert.Nil(t, rows[1].IsActive)
}

func TestFileParser_ParseCSV_Errors(t *testing.T) {
	parser := NewFileParser()

	t.Run("missing required column", func(t *testing.T) {
		_, err := parser.ParseCSV(strings.NewReader("code,color\na,#fff"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "name")
	})

	t.Run("header only", func(t *testing.T) {
		_, err := parser.ParseCSV(strings.NewReader("code,name"))
		require.Error(t, err)
	})

	t.Run("bad sort_order", func(t *testing.T) {
		_, err := parser.ParseCSV(strings.NewReader("code,name,sort_order\na,A,ten"))
		require.Error(t, err)
	})
}

func TestFileParser_ParseExcel_RoundTrip(t *testing.T) {
	parser := NewFileParser()

	color := "#ff8800"
	sortOrder := 5
	items := []*models.DictionaryItem{
		{Code: "harvester", Name: "Комбайн", NameEn: "Harvester", Color: &color, SortOrder: sortOrder, IsActive: true},
		{Code: "plow", Name: "Плуг", NameEn: "Plow", IsActive: false},
	}

	data, err := parser.ExportItemsToExcel(items)
	require.NoError(t, err)

	rows, err := parser.ParseExcel(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "harvester", rows[0].Code)
	assert.Equal(t, "Комбайн", rows[0].Name)
	require.NotNil(t, rows[0].Color)
	assert.Equal(t, color, *rows[0].Color)
	require.NotNil(t, rows[0].SortOrder)
	assert.Equal(t, sortOrder, *rows[0].SortOrder)

	require.NotNil(t, rows[1].IsActive)
	assert.False(t, *rows[1].IsActive)
}

func TestFileParser_ExportCSV_ReimportsUnchanged(t *testing.T) {
	parser := NewFileParser()

	items := []*models.DictionaryItem{
		{Code: "tractor", Name: "Трактор", NameEn: "Tractor", SortOrder: 3, IsActive: true},
	}

	data, err := parser.ExportItemsToCSV(items)
	require.NoError(t, err)

	rows, err := parser.ParseCSV(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "tractor", rows[0].Code)
	assert.Equal(t, "Трактор", rows[0].Name)
}

func TestFileParser_Parse_Dispatch(t *testing.T) {
	parser := NewFileParser()

	t.Run("csv extension", func(t *testing.T) {
		rows, err := parser.Parse(strings.NewReader("code,name\na,A"), "upload.csv")
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("xlsx extension", func(t *testing.T) {
		f := excelize.NewFile()
		require.NoError(t, f.SetCellValue("Sheet1", "A1", "code"))
		require.NoError(t, f.SetCellValue("Sheet1", "B1", "name"))
		require.NoError(t, f.SetCellValue("Sheet1", "A2", "a"))
		require.NoError(t, f.SetCellValue("Sheet1", "B2", "A"))
		var buf bytes.Buffer
		require.NoError(t, f.Write(&buf))

		rows, err := parser.Parse(&buf, "upload.xlsx")
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := parser.Parse(strings.NewReader(""), "upload.pdf")
		require.Error(t, err)
	})
}
