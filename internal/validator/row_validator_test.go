package validator

import (
	"testing"

	"github.com/agroplatform/dictionary-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func TestRowValidator_ValidRows(t *testing.T) {
	v := New()

	rows := []models.ImportRow{
		{Code: "tractor", Name: "Tractor", Color: strPtr("#1a7f37"), SortOrder: intPtr(10)},
		{Code: "  seeder  ", Name: "  Seeder  "},
	}

	errs := v.Rows().ValidateRows(rows)
	assert.Empty(t, errs)

	// Code and name are normalized in place.
	assert.Equal(t, "seeder", rows[1].Code)
	assert.Equal(t, "Seeder", rows[1].Name)
}

func TestRowValidator_StructuralErrors(t *testing.T) {
	v := New()

	t.Run("missing code", func(t *testing.T) {
		errs := v.Rows().ValidateRows([]models.ImportRow{{Name: "Nameless"}})
		require.Len(t, errs, 1)
		assert.Equal(t, 1, errs[0].Row)
		assert.Equal(t, "code", errs[0].Field)
	})

	t.Run("missing name", func(t *testing.T) {
		errs := v.Rows().ValidateRows([]models.ImportRow{{Code: "a"}})
		require.Len(t, errs, 1)
		assert.Equal(t, "name", errs[0].Field)
	})

	t.Run("bad color", func(t *testing.T) {
		errs := v.Rows().ValidateRows([]models.ImportRow{
			{Code: "a", Name: "A", Color: strPtr("green")},
		})
		require.Len(t, errs, 1)
		assert.Equal(t, "color", errs[0].Field)
	})

	t.Run("sort order out of range", func(t *testing.T) {
		errs := v.Rows().ValidateRows([]models.ImportRow{
			{Code: "a", Name: "A", SortOrder: intPtr(2000000)},
		})
		require.Len(t, errs, 1)
	})

	t.Run("whitespace only code fails required", func(t *testing.T) {
		errs := v.Rows().ValidateRows([]models.ImportRow{{Code: "   ", Name: "A"}})
		require.Len(t, errs, 1)
		assert.Equal(t, "code", errs[0].Field)
	})
}

func TestRowValidator_DuplicateCodesWithinUpload(t *testing.T) {
	v := New()

	errs := v.Rows().ValidateRows([]models.ImportRow{
		{Code: "plow", Name: "Plow"},
		{Code: "seeder", Name: "Seeder"},
		{Code: "plow", Name: "Plow again"},
	})

	require.Len(t, errs, 1)
	assert.Equal(t, 3, errs[0].Row)
	assert.Equal(t, "code", errs[0].Field)
	assert.Contains(t, errs[0].Message, "duplicates row 1")
}

func TestRowValidator_ReportsEveryBadRow(t *testing.T) {
	v := New()

	errs := v.Rows().ValidateRows([]models.ImportRow{
		{Name: "No code"},
		{Code: "ok", Name: "OK"},
		{Code: "b", Name: ""},
	})

	require.Len(t, errs, 2)
	assert.Equal(t, 1, errs[0].Row)
	assert.Equal(t, 3, errs[1].Row)
}

func TestValidateStruct_CustomTags(t *testing.T) {
	v := New()

	type payload struct {
		Code string `validate:"required,dictionary_code"`
	}

	assert.NoError(t, v.ValidateStruct(&payload{Code: "machine_type"}))

	err := v.ValidateStruct(&payload{Code: "Machine-Type"})
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, "dictionary_code", verrs[0].Rule)
}
