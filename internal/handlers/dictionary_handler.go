package handlers

import (
	"errors"
	"net/http"

	"github.com/agroplatform/dictionary-service/internal/models"
	"github.com/agroplatform/dictionary-service/internal/services"
	"github.com/agroplatform/dictionary-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type DictionaryHandler struct {
	BaseHandler
	dictionaryService services.DictionaryService
	parser            *services.FileParser
}

func NewDictionaryHandler(
	dictionaryService services.DictionaryService,
	parser *services.FileParser,
	logger utils.Logger,
) *DictionaryHandler {
	return &DictionaryHandler{
		BaseHandler:       NewBaseHandler(logger),
		dictionaryService: dictionaryService,
		parser:            parser,
	}
}

// ===== DICTIONARY DEFINITIONS =====

// CreateDictionary registers a new lookup table
// @Summary Create dictionary
// @Tags dictionaries
// @Accept json
// @Produce json
// @Param dictionary body models.Dictionary true "Dictionary data"
// @Success 201 {object} models.Dictionary
// @Failure 400 {object} ErrorResponse
// @Router /dictionaries [post]
func (h *DictionaryHandler) CreateDictionary(c *gin.Context) {
	var dictionary models.Dictionary
	if err := c.ShouldBindJSON(&dictionary); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.dictionaryService.CreateDictionary(c.Request.Context(), &dictionary); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dictionary)
}

// GetDictionary retrieves one dictionary definition
// @Summary Get dictionary
// @Tags dictionaries
// @Produce json
// @Param code path string true "Dictionary code"
// @Success 200 {object} models.Dictionary
// @Failure 404 {object} ErrorResponse
// @Router /dictionaries/{code} [get]
func (h *DictionaryHandler) GetDictionary(c *gin.Context) {
	code := ParseStringIDParam(c, "code")
	if code == "" {
		return
	}

	dictionary, err := h.dictionaryService.GetDictionary(c.Request.Context(), code)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dictionary)
}

// ListDictionaries lists all dictionary definitions
// @Summary List dictionaries
// @Tags dictionaries
// @Produce json
// @Success 200 {array} models.Dictionary
// @Router /dictionaries [get]
func (h *DictionaryHandler) ListDictionaries(c *gin.Context) {
	dictionaries, err := h.dictionaryService.ListDictionaries(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dictionaries)
}

// ===== ITEMS =====

// ListItems lists items of one dictionary with filtering and pagination
// @Summary List dictionary items
// @Tags items
// @Produce json
// @Param code path string true "Dictionary code"
// @Param search query string false "Match code or any name column"
// @Param active_only query bool false "Only active items"
// @Param page query int false "Page number"
// @Param size query int false "Page size"
// @Success 200 {object} services.ItemListResult
// @Failure 404 {object} ErrorResponse
// @Router /dictionaries/{code}/items [get]
func (h *DictionaryHandler) ListItems(c *gin.Context) {
	code := ParseStringIDParam(c, "code")
	if code == "" {
		return
	}

	result, err := h.dictionaryService.ListItems(c.Request.Context(), code, parseItemFilters(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetItem retrieves one item by id
// @Summary Get dictionary item
// @Tags items
// @Produce json
// @Param id path uint true "Item ID"
// @Success 200 {object} models.DictionaryItem
// @Failure 404 {object} ErrorResponse
// @Router /items/{id} [get]
func (h *DictionaryHandler) GetItem(c *gin.Context) {
	id := ParseUintIDParam(c, "id")
	if id == 0 {
		return
	}

	item, err := h.dictionaryService.GetItem(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// CreateItem creates a single item outside of any import batch
// @Summary Create dictionary item
// @Tags items
// @Accept json
// @Produce json
// @Param code path string true "Dictionary code"
// @Param item body models.ImportRow true "Item data"
// @Success 201 {object} models.DictionaryItem
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /dictionaries/{code}/items [post]
func (h *DictionaryHandler) CreateItem(c *gin.Context) {
	code := ParseStringIDParam(c, "code")
	if code == "" {
		return
	}

	var row models.ImportRow
	if err := c.ShouldBindJSON(&row); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Creating dictionary item", "dictionary_code", code, "item_code", row.Code)

	item, err := h.dictionaryService.CreateItem(c.Request.Context(), code, &row)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

// UpdateItemRequest carries the new item state plus the version the caller
// last read, for the optimistic conflict check.
type UpdateItemRequest struct {
	models.ImportRow
	Version int64 `json:"version" validate:"required,min=1"`
}

// UpdateItem updates a single item with an optimistic version check
// @Summary Update dictionary item
// @Tags items
// @Accept json
// @Produce json
// @Param id path uint true "Item ID"
// @Param item body UpdateItemRequest true "Item data with expected version"
// @Success 200 {object} models.DictionaryItem
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /items/{id} [put]
func (h *DictionaryHandler) UpdateItem(c *gin.Context) {
	id := ParseUintIDParam(c, "id")
	if id == 0 {
		return
	}

	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Updating dictionary item", "item_id", id, "expected_version", req.Version)

	item, err := h.dictionaryService.UpdateItem(c.Request.Context(), id, &req.ImportRow, req.Version)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// DeleteItem deletes a single item with an optimistic version check
// @Summary Delete dictionary item
// @Tags items
// @Param id path uint true "Item ID"
// @Param version query int true "Expected item version"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /items/{id} [delete]
func (h *DictionaryHandler) DeleteItem(c *gin.Context) {
	id := ParseUintIDParam(c, "id")
	if id == 0 {
		return
	}

	version := int64(parseIntQuery(c, "version", 0))
	if version < 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid version",
			Details: "version query parameter is required",
		})
		return
	}

	h.LogRequest(c, "Deleting dictionary item", "item_id", id, "expected_version", version)

	if err := h.dictionaryService.DeleteItem(c.Request.Context(), id, version); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ExportItems downloads the dictionary's items as CSV or XLSX
// @Summary Export dictionary items
// @Tags items
// @Produce octet-stream
// @Param code path string true "Dictionary code"
// @Param format query string false "csv or xlsx"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Router /dictionaries/{code}/items/export [get]
func (h *DictionaryHandler) ExportItems(c *gin.Context) {
	code := ParseStringIDParam(c, "code")
	if code == "" {
		return
	}

	// Export ignores paging; pull the whole table.
	result, err := h.dictionaryService.ListItems(c.Request.Context(), code, parseItemFilters(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	format := c.DefaultQuery("format", "csv")
	switch format {
	case "csv":
		data, err := h.parser.ExportItemsToCSV(result.Items)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		c.Header("Content-Disposition", "attachment; filename="+code+".csv")
		c.Data(http.StatusOK, "text/csv", data)
	case "xlsx":
		data, err := h.parser.ExportItemsToExcel(result.Items)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		c.Header("Content-Disposition", "attachment; filename="+code+".xlsx")
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Unsupported export format",
			Details: format,
		})
	}
}

func (h *DictionaryHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}
	var validationError *services.ValidationError
	if errors.As(err, &validationError) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationError,
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrDictionaryNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Dictionary not found"})
	case errors.Is(err, services.ErrItemNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Item not found"})
	case errors.Is(err, services.ErrItemCodeExists):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Item code already exists in dictionary"})
	case errors.Is(err, services.ErrItemVersionStale):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Item was modified by someone else",
			Code:    "version_conflict",
		})
	case errors.Is(err, services.ErrBadRequest):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
	default:
		h.LogError(c, err, "Unhandled service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Internal server error"})
	}
}
