package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/agroplatform/dictionary-service/internal/models"
	"github.com/agroplatform/dictionary-service/internal/services"
	"github.com/agroplatform/dictionary-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type ImportHandler struct {
	BaseHandler
	importService services.ImportService
	stackService  services.StackService
	parser        *services.FileParser
}

func NewImportHandler(
	importService services.ImportService,
	stackService services.StackService,
	parser *services.FileParser,
	logger utils.Logger,
) *ImportHandler {
	return &ImportHandler{
		BaseHandler:   NewBaseHandler(logger),
		importService: importService,
		stackService:  stackService,
		parser:        parser,
	}
}

// ImportJSONRequest is the JSON body alternative to a multipart file upload.
type ImportJSONRequest struct {
	Mode       string             `json:"mode" validate:"required"`
	SkipErrors bool               `json:"skip_errors"`
	Rows       []models.ImportRow `json:"rows" validate:"required,min=1"`
}

// Import runs a bulk import into one dictionary
// @Summary Import dictionary items
// @Description Accepts a multipart CSV/XLSX upload or a JSON row array and runs it as one undoable batch
// @Tags imports
// @Accept json
// @Accept multipart/form-data
// @Produce json
// @Param code path string true "Dictionary code"
// @Success 200 {object} models.ImportBatch
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /dictionaries/{code}/import [post]
func (h *ImportHandler) Import(c *gin.Context) {
	code := ParseStringIDParam(c, "code")
	if code == "" {
		return
	}

	req := &services.ImportRequest{
		DictionaryCode: code,
		PerformedBy:    h.performedBy(c),
	}

	if file, header, err := c.Request.FormFile("file"); err == nil {
		defer file.Close()

		rows, err := h.parser.Parse(file, header.Filename)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		req.FileName = header.Filename
		req.Rows = rows
		req.Mode = models.ImportMode(c.DefaultPostForm("mode", string(models.ImportModeUpsert)))
		req.SkipErrors, _ = strconv.ParseBool(c.PostForm("skip_errors"))
	} else {
		var body ImportJSONRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid request payload",
				Details: err.Error(),
			})
			return
		}
		req.Rows = body.Rows
		req.Mode = models.ImportMode(body.Mode)
		req.SkipErrors = body.SkipErrors
	}

	h.LogRequest(c, "Starting import",
		"dictionary_code", code,
		"mode", req.Mode,
		"rows", len(req.Rows),
		"skip_errors", req.SkipErrors)

	batch, err := h.importService.Execute(c.Request.Context(), req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, batch)
}

// History lists import batches of one dictionary
// @Summary Import history
// @Tags imports
// @Produce json
// @Param code path string true "Dictionary code"
// @Param status query string false "Batch status filter"
// @Success 200 {object} SuccessResponse
// @Router /dictionaries/{code}/imports [get]
func (h *ImportHandler) History(c *gin.Context) {
	code := ParseStringIDParam(c, "code")
	if code == "" {
		return
	}

	batches, total, err := h.importService.History(c.Request.Context(), code, parseBatchFilters(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batches": batches,
		"total":   total,
	})
}

// GetBatch retrieves one import batch with its error log
// @Summary Get import batch
// @Tags imports
// @Produce json
// @Param id path uint true "Batch ID"
// @Success 200 {object} models.ImportBatch
// @Failure 404 {object} ErrorResponse
// @Router /imports/{id} [get]
func (h *ImportHandler) GetBatch(c *gin.Context) {
	id := ParseUintIDParam(c, "id")
	if id == 0 {
		return
	}

	batch, err := h.importService.GetBatch(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, batch)
}

// Capabilities reports whether the batch can currently be undone or redone
// @Summary Batch undo/redo capabilities
// @Tags imports
// @Produce json
// @Param id path uint true "Batch ID"
// @Success 200 {object} models.StackCapabilities
// @Failure 404 {object} ErrorResponse
// @Router /imports/{id}/capabilities [get]
func (h *ImportHandler) Capabilities(c *gin.Context) {
	id := ParseUintIDParam(c, "id")
	if id == 0 {
		return
	}

	capabilities, err := h.importService.Capabilities(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, capabilities)
}

// Undo rolls back a completed import batch
// @Summary Undo import
// @Tags imports
// @Produce json
// @Param id path uint true "Batch ID"
// @Success 200 {object} services.UndoResult
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /imports/{id}/undo [post]
func (h *ImportHandler) Undo(c *gin.Context) {
	id := ParseUintIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Undoing import", "batch_id", id)

	result, err := h.importService.Undo(c.Request.Context(), id, h.performedBy(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	// Conflicts leave the batch in place; signal that with 409 so callers
	// can surface the per-entry report.
	if len(result.Conflicts) > 0 {
		c.JSON(http.StatusConflict, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Redo re-applies a rolled back import batch
// @Summary Redo import
// @Tags imports
// @Produce json
// @Param id path uint true "Batch ID"
// @Success 200 {object} services.RedoResult
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /imports/{id}/redo [post]
func (h *ImportHandler) Redo(c *gin.Context) {
	id := ParseUintIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Redoing import", "batch_id", id)

	result, err := h.importService.Redo(c.Request.Context(), id, h.performedBy(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	if len(result.Conflicts) > 0 {
		c.JSON(http.StatusConflict, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DeleteBatch removes an import batch and its journal
// @Summary Delete import batch
// @Tags imports
// @Param id path uint true "Batch ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /imports/{id} [delete]
func (h *ImportHandler) DeleteBatch(c *gin.Context) {
	id := ParseUintIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Deleting import batch", "batch_id", id)

	if err := h.importService.DeleteBatch(c.Request.Context(), id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetStack shows the dictionary's current undo/redo pointers
// @Summary Get undo/redo stack
// @Tags imports
// @Produce json
// @Param code path string true "Dictionary code"
// @Success 200 {object} models.UndoRedoStack
// @Router /dictionaries/{code}/stack [get]
func (h *ImportHandler) GetStack(c *gin.Context) {
	code := ParseStringIDParam(c, "code")
	if code == "" {
		return
	}

	stack, err := h.stackService.Get(c.Request.Context(), code)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stack)
}

func (h *ImportHandler) handleServiceError(c *gin.Context, err error) {
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
	case errors.Is(err, services.ErrBatchNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Import batch not found"})
	case errors.Is(err, services.ErrEmptyImport):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Import contains no rows"})
	case errors.Is(err, services.ErrBadRequest):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
	case errors.Is(err, services.ErrDictionaryBusy):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Another import or rollback is running for this dictionary",
			Code:    "dictionary_busy",
		})
	case errors.Is(err, services.ErrInvalidState):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Message: err.Error()})
	case errors.Is(err, services.ErrNotTopOfStack):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: err.Error(),
			Code:    "not_top_of_stack",
		})
	case errors.Is(err, services.ErrBatchProtected):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Batch is the current undo or redo target and cannot be deleted",
			Code:    "batch_protected",
		})
	default:
		h.LogError(c, err, "Unhandled service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Internal server error"})
	}
}
