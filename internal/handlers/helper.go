package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agroplatform/dictionary-service/internal/models"
	"github.com/agroplatform/dictionary-service/internal/repositories"
	"github.com/gin-gonic/gin"
)

func ParseStringIDParam(c *gin.Context, param string) string {
	idStr := strings.TrimSpace(c.Param(param))
	if idStr == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: "ID cannot be empty",
		})
		return ""
	}
	return idStr
}

func ParseUintIDParam(c *gin.Context, param string) uint {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: err.Error(),
		})
		return 0
	}
	return uint(id)
}

func parseIntQuery(c *gin.Context, param string, defaultValue int) int {
	valueStr := c.Query(param)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func parsePagination(c *gin.Context) (limit, offset int) {
	page := parseIntQuery(c, "page", 1)
	size := parseIntQuery(c, "size", 20)
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 500 {
		size = 20
	}
	return size, (page - 1) * size
}

func parseItemFilters(c *gin.Context) repositories.ItemFilters {
	limit, offset := parsePagination(c)
	return repositories.ItemFilters{
		Search:     c.Query("search"),
		ActiveOnly: c.Query("active_only") == "true",
		Limit:      limit,
		Offset:     offset,
		SortBy:     c.Query("sort_by"),
		SortOrder:  c.Query("sort_order"),
	}
}

func parseBatchFilters(c *gin.Context) repositories.BatchFilters {
	limit, offset := parsePagination(c)

	filters := repositories.BatchFilters{
		Limit:  limit,
		Offset: offset,
	}
	if status := c.Query("status"); status != "" {
		s := models.ImportBatchStatus(status)
		filters.Status = &s
	}
	if performedBy := c.Query("performed_by"); performedBy != "" {
		filters.PerformedBy = &performedBy
	}
	if from := c.Query("date_from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filters.DateFrom = &t
		}
	}
	if to := c.Query("date_to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filters.DateTo = &t
		}
	}
	return filters
}
