package management

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"killrelay/internal/constants"
	"killrelay/internal/logger"
	"killrelay/pkg/errors"
)

type BaseHandler struct {
	Service Service
	Logger  logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	} else {
		h.Logger.DebugwCtx(c.Request.Context(), "Request rejected", "error", err, "path", c.Request.URL.Path)
	}

	c.JSON(status, errors.ToErrorResponse(err))
}

func (h *BaseHandler) bindError(c *gin.Context, err error) {
	h.HandleError(c, errors.ErrValidation.WithCause(err).WithDetail("message", err.Error()))
}

type Handler struct {
	BaseHandler
}

func NewHandler(service Service, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NopLogger()
	}
	return &Handler{
		BaseHandler: BaseHandler{
			Service: service,
			Logger:  log,
		},
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		sets := v1.Group("/filter-sets")
		{
			sets.GET("", h.ListFilterSets)
			sets.POST("", h.CreateFilterSet)
			sets.GET("/:id", h.GetFilterSet)
			sets.PUT("/:id", h.UpdateFilterSet)
			sets.DELETE("/:id", h.DeleteFilterSet)
			sets.POST("/:id/filters", h.AddFilter)
			sets.DELETE("/:id/filters", h.RemoveFilter)
			sets.GET("/:id/audit", h.GetAuditLogs)
		}

		v1.GET("/targets/:target/filter-set", h.GetFilterSetByTarget)
		v1.POST("/filters/validate", h.ValidateFilters)
	}
}

// ListFilterSets godoc
// @Summary      List filter sets
// @Description  Filter sets in declaration order
// @Tags         filter-sets
// @Produce      json
// @Success      200  {array}   models.FilterSet
// @Failure      500  {object}  map[string]interface{}
// @Router       /filter-sets [get]
func (h *Handler) ListFilterSets(c *gin.Context) {
	sets, err := h.Service.ListFilterSets(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, sets)
}

// CreateFilterSet godoc
// @Summary      Create a filter set
// @Tags         filter-sets
// @Accept       json
// @Produce      json
// @Param        filter_set  body      CreateFilterSetRequest  true  "Filter set"
// @Success      201  {object}  models.FilterSet
// @Failure      400  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]interface{}
// @Router       /filter-sets [post]
func (h *Handler) CreateFilterSet(c *gin.Context) {
	var req CreateFilterSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	set, err := h.Service.CreateFilterSet(requestContext(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, set)
}

func (h *Handler) GetFilterSet(c *gin.Context) {
	set, err := h.Service.GetFilterSet(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

// UpdateFilterSet godoc
// @Summary      Update a filter set
// @Description  Only the fields present in the body are replaced
// @Tags         filter-sets
// @Accept       json
// @Produce      json
// @Param        id          path      string                  true  "Filter set ID"
// @Param        filter_set  body      UpdateFilterSetRequest  true  "Fields to replace"
// @Success      200  {object}  models.FilterSet
// @Failure      400  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]interface{}
// @Router       /filter-sets/{id} [put]
func (h *Handler) UpdateFilterSet(c *gin.Context) {
	var req UpdateFilterSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	set, err := h.Service.UpdateFilterSet(requestContext(c), c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

func (h *Handler) DeleteFilterSet(c *gin.Context) {
	if err := h.Service.DeleteFilterSet(requestContext(c), c.Param("id")); err != nil {
		h.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddFilter godoc
// @Summary      Append a rule to a filter set
// @Description  Adding a rule that is already present leaves the set unchanged
// @Tags         filter-sets
// @Accept       json
// @Produce      json
// @Param        id      path      string         true  "Filter set ID"
// @Param        filter  body      FilterRequest  true  "Rule string"
// @Success      200  {object}  models.FilterSet
// @Failure      400  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}
// @Router       /filter-sets/{id}/filters [post]
func (h *Handler) AddFilter(c *gin.Context) {
	var req FilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	set, err := h.Service.AddFilter(requestContext(c), c.Param("id"), req.Filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

func (h *Handler) RemoveFilter(c *gin.Context) {
	var req FilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	set, err := h.Service.RemoveFilter(requestContext(c), c.Param("id"), req.Filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

func (h *Handler) GetFilterSetByTarget(c *gin.Context) {
	targetID, err := strconv.ParseUint(c.Param("target"), 10, 64)
	if err != nil || targetID == 0 {
		h.HandleError(c, errors.ErrValidation.WithDetail("message", "target must be a positive integer"))
		return
	}

	set, err := h.Service.GetFilterSetByTarget(c.Request.Context(), targetID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

// ValidateFilters godoc
// @Summary      Compile rule strings without storing them
// @Tags         filters
// @Accept       json
// @Produce      json
// @Param        filters  body      ValidateFiltersRequest  true  "Rule strings"
// @Success      200  {object}  ValidateFiltersResponse
// @Failure      400  {object}  map[string]interface{}
// @Router       /filters/validate [post]
func (h *Handler) ValidateFilters(c *gin.Context) {
	var req ValidateFiltersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Service.ValidateFilters(c.Request.Context(), req.Filters))
}

func (h *Handler) GetAuditLogs(c *gin.Context) {
	logs, err := h.Service.GetAuditLogs(c.Request.Context(), c.Param("id"), parseLimit(c.Query("limit")))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func parseLimit(limitStr string) int {
	if limitStr == "" {
		return constants.DefaultLimit
	}
	parsed, err := strconv.Atoi(limitStr)
	if err != nil || parsed <= 0 || parsed > constants.MaxLimit {
		return constants.DefaultLimit
	}
	return parsed
}

// requestContext carries the client address to audit entries.
func requestContext(c *gin.Context) context.Context {
	return withClientIP(c.Request.Context(), c.ClientIP())
}
