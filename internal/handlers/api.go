package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"repair_tracker/internal/models"
	"repair_tracker/internal/service"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK = "ok"

	errLoadAssignees  = "failed to load assignees"
	errLoadStatuses   = "failed to load statuses"
	errLoadUnitModels = "failed to load unit models"
	errLoadOrders     = "failed to load orders"
	errLoadOrder      = "failed to load order"
	errActiveInvalid  = "invalid 'active'; use true or false"
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// serviceError maps service errors onto HTTP codes. Client errors carry the
// error text; anything else is reported with fallback and logged.
func (h *Handler) serviceError(c *gin.Context, fallback, logKey string, err error, kv ...interface{}) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, fallback, logKey, err, kv...)
	}
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, connections"
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	resp := gin.H{"status": statusOK}
	if h.registry != nil {
		resp["connections"] = h.registry.Count()
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary      List assignees
// @Tags         catalog
// @Produce      json
// @Param        active  query  bool  false  "Only active assignees"
// @Success      200  {object}  map[string]interface{}  "count, assignees"
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/assignees [get]
func (h *Handler) listAssignees(c *gin.Context) {
	activeOnly := false
	if qs := c.Query("active"); qs != "" {
		v, err := strconv.ParseBool(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errActiveInvalid})
			return
		}
		activeOnly = v
	}
	list, err := h.services.ListAssignees(c.Request.Context(), activeOnly)
	if err != nil {
		h.serviceError(c, errLoadAssignees, "assignees_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(list), "assignees": list})
}

// @Summary      List statuses
// @Tags         catalog
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, statuses"
// @Failure      500  {object}  map[string]string
// @Router       /api/statuses [get]
func (h *Handler) listStatuses(c *gin.Context) {
	list, err := h.services.ListStatuses(c.Request.Context())
	if err != nil {
		h.serviceError(c, errLoadStatuses, "statuses_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(list), "statuses": list})
}

// @Summary      List unit models
// @Tags         catalog
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, models"
// @Failure      500  {object}  map[string]string
// @Router       /api/models [get]
func (h *Handler) listUnitModels(c *gin.Context) {
	list, err := h.services.ListUnitModels(c.Request.Context())
	if err != nil {
		h.serviceError(c, errLoadUnitModels, "unit_models_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(list), "models": list})
}

// @Summary      List repair orders
// @Tags         orders
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, orders"
// @Failure      500  {object}  map[string]string
// @Router       /api/orders [get]
func (h *Handler) listOrders(c *gin.Context) {
	list, err := h.services.ListOrders(c.Request.Context())
	if err != nil {
		h.serviceError(c, errLoadOrders, "orders_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(list), "orders": list})
}

// @Summary      Get a repair order with its units
// @Tags         orders
// @Produce      json
// @Param        id   path  string  true  "Order key or numeric id"  example(RO-1)
// @Success      200  {object}  service.OrderDetails
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/orders/{id} [get]
func (h *Handler) getOrder(c *gin.Context) {
	key := orderKeyParam(c.Param("id"))
	d, err := h.services.GetOrder(c.Request.Context(), key)
	if err != nil {
		h.serviceError(c, errLoadOrder, "order_get_failed", err, "key", key)
		return
	}
	c.JSON(http.StatusOK, d)
}

// orderKeyParam turns a plain numeric id into its RO key. Anything else is
// passed through and validated by the service.
func orderKeyParam(param string) string {
	id, err := strconv.ParseInt(param, 10, 64)
	if err != nil || id <= 0 || strconv.FormatInt(id, 10) != param {
		return param
	}
	return models.OrderKey(id)
}
