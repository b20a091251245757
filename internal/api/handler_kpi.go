package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"installflow/internal/service"
)

type KPIHandler struct {
	kpi *service.KPIService
}

func NewKPIHandler(kpi *service.KPIService) *KPIHandler {
	return &KPIHandler{kpi: kpi}
}

// GetKPIs handles GET /kpi for the caller's organization.
func (h *KPIHandler) GetKPIs(c *gin.Context) {
	snap, err := h.kpi.Snapshot(c.Request.Context(), c.GetString("org_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"kpis": snap})
}
