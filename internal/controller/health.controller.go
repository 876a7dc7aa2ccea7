package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthChecker interface {
	Health() map[string]string
}

type HealthController struct {
	DB HealthChecker
}

func NewHealthController(db HealthChecker) *HealthController {
	return &HealthController{DB: db}
}

// GET /health
func (ctl *HealthController) Health(c *gin.Context) {
	stats := ctl.DB.Health()
	if stats["status"] != "up" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "database": stats})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "database": stats})
}
