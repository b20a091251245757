package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"installflow/internal/stage"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	projectHandler *ProjectHandler,
	stageHandler *StageHandler,
	kpiHandler *KPIHandler,
	jwtSecret string,
) *Router {
	r := gin.Default()
	r.Use(MetricsMiddleware())

	// Ops endpoints stay open.
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// The stage catalog is public config, useful to UI pickers.
	r.GET("/stages", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"stages": stage.All()})
	})

	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.POST("/projects", projectHandler.CreateProject)
		auth.GET("/projects", projectHandler.ListProjects)
		auth.GET("/projects/:id", projectHandler.GetProject)
		auth.PUT("/projects/:id", projectHandler.UpdateProject)
		auth.DELETE("/projects/:id", projectHandler.DeactivateProject)
		auth.PATCH("/projects/:id/stage", stageHandler.ChangeStage)
		auth.GET("/projects/:id/activity", projectHandler.ListActivity)
		auth.GET("/kpi", kpiHandler.GetKPIs)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
