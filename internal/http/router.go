/* Copyright (c) 2025 A. Karpov
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/akarpov/planboard/internal/config"
)

func NewRouter(cfg config.Config, log zerolog.Logger, svc any) *gin.Engine {
	if cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		c.Next()
		log.Info().Str("m", c.Request.Method).Str("p", c.FullPath()).Int("s", c.Writer.Status()).Msg("http")
	})

	h := NewHandlers(cfg, log, svc)

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api/v1")
	{
		api.GET("/absences", h.ListAbsences)
		api.POST("/absences", h.AddAbsence)
		api.DELETE("/absences/:id", h.RemoveAbsence)
		api.GET("/absences/stats", h.AbsenceStats)
		api.GET("/absences/export", h.ExportAbsences)
		api.POST("/absences/import", h.ImportAbsences)

		api.GET("/members", h.ListMembers)
		api.PUT("/members/:username", h.UpsertMember)
		api.DELETE("/members/:username", h.RemoveMember)

		api.GET("/capacity/:iteration", h.CapacityBreakdown)
		api.PUT("/capacity/:iteration/:username/override", h.SetOverride)

		api.GET("/velocity", h.TeamVelocity)
		api.GET("/velocity/:username", h.MemberVelocity)

		api.GET("/workload", h.Workload)
		api.GET("/burnout", h.Burnout)
		api.GET("/forecast", h.Forecast)

		api.GET("/scenarios", h.ListScenarios)
		api.POST("/scenarios", h.SaveScenario)
		api.DELETE("/scenarios/:id", h.DeleteScenario)
		api.GET("/scenarios/:id/forecast", h.ScenarioForecast)

		api.GET("/policy", h.GetPolicy)
		api.PUT("/policy", h.SetPolicy)
		api.POST("/policy/reset", h.ResetPolicy)

		api.GET("/groups", h.ProjectGroups)
		api.POST("/groups", h.SaveProjectGroup)
	}

	r.POST("/admin/refresh", h.RefreshNow)
	r.POST("/admin/digest", h.DigestNow)

	return r
}
