/* Copyright (c) 2025 A. Karpov
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/akarpov/planboard/internal/absence"
	"github.com/akarpov/planboard/internal/config"
	"github.com/akarpov/planboard/internal/domain"
	"github.com/akarpov/planboard/internal/planning"
)

type service interface {
	Absences(ctx context.Context, username string, from, to *time.Time) ([]domain.Absence, error)
	AddAbsence(ctx context.Context, username string, start, end time.Time, typ domain.AbsenceType, reason string) (domain.Absence, error)
	RemoveAbsence(ctx context.Context, id string) error
	TeamAbsenceStats(ctx context.Context, from, to time.Time) (planning.AbsenceStats, error)
	ImportAbsencesCSV(ctx context.Context, text string) (absence.ImportResult, error)
	ExportAbsencesCSV(ctx context.Context, from, to *time.Time) (string, error)

	Members() []domain.TeamMember
	UpsertMember(ctx context.Context, m domain.TeamMember) error
	RemoveMember(ctx context.Context, username string) error

	CapacityBreakdown(ctx context.Context, iterationRef string) ([]domain.SprintCapacity, error)
	SetManualOverride(ctx context.Context, iterationRef, username string, hours *float64) error

	TeamVelocity(ctx context.Context) ([]domain.VelocityRecord, error)
	MemberVelocity(ctx context.Context, username string) (domain.VelocityRecord, domain.EffectiveVelocity, error)

	WorkloadDistribution(ctx context.Context) ([]domain.MemberWorkload, error)
	BurnoutRisks(ctx context.Context) ([]domain.BurnoutRisk, error)
	Forecast(ctx context.Context, weeks int) ([]domain.ForecastWeek, error)

	ListScenarios(ctx context.Context) ([]domain.Scenario, error)
	SaveScenario(ctx context.Context, sc domain.Scenario) (domain.Scenario, error)
	DeleteScenario(ctx context.Context, id string) error
	ScenarioForecast(ctx context.Context, id string, weeks int) ([]domain.ForecastWeek, error)

	Policy() domain.PolicyConfig
	SetPolicy(ctx context.Context, p domain.PolicyConfig) error
	ResetPolicy(ctx context.Context) error

	ProjectGroups(ctx context.Context) ([]planning.ProjectGroup, error)
	SaveProjectGroup(ctx context.Context, g planning.ProjectGroup) error

	RefreshSnapshot(ctx context.Context) error
	RunWeeklyDigest(ctx context.Context) error
}

type Handlers struct {
	cfg config.Config
	log zerolog.Logger
	svc service
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc any) *Handlers {
	return &Handlers{cfg: cfg, log: log, svc: svc.(service)}
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// fail maps domain sentinels onto HTTP statuses.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidRange), errors.Is(err, domain.ErrPolicyViolation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownMember),
		errors.Is(err, domain.ErrUnknownIteration),
		errors.Is(err, domain.ErrUnknownScenario):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrReadOnlyNamespace):
		status = http.StatusForbidden
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

const dateLayout = "2006-01-02"

func queryDay(c *gin.Context, name string) (*time.Time, bool) {
	v := c.Query(name)
	if v == "" {
		return nil, true
	}
	t, err := time.ParseInLocation(dateLayout, v, time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + " date, want YYYY-MM-DD"})
		return nil, false
	}
	return &t, true
}

func (h *Handlers) ListAbsences(c *gin.Context) {
	from, ok := queryDay(c, "from")
	if !ok {
		return
	}
	to, ok := queryDay(c, "to")
	if !ok {
		return
	}
	list, err := h.svc.Absences(c.Request.Context(), c.Query("username"), from, to)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"absences": list})
}

func (h *Handlers) AddAbsence(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Start    string `json:"start" binding:"required"`
		End      string `json:"end" binding:"required"`
		Type     string `json:"type"`
		Reason   string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, err := time.ParseInLocation(dateLayout, req.Start, time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start date"})
		return
	}
	end, err := time.ParseInLocation(dateLayout, req.End, time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end date"})
		return
	}
	typ, ok := domain.ParseAbsenceType(req.Type)
	if !ok {
		typ = domain.AbsenceOther
	}
	rec, err := h.svc.AddAbsence(c.Request.Context(), req.Username, start, end, typ, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handlers) RemoveAbsence(c *gin.Context) {
	if err := h.svc.RemoveAbsence(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) AbsenceStats(c *gin.Context) {
	from, ok := queryDay(c, "from")
	if !ok {
		return
	}
	to, ok := queryDay(c, "to")
	if !ok {
		return
	}
	if from == nil || to == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to are required"})
		return
	}
	stats, err := h.svc.TeamAbsenceStats(c.Request.Context(), *from, *to)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handlers) ExportAbsences(c *gin.Context) {
	from, ok := queryDay(c, "from")
	if !ok {
		return
	}
	to, ok := queryDay(c, "to")
	if !ok {
		return
	}
	out, err := h.svc.ExportAbsencesCSV(c.Request.Context(), from, to)
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="absences.csv"`)
	c.Data(http.StatusOK, "text/csv", []byte(out))
}

func (h *Handlers) ImportAbsences(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read body"})
		return
	}
	res, err := h.svc.ImportAbsencesCSV(c.Request.Context(), string(body))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handlers) ListMembers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"members": h.svc.Members()})
}

func (h *Handlers) UpsertMember(c *gin.Context) {
	var m domain.TeamMember
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m.Username = c.Param("username")
	if err := h.svc.UpsertMember(c.Request.Context(), m); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handlers) RemoveMember(c *gin.Context) {
	if err := h.svc.RemoveMember(c.Request.Context(), c.Param("username")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) CapacityBreakdown(c *gin.Context) {
	out, err := h.svc.CapacityBreakdown(c.Request.Context(), c.Param("iteration"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"capacity": out})
}

func (h *Handlers) SetOverride(c *gin.Context) {
	var req struct {
		Hours *float64 `json:"hours"` // null clears the override
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.SetManualOverride(c.Request.Context(), c.Param("iteration"), c.Param("username"), req.Hours); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) TeamVelocity(c *gin.Context) {
	out, err := h.svc.TeamVelocity(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"velocity": out})
}

func (h *Handlers) MemberVelocity(c *gin.Context) {
	rec, eff, err := h.svc.MemberVelocity(c.Request.Context(), c.Param("username"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec, "effective": eff})
}

func (h *Handlers) Workload(c *gin.Context) {
	out, err := h.svc.WorkloadDistribution(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workload": out})
}

func (h *Handlers) Burnout(c *gin.Context) {
	out, err := h.svc.BurnoutRisks(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"risks": out})
}

func (h *Handlers) forecastWeeks(c *gin.Context) int {
	if v := c.Query("weeks"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	if h.cfg.ForecastWeeks > 0 {
		return h.cfg.ForecastWeeks
	}
	return 12
}

func (h *Handlers) Forecast(c *gin.Context) {
	out, err := h.svc.Forecast(c.Request.Context(), h.forecastWeeks(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"forecast": out})
}

func (h *Handlers) ListScenarios(c *gin.Context) {
	out, err := h.svc.ListScenarios(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scenarios": out})
}

func (h *Handlers) SaveScenario(c *gin.Context) {
	var sc domain.Scenario
	if err := c.ShouldBindJSON(&sc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	saved, err := h.svc.SaveScenario(c.Request.Context(), sc)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (h *Handlers) DeleteScenario(c *gin.Context) {
	if err := h.svc.DeleteScenario(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) ScenarioForecast(c *gin.Context) {
	out, err := h.svc.ScenarioForecast(c.Request.Context(), c.Param("id"), h.forecastWeeks(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"forecast": out})
}

func (h *Handlers) GetPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Policy())
}

func (h *Handlers) SetPolicy(c *gin.Context) {
	var p domain.PolicyConfig
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.SetPolicy(c.Request.Context(), p); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handlers) ResetPolicy(c *gin.Context) {
	if err := h.svc.ResetPolicy(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.Policy())
}

func (h *Handlers) ProjectGroups(c *gin.Context) {
	out, err := h.svc.ProjectGroups(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": out})
}

func (h *Handlers) SaveProjectGroup(c *gin.Context) {
	var g planning.ProjectGroup
	if err := c.ShouldBindJSON(&g); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.SaveProjectGroup(c.Request.Context(), g); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

// RefreshNow runs detached from the request so a slow source fetch is not
// cut off by the client disconnecting.
func (h *Handlers) RefreshNow(c *gin.Context) {
	go func() { _ = h.svc.RefreshSnapshot(context.Background()) }()
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *Handlers) DigestNow(c *gin.Context) {
	go func() { _ = h.svc.RunWeeklyDigest(context.Background()) }()
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
