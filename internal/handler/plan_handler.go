package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/paperpilot/internal/model"
	"github.com/xxxsen/paperpilot/internal/pkg/errcode"
	"github.com/xxxsen/paperpilot/internal/pkg/response"
	"github.com/xxxsen/paperpilot/internal/service"
)

type PlanHandler struct {
	plans *service.PlanService
}

func NewPlanHandler(plans *service.PlanService) *PlanHandler {
	return &PlanHandler{plans: plans}
}

type createPlanRequest struct {
	Objective   string   `json:"objective" binding:"required"`
	Deadline    int64    `json:"deadline"`
	DocumentIDs []string `json:"document_ids"`
}

type progressRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Action    string `json:"action" binding:"required"`
}

func (h *PlanHandler) Create(c *gin.Context) {
	var req createPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "objective is required")
		return
	}
	goal := model.StudyGoal{
		Objective:   req.Objective,
		Deadline:    req.Deadline,
		DocumentIDs: req.DocumentIDs,
	}
	plan, err := h.plans.Create(c.Request.Context(), getUserID(c), goal)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, plan)
}

func (h *PlanHandler) List(c *gin.Context) {
	plans, err := h.plans.List(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, plans)
}

func (h *PlanHandler) Get(c *gin.Context) {
	plan, err := h.plans.Get(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, plan)
}

func (h *PlanHandler) Delete(c *gin.Context) {
	if err := h.plans.Delete(c.Request.Context(), getUserID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

func (h *PlanHandler) Progress(c *gin.Context) {
	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "session_id and action are required")
		return
	}
	plan, err := h.plans.RecordProgress(c.Request.Context(), getUserID(c), c.Param("id"), req.SessionID, req.Action)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, plan)
}
