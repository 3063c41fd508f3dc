package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	leaddomain "github.com/smallbiznis/opensmile/internal/lead/domain"
	"github.com/smallbiznis/opensmile/pkg/db/pagination"
)

type createLeadRequest struct {
	PracticeID           string   `json:"practiceId"`
	Name                 string   `json:"name"`
	Email                string   `json:"email"`
	Phone                string   `json:"phone"`
	Source               string   `json:"source"`
	Urgency              string   `json:"urgency"`
	InterestedTreatments []string `json:"interestedTreatments"`
	Notes                string   `json:"notes"`
}

type changeLeadStatusRequest struct {
	Status     string `json:"status"`
	Notes      string `json:"notes"`
	LostReason string `json:"lostReason"`
}

type updateLeadRequest struct {
	Name                 *string  `json:"name"`
	Email                *string  `json:"email"`
	Phone                *string  `json:"phone"`
	Urgency              *string  `json:"urgency"`
	EstimatedBudget      *float64 `json:"estimatedBudget"`
	InterestedTreatments []string `json:"interestedTreatments"`
	PainPoints           []string `json:"painPoints"`
	Motivations          []string `json:"motivations"`
	Objections           []string `json:"objections"`
	RecordingConsent     *bool    `json:"recordingConsent"`
	ConsentMethod        string   `json:"consentMethod"`
}

func (s *Server) ListLeads(c *gin.Context) {
	var query struct {
		pagination.Page
		Status string `form:"status"`
		Search string `form:"search"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	practiceID, err := parsePracticeQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	user, _ := currentUser(c)
	resp, err := s.leadSvc.List(c.Request.Context(), user, leaddomain.ListLeadRequest{
		PracticeID: practiceID,
		Status:     strings.TrimSpace(query.Status),
		Search:     strings.TrimSpace(query.Search),
		Page:       query.Page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetLead(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	user, _ := currentUser(c)
	lead, err := s.leadSvc.Get(c.Request.Context(), user, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": lead})
}

func (s *Server) CreateLead(c *gin.Context) {
	var req createLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	practiceID, err := parseOptionalSnowflakeID(req.PracticeID)
	if err != nil || practiceID == nil {
		AbortWithError(c, newValidationError("practiceId", "invalid_practice", "practiceId is required"))
		return
	}

	user, _ := currentUser(c)
	lead, err := s.leadSvc.Create(c.Request.Context(), user, leaddomain.CreateLeadRequest{
		PracticeID:           *practiceID,
		Name:                 strings.TrimSpace(req.Name),
		Email:                req.Email,
		Phone:                req.Phone,
		Source:               strings.TrimSpace(req.Source),
		Urgency:              strings.TrimSpace(req.Urgency),
		InterestedTreatments: req.InterestedTreatments,
		Notes:                strings.TrimSpace(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": lead})
}

func (s *Server) ChangeLeadStatus(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req changeLeadStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, _ := currentUser(c)
	lead, err := s.leadSvc.ChangeStatus(c.Request.Context(), user, id, leaddomain.ChangeStatusRequest{
		Status:     strings.TrimSpace(req.Status),
		Notes:      strings.TrimSpace(req.Notes),
		LostReason: strings.TrimSpace(req.LostReason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": lead})
}

func (s *Server) UpdateLead(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, _ := currentUser(c)
	lead, err := s.leadSvc.Update(c.Request.Context(), user, id, leaddomain.UpdateLeadRequest{
		Name:                 req.Name,
		Email:                req.Email,
		Phone:                req.Phone,
		Urgency:              req.Urgency,
		EstimatedBudget:      req.EstimatedBudget,
		InterestedTreatments: req.InterestedTreatments,
		PainPoints:           req.PainPoints,
		Motivations:          req.Motivations,
		Objections:           req.Objections,
		RecordingConsent:     req.RecordingConsent,
		ConsentMethod:        strings.TrimSpace(req.ConsentMethod),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": lead})
}

func (s *Server) ListLeadInteractions(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
			return
		}
	}

	user, _ := currentUser(c)
	items, err := s.interactionSvc.ListByLead(c.Request.Context(), user, id, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}
