package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	appointmentdomain "github.com/smallbiznis/opensmile/internal/appointment/domain"
)

type createAppointmentRequest struct {
	LeadID          string    `json:"leadId"`
	TreatmentTypeID string    `json:"treatmentTypeId"`
	ScheduledAt     time.Time `json:"scheduledAt"`
	Type            string    `json:"type"`
	DurationMinutes int       `json:"durationMinutes"`
	DepositAmount   *float64  `json:"depositAmount"`
	Notes           string    `json:"notes"`
}

type appointmentOutcomeRequest struct {
	ShowedUp           bool     `json:"showedUp"`
	NoShowReason       string   `json:"noShowReason"`
	Notes              string   `json:"notes"`
	Converted          bool     `json:"converted"`
	EstimatedValue     *float64 `json:"estimatedValue"`
	ConfirmationSource string   `json:"confirmationSource"`
}

func (s *Server) ListAppointments(c *gin.Context) {
	practiceID, err := parsePracticeQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	from, to, err := parseRange(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	user, _ := currentUser(c)
	items, err := s.appointmentSvc.List(c.Request.Context(), user, appointmentdomain.ListRequest{
		PracticeID: practiceID,
		Status:     strings.TrimSpace(c.Query("status")),
		From:       from,
		To:         to,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateAppointment(c *gin.Context) {
	var req createAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	leadID, err := parseOptionalSnowflakeID(req.LeadID)
	if err != nil || leadID == nil {
		AbortWithError(c, newValidationError("leadId", "invalid_lead", "leadId is required"))
		return
	}
	treatmentID, err := parseOptionalSnowflakeID(req.TreatmentTypeID)
	if err != nil || treatmentID == nil {
		AbortWithError(c, newValidationError("treatmentTypeId", "invalid_treatment_type", "treatmentTypeId is required"))
		return
	}

	user, _ := currentUser(c)
	appt, err := s.appointmentSvc.Create(c.Request.Context(), user, appointmentdomain.CreateRequest{
		LeadID:          *leadID,
		TreatmentTypeID: *treatmentID,
		ScheduledAt:     req.ScheduledAt,
		Kind:            strings.TrimSpace(req.Type),
		DurationMinutes: req.DurationMinutes,
		DepositAmount:   req.DepositAmount,
		Notes:           strings.TrimSpace(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": appt})
}

func (s *Server) RecordAppointmentOutcome(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req appointmentOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, _ := currentUser(c)
	appt, err := s.appointmentSvc.RecordOutcome(c.Request.Context(), user, id, appointmentdomain.OutcomeRequest{
		ShowedUp:           req.ShowedUp,
		NoShowReason:       strings.TrimSpace(req.NoShowReason),
		Notes:              strings.TrimSpace(req.Notes),
		Converted:          req.Converted,
		EstimatedValue:     req.EstimatedValue,
		ConfirmationSource: strings.TrimSpace(req.ConfirmationSource),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": appt})
}
