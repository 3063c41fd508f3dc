package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	interactiondomain "github.com/smallbiznis/opensmile/internal/interaction/domain"
)

type createInteractionRequest struct {
	LeadID           string `json:"leadId"`
	Type             string `json:"type"`
	Subject          string `json:"subject"`
	Body             string `json:"body"`
	CallDuration     *int   `json:"callDuration"`
	CallRecordingURL string `json:"callRecordingUrl"`
}

func (s *Server) CreateInteraction(c *gin.Context) {
	var req createInteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	leadID, err := parseOptionalSnowflakeID(req.LeadID)
	if err != nil || leadID == nil {
		AbortWithError(c, newValidationError("leadId", "invalid_lead", "leadId is required"))
		return
	}

	user, _ := currentUser(c)
	item, err := s.interactionSvc.Create(c.Request.Context(), user, interactiondomain.CreateRequest{
		LeadID:           *leadID,
		Type:             strings.TrimSpace(req.Type),
		Subject:          strings.TrimSpace(req.Subject),
		Body:             req.Body,
		CallDuration:     req.CallDuration,
		CallRecordingURL: strings.TrimSpace(req.CallRecordingURL),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) GenerateSummary(c *gin.Context) {
	leadID, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	user, _ := currentUser(c)
	result, err := s.interactionSvc.GenerateSummary(c.Request.Context(), user, leadID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
