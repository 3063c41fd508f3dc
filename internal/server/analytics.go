package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	analyticsdomain "github.com/smallbiznis/opensmile/internal/analytics/domain"
)

func rangeRequest(c *gin.Context) (analyticsdomain.RangeRequest, error) {
	practiceID, err := parsePracticeQuery(c)
	if err != nil {
		return analyticsdomain.RangeRequest{}, err
	}
	from, to, err := parseRange(c)
	if err != nil {
		return analyticsdomain.RangeRequest{}, err
	}
	return analyticsdomain.RangeRequest{PracticeID: practiceID, From: from, To: to}, nil
}

func (s *Server) GetMetrics(c *gin.Context) {
	req, err := rangeRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	user, _ := currentUser(c)
	metrics, err := s.analyticsSvc.Metrics(c.Request.Context(), user, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": metrics})
}

func (s *Server) GetFunnel(c *gin.Context) {
	req, err := rangeRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	user, _ := currentUser(c)
	stages, err := s.analyticsSvc.Funnel(c.Request.Context(), user, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stages})
}

func (s *Server) GetDashboard(c *gin.Context) {
	user, _ := currentUser(c)
	summary, err := s.analyticsSvc.Dashboard(c.Request.Context(), user)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}
