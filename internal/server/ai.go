package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type sentimentRequest struct {
	Text string `json:"text"`
}

func (s *Server) NextBestAction(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	user, _ := currentUser(c)
	rec, err := s.assistantSvc.NextBestAction(c.Request.Context(), user, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rec})
}

func (s *Server) Sentiment(c *gin.Context) {
	var req sentimentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, _ := currentUser(c)
	result, err := s.assistantSvc.Sentiment(c.Request.Context(), user, req.Text)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
