package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/opensmile/internal/access"
)

func (s *Server) ListPractices(c *gin.Context) {
	user, _ := currentUser(c)
	if err := s.policy.Can(user, access.ObjectPractice, access.ActionList); err != nil {
		AbortWithError(c, err)
		return
	}
	filter, err := s.policy.ResolveVisibility(c.Request.Context(), user, nil)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	practices, err := s.practiceSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": practices})
}

func (s *Server) ListTreatmentTypes(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	user, _ := currentUser(c)
	scope, err := s.policy.PracticeScope(c.Request.Context(), user, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.practiceSvc.ListTreatmentTypes(c.Request.Context(), scope)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}
