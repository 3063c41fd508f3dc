package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/opensmile/internal/observability/context"
	webhookdomain "github.com/smallbiznis/opensmile/internal/webhook/domain"
)

const signatureHeader = "X-Hub-Signature-256"

// HandleMetaLeadWebhook accepts a Lead Ads delivery. Success and duplicate
// deliveries both answer 200 so Meta stops retrying.
func (s *Server) HandleMetaLeadWebhook(c *gin.Context) {
	ip := forwardedIP(c)
	ctx := obscontext.WithActor(c.Request.Context(), obscontext.ActorWebhook, webhookdomain.ProviderMeta)

	body := http.MaxBytesReader(c.Writer, c.Request.Body, webhookdomain.MaxBodyBytes)
	result, err := s.webhookSvc.Ingest(ctx, webhookdomain.Delivery{
		Body:          body,
		ContentLength: c.Request.ContentLength,
		Signature:     c.GetHeader(signatureHeader),
		SourceIP:      ip,
	})
	if err != nil {
		AbortWithError(c, &webhookError{err: err})
		return
	}

	c.JSON(http.StatusOK, result)
}
