package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/opensmile/internal/access"
	analyticsdomain "github.com/smallbiznis/opensmile/internal/analytics/domain"
	appointmentdomain "github.com/smallbiznis/opensmile/internal/appointment/domain"
	"github.com/smallbiznis/opensmile/internal/assistant"
	authdomain "github.com/smallbiznis/opensmile/internal/auth/domain"
	"github.com/smallbiznis/opensmile/internal/auth/session"
	"github.com/smallbiznis/opensmile/internal/config"
	interactiondomain "github.com/smallbiznis/opensmile/internal/interaction/domain"
	leaddomain "github.com/smallbiznis/opensmile/internal/lead/domain"
	"github.com/smallbiznis/opensmile/internal/observability"
	obsmiddleware "github.com/smallbiznis/opensmile/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/opensmile/internal/observability/metrics"
	obstracing "github.com/smallbiznis/opensmile/internal/observability/tracing"
	practicedomain "github.com/smallbiznis/opensmile/internal/practice/domain"
	"github.com/smallbiznis/opensmile/internal/ratelimit"
	webhookdomain "github.com/smallbiznis/opensmile/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	authsvc        authdomain.Service
	sessions       *session.Cookies
	policy         *access.Policy
	limiter        *ratelimit.Limiter
	leadSvc        leaddomain.Service
	interactionSvc interactiondomain.Service
	appointmentSvc appointmentdomain.Service
	practiceSvc    practicedomain.Service
	analyticsSvc   analyticsdomain.Service
	assistantSvc   *assistant.Service
	webhookSvc     webhookdomain.Service
	log            *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Authsvc        authdomain.Service
	Sessions       *session.Cookies
	Policy         *access.Policy
	Limiter        *ratelimit.Limiter
	LeadSvc        leaddomain.Service
	InteractionSvc interactiondomain.Service
	AppointmentSvc appointmentdomain.Service
	PracticeSvc    practicedomain.Service
	AnalyticsSvc   analyticsdomain.Service
	AssistantSvc   *assistant.Service
	WebhookSvc     webhookdomain.Service
	Log            *zap.Logger
}

func NewServer(p ServerParams) *Server {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		authsvc:        p.Authsvc,
		sessions:       p.Sessions,
		policy:         p.Policy,
		limiter:        p.Limiter,
		leadSvc:        p.LeadSvc,
		interactionSvc: p.InteractionSvc,
		appointmentSvc: p.AppointmentSvc,
		practiceSvc:    p.PracticeSvc,
		analyticsSvc:   p.AnalyticsSvc,
		assistantSvc:   p.AssistantSvc,
		webhookSvc:     p.WebhookSvc,
		log:            log.Named("http"),
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth", CSRFGuard())

	auth.POST("/register", s.RateLimit(config.RateLimitSignUp, clientIPKey), s.Register)
	auth.POST("/login", s.RateLimit(config.RateLimitLogin, clientIPKey), s.Login)
	auth.POST("/logout", s.Logout)

	authed := auth.Group("", s.AuthRequired())
	{
		authed.GET("/me", s.Me)
		authed.POST("/change-password", s.ChangePassword)
		authed.GET("/must-change-password", s.MustChangePassword)
		authed.POST("/must-change-password/clear", s.ClearMustChangePassword)
	}
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", CSRFGuard(), s.AuthRequired())

	// -------- Leads --------
	api.GET("/leads", s.RateLimit(config.RateLimitLeadSearch, userKey), s.ListLeads)
	api.POST("/leads", s.CreateLead)
	api.GET("/leads/:id", s.GetLead)
	api.PATCH("/leads/:id", s.UpdateLead)
	api.POST("/leads/:id/status", s.ChangeLeadStatus)
	api.GET("/leads/:id/interactions", s.ListLeadInteractions)

	// -------- Interactions --------
	api.POST("/interactions", s.CreateInteraction)
	// :id is the lead whose summary is regenerated
	api.POST("/interactions/:id/summary", s.GenerateSummary)

	// -------- Appointments --------
	api.GET("/appointments", s.ListAppointments)
	api.POST("/appointments", s.CreateAppointment)
	api.POST("/appointments/:id/outcome", s.RecordAppointmentOutcome)

	// -------- Practices --------
	api.GET("/practices", s.ListPractices)
	api.GET("/practices/:id/treatment-types", s.ListTreatmentTypes)

	// -------- Analytics --------
	api.GET("/analytics/metrics", s.GetMetrics)
	api.GET("/analytics/funnel", s.GetFunnel)
	api.GET("/analytics/dashboard", s.GetDashboard)

	// -------- AI assist --------
	ai := api.Group("/ai", s.RateLimit(config.RateLimitAIContext, userKey))
	{
		ai.GET("/leads/:id/next-best-action", s.NextBestAction)
		ai.POST("/sentiment", s.Sentiment)
	}
}

// Webhooks are authenticated by signature, not session, and sit outside the
// CSRF guard.
func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/api/webhooks/meta-leads", s.HandleMetaLeadWebhook)
}
