// Package assistant serves the sales assist endpoints: a next-best-action
// recommendation per lead and an ad-hoc sentiment score.
package assistant

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opensmile/internal/access"
	authdomain "github.com/smallbiznis/opensmile/internal/auth/domain"
	interactiondomain "github.com/smallbiznis/opensmile/internal/interaction/domain"
	leaddomain "github.com/smallbiznis/opensmile/internal/lead/domain"
	"github.com/smallbiznis/opensmile/internal/tenant"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	recommendationConfidence = 0.85
	recentInteractions       = 5
)

var ErrEmptyText = errors.New("empty_text")

type Recommendation struct {
	Action           interactiondomain.Type `json:"action"`
	Reasoning        string                 `json:"reasoning"`
	SuggestedScript  string                 `json:"suggestedScript"`
	Confidence       float64                `json:"confidence"`
	LeadStatus       leaddomain.Status      `json:"leadStatus"`
	InteractionCount int                    `json:"interactionCount"`
}

type Sentiment struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// SentimentScorer rates free text. The stub stands in for the model provider.
type SentimentScorer interface {
	Score(ctx context.Context, text string) (Sentiment, error)
}

type StubScorer struct{}

func NewStubScorer() SentimentScorer { return StubScorer{} }

func (StubScorer) Score(ctx context.Context, text string) (Sentiment, error) {
	if err := ctx.Err(); err != nil {
		return Sentiment{}, err
	}
	return Sentiment{Score: 0.5, Confidence: 0.9}, nil
}

type playbookEntry struct {
	action    interactiondomain.Type
	reasoning string
	script    string
}

// recommendation returns the playbook entry for a lead status.
func recommendation(status leaddomain.Status) playbookEntry {
	switch status {
	case leaddomain.StatusEnquiry:
		return playbookEntry{
			interactiondomain.TypeCallOutbound,
			"New enquiry - speed to lead is critical",
			"Hi [name], thanks for your interest in [treatment]. I'd love to help you understand your options...",
		}
	case leaddomain.StatusNew:
		return playbookEntry{
			interactiondomain.TypeCallOutbound,
			"Qualified lead, needs first contact",
			"Hi [name], I noticed you're interested in [treatment]. Many of our patients start with a free consultation...",
		}
	case leaddomain.StatusContacted:
		return playbookEntry{
			interactiondomain.TypeEmailSent,
			"Already spoken, send follow-up with details",
			"Great speaking with you! As discussed, here's more information about [treatment] pricing and process...",
		}
	case leaddomain.StatusQualified:
		return playbookEntry{
			interactiondomain.TypeCallOutbound,
			"Qualified and engaged - push for appointment",
			"I have availability this week for your consultation. Shall we get you booked in?",
		}
	case leaddomain.StatusNurturing:
		return playbookEntry{
			interactiondomain.TypeSMSSent,
			"Keep warm with gentle check-in",
			"Hi [name], just checking in! We have a special offer on [treatment] this month. Would you like to chat?",
		}
	case leaddomain.StatusAppointmentBooked, leaddomain.StatusConsultationCompleted,
		leaddomain.StatusTreatmentStarted, leaddomain.StatusLost, leaddomain.StatusUnqualified:
	}
	return playbookEntry{
		interactiondomain.TypeNote,
		"Review lead status and plan next steps",
		"",
	}
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Policy *access.Policy
	Leads  leaddomain.Service
	Scorer SentimentScorer
}

type Service struct {
	log          *zap.Logger
	policy       *access.Policy
	leads        leaddomain.Service
	scorer       SentimentScorer
	interactions *tenant.Store[interactiondomain.Interaction, *interactiondomain.Interaction]
}

func New(p Params) *Service {
	return &Service{
		log:          p.Log.Named("assistant.service"),
		policy:       p.Policy,
		leads:        p.Leads,
		scorer:       p.Scorer,
		interactions: tenant.NewStore[interactiondomain.Interaction](p.DB),
	}
}

func (s *Service) NextBestAction(ctx context.Context, user *authdomain.User, leadID snowflake.ID) (*Recommendation, error) {
	if err := s.policy.Can(user, access.ObjectAI, access.ActionUse); err != nil {
		return nil, err
	}
	lead, scope, err := s.leads.Resolve(ctx, user, leadID)
	if err != nil {
		return nil, err
	}
	recent, err := s.interactions.Find(ctx, scope, tenant.Query{
		Conds: []tenant.Cond{tenant.Where("lead_id = ?", leadID)},
		Order: "created_at DESC",
		Limit: recentInteractions,
	})
	if err != nil {
		return nil, err
	}

	entry := recommendation(lead.Status)
	return &Recommendation{
		Action:           entry.action,
		Reasoning:        entry.reasoning,
		SuggestedScript:  entry.script,
		Confidence:       recommendationConfidence,
		LeadStatus:       lead.Status,
		InteractionCount: len(recent),
	}, nil
}

func (s *Service) Sentiment(ctx context.Context, user *authdomain.User, text string) (*Sentiment, error) {
	if err := s.policy.Can(user, access.ObjectAI, access.ActionUse); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	out, err := s.scorer.Score(ctx, text)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
