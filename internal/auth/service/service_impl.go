package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opensmile/internal/audit/redact"
	"github.com/smallbiznis/opensmile/internal/auth/domain"
	"github.com/smallbiznis/opensmile/internal/auth/password"
	"github.com/smallbiznis/opensmile/internal/clock"
	"github.com/smallbiznis/opensmile/internal/contact"
	practicedomain "github.com/smallbiznis/opensmile/internal/practice/domain"
	"github.com/smallbiznis/opensmile/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sessionTokenBytes = 32
	sessionTTL        = 7 * 24 * time.Hour
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Audit       *redact.Logger
	Repo        domain.Repository
	SessionRepo domain.SessionRepository
	Practices   practicedomain.Service
	GenID       *snowflake.Node
	Clock       clock.Clock
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	audit       *redact.Logger
	repo        domain.Repository
	sessionRepo domain.SessionRepository
	practices   practicedomain.Service
	genID       *snowflake.Node
	clock       clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("auth.service"),
		audit:       p.Audit,
		repo:        p.Repo,
		sessionRepo: p.SessionRepo,
		practices:   p.Practices,
		genID:       p.GenID,
		clock:       p.Clock,
	}
}

// Register is the public sign-up. Only practice roles may self-register; a
// practice name creates the practice and links the new user to it.
func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.RegisterResult, error) {
	role, err := domain.ParseRole(strings.TrimSpace(req.Role))
	if err != nil {
		return nil, err
	}
	switch role {
	case domain.RoleAdmin, domain.RoleSalesperson:
		return nil, domain.ErrSelfRegistrationForbidden
	case domain.RolePracticeOwner, domain.RolePracticeStaff:
	}

	user, err := s.newUser(ctx, domain.CreateUserRequest{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     role,
	})
	if err != nil {
		return nil, err
	}

	practiceName := strings.TrimSpace(req.PracticeName)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, user); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrUserExists
			}
			return err
		}
		if practiceName == "" {
			return nil
		}

		// Self-service practices have no salesperson; the owner stands in.
		ownerID := user.ID
		practice, err := s.practices.Create(ctx, tx, practicedomain.CreatePracticeRequest{
			Name:                  practiceName,
			Email:                 user.Email,
			AssignedSalespersonID: &ownerID,
		})
		if err != nil {
			return err
		}
		user.PracticeID = &practice.ID
		return repo.UpdateFields(ctx, user.ID, map[string]any{"practice_id": practice.ID})
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, "auth:registered", map[string]any{
		"userId":     user.ID.String(),
		"role":       string(user.Role),
		"practiceId": practiceIDString(user.PracticeID),
	})

	return &domain.RegisterResult{UserID: user.ID, PracticeID: user.PracticeID}, nil
}

func (s *Service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	if _, err := domain.ParseRole(string(req.Role)); err != nil {
		return nil, err
	}
	user, err := s.newUser(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrUserExists
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) newUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	email, err := contact.NormalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" || len(fullName) > 200 {
		return nil, domain.ErrInvalidFullName
	}
	if !password.Acceptable(req.Password) {
		return nil, domain.ErrWeakPassword
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	return &domain.User{
		ID:                  s.genID.Generate(),
		Email:               email,
		FullName:            fullName,
		Role:                req.Role,
		PracticeID:          req.PracticeID,
		PasswordHash:        &hashed,
		MustChangePassword:  req.MustChangePassword,
		LastPasswordChanged: &now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email, err := contact.NormalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if strings.TrimSpace(req.Password) == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			password.VerifyNone(req.Password)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if user.PasswordHash == nil || !password.Verify(req.Password, *user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	rawToken, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session := &domain.Session{
		ID:               s.genID.Generate(),
		UserID:           user.ID,
		SessionTokenHash: hashToken(rawToken),
		UserAgent:        strings.TrimSpace(req.UserAgent),
		IPAddress:        strings.TrimSpace(req.IPAddress),
		ExpiresAt:        now.Add(sessionTTL),
		CreatedAt:        now,
		LastSeenAt:       now,
	}
	if err := s.sessionRepo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, "auth:login", map[string]any{
		"userId": user.ID.String(),
		"role":   string(user.Role),
	})

	return &domain.LoginResult{
		User:      user,
		RawToken:  rawToken,
		ExpiresAt: session.ExpiresAt,
		SessionID: session.ID,
	}, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return domain.ErrInvalidSession
	}

	session, err := s.sessionRepo.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.ErrInvalidSession
		}
		return err
	}

	return s.sessionRepo.RevokeSession(ctx, session.ID, s.clock.Now())
}

// Authenticate resolves a session cookie to its user. A live session whose
// user row no longer exists is treated as no session at all.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.Principal, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, domain.ErrInvalidSession
	}

	session, err := s.sessionRepo.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrInvalidSession
		}
		return nil, err
	}

	now := s.clock.Now()
	if session.RevokedAt != nil {
		return nil, domain.ErrSessionRevoked
	}
	if now.After(session.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}

	user, err := s.repo.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidSession
		}
		return nil, err
	}

	if err := s.sessionRepo.UpdateLastSeen(ctx, session.ID, now); err != nil {
		return nil, err
	}

	return &domain.Principal{Session: session, User: user}, nil
}

func (s *Service) ChangePassword(ctx context.Context, userID snowflake.ID, newPassword string) error {
	if !password.Acceptable(newPassword) {
		return domain.ErrWeakPassword
	}

	if _, err := s.repo.FindByID(ctx, userID); err != nil {
		return err
	}

	hashed, err := password.Hash(newPassword)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	fields := map[string]any{
		"password_hash":         hashed,
		"last_password_changed": &now,
		"must_change_password":  false,
		"updated_at":            now,
	}
	if err := s.repo.UpdateFields(ctx, userID, fields); err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	s.audit.Log(ctx, "auth:password_changed", map[string]any{"userId": userID.String()})
	return nil
}

func (s *Service) CheckMustChangePassword(ctx context.Context) (bool, error) {
	user, err := s.CurrentUser(ctx)
	if err != nil {
		return false, err
	}
	return user.MustChangePassword, nil
}

func (s *Service) ClearMustChangePassword(ctx context.Context) error {
	user, err := s.CurrentUser(ctx)
	if err != nil {
		return err
	}
	return s.repo.UpdateFields(ctx, user.ID, map[string]any{
		"must_change_password": false,
		"updated_at":           s.clock.Now(),
	})
}

func (s *Service) CurrentUser(ctx context.Context) (*domain.User, error) {
	user, ok := domain.UserFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidSession
	}
	return user, nil
}

func practiceIDString(id *snowflake.ID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
