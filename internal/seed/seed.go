package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	authdomain "github.com/smallbiznis/opensmile/internal/auth/domain"
	"github.com/smallbiznis/opensmile/internal/auth/password"
	practicedomain "github.com/smallbiznis/opensmile/internal/practice/domain"
	"gorm.io/gorm"
)

const (
	defaultAdminEmail   = "admin@opensmile.local"
	defaultAdminDisplay = "Admin User (Dev)"
	defaultSalesEmail   = "sales@opensmile.local"
	defaultSalesDisplay = "Sales Person (Dev)"
	demoPracticeName    = "Demo Dental Practice"
	demoCampaignName    = "Demo Facebook Campaign"
)

var ErrMissingPassword = errors.New("seed_password_required")

// Options carries the development credentials. There are no built-in
// defaults: both passwords must come from configuration.
type Options struct {
	AdminPassword string
	SalesPassword string
}

var demoTreatments = []practicedomain.TreatmentType{
	{Name: "Invisalign", Category: "COSMETIC", AveragePrice: 3500, ConsultationDuration: 45},
	{Name: "Veneers", Category: "COSMETIC", AveragePrice: 8000, ConsultationDuration: 60},
	{Name: "Composite Bonding", Category: "COSMETIC", AveragePrice: 1200, ConsultationDuration: 30},
}

// EnsureDevData creates the development admin, salesperson, demo practice,
// treatment catalogue and campaign. Running it twice is a no-op.
func EnsureDevData(db *gorm.DB, opts Options) error {
	if strings.TrimSpace(opts.AdminPassword) == "" || strings.TrimSpace(opts.SalesPassword) == "" {
		return ErrMissingPassword
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := ensureUserTx(ctx, tx, node, defaultAdminEmail, defaultAdminDisplay, authdomain.RoleAdmin, opts.AdminPassword); err != nil {
			return err
		}
		sales, err := ensureUserTx(ctx, tx, node, defaultSalesEmail, defaultSalesDisplay, authdomain.RoleSalesperson, opts.SalesPassword)
		if err != nil {
			return err
		}

		practice, err := ensurePracticeTx(ctx, tx, node, sales.ID)
		if err != nil {
			return err
		}
		if err := ensureTreatmentsTx(ctx, tx, node, practice.ID); err != nil {
			return err
		}
		return ensureCampaignTx(ctx, tx, node, practice.ID)
	})
}

func ensureUserTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, email, name string, role authdomain.Role, plain string) (authdomain.User, error) {
	var user authdomain.User
	err := tx.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return user, err
	}

	hashed, err := password.Hash(plain)
	if err != nil {
		return user, err
	}
	now := time.Now().UTC()
	user = authdomain.User{
		ID:           node.Generate(),
		Email:        email,
		FullName:     name,
		Role:         role,
		PasswordHash: &hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return user, tx.WithContext(ctx).Create(&user).Error
}

func ensurePracticeTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, salesID snowflake.ID) (practicedomain.Practice, error) {
	var practice practicedomain.Practice
	key := slug.Make(demoPracticeName)
	err := tx.WithContext(ctx).Where("slug = ?", key).First(&practice).Error
	if err == nil {
		return practice, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return practice, err
	}

	now := time.Now().UTC()
	practice = practicedomain.Practice{
		ID:                    node.Generate(),
		Name:                  demoPracticeName,
		Slug:                  key,
		Email:                 "practice@demo.com",
		Phone:                 "+442012345678",
		City:                  "London",
		Postcode:              "SW1A 1AA",
		Status:                practicedomain.StatusActive,
		SubscriptionTier:      practicedomain.TierGrowth,
		AssignedSalespersonID: &salesID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	return practice, tx.WithContext(ctx).Create(&practice).Error
}

func ensureTreatmentsTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, practiceID snowflake.ID) error {
	for _, tmpl := range demoTreatments {
		var count int64
		if err := tx.WithContext(ctx).
			Model(&practicedomain.TreatmentType{}).
			Where("practice_id = ? AND name = ?", practiceID, tmpl.Name).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		row := tmpl
		row.ID = node.Generate()
		row.PracticeID = practiceID
		if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureCampaignTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, practiceID snowflake.ID) error {
	var count int64
	if err := tx.WithContext(ctx).
		Model(&practicedomain.Campaign{}).
		Where("practice_id = ? AND name = ?", practiceID, demoCampaignName).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	now := time.Now().UTC()
	return tx.WithContext(ctx).Create(&practicedomain.Campaign{
		ID:         node.Generate(),
		PracticeID: practiceID,
		Name:       demoCampaignName,
		Platform:   "FACEBOOK",
		Budget:     1000,
		CreatedAt:  now,
		UpdatedAt:  now,
	}).Error
}
