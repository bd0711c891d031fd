package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/windimenu/windi/internal/affiliate/domain"
	businessdomain "github.com/windimenu/windi/internal/business/domain"
	"github.com/windimenu/windi/pkg/db"
	"go.uber.org/zap"
)

const (
	refCodePrefixLen  = 6
	refCodeMaxRetries = 12
	defaultRefPrefix  = "AFI"
)

var maxCommissionRate = decimal.NewFromInt(1)

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.Affiliate, error) {
	rate := req.CommissionRate
	if rate.IsZero() {
		rate = domain.DefaultCommissionRate
	}
	if rate.IsNegative() || rate.GreaterThan(maxCommissionRate) {
		return nil, domain.ErrInvalidCommissionRate
	}

	prefix := refCodePrefix(req.Seed)
	for attempt := 0; attempt < refCodeMaxRetries; attempt++ {
		code, err := newRefCode(prefix)
		if err != nil {
			return nil, err
		}
		existing, err := s.repo.FindByRefCode(ctx, nil, code)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}

		now := s.clock.Now()
		affiliate := &domain.Affiliate{
			ID:                    s.genID.Generate(),
			UserID:                req.UserID,
			RefCode:               code,
			CommissionRate:        rate,
			IsActive:              true,
			TotalCommissionEarned: decimal.Zero,
			TotalCommissionPaid:   decimal.Zero,
			NegativeBalance:       decimal.Zero,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if err := s.repo.Insert(ctx, nil, affiliate); err != nil {
			if db.IsUniqueViolation(err) {
				continue
			}
			return nil, fmt.Errorf("insert affiliate: %w", err)
		}

		s.log.Info("affiliate registered",
			zap.String("affiliate_id", affiliate.ID.String()),
			zap.String("ref_code", code))
		s.outbox.MarkDirty(ctx, "affiliate.register")
		return affiliate, nil
	}
	return nil, domain.ErrRefCodeExhausted
}

func (s *Service) FindByRefCode(ctx context.Context, code string) (*domain.Affiliate, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, domain.ErrInvalidRefCode
	}
	affiliate, err := s.repo.FindByRefCode(ctx, nil, code)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, domain.ErrAffiliateNotFound
	}
	return affiliate, nil
}

// AttachReferral credits a business to the affiliate owning refCode. A
// business keeps its first referrer.
func (s *Service) AttachReferral(ctx context.Context, businessID snowflake.ID, refCode string) error {
	affiliate, err := s.FindByRefCode(ctx, refCode)
	if err != nil {
		return err
	}
	if !affiliate.IsActive {
		return domain.ErrAffiliateInactive
	}

	business, err := s.businessRepo.FindByID(ctx, nil, businessID)
	if err != nil {
		return err
	}
	if business == nil {
		return businessdomain.ErrBusinessNotFound
	}

	attached, err := s.businessRepo.AttachAffiliate(ctx, nil, businessID, affiliate.ID, s.clock.Now())
	if err != nil {
		return err
	}
	if attached {
		s.outbox.MarkDirty(ctx, "affiliate.referral")
	}
	return nil
}

// refCodePrefix derives the readable part of a ref code from free text.
func refCodePrefix(seed string) string {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, strings.ToUpper(slug.Make(seed)))
	if len(cleaned) > refCodePrefixLen {
		cleaned = cleaned[:refCodePrefixLen]
	}
	if cleaned == "" {
		return defaultRefPrefix
	}
	return cleaned
}

func newRefCode(prefix string) (string, error) {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return prefix + strings.ToUpper(hex.EncodeToString(buf)), nil
}
