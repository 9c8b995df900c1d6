package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"food_ordering/models"
	"food_ordering/outbox"
)

type RewardTier struct {
	Threshold int64 `json:"threshold"`
	Percent   int   `json:"percent"`
}

// RewardTiers is ordered by ascending threshold.
var RewardTiers = []RewardTier{
	{Threshold: 500_000, Percent: 5},
	{Threshold: 1_000_000, Percent: 10},
	{Threshold: 2_000_000, Percent: 12},
	{Threshold: 3_000_000, Percent: 15},
	{Threshold: 4_000_000, Percent: 18},
	{Threshold: 5_000_000, Percent: 20},
}

const (
	rewardWindowDays   = 7
	voucherValidityDay = 30
)

const (
	ProgressLow      = "low"
	ProgressMedium   = "medium"
	ProgressHigh     = "high"
	ProgressAlmost   = "almost"
	ProgressComplete = "complete"
)

type RewardResult struct {
	TrailingSpend   decimal.Decimal   `json:"trailing_spend"`
	Minted          *models.Promotion `json:"minted,omitempty"`
	CurrentTier     *RewardTier       `json:"current_tier,omitempty"`
	NextTier        *RewardTier       `json:"next_tier,omitempty"`
	AmountToNext    decimal.Decimal   `json:"amount_to_next"`
	ProgressPercent int               `json:"progress_percent"`
	ProgressClass   string            `json:"progress_class"`
}

type RewardService struct {
	db  *gorm.DB
	log *slog.Logger
	now func() time.Time
}

func NewRewardService(db *gorm.DB, log *slog.Logger) *RewardService {
	return &RewardService{db: db, log: log, now: utcNow}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// trailingSpend sums the user's delivered orders dated from seven days
// before today through the end of today.
func (s *RewardService) trailingSpend(tx *gorm.DB, userID int64, now time.Time) (decimal.Decimal, error) {
	today := startOfDay(now)
	from := today.AddDate(0, 0, -rewardWindowDays)
	until := today.AddDate(0, 0, 1)

	var orders []models.Order
	err := tx.Select("id", "total_amount").
		Where("user_id = ? AND status = ?", userID, models.StatusDelivered).
		Where("order_date >= ? AND order_date < ?", from.UTC(), until.UTC()).
		Find(&orders).Error
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.TotalAmount)
	}
	return total, nil
}

// progress describes where spend stands relative to the tiers.
func progress(spend decimal.Decimal) RewardResult {
	res := RewardResult{TrailingSpend: spend, AmountToNext: decimal.Zero}
	for i := range RewardTiers {
		tier := RewardTiers[i]
		if spend.GreaterThanOrEqual(decimal.NewFromInt(tier.Threshold)) {
			res.CurrentTier = &tier
			continue
		}
		res.NextTier = &tier
		break
	}
	if res.NextTier == nil {
		res.ProgressPercent = 100
		res.ProgressClass = ProgressComplete
		return res
	}

	next := decimal.NewFromInt(res.NextTier.Threshold)
	res.AmountToNext = next.Sub(spend)
	pct := spend.Mul(hundred).Div(next).IntPart()
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	res.ProgressPercent = int(pct)
	switch {
	case pct < 25:
		res.ProgressClass = ProgressLow
	case pct < 50:
		res.ProgressClass = ProgressMedium
	case pct < 75:
		res.ProgressClass = ProgressHigh
	default:
		res.ProgressClass = ProgressAlmost
	}
	return res
}

// Progress reports the user's standing without minting anything.
func (s *RewardService) Progress(ctx context.Context, userID int64) (*RewardResult, error) {
	spend, err := s.trailingSpend(s.db.WithContext(ctx), userID, s.now())
	if err != nil {
		return nil, err
	}
	res := progress(spend)
	return &res, nil
}

// Evaluate mints a voucher for the highest reached tier the user has not
// been rewarded for yet. Each tier is rewarded at most once per user.
func (s *RewardService) Evaluate(ctx context.Context, userID int64) (*RewardResult, error) {
	now := s.now()
	db := s.db.WithContext(ctx)
	spend, err := s.trailingSpend(db, userID, now)
	if err != nil {
		return nil, err
	}
	res := progress(spend)

	var claimed []int64
	if err := db.Model(&models.UserRewardProgress{}).
		Where("user_id = ? AND voucher_claimed = ?", userID, true).
		Pluck("threshold", &claimed).Error; err != nil {
		return nil, err
	}
	done := make(map[int64]bool, len(claimed))
	for _, t := range claimed {
		done[t] = true
	}

	var tier *RewardTier
	for i := len(RewardTiers) - 1; i >= 0; i-- {
		t := RewardTiers[i]
		if spend.GreaterThanOrEqual(decimal.NewFromInt(t.Threshold)) && !done[t.Threshold] {
			tier = &t
			break
		}
	}
	if tier == nil {
		return &res, nil
	}

	promo, err := s.mint(ctx, userID, *tier, spend, now)
	if err != nil {
		return nil, err
	}
	res.Minted = promo
	return &res, nil
}

func voucherCode(percent int) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "RW" + strconv.Itoa(percent) + "-" + suffix
}

// mint creates the voucher and the claimed progress row together. A
// concurrent mint for the same tier loses on the unique index and returns
// nil.
func (s *RewardService) mint(ctx context.Context, userID int64, tier RewardTier, spend decimal.Decimal, now time.Time) (*models.Promotion, error) {
	code := voucherCode(tier.Percent)
	one := 1
	threshold := tier.Threshold
	owner := userID
	promo := &models.Promotion{
		Name:                  fmt.Sprintf("%d%% reward voucher", tier.Percent),
		CouponCode:            &code,
		DiscountType:          models.Percentage,
		DiscountValue:         decimal.NewFromInt(int64(tier.Percent)),
		StartDate:             now,
		EndDate:               now.AddDate(0, 0, voucherValidityDay),
		MaxUses:               &one,
		MaxUsesPerUser:        &one,
		IsActive:              true,
		OwnerUserID:           &owner,
		GeneratedForThreshold: &threshold,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.UserRewardProgress{}).
			Where("user_id = ? AND threshold = ? AND voucher_claimed = ?", userID, tier.Threshold, true).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return gorm.ErrDuplicatedKey
		}
		if err := tx.Create(promo).Error; err != nil {
			return err
		}
		claimedAt := now
		row := &models.UserRewardProgress{
			UserID:          userID,
			Threshold:       tier.Threshold,
			QualifyingSpend: spend,
			VoucherClaimed:  true,
			PromotionID:     &promo.ID,
			ClaimedAt:       &claimedAt,
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		return outbox.Enqueue(ctx, tx, "user", strconv.FormatInt(userID, 10), "reward.voucher_minted", map[string]any{
			"user_id":      userID,
			"threshold":    tier.Threshold,
			"percent":      tier.Percent,
			"promotion_id": promo.ID,
			"coupon_code":  code,
		})
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		s.log.Info("reward tier already claimed", "user_id", userID, "threshold", tier.Threshold)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mint reward voucher: %w", err)
	}
	s.log.Info("reward voucher minted", "user_id", userID, "threshold", tier.Threshold, "code", code)
	return promo, nil
}
