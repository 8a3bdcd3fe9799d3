package app

import (
	"context"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v76"
	stripedb "github.com/tbeaudouin05/fanvault/api/services/stripe/db"
)

type planInterval struct {
	unit  stripe.PriceRecurringInterval
	count int64
}

// planIntervals is the set of plan keys a creator may offer.
var planIntervals = map[string]planInterval{
	"daily":      {stripe.PriceRecurringIntervalDay, 1},
	"weekly":     {stripe.PriceRecurringIntervalWeek, 1},
	"monthly":    {stripe.PriceRecurringIntervalMonth, 1},
	"quarterly":  {stripe.PriceRecurringIntervalMonth, 3},
	"semiannual": {stripe.PriceRecurringIntervalMonth, 6},
	"annual":     {stripe.PriceRecurringIntervalYear, 1},
}

// UpsertPlan defines the creator's plan for a key. Provider prices are
// immutable, so a changed amount or currency creates a new price; an unchanged
// plan is returned as is.
func (s serviceImpl) UpsertPlan(ctx context.Context, in PlanInput) (stripedb.Plan, error) {
	if in.CreatorID == "" {
		return stripedb.Plan{}, ErrUnauthenticated
	}
	interval, ok := planIntervals[in.Key]
	if !ok {
		return stripedb.Plan{}, fmt.Errorf("%w: unknown plan key %q", ErrValidation, in.Key)
	}
	if in.Amount < MinPlanAmount {
		return stripedb.Plan{}, fmt.Errorf("%w: plan amount must be at least %d", ErrValidation, MinPlanAmount)
	}
	if in.IntroDiscountPercent < 0 || in.IntroDiscountPercent > 99 {
		return stripedb.Plan{}, fmt.Errorf("%w: intro discount must be between 0 and 99", ErrValidation)
	}
	currency := strings.ToLower(in.Currency)
	if currency == "" {
		currency = s.settings.Currency
	}

	existing, found, err := s.store.GetPlan(ctx, in.CreatorID, in.Key)
	if err != nil {
		return stripedb.Plan{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if found && existing.Amount == in.Amount && existing.Currency == currency &&
		existing.IntroDiscountPercent == in.IntroDiscountPercent {
		return existing, nil
	}

	price, err := s.gw.CreatePrice(ctx, &stripe.PriceParams{
		Currency:   stripe.String(currency),
		UnitAmount: stripe.Int64(in.Amount),
		Recurring: &stripe.PriceRecurringParams{
			Interval:      stripe.String(string(interval.unit)),
			IntervalCount: stripe.Int64(interval.count),
		},
		ProductData: &stripe.PriceProductDataParams{
			Name:     stripe.String(fmt.Sprintf("%s subscription", in.Key)),
			Metadata: map[string]string{metaCreatorID: in.CreatorID, metaPlanKey: in.Key},
		},
		Metadata: map[string]string{metaCreatorID: in.CreatorID, metaPlanKey: in.Key},
	})
	if err != nil {
		return stripedb.Plan{}, fmt.Errorf("%w: error creating price: %v", ErrGateway, err)
	}

	plan := stripedb.Plan{
		CreatorID:            in.CreatorID,
		Key:                  in.Key,
		IntervalUnit:         string(interval.unit),
		IntervalCount:        interval.count,
		Amount:               in.Amount,
		Currency:             currency,
		StripePriceID:        price.ID,
		IntroDiscountPercent: in.IntroDiscountPercent,
	}
	if in.IntroDiscountPercent > 0 {
		coupon, err := s.gw.CreateCoupon(ctx, &stripe.CouponParams{
			PercentOff: stripe.Float64(float64(in.IntroDiscountPercent)),
			Duration:   stripe.String(string(stripe.CouponDurationOnce)),
			Name:       stripe.String(fmt.Sprintf("%d%% off first %s payment", in.IntroDiscountPercent, in.Key)),
			Metadata:   map[string]string{metaCreatorID: in.CreatorID, metaPlanKey: in.Key},
		})
		if err != nil {
			return stripedb.Plan{}, fmt.Errorf("%w: error creating coupon: %v", ErrGateway, err)
		}
		plan.StripeCouponID = &coupon.ID
	}

	if err := s.store.UpsertPlan(ctx, plan); err != nil {
		return stripedb.Plan{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	s.log.Info("creator plan saved", "creator_id", plan.CreatorID, "plan_key", plan.Key,
		"stripe_price_id", plan.StripePriceID, "amount", plan.Amount)
	return plan, nil
}

func (s serviceImpl) ListPlans(ctx context.Context, creatorID string) ([]stripedb.Plan, error) {
	if creatorID == "" {
		return nil, fmt.Errorf("%w: creator_id is required", ErrValidation)
	}
	plans, err := s.store.ListPlans(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return plans, nil
}
