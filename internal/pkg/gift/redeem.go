package gift

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FelixBrandt/GiftMile/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// VerifyToken answers the storefront token check. Expiry is evaluated here,
// at read time, regardless of stored status. A selected row whose lines all
// failed upstream verifies as valid, mirroring what Redeem accepts.
func (s *Service) VerifyToken(ctx context.Context, token string) (*Verification, error) {
	e, err := s.Repo.GetEligibilityByToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	if e.Expired(s.Now()) {
		return nil, ErrTokenExpired
	}
	spent, err := s.giftSpent(e)
	if err != nil {
		return nil, err
	}
	if spent {
		return nil, ErrAlreadyRedeemed
	}

	settings, err := s.Repo.GetGiftSetting(e.Shop)
	if err != nil {
		return nil, err
	}
	_ = ctx
	return &Verification{
		Valid:           true,
		CustomerName:    e.CustomerName(),
		MaxGiftProducts: settings.MaxGiftProducts,
		AllowedProducts: settings.ParsedEligibleProducts(),
		ExpiresAt:       e.ExpiresAt,
	}, nil
}

// Redeem validates the token, records the customer's selections, then applies
// each product to the upstream contract as a zero-price one-time line.
//
// Selections are persisted before the first upstream call so a crash still
// leaves a record of customer intent. The eligibility reaches applied only
// when every product succeeded; otherwise it stays selected. A fully failed
// application returns an error result and leaves the gift retryable, while a
// partial failure returns success with partial=true so the customer is not
// pushed into re-selecting products they already received.
//
// A retry of a fully failed redemption must re-win the row: the stranded
// selected row is first reopened with a conditional transition, then claimed
// through the same CAS as a first attempt.
func (s *Service) Redeem(ctx context.Context, token string, selections []SelectionInput) (*RedemptionResult, error) {
	e, err := s.Repo.GetEligibilityByToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	now := s.Now()
	if e.Expired(now) {
		return nil, ErrTokenExpired
	}
	spent, err := s.giftSpent(e)
	if err != nil {
		return nil, err
	}
	if spent {
		return nil, ErrAlreadyRedeemed
	}

	settings, err := s.Repo.GetGiftSetting(e.Shop)
	if err != nil {
		return nil, err
	}
	if len(selections) == 0 {
		return nil, ErrNoSelections
	}
	if len(selections) > settings.MaxGiftProducts {
		return nil, ErrTooManySelections
	}
	for _, sel := range selections {
		if !settings.ProductAllowed(sel.VariantID) {
			return nil, fmt.Errorf("%w: %s", ErrProductNotAllowed, sel.VariantID)
		}
	}

	if e.Status == models.GiftStatusSelected {
		// A selected row with no applied line is a stranded redemption whose
		// upstream writes all failed. Reopening is its own conditional
		// transition, so concurrent retries still have exactly one winner.
		ok, err := s.Repo.ReopenStrandedSelection(e.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrAlreadyRedeemed
		}
	}

	// Atomic claim: exactly one concurrent redemption wins this update.
	ok, err := s.Repo.ClaimForSelection(token, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyRedeemed
	}

	// Clear any stale lines left behind by a previously failed attempt.
	if err := s.Repo.DeleteSelections(e.ID); err != nil {
		return nil, err
	}

	rows := make([]models.GiftSelection, len(selections))
	for i, sel := range selections {
		qty := sel.Quantity
		if qty <= 0 {
			qty = 1
		}
		rows[i] = models.GiftSelection{
			EligibilityID: e.ID,
			VariantID:     sel.VariantID,
			ProductTitle:  sel.ProductTitle,
			Quantity:      qty,
		}
	}
	if err := s.Repo.CreateSelections(rows); err != nil {
		return nil, err
	}

	client, err := s.Clients(e.Shop)
	if err != nil {
		return nil, err
	}

	outcomes := make([]ProductOutcome, len(rows))
	applied := 0
	for i := range rows {
		if i > 0 && s.ApplyDelay > 0 {
			time.Sleep(s.ApplyDelay)
		}
		line, err := client.ApplyGiftLine(ctx, e.ContractID, rows[i].VariantID, rows[i].Quantity)
		if err != nil {
			log.Warnf("[Gift] apply variant %s to contract %s failed: %v", rows[i].VariantID, e.ContractID, err)
			outcomes[i] = ProductOutcome{VariantID: rows[i].VariantID, Error: err.Error()}
			continue
		}
		if err := s.Repo.MarkSelectionApplied(rows[i].ID, line.LineID); err != nil {
			return nil, err
		}
		outcomes[i] = ProductOutcome{VariantID: rows[i].VariantID, Applied: true}
		applied++
	}

	switch {
	case applied == len(rows):
		if err := s.Repo.MarkEligibilityApplied(e.ID, s.Now()); err != nil {
			return nil, err
		}
		return &RedemptionResult{
			Success:  true,
			Message:  "Your free gifts were added to your next order.",
			Outcomes: outcomes,
		}, nil
	case applied == 0:
		return &RedemptionResult{
			Success:  false,
			Message:  "We could not add your gifts to your subscription. Please try again.",
			Outcomes: outcomes,
		}, nil
	default:
		failed := len(rows) - applied
		return &RedemptionResult{
			Success:  true,
			Partial:  true,
			Message:  fmt.Sprintf("%d of your gifts could not be added; the rest are on your next order.", failed),
			Outcomes: outcomes,
		}, nil
	}
}

// giftSpent reports whether the gift is used up: applied, or selected with at
// least one line already on the upstream order. A selected row with zero
// applied lines is a stranded redemption and does not count as spent.
func (s *Service) giftSpent(e *models.GiftEligibility) (bool, error) {
	switch e.Status {
	case models.GiftStatusApplied:
		return true, nil
	case models.GiftStatusSelected:
		prior, err := s.Repo.ListSelections(e.ID)
		if err != nil {
			return false, err
		}
		for _, p := range prior {
			if p.AddedToSubscription {
				return true, nil
			}
		}
	}
	return false, nil
}

// ResetEligibility is the operator do-over action.
func (s *Service) ResetEligibility(ctx context.Context, id uint) error {
	if _, err := s.Repo.GetEligibilityByID(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTokenNotFound
		}
		return err
	}
	_ = ctx
	return s.Repo.ResetEligibility(id)
}
