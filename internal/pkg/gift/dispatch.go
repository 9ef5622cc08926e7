package gift

import (
	"context"
	"errors"
	"time"

	"github.com/FelixBrandt/GiftMile/internal/pkg/mail"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// DispatchPendingEmails sends the gift notification for every eligibility
// that is pending, past the configured delay and not expired.
//
// Ordering is the whole point: the repository claim moves every matching row
// to email_sent before a single email leaves the process. An overlapping
// dispatch cycle therefore selects nothing, no matter how slow our sends are.
// A send failure demotes the row to email_failed and it is never returned to
// pending, because re-claiming means risking a duplicate send.
func (s *Service) DispatchPendingEmails(ctx context.Context, shop string) (DispatchResult, error) {
	settings, err := s.Repo.GetGiftSetting(shop)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DispatchResult{}, nil
		}
		return DispatchResult{}, err
	}
	if !settings.Enabled {
		return DispatchResult{}, nil
	}

	now := s.Now()
	createdBefore := now.Add(-time.Duration(settings.EmailDelayDays) * 24 * time.Hour)

	claimed, err := s.Repo.ClaimDispatchable(shop, createdBefore, now)
	if err != nil {
		return DispatchResult{}, err
	}
	if len(claimed) == 0 {
		return DispatchResult{}, nil
	}

	var result DispatchResult
	subject := settings.EmailSubjectOrDefault()
	for i := range claimed {
		if i > 0 && s.SendDelay > 0 {
			time.Sleep(s.SendDelay)
		}
		e := &claimed[i]
		link := mail.GiftLink(shop, e.Token)
		body := mail.GiftEmailBody(e.CustomerName(), link, settings.MaxGiftProducts, e.ExpiresAt)
		if err := s.Send(e.Email, subject, body); err != nil {
			log.Warnf("[Gift] email to %s for eligibility %d failed: %v", e.Email, e.ID, err)
			if markErr := s.Repo.MarkEmailFailed(e.ID); markErr != nil {
				log.Errorf("[Gift] could not mark eligibility %d email_failed: %v", e.ID, markErr)
			}
			result.Failed++
			continue
		}
		result.Sent++
	}
	_ = ctx
	return result, nil
}
