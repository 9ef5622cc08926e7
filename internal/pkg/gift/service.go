package gift

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/FelixBrandt/GiftMile/app/models"
	"github.com/FelixBrandt/GiftMile/internal/pkg/mail"
	"github.com/FelixBrandt/GiftMile/internal/pkg/subscription"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContractAPI is the slice of the upstream client the service depends on.
type ContractAPI interface {
	FetchAllContracts(ctx context.Context, statusFilter string) ([]subscription.Contract, error)
	ApplyGiftLine(ctx context.Context, contractRef, variantID string, quantity int) (*subscription.AppliedLine, error)
	FetchOrderHistory(ctx context.Context, customerID string) (*subscription.OrderHistory, error)
	UpdateContractStatus(ctx context.Context, contractID, status string) error
}

// ClientFactory builds an upstream client for one shop.
type ClientFactory func(shop string) (ContractAPI, error)

// Sender delivers one email.
type Sender func(to, subject, body string) error

// Service implements the sync/evaluate/dispatch/redeem workflow over an
// injected repository and per-shop upstream clients.
type Service struct {
	Repo    Repository
	Clients ClientFactory

	Send Sender
	Now  func() time.Time

	// Fixed inter-call delays used as crude upstream rate limiting.
	SendDelay  time.Duration
	ApplyDelay time.Duration
}

// NewService creates a service with production defaults.
func NewService(repo Repository, clients ClientFactory) *Service {
	return &Service{
		Repo:       repo,
		Clients:    clients,
		Send:       mail.SendMail,
		Now:        time.Now,
		SendDelay:  500 * time.Millisecond,
		ApplyDelay: 500 * time.Millisecond,
	}
}

// NewServiceFromDB wires the service to a GORM handle with clients built from
// each shop's stored credentials.
func NewServiceFromDB(db *gorm.DB) *Service {
	repo := NewRepository(db)
	return NewService(repo, func(shop string) (ContractAPI, error) {
		setting, err := repo.GetAppSetting(shop)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, &ConfigurationError{Shop: shop, Missing: "upstream API key"}
			}
			return nil, err
		}
		if strings.TrimSpace(setting.APIKey) == "" {
			return nil, &ConfigurationError{Shop: shop, Missing: "upstream API key"}
		}
		return subscription.NewClient(setting.APIKey, setting.APIBaseURL), nil
	})
}

// Reconcile replaces the shop's subscriber snapshot with freshly fetched
// contracts filtered to deliveredOrders >= minOrders. Every attempt appends
// one SyncLog row, success or not. Re-running with identical upstream data
// yields an identical snapshot.
func (s *Service) Reconcile(ctx context.Context, shop string, minOrders int, statusFilter string) (ReconcileResult, error) {
	runID := uuid.NewString()

	client, err := s.Clients(shop)
	if err != nil {
		s.logSync(runID, shop, 0, 0, err)
		return ReconcileResult{}, err
	}

	contracts, err := client.FetchAllContracts(ctx, statusFilter)
	if err != nil {
		s.logSync(runID, shop, 0, 0, err)
		return ReconcileResult{}, err
	}

	rows := make([]models.SubscriberSnapshot, 0, len(contracts))
	for i := range contracts {
		c := &contracts[i]
		if c.ID == "" || c.DeliveredOrders < minOrders {
			continue
		}
		rows = append(rows, snapshotFromContract(shop, c))
	}

	if err := s.Repo.ReplaceSnapshots(shop, rows); err != nil {
		s.logSync(runID, shop, len(contracts), 0, err)
		return ReconcileResult{}, err
	}

	s.logSync(runID, shop, len(contracts), len(rows), nil)
	return ReconcileResult{TotalFetched: len(contracts), TotalSynced: len(rows)}, nil
}

func snapshotFromContract(shop string, c *subscription.Contract) models.SubscriberSnapshot {
	return models.SubscriberSnapshot{
		Shop:            shop,
		ContractID:      c.ID,
		InternalID:      c.InternalID,
		CustomerID:      c.CustomerID,
		Email:           c.Email,
		FirstName:       c.FirstName,
		LastName:        c.LastName,
		Status:          c.Status,
		DeliveredOrders: c.DeliveredOrders,
		LastOrderID:     c.LastOrderID,
		LastOrderDate:   c.LastOrderDate,
		NextBillingDate: c.NextBillingDate,
		RawPayloadJSON:  string(c.Raw),
	}
}

func (s *Service) logSync(runID, shop string, fetched, synced int, runErr error) {
	entry := &models.SyncLog{
		RunID:        runID,
		Shop:         shop,
		TotalFetched: fetched,
		TotalSynced:  synced,
		Status:       models.SyncStatusSuccess,
	}
	if runErr != nil {
		entry.Status = models.SyncStatusFailed
		entry.ErrorMessage = runErr.Error()
	}
	if err := s.Repo.CreateSyncLog(entry); err != nil {
		// The audit trail must never abort the cycle itself.
		log.Errorf("[Gift] sync log write failed for shop %s: %v", shop, err)
	}
}

// EvaluateEligibility creates one eligibility per (subscriber, threshold)
// whose delivered-order count satisfies the threshold. The comparison is
// >= rather than ==: the evaluator runs periodically and a subscriber may
// jump past a threshold between runs, so an exact match would permanently
// skip that milestone. The unique milestone key makes repeat evaluation a
// no-op.
func (s *Service) EvaluateEligibility(ctx context.Context, shop string) (int, error) {
	settings, err := s.Repo.GetGiftSetting(shop)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if !settings.Enabled {
		return 0, nil
	}
	triggers := settings.ParsedTriggers()
	if len(triggers) == 0 {
		return 0, nil
	}

	snapshots, err := s.Repo.ListSnapshots(shop)
	if err != nil {
		return 0, err
	}

	created := 0
	for i := range snapshots {
		snap := &snapshots[i]
		for _, threshold := range triggers {
			if snap.DeliveredOrders < threshold {
				// Triggers are sorted ascending; nothing higher matches either.
				break
			}
			ok, err := s.createEligibility(settings, shop, snap.ContractID, snap.CustomerID,
				snap.Email, snap.FirstName, snap.LastName, threshold)
			if err != nil {
				return created, err
			}
			if ok {
				created++
			}
		}
	}
	_ = ctx
	return created, nil
}

// HandleOrderPaid is the webhook entry point: it fetches the customer's
// current completed-order count upstream and evaluates the configured
// thresholds against it. It uses the same >= policy as the scheduled path;
// the milestone unique key keeps repeated webhook deliveries idempotent.
func (s *Service) HandleOrderPaid(ctx context.Context, shop, customerID, email, firstName, lastName string) (int, error) {
	settings, err := s.Repo.GetGiftSetting(shop)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if !settings.Enabled {
		return 0, nil
	}
	triggers := settings.ParsedTriggers()
	if len(triggers) == 0 {
		return 0, nil
	}

	client, err := s.Clients(shop)
	if err != nil {
		return 0, err
	}
	history, err := client.FetchOrderHistory(ctx, customerID)
	if err != nil {
		return 0, err
	}

	snap, err := s.Repo.GetSnapshotByCustomer(shop, customerID, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Not in the snapshot yet; the next scheduled cycle will pick
			// the subscriber up after reconciliation.
			return 0, nil
		}
		return 0, err
	}

	created := 0
	for _, threshold := range triggers {
		if history.CompletedOrders < threshold {
			break
		}
		ok, err := s.createEligibility(settings, shop, snap.ContractID, customerID,
			email, firstName, lastName, threshold)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// UpdateContractStatus forwards an operator status change (pause, cancel,
// reactivate) to the upstream contract.
func (s *Service) UpdateContractStatus(ctx context.Context, shop, contractID, status string) error {
	client, err := s.Clients(shop)
	if err != nil {
		return err
	}
	return client.UpdateContractStatus(ctx, contractID, status)
}

func (s *Service) createEligibility(settings *models.GiftSetting, shop, contractID, customerID, email, firstName, lastName string, threshold int) (bool, error) {
	token, err := models.GenerateGiftToken()
	if err != nil {
		return false, err
	}
	expiry := settings.GiftExpiryDays
	if expiry <= 0 {
		expiry = models.DefaultGiftExpiryDays
	}
	e := &models.GiftEligibility{
		Shop:             shop,
		ContractID:       contractID,
		TriggerThreshold: threshold,
		CustomerID:       customerID,
		Email:            email,
		FirstName:        firstName,
		LastName:         lastName,
		Token:            token,
		Status:           models.GiftStatusPending,
		ExpiresAt:        s.Now().Add(time.Duration(expiry) * 24 * time.Hour),
	}
	return s.Repo.CreateEligibilityIfNotExists(e)
}
