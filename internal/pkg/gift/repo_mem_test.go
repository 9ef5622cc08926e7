package gift

import (
	"context"
	"sync"
	"time"

	"github.com/FelixBrandt/GiftMile/app/models"
	"github.com/FelixBrandt/GiftMile/internal/pkg/subscription"
	"gorm.io/gorm"
)

// memRepo is an in-memory Repository for tests. All methods run under one
// mutex, which mirrors the atomicity the GORM implementation gets from the
// database (conditional insert, locked claim, CAS update).
type memRepo struct {
	mu sync.Mutex

	appSettings  map[string]*models.AppSetting
	giftSettings map[string]*models.GiftSetting
	snapshots    map[string][]models.SubscriberSnapshot
	syncLogs     []models.SyncLog

	nextEligibilityID uint
	eligibilities     []*models.GiftEligibility

	nextSelectionID uint
	selections      []*models.GiftSelection

	now func() time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{
		appSettings:  make(map[string]*models.AppSetting),
		giftSettings: make(map[string]*models.GiftSetting),
		snapshots:    make(map[string][]models.SubscriberSnapshot),
		now:          time.Now,
	}
}

func (m *memRepo) GetAppSetting(shop string) (*models.AppSetting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.appSettings[shop]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) SaveAppSetting(s *models.AppSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.appSettings[s.Shop] = &cp
	return nil
}

func (m *memRepo) GetGiftSetting(shop string) (*models.GiftSetting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.giftSettings[shop]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) SaveGiftSetting(s *models.GiftSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.giftSettings[s.Shop] = &cp
	return nil
}

func (m *memRepo) ListEnabledShops() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var shops []string
	for shop, s := range m.giftSettings {
		if s.Enabled {
			shops = append(shops, shop)
		}
	}
	return shops, nil
}

func (m *memRepo) ReplaceSnapshots(shop string, rows []models.SubscriberSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[shop] = append([]models.SubscriberSnapshot(nil), rows...)
	return nil
}

func (m *memRepo) ListSnapshots(shop string) ([]models.SubscriberSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.SubscriberSnapshot(nil), m.snapshots[shop]...), nil
}

func (m *memRepo) GetSnapshotByCustomer(shop, customerID, email string) (*models.SubscriberSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.snapshots[shop] {
		row := m.snapshots[shop][i]
		if customerID != "" {
			if row.CustomerID == customerID {
				return &row, nil
			}
			continue
		}
		if row.Email == email {
			return &row, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memRepo) CreateSyncLog(l *models.SyncLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = uint(len(m.syncLogs) + 1)
	m.syncLogs = append(m.syncLogs, *l)
	return nil
}

func (m *memRepo) ListSyncLogs(shop string, limit int) ([]models.SyncLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SyncLog
	for i := len(m.syncLogs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.syncLogs[i].Shop == shop {
			out = append(out, m.syncLogs[i])
		}
	}
	return out, nil
}

func (m *memRepo) CreateEligibilityIfNotExists(e *models.GiftEligibility) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.eligibilities {
		if existing.Shop == e.Shop && existing.ContractID == e.ContractID && existing.TriggerThreshold == e.TriggerThreshold {
			return false, nil
		}
	}
	m.nextEligibilityID++
	e.ID = m.nextEligibilityID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now()
	}
	cp := *e
	m.eligibilities = append(m.eligibilities, &cp)
	return true, nil
}

func (m *memRepo) ListEligibilities(shop string) ([]models.GiftEligibility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GiftEligibility
	for i := len(m.eligibilities) - 1; i >= 0; i-- {
		if m.eligibilities[i].Shop == shop {
			out = append(out, *m.eligibilities[i])
		}
	}
	return out, nil
}

func (m *memRepo) GetEligibilityByID(id uint) (*models.GiftEligibility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.eligibilities {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memRepo) GetEligibilityByToken(token string) (*models.GiftEligibility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.eligibilities {
		if e.Token == token {
			cp := *e
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memRepo) ClaimDispatchable(shop string, createdBefore, now time.Time) ([]models.GiftEligibility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var claimed []models.GiftEligibility
	for _, e := range m.eligibilities {
		if e.Shop != shop || e.Status != models.GiftStatusPending || e.EmailSentAt != nil {
			continue
		}
		if e.CreatedAt.After(createdBefore) || !e.ExpiresAt.After(now) {
			continue
		}
		sent := now
		e.Status = models.GiftStatusEmailSent
		e.EmailSentAt = &sent
		claimed = append(claimed, *e)
	}
	return claimed, nil
}

func (m *memRepo) MarkEmailFailed(id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.eligibilities {
		if e.ID == id {
			e.Status = models.GiftStatusEmailFailed
		}
	}
	return nil
}

func (m *memRepo) ClaimForSelection(token string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.eligibilities {
		if e.Token != token || !e.ExpiresAt.After(now) {
			continue
		}
		switch e.Status {
		case models.GiftStatusPending, models.GiftStatusEmailSent, models.GiftStatusEmailFailed:
			sel := now
			e.Status = models.GiftStatusSelected
			e.SelectedAt = &sel
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) ReopenStrandedSelection(id uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.eligibilities {
		if e.ID == id && e.Status == models.GiftStatusSelected {
			e.Status = models.GiftStatusEmailFailed
			e.SelectedAt = nil
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) CreateSelections(sels []models.GiftSelection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range sels {
		m.nextSelectionID++
		sels[i].ID = m.nextSelectionID
		cp := sels[i]
		m.selections = append(m.selections, &cp)
	}
	return nil
}

func (m *memRepo) ListSelections(eligibilityID uint) ([]models.GiftSelection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GiftSelection
	for _, s := range m.selections {
		if s.EligibilityID == eligibilityID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memRepo) DeleteSelections(eligibilityID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.selections[:0]
	for _, s := range m.selections {
		if s.EligibilityID != eligibilityID {
			kept = append(kept, s)
		}
	}
	m.selections = kept
	return nil
}

func (m *memRepo) MarkSelectionApplied(id uint, upstreamLineID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.selections {
		if s.ID == id {
			s.AddedToSubscription = true
			s.UpstreamLineID = upstreamLineID
		}
	}
	return nil
}

func (m *memRepo) MarkEligibilityApplied(id uint, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.eligibilities {
		if e.ID == id {
			applied := now
			e.Status = models.GiftStatusApplied
			e.AppliedAt = &applied
		}
	}
	return nil
}

func (m *memRepo) ResetEligibility(id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.selections[:0]
	for _, s := range m.selections {
		if s.EligibilityID != id {
			kept = append(kept, s)
		}
	}
	m.selections = kept
	for _, e := range m.eligibilities {
		if e.ID == id {
			e.Status = models.GiftStatusPending
			e.EmailSentAt = nil
			e.SelectedAt = nil
			e.AppliedAt = nil
		}
	}
	return nil
}

func (m *memRepo) eligibilityByID(id uint) models.GiftEligibility {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.eligibilities {
		if e.ID == id {
			return *e
		}
	}
	return models.GiftEligibility{}
}

// fakeAPI implements ContractAPI with overridable behavior per test.
type fakeAPI struct {
	contracts []subscription.Contract
	fetchErr  error

	history    map[string]int
	historyErr error

	applyFn func(contractRef, variantID string, quantity int) (*subscription.AppliedLine, error)
}

func (f *fakeAPI) FetchAllContracts(ctx context.Context, statusFilter string) ([]subscription.Contract, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.contracts, nil
}

func (f *fakeAPI) FetchOrderHistory(ctx context.Context, customerID string) (*subscription.OrderHistory, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return &subscription.OrderHistory{CustomerID: customerID, CompletedOrders: f.history[customerID]}, nil
}

func (f *fakeAPI) ApplyGiftLine(ctx context.Context, contractRef, variantID string, quantity int) (*subscription.AppliedLine, error) {
	if f.applyFn != nil {
		return f.applyFn(contractRef, variantID, quantity)
	}
	return &subscription.AppliedLine{LineID: "line-" + variantID, ContractID: contractRef}, nil
}

func (f *fakeAPI) UpdateContractStatus(ctx context.Context, contractID, status string) error {
	return nil
}

// newTestService wires a service over the in-memory repo with no delays and a
// sender that collects outgoing mail.
func newTestService(repo *memRepo, api ContractAPI) (*Service, *sentMail) {
	sent := &sentMail{}
	svc := &Service{
		Repo: repo,
		Clients: func(shop string) (ContractAPI, error) {
			return api, nil
		},
		Send: sent.send,
		Now:  time.Now,
	}
	return svc, sent
}

type sentMail struct {
	mu   sync.Mutex
	to   []string
	errs map[string]error
}

func (s *sentMail) send(to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[to]; ok {
		return err
	}
	s.to = append(s.to, to)
	return nil
}

func (s *sentMail) recipients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.to...)
}
