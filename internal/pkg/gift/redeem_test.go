package gift

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FelixBrandt/GiftMile/app/models"
	"github.com/FelixBrandt/GiftMile/internal/pkg/subscription"
	"github.com/stretchr/testify/assert"
)

func redeemFixture(t *testing.T) (*memRepo, *models.GiftEligibility) {
	t.Helper()
	repo := newMemRepo()
	settings := enabledSettings("3")
	settings.MaxGiftProducts = 2
	settings.EligibleProductIDs = "var-1,var-2,var-3"
	repo.giftSettings[testShop] = settings
	now := time.Now()
	e := seedEligibility(t, repo, "c-1", now.Add(-time.Hour), now.Add(14*24*time.Hour))
	return repo, e
}

func TestVerifyToken(t *testing.T) {
	repo, e := redeemFixture(t)
	svc, _ := newTestService(repo, &fakeAPI{})

	v, err := svc.VerifyToken(context.Background(), e.Token)
	assert.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, "Test", v.CustomerName)
	assert.Equal(t, 2, v.MaxGiftProducts)
	assert.Equal(t, []string{"var-1", "var-2", "var-3"}, v.AllowedProducts)

	_, err = svc.VerifyToken(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestVerifyToken_Expired(t *testing.T) {
	repo, e := redeemFixture(t)
	svc, _ := newTestService(repo, &fakeAPI{})
	svc.Now = func() time.Time { return e.ExpiresAt.Add(time.Minute) }

	_, err := svc.VerifyToken(context.Background(), e.Token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestRedeem_Success(t *testing.T) {
	repo, e := redeemFixture(t)
	svc, _ := newTestService(repo, &fakeAPI{})

	res, err := svc.Redeem(context.Background(), e.Token, []SelectionInput{
		{VariantID: "var-1", ProductTitle: "Sample Pack", Quantity: 1},
	})
	assert.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Partial)

	after := repo.eligibilityByID(e.ID)
	assert.Equal(t, models.GiftStatusApplied, after.Status)
	assert.NotNil(t, after.AppliedAt)

	sels, _ := repo.ListSelections(e.ID)
	assert.Len(t, sels, 1)
	assert.True(t, sels[0].AddedToSubscription)
	assert.Equal(t, "line-var-1", sels[0].UpstreamLineID)

	// The spent token cannot be redeemed again.
	_, err = svc.Redeem(context.Background(), e.Token, []SelectionInput{{VariantID: "var-1"}})
	assert.ErrorIs(t, err, ErrAlreadyRedeemed)
}

func TestRedeem_ExpiredToken(t *testing.T) {
	repo, e := redeemFixture(t)
	svc, _ := newTestService(repo, &fakeAPI{})
	svc.Now = func() time.Time { return e.ExpiresAt.Add(time.Minute) }

	_, err := svc.Redeem(context.Background(), e.Token, []SelectionInput{{VariantID: "var-1"}})
	assert.ErrorIs(t, err, ErrTokenExpired)

	sels, _ := repo.ListSelections(e.ID)
	assert.Empty(t, sels)
}

func TestRedeem_ValidationRejectsBeforePersisting(t *testing.T) {
	repo, e := redeemFixture(t)
	svc, _ := newTestService(repo, &fakeAPI{})

	_, err := svc.Redeem(context.Background(), e.Token, nil)
	assert.ErrorIs(t, err, ErrNoSelections)

	_, err = svc.Redeem(context.Background(), e.Token, []SelectionInput{
		{VariantID: "var-1"}, {VariantID: "var-2"}, {VariantID: "var-3"},
	})
	assert.ErrorIs(t, err, ErrTooManySelections)

	_, err = svc.Redeem(context.Background(), e.Token, []SelectionInput{{VariantID: "var-99"}})
	assert.ErrorIs(t, err, ErrProductNotAllowed)

	// Nothing was written and the token is still live.
	sels, _ := repo.ListSelections(e.ID)
	assert.Empty(t, sels)
	assert.Equal(t, models.GiftStatusPending, repo.eligibilityByID(e.ID).Status)
}

func TestRedeem_PartialFailureKeepsAppliedLines(t *testing.T) {
	repo, e := redeemFixture(t)
	api := &fakeAPI{applyFn: func(contractRef, variantID string, quantity int) (*subscription.AppliedLine, error) {
		if variantID == "var-2" {
			return nil, errors.New("upstream rejected line")
		}
		return &subscription.AppliedLine{LineID: "line-" + variantID, ContractID: contractRef}, nil
	}}
	svc, _ := newTestService(repo, api)

	res, err := svc.Redeem(context.Background(), e.Token, []SelectionInput{
		{VariantID: "var-1"}, {VariantID: "var-2"},
	})
	assert.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Partial)
	assert.Len(t, res.Outcomes, 2)
	assert.True(t, res.Outcomes[0].Applied)
	assert.False(t, res.Outcomes[1].Applied)
	assert.NotEmpty(t, res.Outcomes[1].Error)

	// The applied line is spent, so the gift is not retryable wholesale.
	assert.Equal(t, models.GiftStatusSelected, repo.eligibilityByID(e.ID).Status)
	_, err = svc.Redeem(context.Background(), e.Token, []SelectionInput{{VariantID: "var-3"}})
	assert.ErrorIs(t, err, ErrAlreadyRedeemed)
}

func TestVerifyToken_ValidAfterFullFailure(t *testing.T) {
	repo, e := redeemFixture(t)
	api := &fakeAPI{applyFn: func(contractRef, variantID string, quantity int) (*subscription.AppliedLine, error) {
		return nil, errors.New("upstream down")
	}}
	svc, _ := newTestService(repo, api)

	res, err := svc.Redeem(context.Background(), e.Token, []SelectionInput{{VariantID: "var-1"}})
	assert.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, models.GiftStatusSelected, repo.eligibilityByID(e.ID).Status)

	// The link the customer revisits must still verify, since Redeem would
	// accept a retry of this token.
	v, err := svc.VerifyToken(context.Background(), e.Token)
	assert.NoError(t, err)
	assert.True(t, v.Valid)
}

func TestVerifyToken_RejectedAfterPartialFailure(t *testing.T) {
	repo, e := redeemFixture(t)
	api := &fakeAPI{applyFn: func(contractRef, variantID string, quantity int) (*subscription.AppliedLine, error) {
		if variantID == "var-2" {
			return nil, errors.New("upstream rejected line")
		}
		return &subscription.AppliedLine{LineID: "line-" + variantID, ContractID: contractRef}, nil
	}}
	svc, _ := newTestService(repo, api)

	res, err := svc.Redeem(context.Background(), e.Token, []SelectionInput{
		{VariantID: "var-1"}, {VariantID: "var-2"},
	})
	assert.NoError(t, err)
	assert.True(t, res.Partial)

	_, err = svc.VerifyToken(context.Background(), e.Token)
	assert.ErrorIs(t, err, ErrAlreadyRedeemed)
}

func TestRedeem_FullFailureIsRetryable(t *testing.T) {
	repo, e := redeemFixture(t)
	api := &fakeAPI{applyFn: func(contractRef, variantID string, quantity int) (*subscription.AppliedLine, error) {
		return nil, errors.New("upstream down")
	}}
	svc, _ := newTestService(repo, api)

	res, err := svc.Redeem(context.Background(), e.Token, []SelectionInput{{VariantID: "var-1"}})
	assert.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, models.GiftStatusSelected, repo.eligibilityByID(e.ID).Status)

	// Upstream recovers; the customer retries with a different pick.
	api.applyFn = nil
	res, err = svc.Redeem(context.Background(), e.Token, []SelectionInput{{VariantID: "var-2"}})
	assert.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, models.GiftStatusApplied, repo.eligibilityByID(e.ID).Status)

	// The failed attempt's selections were replaced, not accumulated.
	sels, _ := repo.ListSelections(e.ID)
	assert.Len(t, sels, 1)
	assert.Equal(t, "var-2", sels[0].VariantID)
}

// claimBarrierRepo delays every ClaimForSelection until all expected callers
// have reached it, forcing concurrent redemptions to race on the CAS itself.
type claimBarrierRepo struct {
	*memRepo
	barrier *sync.WaitGroup
}

func (r *claimBarrierRepo) ClaimForSelection(token string, now time.Time) (bool, error) {
	r.barrier.Done()
	r.barrier.Wait()
	return r.memRepo.ClaimForSelection(token, now)
}

func TestRedeem_ConcurrentAttemptsHaveOneWinner(t *testing.T) {
	repo, e := redeemFixture(t)
	var barrier sync.WaitGroup
	barrier.Add(2)
	svc, _ := newTestService(repo, &fakeAPI{})
	svc.Repo = &claimBarrierRepo{memRepo: repo, barrier: &barrier}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Redeem(context.Background(), e.Token, []SelectionInput{{VariantID: "var-1"}})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyRedeemed)
		}
	}
	assert.Equal(t, 1, winners)

	sels, _ := repo.ListSelections(e.ID)
	assert.Len(t, sels, 1)
}

// reopenBarrierRepo delays every ReopenStrandedSelection until all expected
// callers have reached it, forcing concurrent retries to race on the
// conditional transition itself.
type reopenBarrierRepo struct {
	*memRepo
	barrier *sync.WaitGroup
}

func (r *reopenBarrierRepo) ReopenStrandedSelection(id uint) (bool, error) {
	r.barrier.Done()
	r.barrier.Wait()
	return r.memRepo.ReopenStrandedSelection(id)
}

func TestRedeem_ConcurrentRetriesHaveOneWinner(t *testing.T) {
	repo, e := redeemFixture(t)
	api := &fakeAPI{applyFn: func(contractRef, variantID string, quantity int) (*subscription.AppliedLine, error) {
		return nil, errors.New("upstream down")
	}}
	svc, _ := newTestService(repo, api)

	res, err := svc.Redeem(context.Background(), e.Token, []SelectionInput{{VariantID: "var-1"}})
	assert.NoError(t, err)
	assert.False(t, res.Success)

	// Upstream recovers, then two retries of the stranded token race.
	var applyCalls int32
	api.applyFn = func(contractRef, variantID string, quantity int) (*subscription.AppliedLine, error) {
		atomic.AddInt32(&applyCalls, 1)
		return &subscription.AppliedLine{LineID: "line-" + variantID, ContractID: contractRef}, nil
	}
	var barrier sync.WaitGroup
	barrier.Add(2)
	svc.Repo = &reopenBarrierRepo{memRepo: repo, barrier: &barrier}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Redeem(context.Background(), e.Token, []SelectionInput{{VariantID: "var-2"}})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyRedeemed)
		}
	}
	assert.Equal(t, 1, winners)
	assert.EqualValues(t, 1, atomic.LoadInt32(&applyCalls))

	assert.Equal(t, models.GiftStatusApplied, repo.eligibilityByID(e.ID).Status)
	sels, _ := repo.ListSelections(e.ID)
	assert.Len(t, sels, 1)
	assert.Equal(t, "var-2", sels[0].VariantID)
	assert.True(t, sels[0].AddedToSubscription)
}

func TestResetEligibility_AllowsRedeemingAgain(t *testing.T) {
	repo, e := redeemFixture(t)
	svc, _ := newTestService(repo, &fakeAPI{})

	_, err := svc.Redeem(context.Background(), e.Token, []SelectionInput{{VariantID: "var-1"}})
	assert.NoError(t, err)
	assert.Equal(t, models.GiftStatusApplied, repo.eligibilityByID(e.ID).Status)

	assert.NoError(t, svc.ResetEligibility(context.Background(), e.ID))

	after := repo.eligibilityByID(e.ID)
	assert.Equal(t, models.GiftStatusPending, after.Status)
	assert.Nil(t, after.EmailSentAt)
	assert.Nil(t, after.SelectedAt)
	assert.Nil(t, after.AppliedAt)
	assert.Equal(t, e.Token, after.Token)
	sels, _ := repo.ListSelections(e.ID)
	assert.Empty(t, sels)

	res, err := svc.Redeem(context.Background(), e.Token, []SelectionInput{{VariantID: "var-2"}})
	assert.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, models.GiftStatusApplied, repo.eligibilityByID(e.ID).Status)
}

func TestResetEligibility_UnknownID(t *testing.T) {
	repo := newMemRepo()
	svc, _ := newTestService(repo, &fakeAPI{})
	assert.ErrorIs(t, svc.ResetEligibility(context.Background(), 999), ErrTokenNotFound)
}
