package quota

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rozmerigpt/user-limiter/internal/abuse"
	"github.com/rozmerigpt/user-limiter/internal/models"
	"github.com/rozmerigpt/user-limiter/internal/testutil"
)

func testService(store *stubStore, opts ...ServiceOption) *Service {
	engine := NewEngine(store, testutil.NewFakeClock(testInstant), DefaultLimits(), time.Second, slog.Default())
	monitor := abuse.NewMonitor(store, abuse.Config{Threshold: 3}, slog.Default())
	return NewService(engine, monitor, opts...)
}

func testRequestContext() models.RequestContext {
	return models.RequestContext{
		Address:   "203.0.113.7",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) Firefox/126.0",
	}
}

func TestCheckAndIncrement_AllowsAndCounts(t *testing.T) {
	svc := testService(newStubStore())

	req := &models.QuotaRequest{UserID: "user-1", Action: models.ActionCheckAndIncrement}
	resp, err := svc.CheckAndIncrement(context.Background(), req, testRequestContext())

	require.NoError(t, err)
	assert.True(t, resp.Allowed)
	assert.Equal(t, 9, resp.Remaining)
	assert.False(t, resp.Suspicious)
	assert.Contains(t, resp.Message, "9 of 10")
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), resp.ResetTime)
}

func TestCheckAndIncrement_MissingUserID(t *testing.T) {
	svc := testService(newStubStore())

	req := &models.QuotaRequest{Action: models.ActionCheckAndIncrement}
	resp, err := svc.CheckAndIncrement(context.Background(), req, testRequestContext())

	assert.Nil(t, resp)
	var serviceErr *ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, 400, serviceErr.StatusCode)
	assert.Equal(t, models.ErrorCodeInvalidRequest, serviceErr.Code)
}

func TestCheckAndIncrement_RejectionTouchesNoCounters(t *testing.T) {
	store := newStubStore()
	svc := testService(store)

	req := &models.QuotaRequest{Action: models.ActionCheckAndIncrement}
	_, err := svc.CheckAndIncrement(context.Background(), req, testRequestContext())

	require.Error(t, err)
	assert.Zero(t, store.setCalls)
	assert.Empty(t, store.identities, "invalid requests must not feed the abuse window")
}

func TestCheckAndIncrement_TypeDefaultsToComments(t *testing.T) {
	svc := testService(newStubStore())

	req := &models.QuotaRequest{UserID: "user-1", Action: models.ActionCheckAndIncrement}
	resp, err := svc.CheckAndIncrement(context.Background(), req, testRequestContext())

	require.NoError(t, err)
	assert.Equal(t, 9, resp.Remaining, "comments allowance should apply")
}

func TestCheckAndIncrement_UserIDRotationDoesNotResetQuota(t *testing.T) {
	svc := testService(newStubStore())
	ctx := context.Background()
	rc := testRequestContext()

	// Same browser, fresh user id every time: counters keep climbing.
	remaining := []int{}
	for _, id := range []string{"u1", "u2", "u3"} {
		req := &models.QuotaRequest{UserID: id, Action: models.ActionCheckAndIncrement}
		resp, err := svc.CheckAndIncrement(ctx, req, rc)
		require.NoError(t, err)
		remaining = append(remaining, resp.Remaining)
	}

	assert.Equal(t, []int{9, 8, 7}, remaining)
}

func TestCheckAndIncrement_FourthIdentityTightensSameRequest(t *testing.T) {
	svc := testService(newStubStore())
	ctx := context.Background()
	rc := testRequestContext()

	for _, id := range []string{"u1", "u2", "u3"} {
		req := &models.QuotaRequest{UserID: id, Action: models.ActionCheckAndIncrement}
		resp, err := svc.CheckAndIncrement(ctx, req, rc)
		require.NoError(t, err)
		assert.False(t, resp.Suspicious)
	}

	// The fourth distinct id is itself evaluated under the tightened limit:
	// usage 3 of 5 before this call, so one more is allowed with 1 left.
	req := &models.QuotaRequest{UserID: "u4", Action: models.ActionCheckAndIncrement}
	resp, err := svc.CheckAndIncrement(ctx, req, rc)

	require.NoError(t, err)
	assert.True(t, resp.Suspicious)
	assert.True(t, resp.Allowed)
	assert.Equal(t, 1, resp.Remaining)
}

func TestCheckAndIncrement_SuspiciousPostsLimit(t *testing.T) {
	store := newStubStore()
	svc := testService(store)
	ctx := context.Background()
	rc := testRequestContext()

	// Burn the address's credibility first.
	for _, id := range []string{"u1", "u2", "u3", "u4"} {
		req := &models.QuotaRequest{UserID: id, Action: models.ActionGetRemaining, Type: models.QuotaTypePosts}
		_, err := svc.GetRemaining(ctx, req, rc)
		require.NoError(t, err)
	}

	req := &models.QuotaRequest{UserID: "u4", Action: models.ActionCheckAndIncrement, Type: models.QuotaTypePosts}
	first, err := svc.CheckAndIncrement(ctx, req, rc)
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.True(t, first.Suspicious)
	assert.Equal(t, 0, first.Remaining)

	second, err := svc.CheckAndIncrement(ctx, req, rc)
	require.NoError(t, err)
	assert.False(t, second.Allowed)
}

func TestGetRemaining_DoesNotConsume(t *testing.T) {
	store := newStubStore()
	svc := testService(store)
	ctx := context.Background()
	rc := testRequestContext()

	req := &models.QuotaRequest{UserID: "user-1", Action: models.ActionGetRemaining}
	for i := 0; i < 5; i++ {
		resp, err := svc.GetRemaining(ctx, req, rc)
		require.NoError(t, err)
		assert.Equal(t, 10, resp.Remaining)
	}

	assert.Zero(t, store.setCalls)
}

func TestGetRemaining_StillFeedsAbuseWindow(t *testing.T) {
	svc := testService(newStubStore())
	ctx := context.Background()
	rc := testRequestContext()

	// Identity churn through read-only calls alone still flips the address.
	var last *models.QuotaRemainingResponse
	for _, id := range []string{"u1", "u2", "u3", "u4"} {
		req := &models.QuotaRequest{UserID: id, Action: models.ActionGetRemaining}
		resp, err := svc.GetRemaining(ctx, req, rc)
		require.NoError(t, err)
		last = resp
	}

	assert.True(t, last.Suspicious)
	assert.Equal(t, 5, last.Remaining, "tightened comments allowance")
}

func TestGetRemaining_ReflectsConsumedQuota(t *testing.T) {
	svc := testService(newStubStore())
	ctx := context.Background()
	rc := testRequestContext()

	check := &models.QuotaRequest{UserID: "user-1", Action: models.ActionCheckAndIncrement}
	for i := 0; i < 3; i++ {
		_, err := svc.CheckAndIncrement(ctx, check, rc)
		require.NoError(t, err)
	}

	peek := &models.QuotaRequest{UserID: "user-1", Action: models.ActionGetRemaining}
	resp, err := svc.GetRemaining(ctx, peek, rc)

	require.NoError(t, err)
	assert.Equal(t, 7, resp.Remaining)
}

func TestService_OutdatedClientGetsAdvisory(t *testing.T) {
	svc := testService(newStubStore(), WithMinClientVersion(semver.MustParse("1.2.0")))

	req := &models.QuotaRequest{
		UserID:        "user-1",
		Action:        models.ActionCheckAndIncrement,
		ClientVersion: "1.0.3",
	}
	resp, err := svc.CheckAndIncrement(context.Background(), req, testRequestContext())

	require.NoError(t, err)
	assert.True(t, resp.Allowed, "old clients are advised, never rejected")
	assert.Contains(t, resp.Message, "outdated")
	assert.Contains(t, resp.Message, "1.2.0")
}

func TestService_CurrentClientGetsNoAdvisory(t *testing.T) {
	svc := testService(newStubStore(), WithMinClientVersion(semver.MustParse("1.2.0")))

	req := &models.QuotaRequest{
		UserID:        "user-1",
		Action:        models.ActionCheckAndIncrement,
		ClientVersion: "1.3.0",
	}
	resp, err := svc.CheckAndIncrement(context.Background(), req, testRequestContext())

	require.NoError(t, err)
	assert.NotContains(t, resp.Message, "outdated")
}

func TestService_GarbageClientVersionIsIgnored(t *testing.T) {
	svc := testService(newStubStore(), WithMinClientVersion(semver.MustParse("1.2.0")))

	req := &models.QuotaRequest{
		UserID:        "user-1",
		Action:        models.ActionCheckAndIncrement,
		ClientVersion: "not-a-version",
	}
	resp, err := svc.CheckAndIncrement(context.Background(), req, testRequestContext())

	require.NoError(t, err)
	assert.True(t, resp.Allowed)
	assert.NotContains(t, resp.Message, "outdated")
}

func TestService_AbuseStoreErrorKeepsStandardLimits(t *testing.T) {
	store := newStubStore()
	store.addErr = errors.New("connection reset")
	svc := testService(store)

	req := &models.QuotaRequest{UserID: "user-1", Action: models.ActionCheckAndIncrement}
	resp, err := svc.CheckAndIncrement(context.Background(), req, testRequestContext())

	require.NoError(t, err)
	assert.False(t, resp.Suspicious)
	assert.Equal(t, 9, resp.Remaining, "standard allowance while the heuristic is blind")
}

func TestServiceError_Unwrap(t *testing.T) {
	cause := errors.New("userId is required")
	err := NewInvalidRequestError("invalid quota request", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "invalid quota request")
	assert.Contains(t, err.Error(), "userId is required")
}
