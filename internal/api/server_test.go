package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmed11551/namazpro24/internal/models"
	syncpkg "github.com/ahmed11551/namazpro24/internal/sync"
)

var fixedNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()
	s, err := NewServer(1, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return s, s.Router("")
}

func do(t *testing.T, r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestNewServer_invalidNode(t *testing.T) {
	_, err := NewServer(-1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONFIG_ERROR")
}

func TestHealth(t *testing.T) {
	_, r := newTestServer(t)
	w := do(t, r, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestBootstrap_empty(t *testing.T) {
	_, r := newTestServer(t)
	w := do(t, r, http.MethodGet, "/api/v1/bootstrap", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got models.Bootstrap
	decodeBody(t, w, &got)
	assert.Equal(t, int64(123456789), got.User.TelegramUserID)
	assert.Equal(t, models.MadhabHanafi, got.User.Madhab)
	assert.Nil(t, got.ActiveGoal)
	assert.Empty(t, got.ActiveGoals)
	assert.NotNil(t, got.RecentItems)
}

func TestGoals_createValidation(t *testing.T) {
	_, r := newTestServer(t)
	for _, body := range []string{`{}`, `{"category":"zikr"}`, `{"target_count":10}`, `{"category":"zikr","target_count":0}`} {
		w := do(t, r, http.MethodPost, "/api/v1/goals", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Contains(t, w.Body.String(), "Missing required fields")
	}

	w := do(t, r, http.MethodPost, "/api/v1/goals", `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGoals_createListUpdate(t *testing.T) {
	_, r := newTestServer(t)

	w := do(t, r, http.MethodPost, "/api/v1/goals", `{"category":"zikr","target_count":100,"linked_counter_type":"tasbih"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct{ Goal models.Goal }
	decodeBody(t, w, &created)

	_, err := strconv.ParseInt(created.Goal.ID, 10, 64)
	assert.NoError(t, err, "snowflake ids are decimal")
	assert.Equal(t, models.GoalStatusActive, created.Goal.Status)
	assert.Zero(t, created.Goal.Progress)
	assert.Equal(t, "2025-01-01T12:00:00.000Z", created.Goal.CreatedAt)

	w = do(t, r, http.MethodPost, "/api/v1/goals", `{"category":"quran","target_count":5}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/goals", "")
	var list struct{ Goals []models.Goal }
	decodeBody(t, w, &list)
	require.Len(t, list.Goals, 2)
	assert.Equal(t, created.Goal.ID, list.Goals[0].ID)
	assert.NotEqual(t, list.Goals[0].ID, list.Goals[1].ID)

	w = do(t, r, http.MethodPost, "/api/v1/goals", `{"id":"`+created.Goal.ID+`","progress":40,"status":"paused"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var updated struct{ Goal models.Goal }
	decodeBody(t, w, &updated)
	assert.Equal(t, 40, updated.Goal.Progress)
	assert.Equal(t, models.GoalStatusPaused, updated.Goal.Status)
	assert.Equal(t, 100, updated.Goal.TargetCount)

	w = do(t, r, http.MethodPost, "/api/v1/goals", `{"id":"42","progress":1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTap(t *testing.T) {
	_, r := newTestServer(t)

	w := do(t, r, http.MethodPost, "/api/v1/goals", `{"category":"zikr","target_count":3,"linked_counter_type":"tasbih"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct{ Goal models.Goal }
	decodeBody(t, w, &created)

	tap := `{"session_id":"s1","delta":2,"event_type":"tap","prayer_segment":"fajr","category":"tasbih"}`
	w = do(t, r, http.MethodPost, "/api/v1/counter/tap", tap)
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.TapResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, 2, resp.ValueAfter)
	assert.Equal(t, 2, resp.DailyAzkar.Fajr)
	assert.Equal(t, 2, resp.DailyAzkar.Total)
	assert.False(t, resp.DailyAzkar.IsComplete)

	w = do(t, r, http.MethodPost, "/api/v1/counter/tap", tap)
	decodeBody(t, w, &resp)
	assert.Equal(t, 4, resp.ValueAfter)
	progress, ok := resp.GoalProgress[created.Goal.ID].(map[string]interface{})
	require.True(t, ok, "linked goal reported")
	assert.Equal(t, "completed", progress["status"])

	w = do(t, r, http.MethodGet, "/api/v1/bootstrap", "")
	var boot models.Bootstrap
	decodeBody(t, w, &boot)
	assert.Equal(t, 4, boot.TotalDhikr)
	assert.Empty(t, boot.ActiveGoals, "completed goal is no longer active")
}

func TestTap_validation(t *testing.T) {
	_, r := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/api/v1/counter/tap", `{"delta":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/api/v1/counter/tap", `{"session_id":"s"}`).Code)
}

func TestTap_azkarComplete(t *testing.T) {
	_, r := newTestServer(t)
	var resp models.TapResponse
	for _, seg := range []string{"fajr", "dhuhr", "asr", "maghrib", "isha"} {
		w := do(t, r, http.MethodPost, "/api/v1/counter/tap", `{"session_id":"s","delta":99,"prayer_segment":"`+seg+`"}`)
		require.Equal(t, http.StatusOK, w.Code)
		decodeBody(t, w, &resp)
	}
	assert.True(t, resp.DailyAzkar.IsComplete)
	assert.Equal(t, 495, resp.DailyAzkar.Total)
}

func TestDedupe_replaysSuccessfulResponse(t *testing.T) {
	_, r := newTestServer(t)
	tap := `{"session_id":"s1","delta":1}`

	first := do(t, r, http.MethodPost, "/api/v1/counter/tap", tap, syncpkg.OfflineEventIDHeader, "evt-1")
	second := do(t, r, http.MethodPost, "/api/v1/counter/tap", tap, syncpkg.OfflineEventIDHeader, "evt-1")
	other := do(t, r, http.MethodPost, "/api/v1/counter/tap", tap, syncpkg.OfflineEventIDHeader, "evt-2")

	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(ReplayedHeader))
	assert.Empty(t, first.Header().Get(ReplayedHeader))

	var resp models.TapResponse
	decodeBody(t, other, &resp)
	assert.Equal(t, 2, resp.ValueAfter, "replay did not apply the delta again")
}

func TestDedupe_failuresAreNotRemembered(t *testing.T) {
	_, r := newTestServer(t)

	w := do(t, r, http.MethodPost, "/api/v1/goals", `{}`, syncpkg.OfflineEventIDHeader, "evt-1")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/goals", `{"category":"zikr","target_count":1}`, syncpkg.OfflineEventIDHeader, "evt-1")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, w.Header().Get(ReplayedHeader))
}

func TestPrayerDebt_flow(t *testing.T) {
	_, r := newTestServer(t)

	w := do(t, r, http.MethodGet, "/api/prayer-debt/snapshot", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"debt_calculation": null,
		"repayment_progress": {
			"completed_prayers": {"fajr":0,"dhuhr":0,"asr":0,"maghrib":0,"isha":0,"witr":0},
			"last_updated": null
		}
	}`, w.Body.String())

	w = do(t, r, http.MethodPatch, "/api/prayer-debt/progress", `{"completed_prayers":{"fajr":1}}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodPost, "/api/prayer-debt/calculate", `{"personal_data":{"gender":"male"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "missing required personal data")

	w = do(t, r, http.MethodPost, "/api/prayer-debt/calculate",
		`{"personal_data":{"birth_date":"2000-01-01","gender":"male","prayer_start_date":"2015-01-11"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	var debt models.PrayerDebt
	decodeBody(t, w, &debt)
	assert.Equal(t, 10, debt.DebtCalculation.EffectiveDays)
	assert.Equal(t, "calculator", debt.CalculationMethod)

	w = do(t, r, http.MethodPatch, "/api/prayer-debt/progress", `{"completed_prayers":{"fajr":4,"witr":1}}`)
	require.Equal(t, http.StatusOK, w.Code)
	var progress struct {
		RepaymentProgress models.RepaymentProgress `json:"repayment_progress"`
		Remaining         models.PrayerCounts      `json:"remaining"`
		RemainingTotal    int                      `json:"remaining_total"`
	}
	decodeBody(t, w, &progress)
	assert.Equal(t, 4, progress.RepaymentProgress.CompletedPrayers.Fajr)
	assert.Equal(t, 6, progress.Remaining.Fajr)
	assert.Equal(t, 55, progress.RemainingTotal)

	w = do(t, r, http.MethodPatch, "/api/prayer-debt/progress", `{"completed_prayers":{"asr":-2}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/api/prayer-debt/snapshot", "")
	var snap struct {
		DebtCalculation   *models.DebtCalculation  `json:"debt_calculation"`
		RepaymentProgress models.RepaymentProgress `json:"repayment_progress"`
	}
	decodeBody(t, w, &snap)
	require.NotNil(t, snap.DebtCalculation)
	assert.Equal(t, 1, snap.RepaymentProgress.CompletedPrayers.Witr)
}

func TestRecommendations(t *testing.T) {
	_, r := newTestServer(t)

	w := do(t, r, http.MethodPost, "/api/ai/recommendations", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Missing user_profile")

	w = do(t, r, http.MethodPost, "/api/ai/recommendations", `{"user_profile":{"streak":9}}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Recommendations []map[string]interface{} `json:"recommendations"`
		Trends          map[string]interface{}   `json:"trends"`
	}
	decodeBody(t, w, &resp)
	assert.NotEmpty(t, resp.Recommendations)
	assert.Equal(t, "stable", resp.Trends["trend"])
}

// The remote client's route table must line up with the routes served here.
func TestRemoteClient_dispatchesToEveryRoute(t *testing.T) {
	_, r := newTestServer(t)
	ts := httptest.NewServer(r)
	defer ts.Close()

	client := syncpkg.NewRemoteClient(ts.URL)
	ctx := context.Background()

	// prayer_debt_update needs an existing calculation
	w := do(t, r, http.MethodPost, "/api/prayer-debt/calculate",
		`{"personal_data":{"birth_date":"2000-01-01","gender":"male","prayer_start_date":"2015-01-11"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	events := []*models.OfflineEvent{
		{ID: "11111111-1111-4111-8111-111111111111", Type: models.EventTypeDhikrTap,
			Payload: json.RawMessage(`{"session_id":"s1","delta":1}`)},
		{ID: "22222222-2222-4222-8222-222222222222", Type: models.EventTypeGoalUpdate,
			Payload: json.RawMessage(`{"category":"zikr","target_count":33}`)},
		{ID: "33333333-3333-4333-8333-333333333333", Type: models.EventTypePrayerDebtUpdate,
			Payload: json.RawMessage(`{"completed_prayers":{"isha":1}}`)},
	}
	for _, e := range events {
		require.NoError(t, client.Dispatch(ctx, e), e.Type)
		// a resend after a lost acknowledgement is accepted again
		require.NoError(t, client.Dispatch(ctx, e), e.Type)
	}

	w = do(t, r, http.MethodGet, "/api/v1/goals", "")
	var list struct{ Goals []models.Goal }
	decodeBody(t, w, &list)
	assert.Len(t, list.Goals, 1, "goal_update applied once")

	bad := &models.OfflineEvent{ID: "44444444-4444-4444-8444-444444444444", Type: models.EventTypeGoalUpdate,
		Payload: json.RawMessage(`{}`)}
	err := client.Dispatch(ctx, bad)
	require.Error(t, err)
	var statusErr *syncpkg.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}
