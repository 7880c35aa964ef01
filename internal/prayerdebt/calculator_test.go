package prayerdebt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ahmed11551/namazpro24/internal/errors"
	"github.com/ahmed11551/namazpro24/internal/models"
)

var fixedNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func assertGolden(t *testing.T, name string, debt *models.PrayerDebt) {
	t.Helper()
	data, err := json.MarshalIndent(debt, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, append(data, '\n'))
}

func TestCalculate_golden(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{
			name: "male_fixed_period",
			req: Request{PersonalData: models.PersonalData{
				BirthDate:       "1990-01-01",
				Gender:          "male",
				PrayerStartDate: "2010-01-01",
			}},
		},
		{
			name: "female_with_exclusions",
			req: Request{
				PersonalData: models.PersonalData{
					BirthDate:       "2000-03-10",
					Gender:          "female",
					BulughAge:       12,
					PrayerStartDate: "2015-03-10",
				},
				WomenData: &models.WomenData{
					HaidDaysPerMonth:       7,
					ChildbirthCount:        1,
					NifasDaysPerChildbirth: 40,
				},
				TravelData: &models.TravelData{
					TotalTravelDays: 10,
					TravelPeriods: []models.TravelPeriod{
						{StartDate: "2013-06-01", EndDate: "2013-06-10", DaysCount: 10},
					},
				},
			},
		},
		{
			name: "today_as_start",
			req: Request{PersonalData: models.PersonalData{
				BirthDate:    "2000-01-01",
				Gender:       "male",
				TodayAsStart: true,
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			debt, err := Calculate(tt.req, fixedNow)
			require.NoError(t, err)
			assertGolden(t, tt.name, debt)
		})
	}
}

func TestCalculate_validation(t *testing.T) {
	tests := []struct {
		name string
		pd   models.PersonalData
	}{
		{"missing birth date", models.PersonalData{Gender: "male"}},
		{"missing gender", models.PersonalData{BirthDate: "1990-01-01"}},
		{"unknown gender", models.PersonalData{BirthDate: "1990-01-01", Gender: "x"}},
		{"bad birth date", models.PersonalData{BirthDate: "01/01/1990", Gender: "male"}},
		{"bad start date", models.PersonalData{BirthDate: "1990-01-01", Gender: "male", PrayerStartDate: "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Calculate(Request{PersonalData: tt.pd}, fixedNow)
			assert.True(t, apperrors.Is(err, apperrors.ErrValidation), "got %v", err)
		})
	}
}

func TestCalculate_womenDataIgnoredForMen(t *testing.T) {
	debt, err := Calculate(Request{
		PersonalData: models.PersonalData{BirthDate: "1990-01-01", Gender: "male", PrayerStartDate: "2010-01-01"},
		WomenData:    &models.WomenData{HaidDaysPerMonth: 7},
	}, fixedNow)
	require.NoError(t, err)
	assert.Nil(t, debt.WomenData)
	assert.Zero(t, debt.DebtCalculation.ExcludedDays)
}

func TestCalculate_womenDefaults(t *testing.T) {
	debt, err := Calculate(Request{
		PersonalData: models.PersonalData{BirthDate: "2000-01-01", Gender: "female", PrayerStartDate: "2016-01-01"},
		WomenData:    &models.WomenData{ChildbirthCount: 2},
	}, fixedNow)
	require.NoError(t, err)
	require.NotNil(t, debt.WomenData)
	assert.Equal(t, DefaultHaidDaysPerMonth, debt.WomenData.HaidDaysPerMonth)
	assert.Equal(t, DefaultNifasDays, debt.WomenData.NifasDaysPerChildbirth)

	// 365 days: 365/30.44*7 + 2*40
	assert.Equal(t, 365, debt.DebtCalculation.TotalDays)
	assert.Equal(t, 164, debt.DebtCalculation.ExcludedDays)
	assert.Equal(t, 201, debt.DebtCalculation.EffectiveDays)
}

func TestCalculate_effectiveNeverNegative(t *testing.T) {
	debt, err := Calculate(Request{
		PersonalData: models.PersonalData{BirthDate: "2000-01-01", Gender: "male", PrayerStartDate: "2015-02-01"},
		TravelData:   &models.TravelData{TotalTravelDays: 100},
	}, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 31, debt.DebtCalculation.TotalDays)
	assert.Zero(t, debt.DebtCalculation.EffectiveDays)
	assert.Equal(t, 100, debt.DebtCalculation.TravelPrayers.IshaSafar)
}

func TestCalculate_startBeforeBulugh(t *testing.T) {
	debt, err := Calculate(Request{
		PersonalData: models.PersonalData{BirthDate: "2000-01-01", Gender: "male", PrayerStartDate: "2010-01-01"},
	}, fixedNow)
	require.NoError(t, err)
	assert.Zero(t, debt.DebtCalculation.TotalDays)
	assert.Zero(t, debt.DebtCalculation.MissedPrayers.Fajr)
}

func TestCalculate_explicitBulughDate(t *testing.T) {
	debt, err := Calculate(Request{
		Madhab:       models.MadhabShafi,
		PersonalData: models.PersonalData{BirthDate: "2000-01-01", Gender: "male", BulughDate: "2013-01-01", PrayerStartDate: "2014-01-01"},
	}, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 365, debt.DebtCalculation.TotalDays)
	assert.Equal(t, models.MadhabShafi, debt.Madhab)
}

func TestApplyProgress(t *testing.T) {
	debt, err := Calculate(Request{
		PersonalData: models.PersonalData{BirthDate: "2000-01-01", Gender: "male", PrayerStartDate: "2015-01-11"},
	}, fixedNow)
	require.NoError(t, err)
	require.Equal(t, 10, debt.DebtCalculation.EffectiveDays)

	later := fixedNow.Add(time.Hour)
	require.NoError(t, ApplyProgress(debt, models.PrayerCounts{Fajr: 3, Witr: 1}, later))
	require.NoError(t, ApplyProgress(debt, models.PrayerCounts{Fajr: 20, Isha: 2}, later))

	assert.Equal(t, models.PrayerCounts{Fajr: 10, Isha: 2, Witr: 1}, debt.RepaymentProgress.CompletedPrayers)
	require.NotNil(t, debt.RepaymentProgress.LastUpdated)
	assert.Equal(t, "2025-01-01T01:00:00.000Z", *debt.RepaymentProgress.LastUpdated)

	remaining := Remaining(debt)
	assert.Equal(t, models.PrayerCounts{Fajr: 0, Dhuhr: 10, Asr: 10, Maghrib: 10, Isha: 8, Witr: 9}, remaining)
	assert.Equal(t, 47, Total(remaining))

	err = ApplyProgress(debt, models.PrayerCounts{Asr: -1}, later)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}
