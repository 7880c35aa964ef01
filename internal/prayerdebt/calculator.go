// Package prayerdebt estimates missed obligatory prayers (qada) from the
// age of religious majority (bulugh) and tracks their repayment.
package prayerdebt

import (
	"math"
	"strings"
	"time"

	apperrors "github.com/ahmed11551/namazpro24/internal/errors"
	"github.com/ahmed11551/namazpro24/internal/models"
)

// CalcVersion is stamped on every calculation.
const CalcVersion = "1.0.0"

const (
	DefaultBulughAge        = 15
	DefaultHaidDaysPerMonth = 7
	DefaultNifasDays        = 40

	// average Gregorian month length
	daysPerMonth = 30.44

	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Request is the calculator input.
type Request struct {
	Madhab       models.Madhab       `json:"madhab,omitempty"`
	PersonalData models.PersonalData `json:"personal_data"`
	WomenData    *models.WomenData   `json:"women_data,omitempty"`
	TravelData   *models.TravelData  `json:"travel_data,omitempty"`
}

// Calculate builds a fresh debt snapshot. now is the end of the period when
// the person is starting today or gave no start date.
func Calculate(req Request, now time.Time) (*models.PrayerDebt, error) {
	pd := req.PersonalData
	if strings.TrimSpace(pd.BirthDate) == "" || strings.TrimSpace(pd.Gender) == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "missing required personal data")
	}
	if pd.Gender != "male" && pd.Gender != "female" {
		return nil, apperrors.New(apperrors.ErrValidation, "gender must be male or female")
	}

	birth, err := parseDate(pd.BirthDate)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "invalid birth_date", err)
	}
	if pd.BulughAge <= 0 {
		pd.BulughAge = DefaultBulughAge
	}

	start := birth.AddDate(pd.BulughAge, 0, 0)
	if pd.BulughDate != "" {
		if start, err = parseDate(pd.BulughDate); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrValidation, "invalid bulugh_date", err)
		}
	} else {
		pd.BulughDate = start.Format(dateLayout)
	}

	end := now.UTC()
	if !pd.TodayAsStart && pd.PrayerStartDate != "" {
		if end, err = parseDate(pd.PrayerStartDate); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrValidation, "invalid prayer_start_date", err)
		}
	}

	totalDays := int(math.Floor(end.Sub(start).Hours() / 24))
	if totalDays < 0 {
		totalDays = 0
	}

	var women *models.WomenData
	excluded := 0.0
	if pd.Gender == "female" && req.WomenData != nil {
		w := *req.WomenData
		if w.HaidDaysPerMonth <= 0 {
			w.HaidDaysPerMonth = DefaultHaidDaysPerMonth
		}
		if w.NifasDaysPerChildbirth <= 0 {
			w.NifasDaysPerChildbirth = DefaultNifasDays
		}
		months := float64(totalDays) / daysPerMonth
		excluded = months*float64(w.HaidDaysPerMonth) + float64(w.ChildbirthCount*w.NifasDaysPerChildbirth)
		women = &w
	}

	travel := models.TravelData{TravelPeriods: []models.TravelPeriod{}}
	if req.TravelData != nil {
		travel.TotalTravelDays = req.TravelData.TotalTravelDays
		if req.TravelData.TravelPeriods != nil {
			travel.TravelPeriods = req.TravelData.TravelPeriods
		}
	}
	excluded += float64(travel.TotalTravelDays)

	effective := int(math.Round(math.Max(0, float64(totalDays)-excluded)))

	madhab := req.Madhab
	if madhab == "" {
		madhab = models.MadhabHanafi
	}
	updated := now.UTC().Format(timestampLayout)

	return &models.PrayerDebt{
		CalcVersion:       CalcVersion,
		Madhab:            madhab,
		CalculationMethod: "calculator",
		PersonalData:      pd,
		WomenData:         women,
		TravelData:        travel,
		DebtCalculation: models.DebtCalculation{
			Period: models.Period{
				Start: start.Format(timestampLayout),
				End:   end.Format(timestampLayout),
			},
			TotalDays:     totalDays,
			ExcludedDays:  int(math.Round(excluded)),
			EffectiveDays: effective,
			MissedPrayers: models.PrayerCounts{
				Fajr:    effective,
				Dhuhr:   effective,
				Asr:     effective,
				Maghrib: effective,
				Isha:    effective,
				Witr:    effective,
			},
			TravelPrayers: models.TravelPrayers{
				DhuhrSafar: travel.TotalTravelDays,
				AsrSafar:   travel.TotalTravelDays,
				IshaSafar:  travel.TotalTravelDays,
			},
		},
		RepaymentProgress: models.RepaymentProgress{LastUpdated: &updated},
	}, nil
}

// ApplyProgress adds made-up prayers to the snapshot. Negative deltas are
// rejected; counts never exceed what was missed.
func ApplyProgress(debt *models.PrayerDebt, completed models.PrayerCounts, now time.Time) error {
	for _, n := range []int{completed.Fajr, completed.Dhuhr, completed.Asr, completed.Maghrib, completed.Isha, completed.Witr} {
		if n < 0 {
			return apperrors.New(apperrors.ErrValidation, "completed prayer counts must not be negative")
		}
	}

	missed := debt.DebtCalculation.MissedPrayers
	sum := debt.RepaymentProgress.CompletedPrayers.Add(completed)
	debt.RepaymentProgress.CompletedPrayers = models.PrayerCounts{
		Fajr:    min(sum.Fajr, missed.Fajr),
		Dhuhr:   min(sum.Dhuhr, missed.Dhuhr),
		Asr:     min(sum.Asr, missed.Asr),
		Maghrib: min(sum.Maghrib, missed.Maghrib),
		Isha:    min(sum.Isha, missed.Isha),
		Witr:    min(sum.Witr, missed.Witr),
	}
	updated := now.UTC().Format(timestampLayout)
	debt.RepaymentProgress.LastUpdated = &updated
	return nil
}

// Remaining returns the prayers still owed.
func Remaining(debt *models.PrayerDebt) models.PrayerCounts {
	m := debt.DebtCalculation.MissedPrayers
	c := debt.RepaymentProgress.CompletedPrayers
	return models.PrayerCounts{
		Fajr:    max(0, m.Fajr-c.Fajr),
		Dhuhr:   max(0, m.Dhuhr-c.Dhuhr),
		Asr:     max(0, m.Asr-c.Asr),
		Maghrib: max(0, m.Maghrib-c.Maghrib),
		Isha:    max(0, m.Isha-c.Isha),
		Witr:    max(0, m.Witr-c.Witr),
	}
}

// Total sums all six counters.
func Total(c models.PrayerCounts) int {
	return c.Fajr + c.Dhuhr + c.Asr + c.Maghrib + c.Isha + c.Witr
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
