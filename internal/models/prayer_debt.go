package models

import "encoding/json"

// Madhab is the school of jurisprudence used for calculations.
type Madhab string

const (
	MadhabHanafi  Madhab = "hanafi"
	MadhabShafi   Madhab = "shafi"
	MadhabMaliki  Madhab = "maliki"
	MadhabHanbali Madhab = "hanbali"
)

// PersonalData is the calculator input describing the person.
type PersonalData struct {
	BirthDate       string `json:"birth_date"`
	Gender          string `json:"gender"` // male, female
	BulughAge       int    `json:"bulugh_age,omitempty"`
	BulughDate      string `json:"bulugh_date,omitempty"`
	PrayerStartDate string `json:"prayer_start_date,omitempty"`
	TodayAsStart    bool   `json:"today_as_start"`
}

// WomenData holds the exclusion periods that only apply to women.
type WomenData struct {
	HaidDaysPerMonth       int `json:"haid_days_per_month"`
	ChildbirthCount        int `json:"childbirth_count"`
	NifasDaysPerChildbirth int `json:"nifas_days_per_childbirth"`
}

// TravelPeriod is one stretch of travel.
type TravelPeriod struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	DaysCount int    `json:"days_count"`
}

// TravelData aggregates travel periods.
type TravelData struct {
	TotalTravelDays int            `json:"total_travel_days"`
	TravelPeriods   []TravelPeriod `json:"travel_periods"`
}

// PrayerCounts has one counter per obligatory prayer plus witr.
type PrayerCounts struct {
	Fajr    int `json:"fajr"`
	Dhuhr   int `json:"dhuhr"`
	Asr     int `json:"asr"`
	Maghrib int `json:"maghrib"`
	Isha    int `json:"isha"`
	Witr    int `json:"witr"`
}

// Add returns the element-wise sum of c and o.
func (c PrayerCounts) Add(o PrayerCounts) PrayerCounts {
	return PrayerCounts{
		Fajr:    c.Fajr + o.Fajr,
		Dhuhr:   c.Dhuhr + o.Dhuhr,
		Asr:     c.Asr + o.Asr,
		Maghrib: c.Maghrib + o.Maghrib,
		Isha:    c.Isha + o.Isha,
		Witr:    c.Witr + o.Witr,
	}
}

// TravelPrayers counts shortened (safar) prayers.
type TravelPrayers struct {
	DhuhrSafar int `json:"dhuhr_safar"`
	AsrSafar   int `json:"asr_safar"`
	IshaSafar  int `json:"isha_safar"`
}

// Period is an inclusive date range in RFC 3339.
type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DebtCalculation is the output of the missed-prayer calculator.
type DebtCalculation struct {
	Period        Period        `json:"period"`
	TotalDays     int           `json:"total_days"`
	ExcludedDays  int           `json:"excluded_days"`
	EffectiveDays int           `json:"effective_days"`
	MissedPrayers PrayerCounts  `json:"missed_prayers"`
	TravelPrayers TravelPrayers `json:"travel_prayers"`
}

// RepaymentProgress tracks made-up prayers.
type RepaymentProgress struct {
	CompletedPrayers PrayerCounts `json:"completed_prayers"`
	LastUpdated      *string      `json:"last_updated"`
}

// PrayerDebt is a full calculation snapshot for one user.
type PrayerDebt struct {
	UserID            string            `json:"user_id,omitempty"`
	CalcVersion       string            `json:"calc_version"`
	Madhab            Madhab            `json:"madhab"`
	CalculationMethod string            `json:"calculation_method"` // manual, calculator
	PersonalData      PersonalData      `json:"personal_data"`
	WomenData         *WomenData        `json:"women_data"`
	TravelData        TravelData        `json:"travel_data"`
	DebtCalculation   DebtCalculation   `json:"debt_calculation"`
	RepaymentProgress RepaymentProgress `json:"repayment_progress"`
}

// PrayerDebtProgress is the body of PATCH /api/prayer-debt/progress and the
// payload of a prayer_debt_update offline event.
type PrayerDebtProgress struct {
	UserID           string       `json:"user_id,omitempty"`
	CompletedPrayers PrayerCounts `json:"completed_prayers"`
}

// CachedPrayerDebt is a row of prayer_debt_cache: the snapshot is kept as the
// JSON the server returned.
type CachedPrayerDebt struct {
	UserID   string          `db:"user_id" json:"user_id"`
	Snapshot json.RawMessage `db:"snapshot" json:"snapshot"`
	CachedAt int64           `db:"cached_at" json:"cached_at"`
}

// TableName returns the table name for CachedPrayerDebt.
func (CachedPrayerDebt) TableName() string {
	return "prayer_debt_cache"
}
