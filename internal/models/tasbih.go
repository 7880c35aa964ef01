package models

// PrayerSegment ties a tasbih session to one of the daily prayers.
type PrayerSegment string

const (
	PrayerSegmentFajr    PrayerSegment = "fajr"
	PrayerSegmentDhuhr   PrayerSegment = "dhuhr"
	PrayerSegmentAsr     PrayerSegment = "asr"
	PrayerSegmentMaghrib PrayerSegment = "maghrib"
	PrayerSegmentIsha    PrayerSegment = "isha"
	PrayerSegmentNone    PrayerSegment = "none"
)

// TasbihSession is the last known counter session, cached so the counter can
// resume while offline.
type TasbihSession struct {
	ID            string        `db:"id" json:"id"`
	UserID        string        `db:"user_id" json:"user_id,omitempty"`
	GoalID        string        `db:"goal_id" json:"goal_id,omitempty"`
	Category      string        `db:"category" json:"category"`
	Count         int           `db:"count" json:"count"`
	Target        int           `db:"target" json:"target,omitempty"`
	IsReverse     bool          `db:"is_reverse" json:"is_reverse"`
	PrayerSegment PrayerSegment `db:"prayer_segment" json:"prayer_segment,omitempty"`
	StartedAt     string        `db:"started_at" json:"started_at,omitempty"`
	SavedAt       int64         `db:"saved_at" json:"saved_at"`
}

// TableName returns the table name for TasbihSession.
func (TasbihSession) TableName() string {
	return "tasbih_sessions"
}

// TapRequest is the body of POST /api/v1/counter/tap and the payload of a
// dhikr_tap offline event.
type TapRequest struct {
	SessionID     string        `json:"session_id"`
	Delta         int           `json:"delta"`
	EventType     string        `json:"event_type"`
	OfflineID     string        `json:"offline_id,omitempty"`
	PrayerSegment PrayerSegment `json:"prayer_segment,omitempty"`
	Category      string        `json:"category,omitempty"`
	ValueAfter    int           `json:"value_after,omitempty"`
}

// DailyAzkar is the per-prayer dhikr tally for one local day.
type DailyAzkar struct {
	Fajr       int  `json:"fajr"`
	Dhuhr      int  `json:"dhuhr"`
	Asr        int  `json:"asr"`
	Maghrib    int  `json:"maghrib"`
	Isha       int  `json:"isha"`
	Total      int  `json:"total"`
	IsComplete bool `json:"is_complete"`
}

// TapResponse is returned by the counter endpoint.
type TapResponse struct {
	ValueAfter   int                    `json:"value_after"`
	GoalProgress map[string]interface{} `json:"goal_progress"`
	DailyAzkar   DailyAzkar             `json:"daily_azkar"`
}
