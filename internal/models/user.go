package models

// User is the Telegram user the Mini App runs for.
type User struct {
	ID             int64  `json:"id"`
	TelegramUserID int64  `json:"telegram_user_id"`
	Locale         string `json:"locale"`
	Madhab         Madhab `json:"madhab"`
	TZ             string `json:"tz"`
}

// Bootstrap is the first payload the client loads.
type Bootstrap struct {
	User        User          `json:"user"`
	ActiveGoal  *Goal         `json:"active_goal"`
	DailyAzkar  DailyAzkar    `json:"daily_azkar"`
	RecentItems []interface{} `json:"recent_items"`
	ActiveGoals []Goal        `json:"active_goals"`
	Streak      int           `json:"streak"`
	TotalDhikr  int           `json:"total_dhikr"`
}
