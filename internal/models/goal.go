package models

// GoalCategory groups goals by devotional practice.
type GoalCategory string

const (
	GoalCategoryPrayer    GoalCategory = "prayer"
	GoalCategoryQuran     GoalCategory = "quran"
	GoalCategoryZikr      GoalCategory = "zikr"
	GoalCategorySadaqa    GoalCategory = "sadaqa"
	GoalCategoryKnowledge GoalCategory = "knowledge"
	GoalCategoryNames99   GoalCategory = "names99"
)

// GoalStatus is the lifecycle state of a goal.
type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "active"
	GoalStatusCompleted GoalStatus = "completed"
	GoalStatusPaused    GoalStatus = "paused"
	GoalStatusArchived  GoalStatus = "archived"
)

// Goal is a user goal as returned by the goals API and kept in goals_cache.
type Goal struct {
	ID                string       `db:"id" json:"id"`
	UserID            string       `db:"user_id" json:"user_id"`
	Category          GoalCategory `db:"category" json:"category"`
	ItemID            string       `db:"item_id" json:"item_id,omitempty"`
	GoalType          string       `db:"goal_type" json:"goal_type"` // recite, learn
	TargetCount       int          `db:"target_count" json:"target_count"`
	Progress          int          `db:"progress" json:"progress"`
	Status            GoalStatus   `db:"status" json:"status"`
	LinkedCounterType string       `db:"linked_counter_type" json:"linked_counter_type,omitempty"`
	CreatedAt         string       `db:"created_at" json:"created_at"`
	CompletedAt       string       `db:"completed_at" json:"completed_at,omitempty"`
	CachedAt          int64        `db:"cached_at" json:"cached_at,omitempty"`
}

// TableName returns the table name for cached goals.
func (Goal) TableName() string {
	return "goals_cache"
}
