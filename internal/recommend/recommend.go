// Package recommend derives goal suggestions and motivation from a user's
// recent activity. The rules are fixed; there is no model behind them.
package recommend

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Type classifies a recommendation.
type Type string

const (
	TypeGoalSuggestion Type = "goal_suggestion"
	TypeMotivation     Type = "motivation"
	TypeInsight        Type = "insight"
	TypeWarning        Type = "warning"
)

// Priority orders recommendations, high first.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// ProfileGoal is a goal as seen by the analysis.
type ProfileGoal struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Target    int    `json:"target"`
	Current   int    `json:"current"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// DhikrEntry is one day's count in one category.
type DhikrEntry struct {
	Date     string `json:"date"`
	Count    int    `json:"count"`
	Category string `json:"category"`
}

// PrayerEntry records whether a prayer day was completed.
type PrayerEntry struct {
	Date      string `json:"date"`
	Completed bool   `json:"completed"`
}

// Profile is the analysis input. Histories are oldest first.
type Profile struct {
	Goals         []ProfileGoal `json:"goals"`
	DhikrHistory  []DhikrEntry  `json:"dhikr_history"`
	PrayerHistory []PrayerEntry `json:"prayer_history"`
	Streak        int           `json:"streak"`
}

// GoalData is a prefilled goal the client can create in one tap.
type GoalData struct {
	Category    string `json:"category"`
	TargetCount int    `json:"target_count"`
	PeriodType  string `json:"period_type"`
}

// Action is an optional call to action.
type Action struct {
	Label    string    `json:"label"`
	GoalData *GoalData `json:"goalData,omitempty"`
}

// Recommendation is one card shown to the user.
type Recommendation struct {
	Type     Type     `json:"type"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Action   *Action  `json:"action,omitempty"`
	Priority Priority `json:"priority"`
}

// Insights summarizes a profile.
type Insights struct {
	MostActiveCategory string   `json:"most_active_category"`
	AverageDailyDhikr  int      `json:"average_daily_dhikr"`
	Consistency        float64  `json:"consistency"`
	StrongAreas        []string `json:"strong_areas"`
	WeakAreas          []string `json:"weak_areas"`
}

// defaultWindowDays is the consistency denominator when there is no prayer history.
const defaultWindowDays = 30

type categoryScore struct {
	name  string
	value float64
}

// sortScores orders by value descending, then name, so equal scores are stable
// across calls.
func sortScores(scores []categoryScore) {
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].value != scores[j].value {
			return scores[i].value > scores[j].value
		}
		return scores[i].name < scores[j].name
	})
}

// Analyze computes the activity insights of a profile.
func Analyze(p Profile) Insights {
	ins := Insights{StrongAreas: []string{}, WeakAreas: []string{}}

	totals := map[string]int{}
	entries := map[string]int{}
	days := map[string]struct{}{}
	total := 0
	for _, e := range p.DhikrHistory {
		totals[e.Category] += e.Count
		entries[e.Category]++
		days[e.Date] = struct{}{}
		total += e.Count
	}

	byTotal := make([]categoryScore, 0, len(totals))
	byAverage := make([]categoryScore, 0, len(totals))
	for cat, n := range totals {
		byTotal = append(byTotal, categoryScore{cat, float64(n)})
		byAverage = append(byAverage, categoryScore{cat, float64(n) / float64(entries[cat])})
	}
	sortScores(byTotal)
	sortScores(byAverage)

	if len(byTotal) > 0 {
		ins.MostActiveCategory = byTotal[0].name
	}
	if len(days) > 0 {
		ins.AverageDailyDhikr = int(math.Round(float64(total) / float64(len(days))))
	}

	window := len(p.PrayerHistory)
	if window == 0 {
		window = defaultWindowDays
	}
	ins.Consistency = float64(len(days)) / float64(window) * 100

	for i := 0; i < len(byAverage) && i < 2; i++ {
		ins.StrongAreas = append(ins.StrongAreas, byAverage[i].name)
	}
	for i := max(0, len(byAverage)-2); i < len(byAverage); i++ {
		ins.WeakAreas = append(ins.WeakAreas, byAverage[i].name)
	}
	return ins
}

// Generate returns the recommendations for a profile, high priority first.
func Generate(p Profile) []Recommendation {
	ins := Analyze(p)
	recs := []Recommendation{}

	if ins.MostActiveCategory != "" && ins.AverageDailyDhikr > 0 {
		target := ins.AverageDailyDhikr * 30
		recs = append(recs, Recommendation{
			Type:  TypeGoalSuggestion,
			Title: "A new goal for you",
			Message: fmt.Sprintf("You steadily make %d dhikr a day in %q. Set a goal of %d for the month?",
				ins.AverageDailyDhikr, ins.MostActiveCategory, target),
			Action: &Action{
				Label:    "Create goal",
				GoalData: &GoalData{Category: ins.MostActiveCategory, TargetCount: target, PeriodType: "monthly"},
			},
			Priority: PriorityMedium,
		})
	}

	if ins.Consistency < 50 {
		recs = append(recs, Recommendation{
			Type:  TypeWarning,
			Title: "Be more regular",
			Message: fmt.Sprintf("You were active on %d%% of days. Try a little every day: small constant deeds bring great results.",
				int(math.Round(ins.Consistency))),
			Priority: PriorityHigh,
		})
	}

	if len(ins.WeakAreas) > 0 {
		weak := ins.WeakAreas[0]
		recs = append(recs, Recommendation{
			Type:    TypeGoalSuggestion,
			Title:   "Grow your weaker practices",
			Message: fmt.Sprintf("You rarely practise %q. Start small: %q twice a week?", weak, weak),
			Action: &Action{
				Label:    "Create goal",
				GoalData: &GoalData{Category: weak, TargetCount: 2, PeriodType: "weekly"},
			},
			Priority: PriorityLow,
		})
	}

	if p.Streak >= 7 {
		recs = append(recs, Recommendation{
			Type:     TypeMotivation,
			Title:    "Great streak!",
			Message:  fmt.Sprintf("%d days in a row. Masha'Allah, keep going!", p.Streak),
			Priority: PriorityHigh,
		})
	}

	if len(ins.StrongAreas) > 0 {
		recs = append(recs, Recommendation{
			Type:     TypeInsight,
			Title:    "Your strengths",
			Message:  fmt.Sprintf("You are especially active in %q. Keep developing these practices.", strings.Join(ins.StrongAreas, `" and "`)),
			Priority: PriorityLow,
		})
	}

	for _, pr := range p.PrayerHistory {
		if !pr.Completed {
			recs = append(recs, Recommendation{
				Type:     TypeGoalSuggestion,
				Title:    "Make up missed prayers",
				Message:  "You have missed prayers. Calculate your debt and start making them up.",
				Action:   &Action{Label: "Calculate debt"},
				Priority: PriorityHigh,
			})
			break
		}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority.rank() > recs[j].Priority.rank()
	})
	return recs
}

// Trend is the week-over-week direction of dhikr activity.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// TrendResult is the outcome of AnalyzeTrends.
type TrendResult struct {
	Trend   Trend  `json:"trend"`
	Message string `json:"message"`
}

// AnalyzeTrends compares the average of the last seven entries with the seven
// before them. A change beyond ten percent either way is a trend.
func AnalyzeTrends(p Profile) TrendResult {
	h := p.DhikrHistory
	if len(h) < 7 {
		return TrendResult{Trend: TrendStable, Message: "Not enough data to analyse the trend."}
	}

	recent := h[len(h)-7:]
	older := h[max(0, len(h)-14) : len(h)-7]

	recentAvg := average(recent)
	olderAvg := recentAvg
	if len(older) > 0 {
		olderAvg = average(older)
	}

	var change float64
	switch {
	case olderAvg == 0 && recentAvg == 0:
		change = 0
	case olderAvg == 0:
		change = 100
	default:
		change = (recentAvg - olderAvg) / olderAvg * 100
	}

	switch {
	case change > 10:
		return TrendResult{Trend: TrendImproving, Message: fmt.Sprintf("Your activity grew by %d%% over the last week!", int(math.Round(change)))}
	case change < -10:
		return TrendResult{Trend: TrendDeclining, Message: fmt.Sprintf("Your activity dropped by %d%%. Don't stop!", int(math.Round(-change)))}
	default:
		return TrendResult{Trend: TrendStable, Message: "You are keeping a steady pace. Keep it up!"}
	}
}

func average(entries []DhikrEntry) float64 {
	sum := 0
	for _, e := range entries {
		sum += e.Count
	}
	return float64(sum) / float64(len(entries))
}

var encouragements = []string{
	"Every action brings you closer to the goal. Keep going!",
	"Small steps lead to great results. Don't stop!",
	"May Allah accept your efforts and reward you!",
	"You are on the right path. Keep at it!",
}

// MotivationalMessage returns a message for a goal at progress percent.
// Past half way the message is fixed; below it one of the encouragements is
// picked from the progress value so the same input always reads the same.
func MotivationalMessage(progress float64, goalTitle string) string {
	pct := math.Round(progress)
	switch {
	case pct >= 100:
		return fmt.Sprintf("Congratulations! Goal %q is complete. Masha'Allah!", goalTitle)
	case pct >= 50:
		return "You are half way there. May Allah strengthen you!"
	}
	idx := int(math.Max(0, math.Floor(progress))) % len(encouragements)
	return encouragements[idx]
}
