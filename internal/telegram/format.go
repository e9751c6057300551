package telegram

import (
	"fmt"
	"math"

	"duck-bot/internal/plans"
)

// quotaLabel - человекочитаемая квота; безлимит показываем словом.
func quotaLabel(limit int) string {
	if limit == plans.Unlimited {
		return "безлимит"
	}
	return fmt.Sprintf("%d", limit)
}

// formatDays показывает дробные дни по-человечески: значения в
// пределах двух часов от целого округляются (23.95 -> "24 дн."),
// остальные - с десятой долей.
func formatDays(d float64) string {
	rounded := math.Round(d)
	if math.Abs(d-rounded) < 0.1 {
		return fmt.Sprintf("%d дн.", int(rounded))
	}
	return fmt.Sprintf("%.1f дн.", d)
}
