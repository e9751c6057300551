package subscription

import (
	"math"
	"testing"
	"time"

	"duck-bot/internal/plans"
)

var (
	proLite = plans.Plan{Code: "pro_lite", Title: "Pro Lite", Price: 499, DurationDays: 10,
		MaxRequests: 1000, MaxImages: 20, MaxMessageLen: 4000}
	proPlus = plans.Plan{Code: "pro_plus", Title: "Pro Plus", Price: 1290, DurationDays: 30,
		MaxRequests: plans.Unlimited, MaxImages: 30, MaxMessageLen: 32000}
	proPremium = plans.Plan{Code: "pro_premium", Title: "Pro Premium", Price: 2990, DurationDays: 90,
		MaxRequests: plans.Unlimited, MaxImages: 50, MaxMessageLen: 32000}
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestProrateCleanActivation(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Hour)

	tests := []struct {
		name      string
		oldPlan   *plans.Plan
		expiresAt *time.Time
	}{
		{name: "No previous subscription", oldPlan: nil, expiresAt: nil},
		{name: "Expired old plan", oldPlan: &proLite, expiresAt: &expired},
		{name: "Old plan without expiry", oldPlan: &proLite, expiresAt: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act := Prorate(tt.oldPlan, tt.expiresAt, 500, 10, proPlus, now)

			if act.TotalDays != 30 {
				t.Errorf("TotalDays = %v, want 30", act.TotalDays)
			}
			if act.ConvertedDays != 0 || act.BonusRequestDays != 0 || act.BonusImageDays != 0 {
				t.Errorf("clean activation must not grant extra days: %+v", act)
			}

			wantExpires := now.AddDate(0, 0, 30)
			if !act.ExpiresAt.Equal(wantExpires) {
				t.Errorf("ExpiresAt = %v, want %v", act.ExpiresAt, wantExpires)
			}
		})
	}
}

// Неиспользованная стоимость старого тарифа, пересчитанная по цене дня
// нового, равна стоимости остатка: пользователь не теряет деньги.
func TestProrateValueConversion(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	planPairs := []struct {
		old, new plans.Plan
	}{
		{proLite, proPlus},
		{proPlus, proLite},
		{proLite, proPremium},
		{proPremium, proLite},
		{proPlus, proPremium},
	}

	for _, pair := range planPairs {
		for leftover := 0; leftover <= pair.old.DurationDays; leftover++ {
			expiresAt := now.Add(time.Duration(leftover) * 24 * time.Hour)
			// Квоты выбраны полностью, чтобы изолировать конвертацию по времени
			act := Prorate(&pair.old, &expiresAt, pair.old.MaxRequests, pair.old.MaxImages, pair.new, now)

			gotValue := act.ConvertedDays * pair.new.PricePerDay()
			wantValue := float64(leftover) * pair.old.PricePerDay()
			if !almostEqual(gotValue, wantValue) {
				t.Errorf("%s->%s leftover=%d: converted value %v, want %v",
					pair.old.Code, pair.new.Code, leftover, gotValue, wantValue)
			}
		}
	}
}

// Бонусные дни не растут с ростом израсходованного: нетронутая квота
// даёт максимум (длительность нового тарифа), исчерпанная - ноль.
func TestProrateQuotaBonusMonotonicity(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	expiresAt := now.Add(5 * 24 * time.Hour)

	prev := math.Inf(1)
	for used := 0; used <= proLite.MaxRequests; used += 50 {
		act := Prorate(&proLite, &expiresAt, used, proLite.MaxImages, proPlus, now)

		if act.BonusRequestDays > prev {
			t.Fatalf("bonus increased at used=%d: %v > %v", used, act.BonusRequestDays, prev)
		}
		prev = act.BonusRequestDays
	}

	full := Prorate(&proLite, &expiresAt, 0, proLite.MaxImages, proPlus, now)
	if !almostEqual(full.BonusRequestDays, float64(proPlus.DurationDays)) {
		t.Errorf("untouched quota bonus = %v, want %d", full.BonusRequestDays, proPlus.DurationDays)
	}

	spent := Prorate(&proLite, &expiresAt, proLite.MaxRequests, proLite.MaxImages, proPlus, now)
	if spent.BonusRequestDays != 0 {
		t.Errorf("exhausted quota bonus = %v, want 0", spent.BonusRequestDays)
	}

	over := Prorate(&proLite, &expiresAt, proLite.MaxRequests+100, proLite.MaxImages, proPlus, now)
	if over.BonusRequestDays != 0 {
		t.Errorf("overspent quota bonus = %v, want 0", over.BonusRequestDays)
	}
}

func TestProrateUnlimitedDimensionNoBonus(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	expiresAt := now.Add(10 * 24 * time.Hour)

	// У pro_plus безлимит запросов: доля не определена, бонуса нет
	act := Prorate(&proPlus, &expiresAt, 0, proPlus.MaxImages, proPremium, now)
	if act.BonusRequestDays != 0 {
		t.Errorf("unlimited dimension bonus = %v, want 0", act.BonusRequestDays)
	}
}

// Одинаковые входы и now дают одинаковый результат: повторная сверка
// того же платежа не накапливает дни.
func TestProrateDeterministic(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	expiresAt := now.Add(4 * 24 * time.Hour)

	first := Prorate(&proLite, &expiresAt, 200, 5, proPlus, now)
	second := Prorate(&proLite, &expiresAt, 200, 5, proPlus, now)

	if !first.ExpiresAt.Equal(second.ExpiresAt) {
		t.Errorf("ExpiresAt differs: %v vs %v", first.ExpiresAt, second.ExpiresAt)
	}
	if first.TotalDays != second.TotalDays {
		t.Errorf("TotalDays differs: %v vs %v", first.TotalDays, second.TotalDays)
	}
}

// Апгрейд pro_lite -> pro_plus: 4 дня остатка, 200 из 1000 запросов,
// изображения выбраны. Конвертация (4*49.9)/43, бонус (800/1000)*30.
func TestProrateUpgradeBreakdown(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	expiresAt := now.Add(4 * 24 * time.Hour)

	act := Prorate(&proLite, &expiresAt, 200, proLite.MaxImages, proPlus, now)

	wantConverted := 4.0 * proLite.PricePerDay() / proPlus.PricePerDay() // ≈ 4.64
	if !almostEqual(act.ConvertedDays, wantConverted) {
		t.Errorf("ConvertedDays = %v, want %v", act.ConvertedDays, wantConverted)
	}

	if !almostEqual(act.BonusRequestDays, 24.0) {
		t.Errorf("BonusRequestDays = %v, want 24", act.BonusRequestDays)
	}
	if act.BonusImageDays != 0 {
		t.Errorf("BonusImageDays = %v, want 0", act.BonusImageDays)
	}

	wantTotal := 30.0 + wantConverted + 24.0
	if !almostEqual(act.TotalDays, wantTotal) {
		t.Errorf("TotalDays = %v, want %v", act.TotalDays, wantTotal)
	}
}

func TestProrateLeftoverClamped(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	// Срок дальше длительности тарифа (после реферальных бонусов):
	// остаток ограничен исходной длительностью
	farFuture := now.Add(50 * 24 * time.Hour)
	act := Prorate(&proLite, &farFuture, proLite.MaxRequests, proLite.MaxImages, proPlus, now)
	if act.LeftoverDays != float64(proLite.DurationDays) {
		t.Errorf("LeftoverDays = %v, want clamped to %d", act.LeftoverDays, proLite.DurationDays)
	}
}
