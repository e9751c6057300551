package subscription

import (
	"time"

	"duck-bot/internal/plans"
)

// Activation - результат перерасчёта подписки. Разбивка по дням
// нужна для чека пользователю и аналитики.
type Activation struct {
	OldPlan *plans.Plan
	NewPlan plans.Plan

	LeftoverDays     float64 // остаток по времени на старом тарифе
	ConvertedDays    float64 // дни нового тарифа за неиспользованную стоимость старого
	BonusRequestDays float64 // бонус за неизрасходованные запросы
	BonusImageDays   float64 // бонус за неизрасходованные изображения
	TotalDays        float64
	ExpiresAt        time.Time
}

// Prorate - честный перерасчёт при смене тарифа.
//
// Два случая:
//  1. Старого платного тарифа нет (подписки не было, триал, истёк) -
//     просто выдаём новый срок, без конвертаций и бонусов.
//  2. Старый платный тариф ещё действует - неиспользованный остаток
//     времени конвертируется в дни нового тарифа по его цене за день,
//     плюс за каждую конечную квоту старого тарифа начисляется бонус
//     пропорционально неизрасходованной доле. Пользователь не теряет
//     оплаченную ценность при переходе, она выражается в днях.
//
// Функция чистая: одинаковые входы и now дают одинаковый результат,
// повторный запуск сверки не накапливает дни.
func Prorate(oldPlan *plans.Plan, expiresAt *time.Time, usedRequests, usedImages int, newPlan plans.Plan, now time.Time) Activation {
	if oldPlan == nil || expiresAt == nil || !expiresAt.After(now) {
		total := float64(newPlan.DurationDays)
		return Activation{
			NewPlan:   newPlan,
			TotalDays: total,
			ExpiresAt: now.Add(days(total)),
		}
	}

	oldDuration := float64(oldPlan.DurationDays)

	rawLeftover := expiresAt.Sub(now).Hours() / 24.0
	leftover := clamp(rawLeftover, 0, oldDuration)

	// Остаток стоимости старого тарифа в днях нового
	converted := leftover * oldPlan.PricePerDay() / newPlan.PricePerDay()

	bonusReq := quotaBonus(oldPlan.MaxRequests, usedRequests, newPlan.DurationDays)
	bonusImg := quotaBonus(oldPlan.MaxImages, usedImages, newPlan.DurationDays)

	total := float64(newPlan.DurationDays) + converted + bonusReq + bonusImg

	return Activation{
		OldPlan:          oldPlan,
		NewPlan:          newPlan,
		LeftoverDays:     leftover,
		ConvertedDays:    converted,
		BonusRequestDays: bonusReq,
		BonusImageDays:   bonusImg,
		TotalDays:        total,
		ExpiresAt:        now.Add(days(total)),
	}
}

// quotaBonus - бонусные дни за неизрасходованную долю конечной квоты.
// Безлимит не даёт бонуса: доля не определена.
func quotaBonus(limit, used, newDurationDays int) float64 {
	if limit == plans.Unlimited || limit <= 0 {
		return 0
	}
	unused := limit - used
	if unused < 0 {
		unused = 0
	}
	return float64(unused) / float64(limit) * float64(newDurationDays)
}

// days переводит дробные дни в time.Duration.
// Дробная часть сохраняется; округление - дело форматирования чека.
func days(d float64) time.Duration {
	return time.Duration(d * 24 * float64(time.Hour))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
