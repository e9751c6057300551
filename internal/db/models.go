package db

import "time"

// User - пользователи
type User struct {
	TgID       int64 `gorm:"primaryKey"`
	Username   string
	FirstName  string
	LastName   string
	RefCode    string `gorm:"uniqueIndex"`
	ReferredBy *int64
	Blocked    bool      `gorm:"default:false"`
	CreatedAt  time.Time `gorm:"default:CURRENT_TIMESTAMP"`

	// Relations
	Referrer *User `gorm:"foreignKey:ReferredBy;references:TgID"`
}

// Subscription - подписка пользователя (одна на пользователя).
// PlanCode == nil вместе с IsTrial означает триал.
// Запись никогда не удаляется, только перезаписываются поля.
type Subscription struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    int64  `gorm:"uniqueIndex;not null"`
	PlanCode  *string
	IsTrial   bool `gorm:"default:true"`
	ExpiresAt *time.Time

	// Relations
	User User `gorm:"foreignKey:UserID;references:TgID"`
}

// Active сообщает, действует ли подписка в момент now.
func (s *Subscription) Active(now time.Time) bool {
	return s != nil && s.ExpiresAt != nil && s.ExpiresAt.After(now)
}

// Usage - счётчики потребления за текущий период подписки.
// Только растут; обнуляются целиком при активации платного тарифа.
type Usage struct {
	ID           uint  `gorm:"primaryKey"`
	UserID       int64 `gorm:"uniqueIndex;not null"`
	UsedRequests int   `gorm:"default:0"`
	UsedImages   int   `gorm:"default:0"`

	// Relations
	User User `gorm:"foreignKey:UserID;references:TgID"`
}

// Payment - платежи. ProviderPaymentID - внешний id транзакции,
// он же ключ идемпотентности сверки.
type Payment struct {
	ID                uint      `gorm:"primaryKey"`
	UserID            int64     `gorm:"index;not null"`
	Provider          string    `gorm:"not null"`
	ProviderPaymentID string    `gorm:"uniqueIndex;not null"`
	PlanCode          string    `gorm:"not null"`
	Amount            int       `gorm:"not null"`
	Status            string    `gorm:"default:'pending';check:status IN ('pending','succeeded','canceled','expired')"`
	CreatedAt         time.Time `gorm:"default:CURRENT_TIMESTAMP"`

	// Relations
	User User `gorm:"foreignKey:UserID;references:TgID"`
}
