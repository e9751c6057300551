package plans

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-yaml"
)

// Unlimited - сентинел "без лимита" для квот тарифа.
// Это отдельное значение, а не "очень большое число".
const Unlimited = -1

var ErrPlanNotFound = errors.New("plan not found")

// Plan - тариф подписки
type Plan struct {
	Code          string `yaml:"code"`
	Title         string `yaml:"title"`
	Price         int    `yaml:"price"`
	DurationDays  int    `yaml:"duration_days"`
	MaxRequests   int    `yaml:"max_requests"`
	MaxImages     int    `yaml:"max_images"`
	MaxMessageLen int    `yaml:"max_message_len"`
}

// UnlimitedRequests сообщает, безлимитен ли тариф по запросам.
func (p Plan) UnlimitedRequests() bool {
	return p.MaxRequests == Unlimited
}

// UnlimitedImages сообщает, безлимитен ли тариф по изображениям.
func (p Plan) UnlimitedImages() bool {
	return p.MaxImages == Unlimited
}

// PricePerDay - стоимость одного дня тарифа.
// Валидный каталог гарантирует DurationDays > 0.
func (p Plan) PricePerDay() float64 {
	return float64(p.Price) / float64(p.DurationDays)
}

// Catalog - неизменяемый набор тарифов, загружается при старте.
type Catalog struct {
	byCode map[string]Plan
	order  []string
}

// Default возвращает встроенный каталог тарифов.
func Default() *Catalog {
	c, _ := New([]Plan{
		{Code: "pro_lite", Title: "Pro Lite", Price: 499, DurationDays: 10,
			MaxRequests: 1000, MaxImages: 20, MaxMessageLen: 4000},
		{Code: "pro_plus", Title: "Pro Plus", Price: 1290, DurationDays: 30,
			MaxRequests: Unlimited, MaxImages: 30, MaxMessageLen: 32000},
		{Code: "pro_premium", Title: "Pro Premium", Price: 2990, DurationDays: 90,
			MaxRequests: Unlimited, MaxImages: 50, MaxMessageLen: 32000},
	})
	return c
}

// New собирает каталог и валидирует его.
// Нулевая длительность или цена - фатальная ошибка конфигурации:
// лучше не стартовать, чем делить на ноль при перерасчете.
func New(list []Plan) (*Catalog, error) {
	c := &Catalog{byCode: make(map[string]Plan, len(list))}
	for _, p := range list {
		if p.Code == "" {
			return nil, fmt.Errorf("plan without code: %+v", p)
		}
		if _, dup := c.byCode[p.Code]; dup {
			return nil, fmt.Errorf("duplicate plan code %q", p.Code)
		}
		if p.Price <= 0 {
			return nil, fmt.Errorf("plan %q: price must be positive, got %d", p.Code, p.Price)
		}
		if p.DurationDays <= 0 {
			return nil, fmt.Errorf("plan %q: duration must be positive, got %d", p.Code, p.DurationDays)
		}
		if p.MaxRequests < Unlimited || p.MaxImages < Unlimited {
			return nil, fmt.Errorf("plan %q: negative quota", p.Code)
		}
		c.byCode[p.Code] = p
		c.order = append(c.order, p.Code)
	}
	if len(c.order) == 0 {
		return nil, errors.New("empty plan catalog")
	}
	return c, nil
}

// LoadFile загружает каталог из YAML-файла.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}
	var file struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	return New(file.Plans)
}

// Get возвращает тариф по коду.
func (c *Catalog) Get(code string) (Plan, error) {
	p, ok := c.byCode[code]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrPlanNotFound, code)
	}
	return p, nil
}

// Paid возвращает все тарифы, отсортированные по цене.
func (c *Catalog) Paid() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, code := range c.order {
		out = append(out, c.byCode[code])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}
