package plans

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewValidation(t *testing.T) {
	valid := Plan{Code: "basic", Title: "Basic", Price: 100, DurationDays: 10,
		MaxRequests: 100, MaxImages: 10, MaxMessageLen: 4000}

	tests := []struct {
		name    string
		list    []Plan
		wantErr bool
	}{
		{name: "Valid single plan", list: []Plan{valid}, wantErr: false},
		{name: "Empty catalog", list: nil, wantErr: true},
		{
			name: "Missing code",
			list: []Plan{{Title: "Broken", Price: 100, DurationDays: 10}},
			wantErr: true,
		},
		{
			name:    "Duplicate code",
			list:    []Plan{valid, valid},
			wantErr: true,
		},
		{
			name: "Zero price",
			list: []Plan{{Code: "free", Price: 0, DurationDays: 10}},
			wantErr: true,
		},
		{
			name: "Zero duration",
			list: []Plan{{Code: "instant", Price: 100, DurationDays: 0}},
			wantErr: true,
		},
		{
			name: "Quota below sentinel",
			list: []Plan{{Code: "weird", Price: 100, DurationDays: 10, MaxRequests: -2}},
			wantErr: true,
		},
		{
			name: "Unlimited quota allowed",
			list: []Plan{{Code: "unlim", Price: 100, DurationDays: 10,
				MaxRequests: Unlimited, MaxImages: Unlimited}},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.list)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCatalogGet(t *testing.T) {
	c := Default()

	p, err := c.Get("pro_lite")
	if err != nil {
		t.Fatalf("Get(pro_lite) failed: %v", err)
	}
	if p.Price != 499 || p.DurationDays != 10 {
		t.Errorf("pro_lite = %+v, want price 499 duration 10", p)
	}

	_, err = c.Get("nope")
	if !errors.Is(err, ErrPlanNotFound) {
		t.Errorf("Get(nope) error = %v, want ErrPlanNotFound", err)
	}
}

func TestCatalogPaidSortedByPrice(t *testing.T) {
	c := Default()
	paid := c.Paid()
	if len(paid) != 3 {
		t.Fatalf("Paid() returned %d plans, want 3", len(paid))
	}
	for i := 1; i < len(paid); i++ {
		if paid[i-1].Price > paid[i].Price {
			t.Errorf("Paid() not sorted by price: %s (%d) before %s (%d)",
				paid[i-1].Code, paid[i-1].Price, paid[i].Code, paid[i].Price)
		}
	}
}

func TestDefaultCatalogValues(t *testing.T) {
	c := Default()

	plus, err := c.Get("pro_plus")
	if err != nil {
		t.Fatalf("Get(pro_plus) failed: %v", err)
	}
	if !plus.UnlimitedRequests() {
		t.Error("pro_plus must have unlimited requests")
	}
	if plus.UnlimitedImages() {
		t.Error("pro_plus images are limited")
	}
	if got := plus.PricePerDay(); got != 43 {
		t.Errorf("pro_plus PricePerDay = %v, want 43", got)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plans.yaml")
	content := `plans:
  - code: custom
    title: Custom
    price: 777
    duration_days: 7
    max_requests: -1
    max_images: 5
    max_message_len: 8000
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	p, err := c.Get("custom")
	if err != nil {
		t.Fatalf("Get(custom) failed: %v", err)
	}
	if p.Price != 777 || !p.UnlimitedRequests() || p.MaxImages != 5 {
		t.Errorf("loaded plan = %+v", p)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile("/nonexistent/plans.yaml"); err == nil {
		t.Error("LoadFile must fail on missing file")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	os.WriteFile(path, []byte("plans:\n  - code: bad\n    price: 0\n    duration_days: 1\n"), 0644)
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile must reject invalid plan")
	}
}
