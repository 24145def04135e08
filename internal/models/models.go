package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FreeStorageRuleKind selects how a free-storage rule is evaluated.
type FreeStorageRuleKind string

const (
	// RulePerPeriod grants FreeDays for every PerBilledDays billed days.
	RulePerPeriod FreeStorageRuleKind = "per_period"
	// RuleThreshold grants FreeDays once the stay reaches MinStayDays.
	RuleThreshold FreeStorageRuleKind = "threshold"
)

type FreeStorageRule struct {
	Kind          FreeStorageRuleKind `json:"kind" yaml:"kind"`
	FreeDays      int                 `json:"free_days" yaml:"free_days"`
	PerBilledDays int                 `json:"per_billed_days,omitempty" yaml:"per_billed_days"`
	MinStayDays   int                 `json:"min_stay_days,omitempty" yaml:"min_stay_days"`
}

// PricingTable is what a warehouse publishes. Nil fields are unpublished.
type PricingTable struct {
	WarehouseID       int64            `json:"warehouse_id" yaml:"warehouse_id"`
	PalletInFee       *decimal.Decimal `json:"pallet_in_fee,omitempty" yaml:"pallet_in_fee"`
	PalletPerDay      *decimal.Decimal `json:"pallet_per_day,omitempty" yaml:"pallet_per_day"`
	PalletPerMonth    *decimal.Decimal `json:"pallet_per_month,omitempty" yaml:"pallet_per_month"`
	AreaAnnualPerSqFt *decimal.Decimal `json:"area_annual_per_sq_ft,omitempty" yaml:"area_annual_per_sq_ft"`
	MinAreaSqFt       *decimal.Decimal `json:"min_area_sq_ft,omitempty" yaml:"min_area_sq_ft"`
	Services          []ServiceOffer   `json:"services,omitempty" yaml:"services"`
}

// Service looks up a catalog entry by id.
func (p *PricingTable) Service(id string) (ServiceOffer, bool) {
	if p == nil {
		return ServiceOffer{}, false
	}
	for _, s := range p.Services {
		if s.ID == id {
			return s, true
		}
	}
	return ServiceOffer{}, false
}

// ServiceOffer is an add-on service in a warehouse catalog.
type ServiceOffer struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	PricingType PricingType     `json:"pricing_type" yaml:"pricing_type"`
	BasePrice   decimal.Decimal `json:"base_price" yaml:"base_price"`
}

type Warehouse struct {
	ID        int64     `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Timezone  string    `json:"timezone,omitempty" yaml:"timezone"`
	IsActive  bool      `json:"is_active" yaml:"is_active"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// Location returns the warehouse time zone, or fallback when the zone is
// unset or unknown.
func (w *Warehouse) Location(fallback *time.Location) *time.Location {
	if w == nil || w.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}

// Slot is a drop-off window offered to the customer.
type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

type BookingApproval struct {
	ID           int64          `json:"id"`
	BookingID    int64          `json:"booking_id"`
	RequesterID  int64          `json:"requester_id"`
	ApproverID   int64          `json:"approver_id"`
	Status       ApprovalStatus `json:"status"`
	Message      string         `json:"message,omitempty"`
	ResponseNote string         `json:"response_note,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	RespondedAt  *time.Time     `json:"responded_at,omitempty"`
}

// ApprovalCounts aggregates approvals by status.
type ApprovalCounts struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// Add counts one approval with the given status.
func (c *ApprovalCounts) Add(status ApprovalStatus) {
	switch status {
	case ApprovalPending:
		c.Pending++
	case ApprovalApproved:
		c.Approved++
	case ApprovalRejected:
		c.Rejected++
	}
}

type ApprovalStats struct {
	UserID      int64          `json:"user_id"`
	AsApprover  ApprovalCounts `json:"as_approver"`
	AsRequester ApprovalCounts `json:"as_requester"`
}

// SyncTask represents a queued synchronization job for Sheets.
type SyncTask struct {
	ID          int64      `json:"id"`
	TaskType    string     `json:"task_type"`
	BookingID   int64      `json:"booking_id"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}

// PricingSnapshot is the cached pricing reference data of one warehouse.
type PricingSnapshot struct {
	WarehouseID int64             `json:"warehouse_id"`
	Table       *PricingTable     `json:"table"`
	Rules       []FreeStorageRule `json:"rules"`
	CachedAt    time.Time         `json:"cached_at"`
}
