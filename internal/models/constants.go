package models

// Status is a booking lifecycle status.
type Status string

const (
	StatusPending          Status = "pending"
	StatusPaymentPending   Status = "payment_pending"
	StatusPreOrder         Status = "pre_order"
	StatusAwaitingTimeSlot Status = "awaiting_time_slot"
	StatusConfirmed        Status = "confirmed"
	StatusActive           Status = "active"
	StatusCompleted        Status = "completed"
	StatusCancelled        Status = "cancelled"
	StatusRejected         Status = "rejected"
)

type BookingType string

const (
	BookingTypePallet     BookingType = "pallet"
	BookingTypeAreaRental BookingType = "area_rental"
)

type MembershipTier string

const (
	TierNone   MembershipTier = ""
	TierBronze MembershipTier = "bronze"
	TierSilver MembershipTier = "silver"
	TierGold   MembershipTier = "gold"
)

// Rank orders tiers; unknown tiers rank as none.
func (t MembershipTier) Rank() int {
	switch t {
	case TierBronze:
		return 1
	case TierSilver:
		return 2
	case TierGold:
		return 3
	default:
		return 0
	}
}

type PricingType string

const (
	PricingOneTime   PricingType = "one_time"
	PricingPerPallet PricingType = "per_pallet"
	PricingPerSqFt   PricingType = "per_sqft"
	PricingPerDay    PricingType = "per_day"
	PricingPerMonth  PricingType = "per_month"
)

// Role is the actor role resolved by the auth collaborator.
type Role string

const (
	RoleCustomer  Role = "customer"
	RoleTeamAdmin Role = "team_admin"
	RoleStaff     Role = "staff"
	RoleAdmin     Role = "admin"
	RoleSystem    Role = "system"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

type ApprovalDecision string

const (
	DecisionApprove ApprovalDecision = "approve"
	DecisionReject  ApprovalDecision = "reject"
)

const (
	// DaysPerMonth is the billing month length.
	DaysPerMonth = 30

	// DefaultPricingCacheTTL время жизни кэша тарифов склада
	DefaultPricingCacheTTL = 10 * 60 // 10 минут в секундах

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000

	// RateLimitRequests количество запросов в окне на одного актора
	RateLimitRequests = 120

	// RateLimitWindow окно ограничения частоты запросов
	RateLimitWindow = 60 // 1 минута в секундах
)
