package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/utilitysplit/pkg/enums"
)

// BillingCycle is one bill split across a frozen roster.
type BillingCycle struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	TotalAmount    decimal.Decimal `gorm:"column:total_amount;type:numeric(14,2);not null"`
	SplitAmount    decimal.Decimal `gorm:"column:split_amount;type:numeric(24,10);not null"`
	DueDate        time.Time       `gorm:"column:due_date;not null"`
	IsActive       bool            `gorm:"column:is_active;not null"`
	LateFeeApplied bool            `gorm:"column:late_fee_applied;not null"`
	CreatedBy      string          `gorm:"column:created_by;not null"`
	ClosedAt       *time.Time      `gorm:"column:closed_at"`
	Version        int64           `gorm:"column:version;not null"`
	Roster         []CycleMember   `gorm:"foreignKey:CycleID;references:ID"`
	Payments       []CyclePayment  `gorm:"foreignKey:CycleID;references:ID"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// OnRoster reports whether memberID was frozen into the cycle's roster.
func (c BillingCycle) OnRoster(memberID string) bool {
	for _, entry := range c.Roster {
		if entry.MemberID == memberID {
			return true
		}
	}
	return false
}

// PaymentFor returns the payment recorded for memberID, if any.
func (c BillingCycle) PaymentFor(memberID string) *CyclePayment {
	for i := range c.Payments {
		if c.Payments[i].MemberID == memberID {
			return &c.Payments[i]
		}
	}
	return nil
}

// HasReference reports whether a payment with the given reference exists.
func (c BillingCycle) HasReference(reference string) bool {
	for _, p := range c.Payments {
		if p.Reference == reference {
			return true
		}
	}
	return false
}

// CycleMember is a roster entry snapshotted when the cycle was created.
type CycleMember struct {
	CycleID     uuid.UUID `gorm:"column:cycle_id;type:uuid;primaryKey"`
	MemberID    string    `gorm:"column:member_id;primaryKey"`
	DisplayName string    `gorm:"column:display_name;not null"`
	Handle      *string   `gorm:"column:handle"`
	Position    int       `gorm:"column:position;not null"`
}

func (CycleMember) TableName() string { return "billing_cycle_members" }

// Mention renders the roster entry the way chat messages address members.
func (m CycleMember) Mention() string {
	if m.Handle != nil && *m.Handle != "" {
		return "@" + *m.Handle
	}
	return m.DisplayName
}

// CyclePayment is an append-only record of a member settling their share.
type CyclePayment struct {
	ID         uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CycleID    uuid.UUID           `gorm:"column:cycle_id;type:uuid;not null"`
	MemberID   string              `gorm:"column:member_id;not null"`
	Amount     decimal.Decimal     `gorm:"column:amount;type:numeric(24,10);not null"`
	Reference  string              `gorm:"column:reference;not null"`
	Source     enums.PaymentSource `gorm:"column:source;not null"`
	RecordedBy *string             `gorm:"column:recorded_by"`
	PaidAt     time.Time           `gorm:"column:paid_at;not null"`
}
