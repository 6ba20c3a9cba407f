package models

import (
	"time"

	"github.com/angelmondragon/utilitysplit/pkg/enums"
)

// Member is a household participant identified by their messaging platform id.
type Member struct {
	MemberID    string           `gorm:"column:member_id;primaryKey"`
	DisplayName string           `gorm:"column:display_name;not null"`
	Handle      *string          `gorm:"column:handle"`
	Role        enums.MemberRole `gorm:"column:role;not null"`
	IsActive    bool             `gorm:"column:is_active;not null"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// IsAdmin reports whether the member holds the administrator role.
func (m Member) IsAdmin() bool {
	return m.Role == enums.MemberRoleAdmin
}

// Mention renders the member the way chat messages address them.
func (m Member) Mention() string {
	if m.Handle != nil && *m.Handle != "" {
		return "@" + *m.Handle
	}
	return m.DisplayName
}
