package model

import "time"

// BanType tells apart suspensions applied by an administrator from those
// applied automatically for unpaid debt.
type BanType string

const (
	BanManual   BanType = "MANUAL"
	BanAutoDebt BanType = "AUTO_DEBT"
)

// Ban is a suspension record.  A participant is blocked while at least one
// active ban has no expiry or an expiry in the future.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – suspended participant.
//  Type      – MANUAL or AUTO_DEBT.
//  Reason    – free text shown to the participant and administrators.
//  Until     – optional expiry; nil means indefinite.
//  Active    – cleared when the ban is lifted or superseded.
//  CreatedAt – creation timestamp.
type Ban struct {
	ID        uint64     `json:"id"`              // bans.id
	UserID    uint64     `json:"user_id"`         // bans.user_id
	Type      BanType    `json:"type"`            // bans.type
	Reason    string     `json:"reason"`          // bans.reason
	Until     *time.Time `json:"until,omitempty"` // bans.until_at (nullable)
	Active    bool       `json:"active"`          // bans.active
	CreatedAt time.Time  `json:"created_at"`      // bans.created_at
}

// InEffect reports whether the ban blocks its participant at instant now.
func (b Ban) InEffect(now time.Time) bool {
	if !b.Active {
		return false
	}
	return b.Until == nil || b.Until.After(now)
}
