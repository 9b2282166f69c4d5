package model

import "time"

// UserPoints is the cached balance view for one user. The transaction log is
// the audit trail; this row is authoritative for the read path.
//
// Invariant: TotalPoints == AvailablePoints + UsedPoints + ExpiredPoints,
// all fields non-negative.
type UserPoints struct {
	UserUID         string    `gorm:"column:user_uid;primaryKey;size:128"`
	TotalPoints     int64     `gorm:"column:total_points;not null;default:0"`
	AvailablePoints int64     `gorm:"column:available_points;not null;default:0"`
	UsedPoints      int64     `gorm:"column:used_points;not null;default:0"`
	ExpiredPoints   int64     `gorm:"column:expired_points;not null;default:0"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

func (UserPoints) TableName() string {
	return "user_points"
}

// CheckInvariant reports whether the accounting identity holds.
func (p *UserPoints) CheckInvariant() bool {
	if p.TotalPoints < 0 || p.AvailablePoints < 0 || p.UsedPoints < 0 || p.ExpiredPoints < 0 {
		return false
	}
	return p.TotalPoints == p.AvailablePoints+p.UsedPoints+p.ExpiredPoints
}
