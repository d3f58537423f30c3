package domain

import "time"

// Administrator is a Telegram user granted access to admin-only commands.
// AddedBy equals UserID for the bootstrap administrator.
type Administrator struct {
	UserID  int64     `bson:"user_id" json:"user_id" gorm:"column:user_id;primaryKey;autoIncrement:false"`
	AddedBy int64     `bson:"added_by" json:"added_by" gorm:"column:added_by;not null"`
	AddedAt time.Time `bson:"added_at" json:"added_at" gorm:"column:added_at;not null;index"`
}

// TableName pins the relational table name.
func (Administrator) TableName() string {
	return "admins"
}

// IsBootstrap reports whether the record was seeded at deployment time rather
// than granted in-app.
func (a Administrator) IsBootstrap() bool {
	return a.UserID != 0 && a.AddedBy == a.UserID
}
