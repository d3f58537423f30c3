package domain

import "time"

// User represents a Telegram user that has interacted with the bot. Admin and
// channel records only reference users by id.
type User struct {
	UserID      int64     `bson:"user_id" json:"user_id" gorm:"column:user_id;primaryKey;autoIncrement:false"`
	Username    string    `bson:"username,omitempty" json:"username,omitempty" gorm:"column:username"`
	FirstName   string    `bson:"first_name,omitempty" json:"first_name,omitempty" gorm:"column:first_name"`
	LastName    string    `bson:"last_name,omitempty" json:"last_name,omitempty" gorm:"column:last_name"`
	FirstSeenAt time.Time `bson:"first_seen_at" json:"first_seen_at" gorm:"column:first_seen_at"`
	LastSeenAt  time.Time `bson:"last_seen_at" json:"last_seen_at" gorm:"column:last_seen_at"`
}

// TableName pins the relational table name.
func (User) TableName() string {
	return "users"
}

// DisplayName picks the most readable label available for the user.
func (u User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}

	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}

	return name
}
