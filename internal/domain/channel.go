package domain

import "time"

// RequiredChannel is a Telegram channel users must join before using the bot.
type RequiredChannel struct {
	ID          int64     `bson:"id" json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ChannelID   string    `bson:"channel_id" json:"channel_id" gorm:"column:channel_id;not null;uniqueIndex"`
	ChannelName string    `bson:"channel_name" json:"channel_name" gorm:"column:channel_name;not null"`
	ChannelLink string    `bson:"channel_link" json:"channel_link" gorm:"column:channel_link;not null"`
	AddedBy     int64     `bson:"added_by" json:"added_by" gorm:"column:added_by"`
	AddedAt     time.Time `bson:"added_at" json:"added_at" gorm:"column:added_at"`
}

// TableName pins the relational table name.
func (RequiredChannel) TableName() string {
	return "required_channels"
}
