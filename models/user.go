package models

import "time"

// User is a library member. The ETL creates one row per user_id seen in the
// ratings extract; demographic fields are present only for users that appear
// in the demographics file.
type User struct {
	UserID          int        `json:"user_id" gorm:"primaryKey;column:user_id"`
	BirthDate       *time.Time `json:"birth_date,omitempty"`
	Sex             string     `json:"sex,omitempty"`
	Comment         string     `json:"comment,omitempty" gorm:"type:text"`
	HasDemographics bool       `json:"has_demographics"`
}

// TableName sets the explicit table name.
func (User) TableName() string {
	return "users"
}
