package models

import "time"

// Rating is one user's rating of one copy, value 1..5. The composite unique
// index makes a second submission for the same (user, copy) an update rather
// than a new row, even under concurrent writers.
type Rating struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID int `json:"user_id" gorm:"index:idx_ratings_user_copy,unique;not null"`
	CopyID int `json:"copy_id" gorm:"index:idx_ratings_user_copy,unique;not null"`
	Rating int `json:"rating" gorm:"not null"`

	User User `json:"-" gorm:"foreignKey:UserID;references:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Copy Copy `json:"-" gorm:"foreignKey:CopyID;references:CopyID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName sets the explicit table name.
func (Rating) TableName() string {
	return "ratings"
}
