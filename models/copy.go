package models

// Copy is a lending instance of a Book. Ratings reference copies, not books.
type Copy struct {
	CopyID int `json:"copy_id" gorm:"primaryKey;column:copy_id"`
	BookID int `json:"book_id" gorm:"index;not null"`

	Book Book `json:"-" gorm:"foreignKey:BookID;references:BookID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName sets the explicit table name.
func (Copy) TableName() string {
	return "copies"
}
