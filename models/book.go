package models

// Book is a title in the catalog. Rows are written by the ETL only; the
// recommender never mutates them.
type Book struct {
	BookID                  int    `json:"book_id" gorm:"primaryKey;column:book_id"`
	ISBN                    string `json:"isbn,omitempty"`
	Title                   string `json:"title" gorm:"not null"`
	OriginalTitle           string `json:"original_title,omitempty"`
	Authors                 string `json:"authors,omitempty"`
	LanguageCode            string `json:"language_code,omitempty" gorm:"index"`
	OriginalPublicationYear *int   `json:"original_publication_year,omitempty"`
	ImageURL                string `json:"image_url,omitempty"`
}

// TableName sets the explicit table name.
func (Book) TableName() string {
	return "books"
}
