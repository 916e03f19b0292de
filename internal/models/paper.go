package models

// PaperModel is a bibliographic item in the library.
type PaperModel struct {
	Base
	Title       string            `json:"title"    gorm:"not null"`
	Authors     StringArray       `json:"authors"  gorm:"type:longtext;serializer:json"`
	Year        int               `json:"year"     gorm:"index"`
	Venue       string            `json:"venue"`
	DOI         string            `json:"doi"      gorm:"index"`
	URL         string            `json:"url"`
	Abstract    string            `json:"abstract" gorm:"type:text"`
	Tags        StringArray       `json:"tags"     gorm:"type:longtext;serializer:json"`
	OpenAlexID  string            `json:"openalex_id,omitempty" gorm:"column:openalex_id;index"`
	Notes       []NoteModel       `json:"notes,omitempty"       gorm:"foreignKey:PaperID"`
	Attachments []AttachmentModel `json:"attachments,omitempty" gorm:"foreignKey:PaperID"`
}

func (PaperModel) TableName() string { return "papers" }

// NoteModel is a rich-text note attached to a paper. HTML is the source
// of truth; plain text is derived on read.
type NoteModel struct {
	Base
	PaperID string `json:"paper_id" gorm:"type:char(36);index;not null"`
	Title   string `json:"title"`
	HTML    string `json:"html"     gorm:"type:longtext"`
}

func (NoteModel) TableName() string { return "notes" }

// AttachmentModel references a stored file belonging to a paper.
type AttachmentModel struct {
	Base
	PaperID     string `json:"paper_id"     gorm:"type:char(36);index;not null"`
	Filename    string `json:"filename"     gorm:"not null"`
	ContentType string `json:"content_type"`
	Path        string `json:"path"         gorm:"not null"` // on-disk location
	Size        int64  `json:"size"`
}

func (AttachmentModel) TableName() string { return "attachments" }

// IsPDF reports whether the attachment is a PDF by content type or extension.
func (a AttachmentModel) IsPDF() bool {
	if a.ContentType == "application/pdf" {
		return true
	}
	n := len(a.Filename)
	return n > 4 && (a.Filename[n-4:] == ".pdf" || a.Filename[n-4:] == ".PDF")
}
