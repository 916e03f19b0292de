package library

import (
	"context"
	"errors"

	"github.com/paperdeck/core/internal/models"
	"github.com/paperdeck/core/internal/pkg/pagination"
	"github.com/paperdeck/core/internal/pkg/response"
	"gorm.io/gorm"
)

// Service is the host item repository: papers with their notes and attachments.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) List(q pagination.Query, keyword string) ([]models.PaperModel, response.Pagination, error) {
	tx := s.db.Model(&models.PaperModel{}).Order("created_at DESC")
	if keyword != "" {
		like := "%" + keyword + "%"
		tx = tx.Where("title LIKE ? OR venue LIKE ? OR doi LIKE ?", like, like, like)
	}

	var papers []models.PaperModel
	pag, err := pagination.Paginate(tx, q, &papers)
	return papers, pag, err
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.PaperModel, error) {
	var paper models.PaperModel
	err := s.db.WithContext(ctx).
		Preload("Notes").
		Preload("Attachments").
		First(&paper, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &paper, nil
}

func (s *Service) Create(ctx context.Context, paper *models.PaperModel) error {
	return s.db.WithContext(ctx).Create(paper).Error
}

func (s *Service) Update(ctx context.Context, paper *models.PaperModel) error {
	return s.db.WithContext(ctx).Save(paper).Error
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("paper_id = ?", id).Delete(&models.NoteModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("paper_id = ?", id).Delete(&models.AttachmentModel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.PaperModel{}, "id = ?", id).Error
	})
}

// FindByDOI returns an existing paper for dedup on import, nil when absent.
func (s *Service) FindByDOI(ctx context.Context, doi string) (*models.PaperModel, error) {
	if doi == "" {
		return nil, nil
	}
	var paper models.PaperModel
	err := s.db.WithContext(ctx).First(&paper, "doi = ?", doi).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &paper, nil
}

// Notes returns all notes of a paper, oldest first.
func (s *Service) Notes(ctx context.Context, paperID string) ([]models.NoteModel, error) {
	var notes []models.NoteModel
	err := s.db.WithContext(ctx).
		Where("paper_id = ?", paperID).
		Order("created_at ASC").
		Find(&notes).Error
	return notes, err
}

func (s *Service) GetNote(ctx context.Context, id string) (*models.NoteModel, error) {
	var note models.NoteModel
	err := s.db.WithContext(ctx).First(&note, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (s *Service) CreateNote(ctx context.Context, note *models.NoteModel) error {
	return s.db.WithContext(ctx).Create(note).Error
}

func (s *Service) UpdateNote(ctx context.Context, note *models.NoteModel) error {
	return s.db.WithContext(ctx).Save(note).Error
}

func (s *Service) DeleteNote(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&models.NoteModel{}, "id = ?", id).Error
}

// NoteText returns the plain-text rendering of a paper's notes, concatenated
// oldest first. Empty when the paper has no non-empty notes.
func (s *Service) NoteText(ctx context.Context, paperID string) (string, error) {
	notes, err := s.Notes(ctx, paperID)
	if err != nil {
		return "", err
	}

	var parts []string
	for _, note := range notes {
		text := HTMLToText(note.HTML)
		if text != "" {
			parts = append(parts, text)
		}
	}
	return joinNonEmpty(parts), nil
}

// Attachments returns all attachments of a paper, oldest first.
func (s *Service) Attachments(ctx context.Context, paperID string) ([]models.AttachmentModel, error) {
	var attachments []models.AttachmentModel
	err := s.db.WithContext(ctx).
		Where("paper_id = ?", paperID).
		Order("created_at ASC").
		Find(&attachments).Error
	return attachments, err
}

// PrimaryPDF returns the first PDF attachment of a paper, nil when none.
func (s *Service) PrimaryPDF(ctx context.Context, paperID string) (*models.AttachmentModel, error) {
	attachments, err := s.Attachments(ctx, paperID)
	if err != nil {
		return nil, err
	}
	for i := range attachments {
		if attachments[i].IsPDF() {
			return &attachments[i], nil
		}
	}
	return nil, nil
}

func (s *Service) CreateAttachment(ctx context.Context, att *models.AttachmentModel) error {
	return s.db.WithContext(ctx).Create(att).Error
}

func (s *Service) DeleteAttachment(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&models.AttachmentModel{}, "id = ?", id).Error
}

func joinNonEmpty(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += "\n\n" + p
	}
	return out
}
