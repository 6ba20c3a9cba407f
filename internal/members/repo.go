package members

import (
	"context"

	"github.com/angelmondragon/utilitysplit/pkg/db/models"
	"gorm.io/gorm"
)

// Repository exposes member persistence operations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, member *models.Member) error
	FindByID(ctx context.Context, memberID string) (*models.Member, error)
	Update(ctx context.Context, memberID string, updates map[string]any) error
	ListActive(ctx context.Context) ([]models.Member, error)
	ListAll(ctx context.Context) ([]models.Member, error)
	FindActiveByHandles(ctx context.Context, handles []string) ([]models.Member, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a members repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, member *models.Member) error {
	return r.db.WithContext(ctx).Create(member).Error
}

// FindByID returns gorm.ErrRecordNotFound when the member does not exist.
func (r *repositoryImpl) FindByID(ctx context.Context, memberID string) (*models.Member, error) {
	var member models.Member
	if err := r.db.WithContext(ctx).First(&member, "member_id = ?", memberID).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repositoryImpl) Update(ctx context.Context, memberID string, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("member_id = ?", memberID).
		Updates(updates).Error
}

func (r *repositoryImpl) ListActive(ctx context.Context) ([]models.Member, error) {
	var members []models.Member
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC, member_id ASC").
		Find(&members).Error
	return members, err
}

func (r *repositoryImpl) ListAll(ctx context.Context) ([]models.Member, error) {
	var members []models.Member
	err := r.db.WithContext(ctx).
		Order("created_at ASC, member_id ASC").
		Find(&members).Error
	return members, err
}

func (r *repositoryImpl) FindActiveByHandles(ctx context.Context, handles []string) ([]models.Member, error) {
	if len(handles) == 0 {
		return nil, nil
	}
	var members []models.Member
	err := r.db.WithContext(ctx).
		Where("handle IN ? AND is_active = ?", handles, true).
		Find(&members).Error
	return members, err
}
