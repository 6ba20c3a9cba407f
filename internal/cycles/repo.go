package cycles

import (
	"context"
	"time"

	"github.com/angelmondragon/utilitysplit/pkg/db/models"
	"github.com/angelmondragon/utilitysplit/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository exposes billing cycle persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, cycle *models.BillingCycle) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.BillingCycle, error)
	FindActive(ctx context.Context) (*models.BillingCycle, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.BillingCycle, error)
	UpdateVersioned(ctx context.Context, cycle *models.BillingCycle, expectedVersion int64) (bool, error)
	AppendPayment(ctx context.Context, payment *models.CyclePayment) error
	List(ctx context.Context, params listParams) ([]models.BillingCycle, *pagination.Cursor, error)
}

type listParams struct {
	Limit  int
	Cursor *pagination.Cursor
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a billing cycle repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// Create inserts the cycle and its frozen roster.
func (r *repositoryImpl) Create(ctx context.Context, cycle *models.BillingCycle) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(cycle).Error; err != nil {
		return err
	}
	if len(cycle.Roster) == 0 {
		return nil
	}
	return db.Create(&cycle.Roster).Error
}

func (r *repositoryImpl) withAggregate(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Roster", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		Preload("Payments", func(tx *gorm.DB) *gorm.DB { return tx.Order("paid_at ASC, id ASC") })
}

// FindByID returns gorm.ErrRecordNotFound when the cycle does not exist.
func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.BillingCycle, error) {
	var cycle models.BillingCycle
	if err := r.withAggregate(r.db.WithContext(ctx)).First(&cycle, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &cycle, nil
}

// FindActive returns gorm.ErrRecordNotFound when no cycle is active.
func (r *repositoryImpl) FindActive(ctx context.Context) (*models.BillingCycle, error) {
	var cycle models.BillingCycle
	err := r.withAggregate(r.db.WithContext(ctx)).
		Where("is_active = ?", true).
		Order("created_at DESC").
		First(&cycle).Error
	if err != nil {
		return nil, err
	}
	return &cycle, nil
}

// LockByID takes a row lock on the cycle for the rest of the transaction and
// loads the full aggregate.
func (r *repositoryImpl) LockByID(ctx context.Context, id uuid.UUID) (*models.BillingCycle, error) {
	var locked models.BillingCycle
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "version").
		First(&locked, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

// UpdateVersioned writes the mutable cycle columns only when the stored version
// still equals expectedVersion.
func (r *repositoryImpl) UpdateVersioned(ctx context.Context, cycle *models.BillingCycle, expectedVersion int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.BillingCycle{}).
		Where("id = ? AND version = ?", cycle.ID, expectedVersion).
		Updates(map[string]any{
			"split_amount":     cycle.SplitAmount,
			"is_active":        cycle.IsActive,
			"late_fee_applied": cycle.LateFeeApplied,
			"closed_at":        cycle.ClosedAt,
			"version":          expectedVersion + 1,
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected != 1 {
		return false, nil
	}
	cycle.Version = expectedVersion + 1
	return true, nil
}

func (r *repositoryImpl) AppendPayment(ctx context.Context, payment *models.CyclePayment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repositoryImpl) List(ctx context.Context, params listParams) ([]models.BillingCycle, *pagination.Cursor, error) {
	query := r.withAggregate(r.db.WithContext(ctx)).Model(&models.BillingCycle{})
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var cycles []models.BillingCycle
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.FetchLimit(params.Limit)).Find(&cycles).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Page(cycles, params.Limit, func(c models.BillingCycle) pagination.Cursor {
		return pagination.Cursor{CreatedAt: c.CreatedAt, ID: c.ID}
	})
	return page, next, nil
}
