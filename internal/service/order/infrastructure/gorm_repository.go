// internal/service/order/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"orderflow/internal/errs"
	"orderflow/internal/service/order/domain"
)

// GormOrderRepository 是基于 MySQL 的订单仓储。
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) (*GormOrderRepository, error) {
	if err := db.AutoMigrate(&OrderModel{}, &OrderItemModel{}); err != nil {
		return nil, errs.Wrap(errs.KindTransientInfra, err, "migrate order tables")
	}
	return &GormOrderRepository{db: db}, nil
}

// Save 覆盖式保存聚合。行集可能被增删，所以先清旧行再写新行。
func (r *GormOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	model := toModel(order)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", model.ID).Delete(&OrderItemModel{}).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error
	})
	if err != nil {
		return errs.Wrap(errs.KindTransientInfra, err, "save order %s", order.ID)
	}
	return nil
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Preload("Items").First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("order %s not found", id)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindTransientInfra, err, "find order %s", id)
	}
	return toDomain(&model)
}

func (r *GormOrderRepository) FindAll(ctx context.Context) ([]*domain.Order, error) {
	var models []OrderModel
	if err := r.db.WithContext(ctx).Preload("Items").Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, errs.Wrap(errs.KindTransientInfra, err, "list orders")
	}
	orders := make([]*domain.Order, len(models))
	for i := range models {
		order, err := toDomain(&models[i])
		if err != nil {
			return nil, err
		}
		orders[i] = order
	}
	return orders, nil
}
