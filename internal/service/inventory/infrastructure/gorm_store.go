// internal/service/inventory/infrastructure/gorm_store.go
package infrastructure

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"orderflow/internal/errs"
	"orderflow/internal/service/inventory/domain"
)

// ItemModel 是库存表的 gorm 映射。
type ItemModel struct {
	ProductID   string `gorm:"primaryKey;type:varchar(64)"`
	ProductName string `gorm:"type:varchar(128)"`
	Available   int
	Reserved    int
	Version     int64
	UpdatedAt   time.Time
}

func (ItemModel) TableName() string { return "inventory_items" }

// ReservationModel 是预占记录表的 gorm 映射。
type ReservationModel struct {
	OrderID   string                 `gorm:"primaryKey;type:varchar(64)"`
	Status    string                 `gorm:"type:varchar(16)"`
	Lines     []ReservationLineModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ReservationModel) TableName() string { return "inventory_reservations" }

type ReservationLineModel struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	OrderID   string `gorm:"type:varchar(64);index"`
	ProductID string `gorm:"type:varchar(64)"`
	Quantity  int
}

func (ReservationLineModel) TableName() string { return "inventory_reservation_lines" }

// GormStore 是基于 MySQL 的库存存储，用版本号列做乐观并发控制。
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&ItemModel{}, &ReservationModel{}, &ReservationLineModel{}); err != nil {
		return nil, errs.Wrap(errs.KindTransientInfra, err, "migrate inventory tables")
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) GetItem(ctx context.Context, productID string) (*domain.Item, error) {
	var model ItemModel
	err := s.db.WithContext(ctx).First(&model, "product_id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("product %s not found", productID)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindTransientInfra, err, "find product %s", productID)
	}
	return itemToDomain(&model), nil
}

func (s *GormStore) ListItems(ctx context.Context) ([]*domain.Item, error) {
	var models []ItemModel
	if err := s.db.WithContext(ctx).Order("product_id").Find(&models).Error; err != nil {
		return nil, errs.Wrap(errs.KindTransientInfra, err, "list products")
	}
	items := make([]*domain.Item, len(models))
	for i := range models {
		items[i] = itemToDomain(&models[i])
	}
	return items, nil
}

func (s *GormStore) SaveItem(ctx context.Context, item *domain.Item) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return applyItem(tx, item)
	})
	if err != nil {
		return translateCommitErr(err, "save product "+item.ProductID)
	}
	item.Version++
	return nil
}

func (s *GormStore) GetReservation(ctx context.Context, orderID string) (*domain.Reservation, error) {
	var model ReservationModel
	err := s.db.WithContext(ctx).Preload("Lines").First(&model, "order_id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindTransientInfra, err, "find reservation %s", orderID)
	}
	return reservationToDomain(&model), nil
}

// Commit 在单个事务里写预占记录并应用所有库存变更。
// 每行 UPDATE 都带版本条件，RowsAffected 为 0 即并发冲突，整体回滚。
func (s *GormStore) Commit(ctx context.Context, reservation *domain.Reservation, items []*domain.Item) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			if err := applyItem(tx, item); err != nil {
				return err
			}
		}

		model := reservationToModel(reservation)
		if err := tx.Where("order_id = ?", model.OrderID).Delete(&ReservationLineModel{}).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error
	})
	if err != nil {
		return translateCommitErr(err, "commit reservation "+reservation.OrderID)
	}
	for _, item := range items {
		item.Version++
	}
	return nil
}

// applyItem 带版本条件更新一行库存；新商品（版本0且不存在）走插入。
func applyItem(tx *gorm.DB, item *domain.Item) error {
	result := tx.Model(&ItemModel{}).
		Where("product_id = ? AND version = ?", item.ProductID, item.Version).
		Updates(map[string]any{
			"product_name": item.ProductName,
			"available":    item.Available,
			"reserved":     item.Reserved,
			"version":      item.Version + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if item.Version == 0 {
			return tx.Create(&ItemModel{
				ProductID:   item.ProductID,
				ProductName: item.ProductName,
				Available:   item.Available,
				Reserved:    item.Reserved,
				Version:     1,
			}).Error
		}
		return domain.ErrVersionConflict
	}
	return nil
}

func translateCommitErr(err error, op string) error {
	if errors.Is(err, domain.ErrVersionConflict) {
		return domain.ErrVersionConflict
	}
	return errs.Wrap(errs.KindTransientInfra, err, "%s", op)
}

func itemToDomain(model *ItemModel) *domain.Item {
	return &domain.Item{
		ProductID:   model.ProductID,
		ProductName: model.ProductName,
		Available:   model.Available,
		Reserved:    model.Reserved,
		Version:     model.Version,
	}
}

func reservationToModel(reservation *domain.Reservation) *ReservationModel {
	lines := make([]ReservationLineModel, len(reservation.Lines))
	for i, line := range reservation.Lines {
		lines[i] = ReservationLineModel{
			OrderID:   reservation.OrderID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		}
	}
	return &ReservationModel{
		OrderID:   reservation.OrderID,
		Status:    string(reservation.Status),
		Lines:     lines,
		CreatedAt: reservation.CreatedAt,
		UpdatedAt: reservation.UpdatedAt,
	}
}

func reservationToDomain(model *ReservationModel) *domain.Reservation {
	lines := make([]domain.ReservationLine, len(model.Lines))
	for i, line := range model.Lines {
		lines[i] = domain.ReservationLine{ProductID: line.ProductID, Quantity: line.Quantity}
	}
	return &domain.Reservation{
		OrderID:   model.OrderID,
		Status:    domain.ReservationStatus(model.Status),
		Lines:     lines,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}
