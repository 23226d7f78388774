// internal/service/inventory/application/service.go
package application

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"orderflow/internal/errs"
	"orderflow/internal/events"
	"orderflow/internal/pkg/logger"
	"orderflow/internal/service/inventory/domain"
)

// Service 实现库存侧的 saga 步骤：整单预占、补偿释放、发货扣减。
// 预占是全有或全无的：任何一行不满足，所有行都不动。
type Service struct {
	store     domain.Store
	locker    domain.Locker
	publisher events.Publisher
	tracer    trace.Tracer
}

func NewService(store domain.Store, locker domain.Locker, publisher events.Publisher) *Service {
	return &Service{
		store:     store,
		locker:    locker,
		publisher: publisher,
		tracer:    otel.Tracer("inventory-service"),
	}
}

// HandleOrderCreated 对订单的所有商品行做整单预占。
// 以订单ID为幂等键：预占记录已存在时直接跳过，不补发成功事件，
// 保证一个订单至多产生一条 InventoryReserved。
// 库存不足是业务结果而不是处理失败：发布失败事件后返回 nil 提交位点。
func (s *Service) HandleOrderCreated(ctx context.Context, event *events.OrderCreated) error {
	ctx, span := s.tracer.Start(ctx, "ReserveInventory")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", event.OrderID))

	demands, err := mergeDemands(event.Items)
	if err != nil {
		// 畸形事件无法预占，按业务失败走补偿
		return s.publishFailure(ctx, event.OrderID, "", err.Error())
	}

	keys := make([]string, 0, len(demands))
	for productID := range demands {
		keys = append(keys, productID)
	}
	sort.Strings(keys)

	release, err := s.locker.LockKeys(ctx, keys)
	if err != nil {
		return errs.Wrap(errs.KindTransientInfra, err, "lock products for order %s", event.OrderID)
	}
	defer release()

	if existing, err := s.store.GetReservation(ctx, event.OrderID); err != nil {
		return err
	} else if existing != nil {
		logger.Ctx(ctx).Info().
			Str("order_id", event.OrderID).
			Str("reservation_status", string(existing.Status)).
			Msg("order already reserved, skipping duplicate event")
		return nil
	}

	// 两阶段：先全部检查，再全部变更
	items := make([]*domain.Item, 0, len(keys))
	for _, productID := range keys {
		item, err := s.store.GetItem(ctx, productID)
		if err != nil {
			if errs.IsNotFound(err) {
				return s.publishFailure(ctx, event.OrderID, productID, "unknown product")
			}
			return err
		}
		if !item.CanReserve(demands[productID]) {
			logger.Ctx(ctx).Warn().
				Str("order_id", event.OrderID).
				Str("product_id", productID).
				Int("requested", demands[productID]).
				Int("available", item.Available).
				Msg("insufficient inventory, order will be rejected")
			return s.publishFailure(ctx, event.OrderID, productID, "insufficient inventory")
		}
		items = append(items, item)
	}
	for _, item := range items {
		if err := item.Reserve(demands[item.ProductID]); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	reservation := &domain.Reservation{
		OrderID:   event.OrderID,
		Status:    domain.ReservationReserved,
		CreatedAt: now,
		UpdatedAt: now,
	}
	reservedItems := make([]events.ReservedItem, 0, len(keys))
	for _, productID := range keys {
		reservation.Lines = append(reservation.Lines, domain.ReservationLine{
			ProductID: productID,
			Quantity:  demands[productID],
		})
		reservedItems = append(reservedItems, events.ReservedItem{
			ProductID: productID,
			Quantity:  demands[productID],
		})
	}

	if err := s.store.Commit(ctx, reservation, items); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return errs.Wrap(errs.KindTransientInfra, err, "commit reservation for order %s", event.OrderID)
		}
		return err
	}

	if _, err := events.PublishEvent(ctx, s.publisher, &events.InventoryReserved{
		OrderID:       event.OrderID,
		ReservedItems: reservedItems,
	}); err != nil {
		logger.Ctx(ctx).Error().
			Str("order_id", event.OrderID).
			Err(err).
			Msg("CRITICAL: reservation committed but success event publish failed")
	}
	logger.Ctx(ctx).Info().
		Str("order_id", event.OrderID).
		Int("products", len(reservedItems)).
		Msg("inventory reserved")
	return nil
}

// HandleOrderCancelled 是补偿入口：释放该订单的预占。
func (s *Service) HandleOrderCancelled(ctx context.Context, event *events.OrderCancelled) error {
	ctx, span := s.tracer.Start(ctx, "ReleaseInventory")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", event.OrderID))
	return s.Release(ctx, event.OrderID)
}

// Release 释放订单的预占量。没有记录或已释放/已发货都是幂等的空操作。
func (s *Service) Release(ctx context.Context, orderID string) error {
	reservation, err := s.store.GetReservation(ctx, orderID)
	if err != nil {
		return err
	}
	if reservation == nil || reservation.Status != domain.ReservationReserved {
		logger.Ctx(ctx).Info().Str("order_id", orderID).Msg("nothing to release for order")
		return nil
	}

	keys := make([]string, len(reservation.Lines))
	for i, line := range reservation.Lines {
		keys[i] = line.ProductID
	}
	sort.Strings(keys)

	release, err := s.locker.LockKeys(ctx, keys)
	if err != nil {
		return errs.Wrap(errs.KindTransientInfra, err, "lock products for release %s", orderID)
	}
	defer release()

	// 持锁后重读，避免和并发的释放竞争
	reservation, err = s.store.GetReservation(ctx, orderID)
	if err != nil {
		return err
	}
	if reservation == nil || reservation.Status != domain.ReservationReserved {
		return nil
	}

	items := make([]*domain.Item, 0, len(reservation.Lines))
	for _, line := range reservation.Lines {
		item, err := s.store.GetItem(ctx, line.ProductID)
		if err != nil {
			return err
		}
		if err := item.Release(line.Quantity); err != nil {
			return err
		}
		items = append(items, item)
	}
	reservation.Status = domain.ReservationReleased
	reservation.UpdatedAt = time.Now().UTC()

	if err := s.store.Commit(ctx, reservation, items); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return errs.Wrap(errs.KindTransientInfra, err, "commit release for order %s", orderID)
		}
		return err
	}
	logger.Ctx(ctx).Info().Str("order_id", orderID).Msg("reservation released")
	return nil
}

// Fulfill 在发货时把订单的预占量真正扣掉，可用量不变。
func (s *Service) Fulfill(ctx context.Context, orderID string) error {
	reservation, err := s.store.GetReservation(ctx, orderID)
	if err != nil {
		return err
	}
	if reservation == nil {
		return errs.NotFound("no reservation for order %s", orderID)
	}
	if reservation.Status != domain.ReservationReserved {
		return errs.InvalidState("reservation for order %s is %s", orderID, reservation.Status)
	}

	keys := make([]string, len(reservation.Lines))
	for i, line := range reservation.Lines {
		keys[i] = line.ProductID
	}
	sort.Strings(keys)

	release, err := s.locker.LockKeys(ctx, keys)
	if err != nil {
		return errs.Wrap(errs.KindTransientInfra, err, "lock products for fulfill %s", orderID)
	}
	defer release()

	items := make([]*domain.Item, 0, len(reservation.Lines))
	for _, line := range reservation.Lines {
		item, err := s.store.GetItem(ctx, line.ProductID)
		if err != nil {
			return err
		}
		if err := item.Fulfill(line.Quantity); err != nil {
			return err
		}
		items = append(items, item)
	}
	reservation.Status = domain.ReservationFulfilled
	reservation.UpdatedAt = time.Now().UTC()

	if err := s.store.Commit(ctx, reservation, items); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return errs.Wrap(errs.KindTransientInfra, err, "commit fulfill for order %s", orderID)
		}
		return err
	}
	logger.Ctx(ctx).Info().Str("order_id", orderID).Msg("reservation fulfilled")
	return nil
}

// Adjust 管理端调整某商品的可用量（入库为正、盘亏为负）。
func (s *Service) Adjust(ctx context.Context, productID string, delta int) (*domain.Item, error) {
	release, err := s.locker.LockKeys(ctx, []string{productID})
	if err != nil {
		return nil, errs.Wrap(errs.KindTransientInfra, err, "lock product %s", productID)
	}
	defer release()

	item, err := s.store.GetItem(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := item.Adjust(delta); err != nil {
		return nil, err
	}
	if err := s.store.SaveItem(ctx, item); err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().
		Str("product_id", productID).
		Int("delta", delta).
		Int("available", item.Available).
		Msg("inventory adjusted")
	return item, nil
}

// UpsertItem 创建或覆盖一个商品的库存账目。
func (s *Service) UpsertItem(ctx context.Context, productID, productName string, available int) (*domain.Item, error) {
	if productID == "" {
		return nil, errs.Validation("product id is required")
	}
	if available < 0 {
		return nil, errs.Validation("available must not be negative")
	}
	release, err := s.locker.LockKeys(ctx, []string{productID})
	if err != nil {
		return nil, errs.Wrap(errs.KindTransientInfra, err, "lock product %s", productID)
	}
	defer release()

	item, err := s.store.GetItem(ctx, productID)
	if err != nil && !errs.IsNotFound(err) {
		return nil, err
	}
	if item == nil || errs.IsNotFound(err) {
		item = &domain.Item{ProductID: productID}
	}
	item.ProductName = productName
	item.Available = available
	if err := s.store.SaveItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// GetItem 查询单个商品库存。
func (s *Service) GetItem(ctx context.Context, productID string) (*domain.Item, error) {
	return s.store.GetItem(ctx, productID)
}

// ListItems 查询全部商品库存。
func (s *Service) ListItems(ctx context.Context) ([]*domain.Item, error) {
	return s.store.ListItems(ctx)
}

// GetReservation 查询订单的预占记录。
func (s *Service) GetReservation(ctx context.Context, orderID string) (*domain.Reservation, error) {
	reservation, err := s.store.GetReservation(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if reservation == nil {
		return nil, errs.NotFound("no reservation for order %s", orderID)
	}
	return reservation, nil
}

func (s *Service) publishFailure(ctx context.Context, orderID, productID, reason string) error {
	if _, err := events.PublishEvent(ctx, s.publisher, &events.InventoryReservationFailed{
		OrderID:         orderID,
		FailedProductID: productID,
		Reason:          reason,
	}); err != nil {
		// 失败事件发不出去，订单会卡在 PENDING，必须重试投递
		return errs.Wrap(errs.KindTransientInfra, err, "publish reservation failure for order %s", orderID)
	}
	return nil
}

// mergeDemands 把订单行按商品合并成需求量，并做基本校验。
func mergeDemands(items []events.OrderItem) (map[string]int, error) {
	if len(items) == 0 {
		return nil, errors.New("order has no items")
	}
	demands := make(map[string]int, len(items))
	for _, item := range items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return nil, errors.Errorf("invalid order line for product %q", item.ProductID)
		}
		demands[item.ProductID] += item.Quantity
	}
	return demands, nil
}
