// internal/service/order/application/service.go
package application

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"orderflow/internal/errs"
	"orderflow/internal/events"
	"orderflow/internal/pkg/logger"
	"orderflow/internal/service/order/domain"
)

// Service 编排订单用例：先持久化聚合，再发布事件。
// 事件发布失败不回滚已落库的状态，只记严重日志留待补偿，
// 所以下游必须容忍事件缺失，上游必须容忍事件重复。
type Service struct {
	repo      domain.Repository
	publisher events.Publisher
	tracer    trace.Tracer
}

func NewService(repo domain.Repository, publisher events.Publisher) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		tracer:    otel.Tracer("order-service"),
	}
}

// CreateOrder 创建订单并发布 OrderCreated，这是整个 saga 的起点。
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (OrderView, error) {
	ctx, span := s.tracer.Start(ctx, "CreateOrder")
	defer span.End()

	order, event, err := domain.NewOrder(req.CustomerID, toDomainItems(req.Items))
	if err != nil {
		return OrderView{}, err
	}
	span.SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("customer.id", order.CustomerID),
		attribute.Float64("order.total", order.TotalAmount),
	)

	if err := s.repo.Save(ctx, order); err != nil {
		return OrderView{}, errs.Wrap(errs.KindTransientInfra, err, "save order")
	}
	s.publish(ctx, event)

	logger.Ctx(ctx).Info().
		Str("order_id", order.ID).
		Str("customer_id", order.CustomerID).
		Float64("total_amount", order.TotalAmount).
		Msg("order created")
	return toView(order), nil
}

// CancelOrder 用户主动取消。已取消的订单重复取消是无事件的幂等操作。
func (s *Service) CancelOrder(ctx context.Context, orderID, reason string) (OrderView, error) {
	ctx, span := s.tracer.Start(ctx, "CancelOrder")
	defer span.End()

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return OrderView{}, err
	}
	event, err := order.Cancel(reason)
	if err != nil {
		return OrderView{}, err
	}
	if event == nil {
		return toView(order), nil
	}

	if err := s.repo.Save(ctx, order); err != nil {
		return OrderView{}, errs.Wrap(errs.KindTransientInfra, err, "save order")
	}
	s.publish(ctx, event)

	logger.Ctx(ctx).Info().Str("order_id", orderID).Str("reason", reason).Msg("order cancelled")
	return toView(order), nil
}

// ConfirmOrder 管理端手动确认，和事件驱动的确认走同一状态机。
func (s *Service) ConfirmOrder(ctx context.Context, orderID string) (OrderView, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return OrderView{}, err
	}
	if err := order.Confirm(); err != nil {
		return OrderView{}, err
	}
	if err := s.repo.Save(ctx, order); err != nil {
		return OrderView{}, errs.Wrap(errs.KindTransientInfra, err, "save order")
	}
	logger.Ctx(ctx).Info().Str("order_id", orderID).Msg("order confirmed")
	return toView(order), nil
}

// CompleteOrder 完成已确认的订单（发货场景）。
func (s *Service) CompleteOrder(ctx context.Context, orderID string) (OrderView, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return OrderView{}, err
	}
	if err := order.Complete(); err != nil {
		return OrderView{}, err
	}
	if err := s.repo.Save(ctx, order); err != nil {
		return OrderView{}, errs.Wrap(errs.KindTransientInfra, err, "save order")
	}
	logger.Ctx(ctx).Info().Str("order_id", orderID).Msg("order completed")
	return toView(order), nil
}

// AddItem 给待处理订单追加商品行。
func (s *Service) AddItem(ctx context.Context, orderID string, item OrderItemRequest) (OrderView, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return OrderView{}, err
	}
	if err := order.AddItem(domain.OrderItem{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice}); err != nil {
		return OrderView{}, err
	}
	if err := s.repo.Save(ctx, order); err != nil {
		return OrderView{}, errs.Wrap(errs.KindTransientInfra, err, "save order")
	}
	return toView(order), nil
}

// RemoveItem 从待处理订单删除商品行。
func (s *Service) RemoveItem(ctx context.Context, orderID, productID string) (OrderView, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return OrderView{}, err
	}
	if err := order.RemoveItem(productID); err != nil {
		return OrderView{}, err
	}
	if err := s.repo.Save(ctx, order); err != nil {
		return OrderView{}, errs.Wrap(errs.KindTransientInfra, err, "save order")
	}
	return toView(order), nil
}

// GetOrder 按 ID 查询。
func (s *Service) GetOrder(ctx context.Context, orderID string) (OrderView, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return OrderView{}, err
	}
	return toView(order), nil
}

// ListOrders 列出全部订单。
func (s *Service) ListOrders(ctx context.Context) ([]OrderView, error) {
	orders, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]OrderView, len(orders))
	for i, order := range orders {
		views[i] = toView(order)
	}
	return views, nil
}

// HandleInventoryReserved 处理库存预占成功：PENDING -> CONFIRMED。
// 事件重放时订单可能已经 CONFIRMED，跳过即可。
func (s *Service) HandleInventoryReserved(ctx context.Context, event *events.InventoryReserved) error {
	order, err := s.repo.FindByID(ctx, event.OrderID)
	if err != nil {
		if errs.IsNotFound(err) {
			// 库存服务只会响应真实存在的订单，找不到说明本地写入还没可见，重试
			return errs.New(errs.KindTransientInfra, "order %s not found for reserved event", event.OrderID)
		}
		return err
	}
	if order.Status != domain.StatusPending {
		logger.Ctx(ctx).Info().
			Str("order_id", order.ID).
			Str("status", string(order.Status)).
			Msg("inventory reserved event ignored, order already settled")
		return nil
	}
	if err := order.Confirm(); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, order); err != nil {
		return errs.Wrap(errs.KindTransientInfra, err, "save order")
	}
	logger.Ctx(ctx).Info().Str("order_id", order.ID).Msg("order confirmed after inventory reserved")
	return nil
}

// HandleReservationFailed 处理库存预占失败：取消订单并发布 OrderCancelled。
func (s *Service) HandleReservationFailed(ctx context.Context, event *events.InventoryReservationFailed) error {
	order, err := s.repo.FindByID(ctx, event.OrderID)
	if err != nil {
		if errs.IsNotFound(err) {
			return errs.New(errs.KindTransientInfra, "order %s not found for reservation failed event", event.OrderID)
		}
		return err
	}
	cancelled, err := order.Cancel("inventory reservation failed: " + event.Reason)
	if err != nil {
		// 已完成的订单无法取消，记日志后丢弃事件，人工介入
		logger.Ctx(ctx).Error().
			Str("order_id", order.ID).
			Str("reason", event.Reason).
			Err(err).
			Msg("cannot cancel order for failed reservation")
		return nil
	}
	if cancelled == nil {
		return nil
	}
	if err := s.repo.Save(ctx, order); err != nil {
		return errs.Wrap(errs.KindTransientInfra, err, "save order")
	}
	s.publish(ctx, cancelled)
	logger.Ctx(ctx).Info().
		Str("order_id", order.ID).
		Str("failed_product_id", event.FailedProductID).
		Msg("order cancelled after reservation failure")
	return nil
}

// publish 发布领域事件。状态已落库，发布失败只能记严重日志等待补偿。
func (s *Service) publish(ctx context.Context, event events.Event) {
	env, err := events.PublishEvent(ctx, s.publisher, event)
	if err != nil {
		entry := logger.Ctx(ctx).Error().
			Str("event_type", event.EventType()).
			Str("partition_key", event.PartitionKey()).
			Err(err)
		// 信封在 marshal 阶段就失败时没有事件ID可记
		if env.EventID != "" {
			entry = entry.Str("event_id", env.EventID)
		}
		entry.Msg("CRITICAL: failed to publish event after state was persisted")
	}
}
