// internal/service/inventory/domain/item.go
package domain

import "orderflow/internal/errs"

// Item 是一个商品的库存账目。
// 不变量：Available >= 0 且 Reserved >= 0，任何操作都不能打破。
// Version 用于持久层的乐观并发控制。
type Item struct {
	ProductID   string
	ProductName string
	Available   int
	Reserved    int
	Version     int64
}

// CanReserve 检查可用量是否足以预占 quantity。
func (i *Item) CanReserve(quantity int) bool {
	return quantity > 0 && i.Available >= quantity
}

// Reserve 把 quantity 从可用量移入预占量。
func (i *Item) Reserve(quantity int) error {
	if !i.CanReserve(quantity) {
		return errs.InsufficientInventory(
			"product %s: requested %d, available %d", i.ProductID, quantity, i.Available)
	}
	i.Available -= quantity
	i.Reserved += quantity
	return nil
}

// Release 把预占量退回可用量（补偿路径）。
func (i *Item) Release(quantity int) error {
	if quantity <= 0 || quantity > i.Reserved {
		return errs.InvalidState(
			"product %s: cannot release %d, reserved %d", i.ProductID, quantity, i.Reserved)
	}
	i.Reserved -= quantity
	i.Available += quantity
	return nil
}

// Fulfill 在发货时扣减预占量，可用量不变。
func (i *Item) Fulfill(quantity int) error {
	if quantity <= 0 || quantity > i.Reserved {
		return errs.InvalidState(
			"product %s: cannot fulfill %d, reserved %d", i.ProductID, quantity, i.Reserved)
	}
	i.Reserved -= quantity
	return nil
}

// Adjust 调整可用量，结果不允许为负。
func (i *Item) Adjust(delta int) error {
	if i.Available+delta < 0 {
		return errs.Validation(
			"product %s: adjustment %d would make available negative", i.ProductID, delta)
	}
	i.Available += delta
	return nil
}
