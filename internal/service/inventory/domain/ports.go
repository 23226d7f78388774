// internal/service/inventory/domain/ports.go
package domain

import (
	"context"

	"github.com/pkg/errors"
)

// ErrVersionConflict 表示提交时版本号已被并发修改，调用方应重试整个事务。
var ErrVersionConflict = errors.New("inventory: version conflict")

// Store 是库存账目与预占记录的持久化端口。
// Commit 原子地写入一条预占记录和一批带版本校验的库存变更；
// 任何一个商品版本不匹配则整体失败并返回 ErrVersionConflict。
type Store interface {
	GetItem(ctx context.Context, productID string) (*Item, error)
	ListItems(ctx context.Context) ([]*Item, error)
	SaveItem(ctx context.Context, item *Item) error
	GetReservation(ctx context.Context, orderID string) (*Reservation, error)
	Commit(ctx context.Context, reservation *Reservation, items []*Item) error
}

// Locker 在预占临界区期间串行化同一批商品上的操作。
// 返回的 release 必须被调用，哪怕临界区内出错。
type Locker interface {
	LockKeys(ctx context.Context, keys []string) (release func(), err error)
}
