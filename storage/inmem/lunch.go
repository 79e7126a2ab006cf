package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/suliportal/suliportal/core/lunch"
)

type menuRepository struct {
	db *DB
}

var _ lunch.MenuRepository = (*menuRepository)(nil)

func NewMenuRepository(db *DB) *menuRepository {
	return &menuRepository{db: db}
}

func (repo *menuRepository) CreateMenu(_ context.Context, menu lunch.Menu) (lunch.Menu, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	wk := menu.WeekKey()
	if _, ok := repo.db.menus[wk]; ok {
		return lunch.Menu{}, lunch.ErrMenuExists
	}
	if menu.ID == "" {
		menu.ID = uuid.New().String()
	}
	cp := menu
	repo.db.menus[wk] = &cp
	return menu, nil
}

func (repo *menuRepository) GetMenu(_ context.Context, wk lunch.WeekKey) (lunch.Menu, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if menu, ok := repo.db.menus[wk]; ok {
		return *menu, nil
	}
	return lunch.Menu{}, lunch.ErrMenuNotFound
}

func (repo *menuRepository) SetMenuOpen(_ context.Context, wk lunch.WeekKey, open bool) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	menu, ok := repo.db.menus[wk]
	if !ok {
		return lunch.ErrMenuNotFound
	}
	menu.IsOpen = open
	menu.UpdatedAt = time.Now().UTC()
	return nil
}

type orderRepository struct {
	db *DB
}

var _ lunch.OrderRepository = (*orderRepository)(nil)

func NewOrderRepository(db *DB) *orderRepository {
	return &orderRepository{db: db}
}

func (repo *orderRepository) GetOrder(_ context.Context, email string, wk lunch.WeekKey) (lunch.Order, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if order, ok := repo.db.orders[orderKey{email, wk}]; ok {
		return *order, nil
	}
	return lunch.Order{}, lunch.ErrOrderNotFound
}

// UpsertOrder checks the menu's window flag under the same lock as the write,
// so a submission racing a window close cannot land after the close.
func (repo *orderRepository) UpsertOrder(_ context.Context, email string, wk lunch.WeekKey, selections [lunch.NumDays]string) (lunch.Order, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	menu, ok := repo.db.menus[wk]
	if !ok {
		return lunch.Order{}, lunch.ErrMenuNotFound
	}
	if !menu.IsOpen {
		return lunch.Order{}, lunch.ErrWindowClosed
	}

	now := time.Now().UTC()
	key := orderKey{email, wk}
	order, ok := repo.db.orders[key]
	if !ok {
		order = &lunch.Order{
			ID:        uuid.New().String(),
			Email:     email,
			Week:      wk.Week,
			Year:      wk.Year,
			CreatedAt: now,
		}
		repo.db.orders[key] = order
	}
	order.Selections = selections
	order.UpdatedAt = now
	return *order, nil
}

func (repo *orderRepository) CountOrders(_ context.Context, wk lunch.WeekKey) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var count int
	for key := range repo.db.orders {
		if key.wk == wk {
			count++
		}
	}
	return count, nil
}

func (repo *orderRepository) RedeemDay(_ context.Context, email string, wk lunch.WeekKey, day int, at time.Time) (bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	order, ok := repo.db.orders[orderKey{email, wk}]
	if !ok {
		return false, lunch.ErrOrderNotFound
	}
	if order.Redeemed[day] != nil {
		return false, nil
	}
	at = at.UTC()
	order.Redeemed[day] = &at
	order.UpdatedAt = at
	return true, nil
}
