// Package inmemdb provides in-memory implementations of the app's
// repositories, used by the test suites. All repositories
// share one DB so cross-collection invariants (order window vs. order writes)
// hold under one lock, mirroring what the mongodb package does with
// transactions.
package inmemdb

import (
	"sync"

	"github.com/suliportal/suliportal/core/lunch"
	"github.com/suliportal/suliportal/core/user"
)

type orderKey struct {
	email string
	wk    lunch.WeekKey
}

type DB struct {
	mu     sync.RWMutex
	users  map[string]*user.User // by ID
	menus  map[lunch.WeekKey]*lunch.Menu
	orders map[orderKey]*lunch.Order
}

func Open() *DB {
	return &DB{
		users:  make(map[string]*user.User),
		menus:  make(map[lunch.WeekKey]*lunch.Menu),
		orders: make(map[orderKey]*lunch.Order),
	}
}

// Reset drops all data. Test helper.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users = make(map[string]*user.User)
	db.menus = make(map[lunch.WeekKey]*lunch.Menu)
	db.orders = make(map[orderKey]*lunch.Order)
}
