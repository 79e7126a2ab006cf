package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/suliportal/suliportal/core/lunch"
)

type menuRepository struct {
	coll *mongo.Collection
}

var _ lunch.MenuRepository = (*menuRepository)(nil) // interface compliance check

func NewMenuRepository(db *DB) *menuRepository {
	return &menuRepository{coll: db.db.Collection(menusCollection)}
}

func (repo *menuRepository) CreateMenu(ctx context.Context, menu lunch.Menu) (lunch.Menu, error) {
	if menu.ID == "" {
		menu.ID = uuid.New().String()
	}
	if _, err := repo.coll.InsertOne(ctx, menu); err != nil {
		if isDup(err) {
			return lunch.Menu{}, lunch.ErrMenuExists
		}
		return lunch.Menu{}, errors.Wrap(err, "inserting menu")
	}
	return menu, nil
}

func (repo *menuRepository) GetMenu(ctx context.Context, wk lunch.WeekKey) (lunch.Menu, error) {
	var menu lunch.Menu
	if err := repo.coll.FindOne(ctx, weekFilter(wk)).Decode(&menu); err != nil {
		if err == mongo.ErrNoDocuments {
			return lunch.Menu{}, lunch.ErrMenuNotFound
		}
		return lunch.Menu{}, errors.Wrap(err, "finding menu")
	}
	return menu, nil
}

func (repo *menuRepository) SetMenuOpen(ctx context.Context, wk lunch.WeekKey, open bool) error {
	res, err := repo.coll.UpdateOne(ctx, weekFilter(wk), bson.M{"$set": bson.M{
		"is_open":    open,
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return errors.Wrap(err, "updating menu window")
	}
	if res.MatchedCount == 0 {
		return lunch.ErrMenuNotFound
	}
	return nil
}

type orderRepository struct {
	db    *DB
	coll  *mongo.Collection
	menus *mongo.Collection
}

var _ lunch.OrderRepository = (*orderRepository)(nil) // interface compliance check

func NewOrderRepository(db *DB) *orderRepository {
	return &orderRepository{
		db:    db,
		coll:  db.db.Collection(ordersCollection),
		menus: db.db.Collection(menusCollection),
	}
}

func (repo *orderRepository) GetOrder(ctx context.Context, email string, wk lunch.WeekKey) (lunch.Order, error) {
	var order lunch.Order
	if err := repo.coll.FindOne(ctx, orderFilter(email, wk)).Decode(&order); err != nil {
		if err == mongo.ErrNoDocuments {
			return lunch.Order{}, lunch.ErrOrderNotFound
		}
		return lunch.Order{}, errors.Wrap(err, "finding order")
	}
	return order, nil
}

// UpsertOrder re-reads the menu's window flag and writes the selections in one
// transaction, so a submission that raced a window close observes the close
// instead of landing a late write.
func (repo *orderRepository) UpsertOrder(ctx context.Context, email string, wk lunch.WeekKey, selections [lunch.NumDays]string) (lunch.Order, error) {
	sess, err := repo.db.client.StartSession()
	if err != nil {
		return lunch.Order{}, errors.Wrap(err, "starting session")
	}
	defer sess.EndSession(ctx)

	res, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		var menu lunch.Menu
		if err := repo.menus.FindOne(sc, weekFilter(wk)).Decode(&menu); err != nil {
			if err == mongo.ErrNoDocuments {
				return nil, lunch.ErrMenuNotFound
			}
			return nil, errors.Wrap(err, "finding menu")
		}
		if !menu.IsOpen {
			return nil, lunch.ErrWindowClosed
		}

		now := time.Now().UTC()
		update := bson.M{
			"$set": bson.M{
				"selections": selections,
				"updated_at": now,
			},
			"$setOnInsert": bson.M{
				"_id":        uuid.New().String(),
				"email":      email,
				"week":       wk.Week,
				"year":       wk.Year,
				"redeemed":   emptyRedemptions(),
				"created_at": now,
			},
		}
		var order lunch.Order
		err := repo.coll.FindOneAndUpdate(
			sc,
			orderFilter(email, wk),
			update,
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		).Decode(&order)
		if err != nil {
			return nil, errors.Wrap(err, "upserting order")
		}
		return order, nil
	})
	if err != nil {
		return lunch.Order{}, err
	}
	return res.(lunch.Order), nil
}

func (repo *orderRepository) CountOrders(ctx context.Context, wk lunch.WeekKey) (int, error) {
	count, err := repo.coll.CountDocuments(ctx, weekFilter(wk))
	if err != nil {
		return 0, errors.Wrap(err, "counting orders")
	}
	return int(count), nil
}

// RedeemDay is a single conditional write: "set the day's redemption timestamp
// where it is not already set". Of two concurrent kiosk scans only one
// matches; the other reports false.
func (repo *orderRepository) RedeemDay(ctx context.Context, email string, wk lunch.WeekKey, day int, at time.Time) (bool, error) {
	redeemedField := fmt.Sprintf("redeemed.%d", day)
	filter := orderFilter(email, wk)
	filter[redeemedField] = nil

	res, err := repo.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		redeemedField: at.UTC(),
		"updated_at":  at.UTC(),
	}})
	if err != nil {
		return false, errors.Wrap(err, "marking order redeemed")
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	// lost the race, or no order at all
	count, err := repo.coll.CountDocuments(ctx, orderFilter(email, wk))
	if err != nil {
		return false, errors.Wrap(err, "checking order")
	}
	if count == 0 {
		return false, lunch.ErrOrderNotFound
	}
	return false, nil
}

func weekFilter(wk lunch.WeekKey) bson.M {
	return bson.M{"week": wk.Week, "year": wk.Year}
}

func orderFilter(email string, wk lunch.WeekKey) bson.M {
	return bson.M{"email": email, "week": wk.Week, "year": wk.Year}
}

func emptyRedemptions() bson.A {
	arr := make(bson.A, lunch.NumDays)
	return arr // all nulls: no day redeemed yet
}
