package mongodb

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/suliportal/suliportal/core/user"
)

type userRepository struct {
	coll *mongo.Collection
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{coll: db.db.Collection(usersCollection)}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, uname, email string, exclUsers ...user.User) error {
	exclIDs := make([]string, 0, len(exclUsers))
	for _, usr := range exclUsers {
		exclIDs = append(exclIDs, usr.ID)
	}

	check := func(field, value string, dupErr error) error {
		if value == "" {
			return nil
		}
		filter := bson.M{field: value}
		if len(exclIDs) > 0 {
			filter["_id"] = bson.M{"$nin": exclIDs}
		}
		count, err := repo.coll.CountDocuments(ctx, filter)
		if err != nil {
			return errors.Wrapf(err, "checking %s uniqueness", field)
		}
		if count > 0 {
			return dupErr
		}
		return nil
	}

	if err := check("username", uname, user.ErrUsernameExists); err != nil {
		return err
	}
	return check("email", email, user.ErrEmailExists)
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	if _, err := repo.coll.InsertOne(ctx, usr); err != nil {
		if isDup(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	return repo.find(ctx, bson.M{})
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.findOne(ctx, bson.M{"_id": id})
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, uname string) (user.User, error) {
	return repo.findOne(ctx, bson.M{"username": uname})
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.findOne(ctx, bson.M{"email": email})
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, uname string) (user.User, error) {
	return repo.findOne(ctx, bson.M{"$or": bson.A{
		bson.M{"username": uname},
		bson.M{"email": uname},
	}})
}

func (repo *userRepository) GetUserByBadge(ctx context.Context, badgeID string) (user.User, error) {
	if badgeID == "" {
		return user.User{}, user.ErrNotFound
	}
	return repo.findOne(ctx, bson.M{"badge_id": badgeID})
}

func (repo *userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	query := bson.M{}
	if filter.Search != "" {
		search := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"name": search},
			bson.M{"username": search},
			bson.M{"email": search},
		}
	}
	if filter.Roles != nil {
		// a filter role is a prefix: "admin:" matches "admin:head" too
		prefixes := make(bson.A, 0, len(filter.Roles))
		for _, role := range filter.Roles {
			prefixes = append(prefixes, primitive.Regex{Pattern: "^" + regexp.QuoteMeta(role)})
		}
		query["roles"] = bson.M{"$elemMatch": bson.M{"$in": prefixes}}
	}
	if filter.IsActive != nil {
		query["is_active"] = *filter.IsActive
	}
	if filter.Blocked != nil {
		query["blocked"] = *filter.Blocked
	}
	created := bson.M{}
	if !filter.CreatedFrom.IsZero() {
		created["$gte"] = filter.CreatedFrom.UTC()
	}
	if !filter.CreatedTo.IsZero() {
		created["$lte"] = filter.CreatedTo.UTC()
	}
	if len(created) > 0 {
		query["created_at"] = created
	}
	return repo.find(ctx, query)
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive, blocked *bool) (user.User, error) {
	set := bson.M{}
	if usr.Name != "" {
		set["name"] = usr.Name
	}
	if usr.Username != "" {
		set["username"] = usr.Username
	}
	if usr.Email != "" {
		set["email"] = usr.Email
	}
	if usr.BadgeID != "" {
		set["badge_id"] = usr.BadgeID
	}
	if usr.Roles != nil {
		set["roles"] = usr.Roles
	}
	if usr.PasswordHash != nil {
		set["password_hash"] = usr.PasswordHash
	}
	if usr.LastLogin != nil {
		set["last_login"] = usr.LastLogin.UTC()
	}
	if isActive != nil {
		set["is_active"] = *isActive
	}
	if blocked != nil {
		set["blocked"] = *blocked
	}
	if !usr.UpdatedAt.IsZero() {
		set["updated_at"] = usr.UpdatedAt
	} else {
		set["updated_at"] = time.Now().UTC()
	}

	var updated user.User
	err := repo.coll.FindOneAndUpdate(
		ctx,
		bson.M{"_id": usr.ID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return updated, nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	return errors.Wrap(err, "deleting users")
}

func (repo *userRepository) findOne(ctx context.Context, filter bson.M) (user.User, error) {
	var usr user.User
	if err := repo.coll.FindOne(ctx, filter).Decode(&usr); err != nil {
		if err == mongo.ErrNoDocuments {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "finding user")
	}
	return usr, nil
}

func (repo *userRepository) find(ctx context.Context, filter bson.M) ([]user.User, error) {
	cur, err := repo.coll.Find(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	var users []user.User
	if err = cur.All(ctx, &users); err != nil {
		return nil, errors.Wrap(err, "decoding users")
	}
	return users, nil
}
