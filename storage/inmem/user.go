package inmemdb

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/suliportal/suliportal/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, uname, email string, exclUsers ...user.User) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	excluded := func(usr *user.User) bool {
		for _, ex := range exclUsers {
			if ex.ID == usr.ID {
				return true
			}
		}
		return false
	}

	for _, usr := range repo.db.users {
		if excluded(usr) {
			continue
		}
		if uname != "" && usr.Username == uname {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	if usr.BadgeID != "" {
		for _, u := range repo.db.users {
			if u.BadgeID == usr.BadgeID {
				return user.User{}, user.ErrBadgeExists
			}
		}
	}
	cp := usr
	repo.db.users[usr.ID] = &cp
	return usr, nil
}

func (repo *userRepository) QueryAllUsers(_ context.Context) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		users = append(users, *usr)
	}
	return users, nil
}

func (repo *userRepository) GetUserByID(_ context.Context, id string) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if id != "" {
		if usr, ok := repo.db.users[id]; ok {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByUsername(_ context.Context, uname string) (user.User, error) {
	return repo.findOne(func(usr *user.User) bool { return uname != "" && usr.Username == uname })
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	return repo.findOne(func(usr *user.User) bool { return email != "" && usr.Email == email })
}

func (repo *userRepository) GetUserByUsernameOrEmail(_ context.Context, uname string) (user.User, error) {
	return repo.findOne(func(usr *user.User) bool {
		return uname != "" && (usr.Username == uname || usr.Email == uname)
	})
}

func (repo *userRepository) GetUserByBadge(_ context.Context, badgeID string) (user.User, error) {
	return repo.findOne(func(usr *user.User) bool { return badgeID != "" && usr.BadgeID == badgeID })
}

func (repo *userRepository) findOne(match func(*user.User) bool) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, usr := range repo.db.users {
		if match(usr) {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) FilterUsers(_ context.Context, filter user.QueryFilter) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var users []user.User
	search := strings.ToLower(filter.Search)
	for _, usr := range repo.db.users {
		if search != "" &&
			!strings.Contains(strings.ToLower(usr.Name), search) &&
			!strings.Contains(strings.ToLower(usr.Username), search) &&
			!strings.Contains(strings.ToLower(usr.Email), search) {
			continue
		}
		if filter.Roles != nil && !hasAnyRolePrefix(usr.Roles, filter.Roles) {
			continue
		}
		if filter.IsActive != nil && (usr.IsActive == nil || *usr.IsActive != *filter.IsActive) {
			continue
		}
		if filter.Blocked != nil && usr.Blocked != *filter.Blocked {
			continue
		}
		if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom.UTC()) {
			continue
		}
		if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo.UTC()) {
			continue
		}
		users = append(users, *usr)
	}
	return users, nil
}

// hasAnyRolePrefix matches the way role filters work in queries: a filter role
// is a prefix, so "admin:" matches "admin:head" as well.
func hasAnyRolePrefix(roles, wanted []string) bool {
	for _, want := range wanted {
		for _, role := range roles {
			if strings.HasPrefix(role, want) {
				return true
			}
		}
	}
	return false
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, isActive, blocked *bool) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	if usr.Name != "" {
		orig.Name = usr.Name
	}
	if usr.Username != "" {
		orig.Username = usr.Username
	}
	if usr.Email != "" {
		orig.Email = usr.Email
	}
	if usr.BadgeID != "" {
		orig.BadgeID = usr.BadgeID
	}
	if usr.Roles != nil {
		orig.Roles = usr.Roles
	}
	if usr.PasswordHash != nil {
		orig.PasswordHash = usr.PasswordHash
	}
	if usr.LastLogin != nil {
		orig.LastLogin = usr.LastLogin
	}
	if isActive != nil {
		orig.IsActive = isActive
	}
	if blocked != nil {
		orig.Blocked = *blocked
	}
	if !usr.UpdatedAt.IsZero() {
		orig.UpdatedAt = usr.UpdatedAt
	} else {
		orig.UpdatedAt = time.Now().UTC()
	}
	return *orig, nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, id := range ids {
		delete(repo.db.users, id)
	}
	return nil
}
