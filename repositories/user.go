//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"chat-relay/codec"
	"chat-relay/errors"
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IUserRepository interface {
	CreateUser(email, hashedPassword, displayName, avatar string) (string, error)
	GetUserByEmail(email string) (User, error)
	GetUserByID(id string) (User, error)
	ListUsers() ([]User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// User is the repository-level representation of an account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string
	Avatar       string
	Roles        []string
	CreatedAt    time.Time
}

// CreateUser persists the user under "user:{email}" with a "userid:{id}"
// pointer back to the email. It returns the newly generated user id.
func (u UserRepository) CreateUser(email, hashedPassword, displayName, avatar string) (string, error) {
	newID := uuid.New().String()
	user := diskUser{
		ID:           newID,
		Email:        email,
		PasswordHash: hashedPassword,
		DisplayName:  displayName,
		Avatar:       avatar,
		Roles:        []string{"user"},
		CreatedAt:    time.Now().UnixNano(),
	}

	err := u.db.Update(func(txn *badger.Txn) error {
		key := userKey(email)
		if _, err := txn.Get(key); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err := set(txn, key, user); err != nil {
			return err
		}
		return set(txn, userIDKey(newID), email)
	})
	if err != nil {
		return "", err
	}
	return newID, nil
}

func (u UserRepository) GetUserByEmail(email string) (User, error) {
	var user diskUser
	err := u.db.View(func(txn *badger.Txn) error {
		return get(txn, userKey(email), &user)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return toUser(user), nil
}

func (u UserRepository) GetUserByID(id string) (User, error) {
	var user diskUser
	err := u.db.View(func(txn *badger.Txn) error {
		var email string
		if err := get(txn, userIDKey(id), &email); err != nil {
			return err
		}
		return get(txn, userKey(email), &user)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return toUser(user), nil
}

// ListUsers walks the "userid:" pointers and returns every account sorted by
// display name, then id.
func (u UserRepository) ListUsers() ([]User, error) {
	var users []User
	err := u.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(userIDPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var email string
			if err := it.Item().Value(func(val []byte) error {
				return codec.Unmarshal(val, &email)
			}); err != nil {
				return err
			}
			var user diskUser
			if err := get(txn, userKey(email), &user); err != nil {
				return fmt.Errorf("user %s: %w", email, err)
			}
			users = append(users, toUser(user))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(users, func(a, b User) int {
		return cmp.Or(strings.Compare(a.DisplayName, b.DisplayName), strings.Compare(a.ID, b.ID))
	})
	return users, nil
}

func toUser(d diskUser) User {
	return User{
		ID:           d.ID,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		DisplayName:  d.DisplayName,
		Avatar:       d.Avatar,
		Roles:        d.Roles,
		CreatedAt:    time.Unix(0, d.CreatedAt).UTC(),
	}
}
