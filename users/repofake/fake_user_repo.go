package fakeuserrepo

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-alert-web/internal/errors"
	"github.com/jrsteele09/go-alert-web/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users       map[string]*users.User
	emailIds    map[string]string // lower-cased email to user id
	usernameIds map[string]string // lower-cased username to user id
	lock        sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:       make(map[string]*users.User),
		emailIds:    make(map[string]string),
		usernameIds: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Upsert(user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if prev, ok := ur.users[user.ID]; ok {
		delete(ur.emailIds, strings.ToLower(prev.Email))
		delete(ur.usernameIds, strings.ToLower(prev.Username))
	}
	ur.users[user.ID] = user.Clone()
	ur.emailIds[strings.ToLower(user.Email)] = user.ID
	ur.usernameIds[strings.ToLower(user.Username)] = user.ID
	return nil
}

func (ur *FakeUserRepo) GetByID(id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return u.Clone(), nil
}

func (ur *FakeUserRepo) GetByEmail(email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	return ur.lookup(ur.emailIds, email)
}

func (ur *FakeUserRepo) GetByUsername(username string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	return ur.lookup(ur.usernameIds, username)
}

func (ur *FakeUserRepo) GetByIdentifier(identifier string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	if u, err := ur.lookup(ur.usernameIds, identifier); err == nil {
		return u, nil
	}
	return ur.lookup(ur.emailIds, identifier)
}

func (ur *FakeUserRepo) SetVerified(id string, verified bool) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	u.Verified = verified
	return nil
}

// lookup expects the read lock to be held
func (ur *FakeUserRepo) lookup(index map[string]string, key string) (*users.User, error) {
	id, ok := index[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return ur.users[id].Clone(), nil
}
