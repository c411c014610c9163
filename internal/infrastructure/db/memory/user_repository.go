package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sflow/user-access/internal/core/domain"
	"github.com/sflow/user-access/internal/core/ports"
)

var _ ports.UserRepository = (*UserRepository)(nil)

// UserRepository keeps users in process memory. Ids are assigned sequentially
// so id order equals creation order.
type UserRepository struct {
	mu     sync.RWMutex
	nextID int64
	users  map[int64]*domain.User
	order  []int64
}

func NewUserRepository() *UserRepository {
	return &UserRepository{nextID: 1, users: make(map[int64]*domain.User)}
}

func (r *UserRepository) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		// Subject ids are unique even when empty, as in the postgres and mongo stores.
		if u.Email == user.Email || u.ExternalSubjectID == user.ExternalSubjectID {
			return nil, domain.ErrUserExists
		}
	}

	created := *user
	created.ID = r.nextID
	r.nextID++
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	r.users[created.ID] = &created
	r.order = append(r.order, created.ID)

	out := created
	return &out, nil
}

func (r *UserRepository) FindByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (r *UserRepository) FindByRole(_ context.Context, role domain.Role) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.User, 0)
	for _, id := range r.order {
		u, ok := r.users[id]
		if !ok || u.Role != role {
			continue
		}
		clone := *u
		out = append(out, &clone)
	}
	return out, nil
}

func (r *UserRepository) ExistsByID(_ context.Context, id int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.users[id]
	return ok, nil
}

func (r *UserRepository) DeleteByID(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(r.users, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *UserRepository) FindByExternalSubjectID(_ context.Context, subjectID string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.ExternalSubjectID == subjectID {
			out := *u
			return &out, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// Ping always succeeds; it lets the store take part in readiness checks.
func (r *UserRepository) Ping(context.Context) error { return nil }
