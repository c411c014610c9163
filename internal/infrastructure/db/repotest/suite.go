// Package repotest holds the behaviour every ports.UserRepository
// implementation must share. Store packages run it from their own tests.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/sflow/user-access/internal/core/domain"
	"github.com/sflow/user-access/internal/core/ports"
)

// UserRepositorySuite exercises a fresh repository per test. NewRepo must
// return an empty store.
type UserRepositorySuite struct {
	suite.Suite
	NewRepo func() ports.UserRepository

	repo ports.UserRepository
}

func (s *UserRepositorySuite) SetupTest() {
	s.Require().NotNil(s.NewRepo, "NewRepo must be set")
	s.repo = s.NewRepo()
}

func (s *UserRepositorySuite) create(email string, role domain.Role) *domain.User {
	u, err := s.repo.Create(context.Background(), &domain.User{
		Email:             email,
		Username:          email,
		ExternalSubjectID: "sub-" + email,
		Role:              role,
		CreatedAt:         time.Now().UTC().Truncate(time.Millisecond),
	})
	s.Require().NoError(err)
	s.Require().NotZero(u.ID)
	return u
}

func (s *UserRepositorySuite) TestCreateAndFindByID() {
	ctx := context.Background()
	created := s.create("alice@x", domain.RoleUser)

	got, err := s.repo.FindByID(ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(created.ID, got.ID)
	s.Equal("alice@x", got.Email)
	s.Equal("sub-alice@x", got.ExternalSubjectID)
	s.Equal(domain.RoleUser, got.Role)
	s.WithinDuration(created.CreatedAt, got.CreatedAt, time.Millisecond)
}

func (s *UserRepositorySuite) TestCreateDuplicateEmail() {
	s.create("dup@x", domain.RoleUser)

	_, err := s.repo.Create(context.Background(), &domain.User{
		Email:             "dup@x",
		Username:          "other",
		ExternalSubjectID: "sub-other",
		Role:              domain.RoleUser,
	})
	s.ErrorIs(err, domain.ErrUserExists)
}

func (s *UserRepositorySuite) TestCreateDuplicateSubject() {
	ctx := context.Background()
	s.create("first@x", domain.RoleUser)

	_, err := s.repo.Create(ctx, &domain.User{
		Email:             "second@x",
		Username:          "second",
		ExternalSubjectID: "sub-first@x",
		Role:              domain.RoleUser,
	})
	s.ErrorIs(err, domain.ErrUserExists)
}

func (s *UserRepositorySuite) TestCreateSecondEmptySubjectRejected() {
	ctx := context.Background()
	_, err := s.repo.Create(ctx, &domain.User{Email: "nosub1@x", Username: "nosub1", Role: domain.RoleUser})
	s.Require().NoError(err)

	_, err = s.repo.Create(ctx, &domain.User{Email: "nosub2@x", Username: "nosub2", Role: domain.RoleUser})
	s.ErrorIs(err, domain.ErrUserExists)
}

func (s *UserRepositorySuite) TestFindByIDMissing() {
	_, err := s.repo.FindByID(context.Background(), 987654)
	s.ErrorIs(err, domain.ErrUserNotFound)
}

func (s *UserRepositorySuite) TestFindByRoleOrderedAndFiltered() {
	ctx := context.Background()
	u1 := s.create("u1@x", domain.RoleUser)
	s.create("m1@x", domain.RoleModerator)
	u2 := s.create("u2@x", domain.RoleUser)
	s.create("a1@x", domain.RoleAdmin)

	users, err := s.repo.FindByRole(ctx, domain.RoleUser)
	s.Require().NoError(err)
	s.Require().Len(users, 2)
	s.Equal(u1.ID, users[0].ID)
	s.Equal(u2.ID, users[1].ID)
}

func (s *UserRepositorySuite) TestFindByRoleEmpty() {
	s.create("a@x", domain.RoleAdmin)

	users, err := s.repo.FindByRole(context.Background(), domain.RoleModerator)
	s.Require().NoError(err)
	s.NotNil(users)
	s.Empty(users)
}

func (s *UserRepositorySuite) TestDeleteByID() {
	ctx := context.Background()
	u := s.create("gone@x", domain.RoleUser)

	exists, err := s.repo.ExistsByID(ctx, u.ID)
	s.Require().NoError(err)
	s.True(exists)

	s.Require().NoError(s.repo.DeleteByID(ctx, u.ID))

	exists, err = s.repo.ExistsByID(ctx, u.ID)
	s.Require().NoError(err)
	s.False(exists)

	s.ErrorIs(s.repo.DeleteByID(ctx, u.ID), domain.ErrUserNotFound)
	_, err = s.repo.FindByExternalSubjectID(ctx, u.ExternalSubjectID)
	s.ErrorIs(err, domain.ErrUserNotFound)
}

func (s *UserRepositorySuite) TestFindByExternalSubjectID() {
	ctx := context.Background()
	u := s.create("bob@x", domain.RoleModerator)

	got, err := s.repo.FindByExternalSubjectID(ctx, "sub-bob@x")
	s.Require().NoError(err)
	s.Equal(u.ID, got.ID)

	_, err = s.repo.FindByExternalSubjectID(ctx, "sub-nobody")
	s.ErrorIs(err, domain.ErrUserNotFound)
}

func (s *UserRepositorySuite) TestConcurrentCreateAssignsUniqueIDs() {
	const n = 20
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[int64]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := s.repo.Create(context.Background(), &domain.User{
				Email:             fmt.Sprintf("c%d@x", i),
				Username:          fmt.Sprintf("c%d", i),
				ExternalSubjectID: fmt.Sprintf("sub-c%d", i),
				Role:              domain.RoleUser,
			})
			if err != nil {
				return
			}
			mu.Lock()
			ids[u.ID] = struct{}{}
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	s.Len(ids, n)
}
