package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/chat-auth/internal/config"
	"github.com/pribylovaa/chat-auth/internal/models"
	"github.com/pribylovaa/chat-auth/internal/storage"
	"github.com/pribylovaa/chat-auth/internal/storage/memory"
	"github.com/pribylovaa/chat-auth/internal/token"
	"github.com/pribylovaa/chat-auth/mocks"
)

func testAuthCfg() config.AuthConfig {
	return config.AuthConfig{
		AccessSecret:    "unit-access",
		RefreshSecret:   "unit-refresh",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		Issuer:          "chat-auth",
		Audience:        []string{"chat-api"},
	}
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newSvc(t *testing.T) (*Service, *mocks.MockStorage, *token.Manager, *testClock) {
	t.Helper()
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStorage(ctrl)
	clk := &testClock{t: time.Now().UTC()}
	tm := token.New(testAuthCfg(), token.WithClock(clk.Now))
	return New(st, tm), st, tm, clk
}

func existingUser(p models.Provider, providerID, email string) *models.User {
	return &models.User{
		ID:         uuid.New(),
		Provider:   p,
		ProviderID: providerID,
		Email:      email,
		Name:       "Existing",
		Active:     true,
	}
}

func fmtWrap(err error) error { return fmt.Errorf("wrapped: %w", err) }

func TestResolveHandshake_RepeatLogin_ReturnsUnchanged(t *testing.T) {
	t.Parallel()

	svc, st, _, _ := newSvc(t)
	u := existingUser(models.ProviderGitHub, "42", "octo@x.com")

	st.EXPECT().UserByProvider(gomock.Any(), models.ProviderGitHub, "42").Return(u, nil)

	got, err := svc.ResolveHandshake(context.Background(), &models.Handshake{
		Provider:   models.ProviderGitHub,
		ProviderID: "42",
		Email:      "changed@x.com",
		Name:       "New Name",
	})
	require.NoError(t, err)
	require.Same(t, u, got)
	require.Equal(t, "octo@x.com", got.Email)
}

func TestResolveHandshake_RepeatLogin_WithoutEmail_OK(t *testing.T) {
	t.Parallel()

	svc, st, _, _ := newSvc(t)
	u := existingUser(models.ProviderGitHub, "42", "octo@x.com")

	st.EXPECT().UserByProvider(gomock.Any(), models.ProviderGitHub, "42").Return(u, nil)

	got, err := svc.ResolveHandshake(context.Background(), &models.Handshake{
		Provider: models.ProviderGitHub, ProviderID: "42",
	})
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
}

func TestResolveHandshake_CrossProviderEmail_Collision(t *testing.T) {
	t.Parallel()

	svc, st, _, _ := newSvc(t)
	google := existingUser(models.ProviderGoogle, "g-1", "a@x.com")

	st.EXPECT().UserByProvider(gomock.Any(), models.ProviderGitHub, "gh-9").Return(nil, fmtWrap(storage.ErrNotFound))
	st.EXPECT().UserByEmail(gomock.Any(), "a@x.com").Return(google, nil)
	// CreateUser не ожидается: gomock упадёт при вызове.

	_, err := svc.ResolveHandshake(context.Background(), &models.Handshake{
		Provider: models.ProviderGitHub, ProviderID: "gh-9", Email: "A@X.com",
	})
	require.ErrorIs(t, err, ErrAccountCollision)

	var ce *CollisionError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, "a@x.com", ce.Email)
	require.Equal(t, models.ProviderGoogle, ce.ExistingProvider)
	require.Contains(t, err.Error(), "An account with email a@x.com already exists. Please sign in with your existing method.")
}

func TestResolveHandshake_MissingEmail_CreatesNothing(t *testing.T) {
	t.Parallel()

	for _, email := range []string{"", "   ", "not-an-email"} {
		email := email
		t.Run(fmt.Sprintf("%q", email), func(t *testing.T) {
			t.Parallel()

			svc, st, _, _ := newSvc(t)
			st.EXPECT().UserByProvider(gomock.Any(), models.ProviderGitHub, "7").Return(nil, storage.ErrNotFound)

			_, err := svc.ResolveHandshake(context.Background(), &models.Handshake{
				Provider: models.ProviderGitHub, ProviderID: "7", Email: email,
			})
			require.ErrorIs(t, err, ErrMissingEmail)
		})
	}
}

func TestResolveHandshake_NewUser_Created(t *testing.T) {
	t.Parallel()

	svc, st, _, _ := newSvc(t)

	st.EXPECT().UserByProvider(gomock.Any(), models.ProviderGoogle, "g-1").Return(nil, storage.ErrNotFound)
	st.EXPECT().UserByEmail(gomock.Any(), "new@x.com").Return(nil, storage.ErrNotFound)

	var created *models.User
	st.EXPECT().CreateUser(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, u *models.User) error {
		created = u
		return nil
	})

	got, err := svc.ResolveHandshake(context.Background(), &models.Handshake{
		Provider:   models.ProviderGoogle,
		ProviderID: "g-1",
		Email:      " New@X.com ",
		Name:       "Newbie",
		AvatarURL:  "https://p/n.png",
	})
	require.NoError(t, err)
	require.Same(t, created, got)
	require.NotEqual(t, uuid.Nil, got.ID)
	require.Equal(t, models.ProviderGoogle, got.Provider)
	require.Equal(t, "g-1", got.ProviderID)
	require.Equal(t, "new@x.com", got.Email)
	require.Equal(t, "Newbie", got.Name)
	require.Equal(t, "https://p/n.png", got.AvatarURL)
	require.True(t, got.Active)
	require.False(t, got.CreatedAt.IsZero())
}

func TestResolveHandshake_NameFallsBackToEmailLocalPart(t *testing.T) {
	t.Parallel()

	svc, st, _, _ := newSvc(t)
	st.EXPECT().UserByProvider(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, storage.ErrNotFound)
	st.EXPECT().UserByEmail(gomock.Any(), gomock.Any()).Return(nil, storage.ErrNotFound)
	st.EXPECT().CreateUser(gomock.Any(), gomock.Any()).Return(nil)

	got, err := svc.ResolveHandshake(context.Background(), &models.Handshake{
		Provider: models.ProviderGitHub, ProviderID: "1", Email: "octo@x.com",
	})
	require.NoError(t, err)
	require.Equal(t, "octo", got.Name)
}

func TestResolveHandshake_InvalidHandshake(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newSvc(t)

	for _, hs := range []*models.Handshake{
		{Provider: models.ProviderEmail, ProviderID: "1", Email: "a@x.com"},
		{Provider: "twitter", ProviderID: "1", Email: "a@x.com"},
		{Provider: models.ProviderGitHub, ProviderID: " ", Email: "a@x.com"},
	} {
		_, err := svc.ResolveHandshake(context.Background(), hs)
		require.ErrorIs(t, err, ErrInvalidHandshake)
	}
}

func TestResolveHandshake_StorageError_Propagated(t *testing.T) {
	t.Parallel()

	svc, st, _, _ := newSvc(t)
	boom := errors.New("db down")
	st.EXPECT().UserByProvider(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, boom)

	_, err := svc.ResolveHandshake(context.Background(), &models.Handshake{
		Provider: models.ProviderGoogle, ProviderID: "1", Email: "a@x.com",
	})
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrAccountCollision)
}

func TestResolveHandshake_LostRace_SameIdentity_ReturnsWinner(t *testing.T) {
	t.Parallel()

	svc, st, _, _ := newSvc(t)
	winner := existingUser(models.ProviderGitHub, "42", "octo@x.com")

	gomock.InOrder(
		st.EXPECT().UserByProvider(gomock.Any(), models.ProviderGitHub, "42").Return(nil, storage.ErrNotFound),
		st.EXPECT().UserByEmail(gomock.Any(), "octo@x.com").Return(nil, storage.ErrNotFound),
		st.EXPECT().CreateUser(gomock.Any(), gomock.Any()).Return(fmtWrap(storage.ErrAlreadyExists)),
		st.EXPECT().UserByProvider(gomock.Any(), models.ProviderGitHub, "42").Return(winner, nil),
	)

	got, err := svc.ResolveHandshake(context.Background(), &models.Handshake{
		Provider: models.ProviderGitHub, ProviderID: "42", Email: "octo@x.com",
	})
	require.NoError(t, err)
	require.Equal(t, winner.ID, got.ID)
}

func TestResolveHandshake_LostRace_OtherProvider_Collision(t *testing.T) {
	t.Parallel()

	svc, st, _, _ := newSvc(t)
	winner := existingUser(models.ProviderGoogle, "g-1", "race@x.com")

	gomock.InOrder(
		st.EXPECT().UserByProvider(gomock.Any(), models.ProviderGitHub, "42").Return(nil, storage.ErrNotFound),
		st.EXPECT().UserByEmail(gomock.Any(), "race@x.com").Return(nil, storage.ErrNotFound),
		st.EXPECT().CreateUser(gomock.Any(), gomock.Any()).Return(storage.ErrAlreadyExists),
		st.EXPECT().UserByProvider(gomock.Any(), models.ProviderGitHub, "42").Return(nil, storage.ErrNotFound),
		st.EXPECT().UserByEmail(gomock.Any(), "race@x.com").Return(winner, nil),
	)

	_, err := svc.ResolveHandshake(context.Background(), &models.Handshake{
		Provider: models.ProviderGitHub, ProviderID: "42", Email: "race@x.com",
	})

	var ce *CollisionError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, models.ProviderGoogle, ce.ExistingProvider)
}

// TestResolveHandshake_ConcurrentSameEmail_AtMostOneAccount прогоняет реальные
// параллельные handshake двух провайдеров против хранилища в памяти.
func TestResolveHandshake_ConcurrentSameEmail_AtMostOneAccount(t *testing.T) {
	t.Parallel()

	st := memory.New()
	svc := New(st, token.New(testAuthCfg()))

	const rounds = 20
	for i := 0; i < rounds; i++ {
		email := fmt.Sprintf("race-%d@x.com", i)
		handshakes := []*models.Handshake{
			{Provider: models.ProviderGoogle, ProviderID: fmt.Sprintf("g-%d", i), Email: email},
			{Provider: models.ProviderGitHub, ProviderID: fmt.Sprintf("gh-%d", i), Email: email},
		}

		var wg sync.WaitGroup
		errs := make([]error, len(handshakes))
		for j, hs := range handshakes {
			wg.Add(1)
			go func(j int, hs *models.Handshake) {
				defer wg.Done()
				_, errs[j] = svc.ResolveHandshake(context.Background(), hs)
			}(j, hs)
		}
		wg.Wait()

		var ok, collisions int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrAccountCollision):
				collisions++
			}
		}
		require.Equal(t, 1, ok, "round %d", i)
		require.Equal(t, 1, collisions, "round %d", i)
	}
}

func TestCompleteHandshake_IssuesPairForUser(t *testing.T) {
	t.Parallel()

	svc, st, tm, _ := newSvc(t)
	u := existingUser(models.ProviderGoogle, "g-1", "a@x.com")
	st.EXPECT().UserByProvider(gomock.Any(), models.ProviderGoogle, "g-1").Return(u, nil)

	pair, got, err := svc.CompleteHandshake(context.Background(), &models.Handshake{
		Provider: models.ProviderGoogle, ProviderID: "g-1", Email: "a@x.com",
	})
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	uid, err := tm.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, uid)
}

func TestCompleteHandshake_DeactivatedAccount(t *testing.T) {
	t.Parallel()

	svc, st, _, _ := newSvc(t)
	u := existingUser(models.ProviderGoogle, "g-1", "a@x.com")
	u.Active = false
	st.EXPECT().UserByProvider(gomock.Any(), gomock.Any(), gomock.Any()).Return(u, nil)

	_, _, err := svc.CompleteHandshake(context.Background(), &models.Handshake{
		Provider: models.ProviderGoogle, ProviderID: "g-1", Email: "a@x.com",
	})
	require.ErrorIs(t, err, ErrAccountDeactivated)
}
