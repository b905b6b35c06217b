package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/chat-auth/internal/models"
	"github.com/pribylovaa/chat-auth/internal/storage"
	"github.com/pribylovaa/chat-auth/internal/token"
)

func mustHashPW(t *testing.T, pw string) string {
	t.Helper()
	h, err := hashPassword(pw)
	require.NoError(t, err)
	return h
}

func TestRegisterUser_OK(t *testing.T) {
	t.Parallel()

	svc, st, tm, _ := newSvc(t)

	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").Return(nil, storage.ErrNotFound)

	var saved *models.User
	st.EXPECT().CreateUser(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, u *models.User) error {
		saved = u
		return nil
	})

	pair, user, err := svc.RegisterUser(context.Background(), "User@Example.com", "Abcdef1!", "")
	require.NoError(t, err)
	require.Same(t, saved, user)
	require.Equal(t, models.ProviderEmail, user.Provider)
	require.Empty(t, user.ProviderID)
	require.Equal(t, "user", user.Name)
	require.True(t, user.Active)
	require.True(t, checkPassword(user.PasswordHash, "Abcdef1!"))

	uid, err := tm.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, uid)
}

func TestRegisterUser_InputValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"invalid email", "not-an-email", "Abcdef1!", ErrInvalidEmail},
		{"empty password", "a@x.com", "", ErrEmptyPassword},
		{"short password", "a@x.com", "Ab1!", ErrWeakPassword},
		{"no special", "a@x.com", "Abcdefg1", ErrWeakPassword},
		{"no upper", "a@x.com", "abcdef1!", ErrWeakPassword},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, _, _, _ := newSvc(t)
			_, _, err := svc.RegisterUser(context.Background(), tt.email, tt.password, "")
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRegisterUser_EmailOwnedByOAuthAccount_Collision(t *testing.T) {
	t.Parallel()

	svc, st, _, _ := newSvc(t)
	st.EXPECT().UserByEmail(gomock.Any(), "a@x.com").
		Return(existingUser(models.ProviderGitHub, "42", "a@x.com"), nil)

	_, _, err := svc.RegisterUser(context.Background(), "a@x.com", "Abcdef1!", "A")
	require.ErrorIs(t, err, ErrAccountCollision)
	require.NotErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterUser_EmailOwnedByLocalAccount_Taken(t *testing.T) {
	t.Parallel()

	svc, st, _, _ := newSvc(t)
	st.EXPECT().UserByEmail(gomock.Any(), "a@x.com").
		Return(existingUser(models.ProviderEmail, "", "a@x.com"), nil)

	_, _, err := svc.RegisterUser(context.Background(), "a@x.com", "Abcdef1!", "A")
	require.ErrorIs(t, err, ErrEmailTaken)
	require.NotErrorIs(t, err, ErrAccountCollision)
}

func TestRegisterUser_LostRace_Taken(t *testing.T) {
	t.Parallel()

	svc, st, _, _ := newSvc(t)
	gomock.InOrder(
		st.EXPECT().UserByEmail(gomock.Any(), "a@x.com").Return(nil, storage.ErrNotFound),
		st.EXPECT().CreateUser(gomock.Any(), gomock.Any()).Return(fmtWrap(storage.ErrAlreadyExists)),
		st.EXPECT().UserByEmail(gomock.Any(), "a@x.com").Return(existingUser(models.ProviderEmail, "", "a@x.com"), nil),
	)

	_, _, err := svc.RegisterUser(context.Background(), "a@x.com", "Abcdef1!", "A")
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginUser(t *testing.T) {
	t.Parallel()

	local := existingUser(models.ProviderEmail, "", "a@x.com")
	local.PasswordHash = mustHashPW(t, "Abcdef1!")

	inactive := *local
	inactive.Active = false

	oauthUser := existingUser(models.ProviderGoogle, "g-1", "a@x.com")

	tests := []struct {
		name     string
		stored   *models.User
		storeErr error
		password string
		want     error
	}{
		{name: "ok", stored: local, password: "Abcdef1!"},
		{name: "wrong password", stored: local, password: "Wrong1!!", want: ErrInvalidCredentials},
		{name: "unknown email", storeErr: storage.ErrNotFound, password: "Abcdef1!", want: ErrInvalidCredentials},
		{name: "oauth account", stored: oauthUser, password: "Abcdef1!", want: ErrInvalidCredentials},
		{name: "deactivated", stored: &inactive, password: "Abcdef1!", want: ErrAccountDeactivated},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, st, _, _ := newSvc(t)
			st.EXPECT().UserByEmail(gomock.Any(), "a@x.com").Return(tt.stored, tt.storeErr)

			pair, user, err := svc.LoginUser(context.Background(), "A@x.com", tt.password)
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
				return
			}

			require.NoError(t, err)
			require.Equal(t, local.ID, user.ID)
			require.NotEmpty(t, pair.RefreshToken)
		})
	}
}

func TestLoginUser_EmptyInput_NoLookup(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newSvc(t)

	_, _, err := svc.LoginUser(context.Background(), "a@x.com", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.LoginUser(context.Background(), "bad", "Abcdef1!")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshToken_RotatesBothTokens(t *testing.T) {
	t.Parallel()

	svc, st, tm, clk := newSvc(t)
	u := existingUser(models.ProviderGitHub, "42", "a@x.com")

	old, err := tm.Issue(u.ID)
	require.NoError(t, err)

	clk.Advance(time.Minute)
	st.EXPECT().UserByID(gomock.Any(), u.ID).Return(u, nil)

	pair, err := svc.RefreshToken(context.Background(), old.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, old.AccessToken, pair.AccessToken)
	require.NotEqual(t, old.RefreshToken, pair.RefreshToken)

	uid, err := tm.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, uid)
}

func TestRefreshToken_AfterAccessExpiry_OK(t *testing.T) {
	t.Parallel()

	svc, st, tm, clk := newSvc(t)
	u := existingUser(models.ProviderGoogle, "g", "a@x.com")

	old, err := tm.Issue(u.ID)
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	_, err = tm.VerifyAccess(old.AccessToken)
	require.ErrorIs(t, err, token.ErrTokenExpired)

	st.EXPECT().UserByID(gomock.Any(), u.ID).Return(u, nil)
	_, err = svc.RefreshToken(context.Background(), old.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshToken_GenericFailures(t *testing.T) {
	t.Parallel()

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()
		svc, _, _, _ := newSvc(t)
		_, err := svc.RefreshToken(context.Background(), "garbage")
		require.ErrorIs(t, err, ErrRefreshFailed)
		require.NotErrorIs(t, err, token.ErrInvalidToken)
	})

	t.Run("access token presented", func(t *testing.T) {
		t.Parallel()
		svc, _, tm, _ := newSvc(t)
		pair, err := tm.Issue(uuid.New())
		require.NoError(t, err)
		_, err = svc.RefreshToken(context.Background(), pair.AccessToken)
		require.ErrorIs(t, err, ErrRefreshFailed)
	})

	t.Run("expired", func(t *testing.T) {
		t.Parallel()
		svc, _, tm, clk := newSvc(t)
		pair, err := tm.Issue(uuid.New())
		require.NoError(t, err)
		clk.Advance(8 * 24 * time.Hour)
		_, err = svc.RefreshToken(context.Background(), pair.RefreshToken)
		require.ErrorIs(t, err, ErrRefreshFailed)
	})

	t.Run("user gone", func(t *testing.T) {
		t.Parallel()
		svc, st, tm, _ := newSvc(t)
		uid := uuid.New()
		pair, err := tm.Issue(uid)
		require.NoError(t, err)
		st.EXPECT().UserByID(gomock.Any(), uid).Return(nil, fmtWrap(storage.ErrNotFound))
		_, err = svc.RefreshToken(context.Background(), pair.RefreshToken)
		require.ErrorIs(t, err, ErrRefreshFailed)
	})

	t.Run("deactivated", func(t *testing.T) {
		t.Parallel()
		svc, st, tm, _ := newSvc(t)
		u := existingUser(models.ProviderGoogle, "g", "a@x.com")
		u.Active = false
		pair, err := tm.Issue(u.ID)
		require.NoError(t, err)
		st.EXPECT().UserByID(gomock.Any(), u.ID).Return(u, nil)
		_, err = svc.RefreshToken(context.Background(), pair.RefreshToken)
		require.ErrorIs(t, err, ErrRefreshFailed)
	})
}

func TestRefreshToken_StorageError_NotMaskedAsRefreshFailure(t *testing.T) {
	t.Parallel()

	svc, st, tm, _ := newSvc(t)
	uid := uuid.New()
	pair, err := tm.Issue(uid)
	require.NoError(t, err)

	boom := errors.New("db down")
	st.EXPECT().UserByID(gomock.Any(), uid).Return(nil, boom)

	_, err = svc.RefreshToken(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrRefreshFailed)
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()
		svc, st, tm, _ := newSvc(t)
		u := existingUser(models.ProviderGitHub, "42", "a@x.com")
		pair, err := tm.Issue(u.ID)
		require.NoError(t, err)
		st.EXPECT().UserByID(gomock.Any(), u.ID).Return(u, nil)

		id, err := svc.Authenticate(context.Background(), pair.AccessToken)
		require.NoError(t, err)
		require.Equal(t, u.ID, id.User.ID)
		require.Equal(t, models.ProviderGitHub, id.Provider)
	})

	t.Run("expired", func(t *testing.T) {
		t.Parallel()
		svc, _, tm, clk := newSvc(t)
		pair, err := tm.Issue(uuid.New())
		require.NoError(t, err)
		clk.Advance(time.Hour)

		_, err = svc.Authenticate(context.Background(), pair.AccessToken)
		require.ErrorIs(t, err, ErrUnauthorized)
		require.True(t, IsTokenExpired(err))
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()
		svc, _, _, _ := newSvc(t)
		_, err := svc.Authenticate(context.Background(), "x.y.z")
		require.ErrorIs(t, err, ErrUnauthorized)
		require.ErrorIs(t, err, token.ErrInvalidToken)
		require.False(t, IsTokenExpired(err))
	})

	t.Run("user missing", func(t *testing.T) {
		t.Parallel()
		svc, st, tm, _ := newSvc(t)
		uid := uuid.New()
		pair, err := tm.Issue(uid)
		require.NoError(t, err)
		st.EXPECT().UserByID(gomock.Any(), uid).Return(nil, storage.ErrNotFound)

		_, err = svc.Authenticate(context.Background(), pair.AccessToken)
		require.ErrorIs(t, err, ErrUnauthorized)
		require.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("deactivated", func(t *testing.T) {
		t.Parallel()
		svc, st, tm, _ := newSvc(t)
		u := existingUser(models.ProviderGoogle, "g", "a@x.com")
		u.Active = false
		pair, err := tm.Issue(u.ID)
		require.NoError(t, err)
		st.EXPECT().UserByID(gomock.Any(), u.ID).Return(u, nil)

		_, err = svc.Authenticate(context.Background(), pair.AccessToken)
		require.ErrorIs(t, err, ErrAccountDeactivated)
	})
}

func TestUpdateProfile(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()
		svc, st, _, _ := newSvc(t)
		id := uuid.New()
		name := "Renamed"
		avatar := "https://img.example.com/a.png"

		st.EXPECT().UpdateProfile(gomock.Any(), id, storage.ProfileUpdate{Name: &name, AvatarURL: &avatar}).
			Return(&models.User{ID: id, Name: name, AvatarURL: avatar}, nil)

		u, err := svc.UpdateProfile(context.Background(), id, ProfileInput{Name: &name, AvatarURL: &avatar})
		require.NoError(t, err)
		require.Equal(t, name, u.Name)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()
		svc, _, _, _ := newSvc(t)
		empty := ""
		bad := "not a url"

		_, err := svc.UpdateProfile(context.Background(), uuid.New(), ProfileInput{Name: &empty})
		require.ErrorIs(t, err, ErrInvalidProfile)

		_, err = svc.UpdateProfile(context.Background(), uuid.New(), ProfileInput{AvatarURL: &bad})
		require.ErrorIs(t, err, ErrInvalidProfile)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		svc, st, _, _ := newSvc(t)
		st.EXPECT().UpdateProfile(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, storage.ErrNotFound)

		_, err := svc.UpdateProfile(context.Background(), uuid.New(), ProfileInput{})
		require.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestProfile_And_Deactivate(t *testing.T) {
	t.Parallel()

	svc, st, _, _ := newSvc(t)
	u := existingUser(models.ProviderGoogle, "g", "a@x.com")

	st.EXPECT().UserByID(gomock.Any(), u.ID).Return(u, nil)
	got, err := svc.Profile(context.Background(), u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Email, got.Email)

	missing := uuid.New()
	st.EXPECT().UserByID(gomock.Any(), missing).Return(nil, storage.ErrNotFound)
	_, err = svc.Profile(context.Background(), missing)
	require.ErrorIs(t, err, ErrUserNotFound)

	st.EXPECT().SetActive(gomock.Any(), u.ID, false).Return(nil)
	require.NoError(t, svc.Deactivate(context.Background(), u.ID))

	st.EXPECT().SetActive(gomock.Any(), missing, false).Return(storage.ErrNotFound)
	require.ErrorIs(t, svc.Deactivate(context.Background(), missing), ErrUserNotFound)
}
