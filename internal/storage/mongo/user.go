package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pribylovaa/chat-auth/internal/models"
	"github.com/pribylovaa/chat-auth/internal/storage"
)

// userDoc: представление пользователя в коллекции users.
type userDoc struct {
	ID           string    `bson:"_id"`
	Provider     string    `bson:"provider"`
	ProviderID   string    `bson:"provider_id,omitempty"`
	Email        string    `bson:"email"`
	EmailKey     string    `bson:"email_key"`
	Name         string    `bson:"name"`
	AvatarURL    string    `bson:"avatar_url,omitempty"`
	PasswordHash string    `bson:"password_hash,omitempty"`
	Active       bool      `bson:"active"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// MongoDB DateTime хранит миллисекунды.
func toMS(t time.Time) time.Time { return t.UTC().Truncate(time.Millisecond) }

func toDoc(u *models.User) userDoc {
	return userDoc{
		ID:           u.ID.String(),
		Provider:     string(u.Provider),
		ProviderID:   u.ProviderID,
		Email:        u.Email,
		EmailKey:     strings.ToLower(u.Email),
		Name:         u.Name,
		AvatarURL:    u.AvatarURL,
		PasswordHash: u.PasswordHash,
		Active:       u.Active,
		CreatedAt:    toMS(u.CreatedAt),
		UpdatedAt:    toMS(u.UpdatedAt),
	}
}

func (d userDoc) toModel() (*models.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("bad user id %q: %w", d.ID, err)
	}

	return &models.User{
		ID:           id,
		Provider:     models.Provider(d.Provider),
		ProviderID:   d.ProviderID,
		Email:        d.Email,
		Name:         d.Name,
		AvatarURL:    d.AvatarURL,
		PasswordHash: d.PasswordHash,
		Active:       d.Active,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}, nil
}

// CreateUser вставляет документ; конфликт уникальных индексов -> ErrAlreadyExists.
func (m *Mongo) CreateUser(ctx context.Context, user *models.User) error {
	const op = "storage/mongo/CreateUser"

	if _, err := m.users.InsertOne(ctx, toDoc(user)); err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (m *Mongo) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage/mongo/UserByID"
	return m.findOne(ctx, op, bson.D{{Key: "_id", Value: id.String()}})
}

func (m *Mongo) UserByProvider(ctx context.Context, provider models.Provider, providerID string) (*models.User, error) {
	const op = "storage/mongo/UserByProvider"

	if providerID == "" {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return m.findOne(ctx, op, bson.D{
		{Key: "provider", Value: string(provider)},
		{Key: "provider_id", Value: providerID},
	})
}

func (m *Mongo) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage/mongo/UserByEmail"
	return m.findOne(ctx, op, bson.D{{Key: "email_key", Value: strings.ToLower(email)}})
}

// UpdateProfile обновляет только переданные поля.
func (m *Mongo) UpdateProfile(ctx context.Context, id uuid.UUID, upd storage.ProfileUpdate) (*models.User, error) {
	const op = "storage/mongo/UpdateProfile"

	set := bson.D{{Key: "updated_at", Value: toMS(time.Now())}}
	if upd.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *upd.Name})
	}
	if upd.AvatarURL != nil {
		set = append(set, bson.E{Key: "avatar_url", Value: *upd.AvatarURL})
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc userDoc
	err := m.users.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: id.String()}}, bson.D{{Key: "$set", Value: set}}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	u, err := doc.toModel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (m *Mongo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	const op = "storage/mongo/SetActive"

	res, err := m.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id.String()}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "active", Value: active},
			{Key: "updated_at", Value: toMS(time.Now())},
		}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

func (m *Mongo) findOne(ctx context.Context, op string, filter bson.D) (*models.User, error) {
	var doc userDoc
	if err := m.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	u, err := doc.toModel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}
