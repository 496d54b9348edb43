package db

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"devopsdb/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestIndexModel(t *testing.T) {
	t.Run("unique ascending", func(t *testing.T) {
		m := indexModel(model.IndexSpec{Name: "username_1", Field: "username", Order: model.Ascending, Unique: true})

		assert.Equal(t, bson.D{{Key: "username", Value: int32(1)}}, m.Keys)
		require.NotNil(t, m.Options)
		require.NotNil(t, m.Options.Name)
		assert.Equal(t, "username_1", *m.Options.Name)
		require.NotNil(t, m.Options.Unique)
		assert.True(t, *m.Options.Unique)
	})

	t.Run("plain index leaves unique unset", func(t *testing.T) {
		m := indexModel(model.IndexSpec{Name: "active_1", Field: "active"})

		assert.Equal(t, bson.D{{Key: "active", Value: int32(1)}}, m.Keys)
		assert.Nil(t, m.Options.Unique)
	})

	t.Run("descending", func(t *testing.T) {
		m := indexModel(model.IndexSpec{Name: "createdAt_-1", Field: "createdAt", Order: model.Descending})
		assert.Equal(t, bson.D{{Key: "createdAt", Value: int32(-1)}}, m.Keys)
	})
}

func TestIndexInfo(t *testing.T) {
	keys, err := bson.Marshal(bson.D{{Key: "email", Value: int32(1)}})
	require.NoError(t, err)
	unique := true

	info := indexInfo(&mongo.IndexSpecification{Name: "email_1", KeysDocument: keys, Unique: &unique})
	assert.Equal(t, model.IndexInfo{Name: "email_1", Fields: []string{"email"}, Unique: true}, info)
	assert.True(t, info.Matches(model.IndexSpec{Field: "email", Unique: true}))

	info = indexInfo(&mongo.IndexSpecification{Name: "email_1", KeysDocument: keys})
	assert.False(t, info.Unique)
}

func TestTranslateInsertError(t *testing.T) {
	dup := mongo.WriteException{
		WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key error collection: devops_db.users index: username_1"}},
	}
	err := translateInsertError("admin", dup)
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.Contains(t, err.Error(), "admin")

	other := translateInsertError("admin", errors.New("connection reset"))
	assert.NotErrorIs(t, other, ErrDuplicateKey)
}

func TestIsNamespaceExists(t *testing.T) {
	assert.True(t, isNamespaceExists(mongo.CommandError{Code: 48, Name: "NamespaceExists"}))
	assert.True(t, isNamespaceExists(fmt.Errorf("create: %w", mongo.CommandError{Code: 48})))
	assert.False(t, isNamespaceExists(mongo.CommandError{Code: 26, Name: "NamespaceNotFound"}))
	assert.False(t, isNamespaceExists(errors.New("boom")))
}

func TestUserDocumentConversion(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	oid := primitive.NewObjectID()
	u := &model.User{
		ID:        oid.Hex(),
		Username:  "admin",
		Email:     "admin@company.com",
		Password:  "$2a$10$hash",
		FirstName: "System",
		LastName:  "Administrator",
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	doc := newUserDocument(u)
	assert.Equal(t, oid, doc.ID)
	assert.Equal(t, u, doc.toModel())

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	var fields bson.M
	require.NoError(t, bson.Unmarshal(raw, &fields))
	for _, key := range []string{"_id", "username", "email", "password", "firstName", "lastName", "active", "createdAt", "updatedAt"} {
		assert.Contains(t, fields, key)
	}

	fresh := newUserDocument(&model.User{Username: "new"})
	assert.True(t, fresh.ID.IsZero())
	assert.Empty(t, fresh.toModel().ID)
}
