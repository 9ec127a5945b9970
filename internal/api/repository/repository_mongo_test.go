package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ctchen222/bookworm/internal/api/models"
	"ctchen222/bookworm/internal/api/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

const (
	usersNS = "bookworm.users"
	booksNS = "bookworm.books"
)

func userDoc(id primitive.ObjectID, name string) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "username", Value: name},
		{Key: "email", Value: name + "@example.com"},
		{Key: "password", Value: "$2a$10$hash"},
		{Key: "profileImage", Value: models.AvatarURL(name)},
		{Key: "createdAt", Value: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
}

func bookDoc(id, owner primitive.ObjectID, title string) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "title", Value: title},
		{Key: "description", Value: "desc"},
		{Key: "coverImage", Value: "https://cdn.example.com/covers/" + title + ".png"},
		{Key: "rating", Value: 4.0},
		{Key: "user", Value: owner},
		{Key: "createdAt", Value: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
}

func TestMongoUserRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("create assigns id and hash", func(mt *mtest.T) {
		users := repository.NewMongoUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		user := &models.User{Username: "reader", Email: "reader@example.com"}
		require.NoError(mt, users.CreateUser(ctx, user, "password123"))
		assert.True(mt, primitive.IsValidObjectID(user.ID), user.ID)
		assert.NotEqual(mt, "password123", user.PasswordHash)
		assert.False(mt, user.CreatedAt.IsZero())
	})

	mt.Run("duplicate key", func(mt *mtest.T) {
		users := repository.NewMongoUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: bookworm.users index: email_1",
		}))

		err := users.CreateUser(ctx, &models.User{Username: "reader", Email: "reader@example.com"}, "password123")
		assert.True(mt, errors.Is(err, repository.ErrDuplicate), "got %v", err)
	})

	mt.Run("find by email", func(mt *mtest.T) {
		users := repository.NewMongoUserRepository(mt.DB)
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, usersNS, mtest.FirstBatch, userDoc(id, "reader")))

		user, err := users.GetUserByEmail(ctx, "reader@example.com")
		require.NoError(mt, err)
		require.NotNil(mt, user)
		assert.Equal(mt, id.Hex(), user.ID)
		assert.Equal(mt, "reader", user.Username)
		assert.Equal(mt, "$2a$10$hash", user.PasswordHash)
	})

	mt.Run("missing user is nil", func(mt *mtest.T) {
		users := repository.NewMongoUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, usersNS, mtest.FirstBatch))

		user, err := users.GetUserByUsername(ctx, "nobody")
		require.NoError(mt, err)
		assert.Nil(mt, user)
	})

	mt.Run("malformed id is nil", func(mt *mtest.T) {
		users := repository.NewMongoUserRepository(mt.DB)

		user, err := users.GetUserByID(ctx, "not-an-object-id")
		require.NoError(mt, err)
		assert.Nil(mt, user)
	})
}

func TestMongoBookRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("create", func(mt *mtest.T) {
		books := repository.NewMongoBookRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		book := &models.Book{Title: "Dune", Description: "Spice", Rating: 5, UserID: primitive.NewObjectID().Hex()}
		require.NoError(mt, books.CreateBook(ctx, book))
		assert.True(mt, primitive.IsValidObjectID(book.ID), book.ID)
		assert.Equal(mt, book.CreatedAt, book.UpdatedAt)
	})

	mt.Run("create rejects malformed owner", func(mt *mtest.T) {
		books := repository.NewMongoBookRepository(mt.DB)

		err := books.CreateBook(ctx, &models.Book{Title: "Dune", UserID: "nope"})
		assert.Error(mt, err)
	})

	mt.Run("list populates owners", func(mt *mtest.T) {
		books := repository.NewMongoBookRepository(mt.DB)
		alice, bob := primitive.NewObjectID(), primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, booksNS, mtest.FirstBatch,
				bookDoc(primitive.NewObjectID(), alice, "a2"),
				bookDoc(primitive.NewObjectID(), bob, "b1"),
				bookDoc(primitive.NewObjectID(), alice, "a1"),
			),
			mtest.CreateCursorResponse(0, usersNS, mtest.FirstBatch,
				userDoc(alice, "alice"),
				userDoc(bob, "bob"),
			),
		)

		page, err := books.ListBooks(ctx, 0, 5)
		require.NoError(mt, err)
		require.Len(mt, page, 3)
		assert.Equal(mt, "a2", page[0].Title)
		assert.Equal(mt, models.Owner{ID: alice.Hex(), Username: "alice", ProfileImage: models.AvatarURL("alice")}, page[0].User)
		assert.Equal(mt, "bob", page[1].User.Username)
		assert.Equal(mt, "alice", page[2].User.Username)
	})

	mt.Run("empty list skips owner lookup", func(mt *mtest.T) {
		books := repository.NewMongoBookRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, booksNS, mtest.FirstBatch))

		page, err := books.ListBooks(ctx, 10, 5)
		require.NoError(mt, err)
		assert.NotNil(mt, page)
		assert.Empty(mt, page)
	})

	mt.Run("count", func(mt *mtest.T) {
		books := repository.NewMongoBookRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, booksNS, mtest.FirstBatch, bson.D{{Key: "n", Value: int64(12)}}))

		total, err := books.CountBooks(ctx)
		require.NoError(mt, err)
		assert.Equal(mt, int64(12), total)
	})

	mt.Run("get by id", func(mt *mtest.T) {
		books := repository.NewMongoBookRepository(mt.DB)
		id, owner := primitive.NewObjectID(), primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, booksNS, mtest.FirstBatch, bookDoc(id, owner, "dune")))

		book, err := books.GetBookByID(ctx, id.Hex())
		require.NoError(mt, err)
		require.NotNil(mt, book)
		assert.Equal(mt, id.Hex(), book.ID)
		assert.Equal(mt, owner.Hex(), book.UserID)
		assert.Equal(mt, 4.0, book.Rating)

		missing, err := books.GetBookByID(ctx, "missing")
		require.NoError(mt, err)
		assert.Nil(mt, missing)
	})

	mt.Run("list by user", func(mt *mtest.T) {
		books := repository.NewMongoBookRepository(mt.DB)
		owner := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, booksNS, mtest.FirstBatch,
			bookDoc(primitive.NewObjectID(), owner, "a2"),
			bookDoc(primitive.NewObjectID(), owner, "a1"),
		))

		mine, err := books.ListBooksByUser(ctx, owner.Hex())
		require.NoError(mt, err)
		require.Len(mt, mine, 2)
		assert.Equal(mt, "a2", mine[0].Title)
		assert.Equal(mt, owner.Hex(), mine[1].UserID)

		none, err := books.ListBooksByUser(ctx, "not-an-object-id")
		require.NoError(mt, err)
		assert.Empty(mt, none)
	})

	mt.Run("delete", func(mt *mtest.T) {
		books := repository.NewMongoBookRepository(mt.DB)
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 1}})

		require.NoError(mt, books.DeleteBook(ctx, primitive.NewObjectID().Hex()))
		assert.Error(mt, books.DeleteBook(ctx, "bad-id"))
	})
}
