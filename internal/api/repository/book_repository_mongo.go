package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ctchen222/bookworm/internal/api/models"
	"ctchen222/bookworm/internal/db"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type bookDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Title       string             `bson:"title"`
	Description string             `bson:"description"`
	CoverImage  string             `bson:"coverImage"`
	Rating      float64            `bson:"rating"`
	User        primitive.ObjectID `bson:"user"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

func (d *bookDocument) toModel() models.Book {
	return models.Book{
		ID:          d.ID.Hex(),
		Title:       d.Title,
		Description: d.Description,
		CoverImage:  d.CoverImage,
		Rating:      d.Rating,
		UserID:      d.User.Hex(),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// newestFirst orders books by creation time, then id, descending.
var newestFirst = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}

type mongoBookRepository struct {
	books *mongo.Collection
	users *mongo.Collection
}

// NewMongoBookRepository creates a MongoDB-backed BookRepository.
func NewMongoBookRepository(database *mongo.Database) BookRepository {
	return &mongoBookRepository{
		books: database.Collection(db.BooksCollection),
		users: database.Collection(db.UsersCollection),
	}
}

func (r *mongoBookRepository) CreateBook(ctx context.Context, book *models.Book) error {
	ctx, span := tracer.Start(ctx, "MongoBookRepository.CreateBook")
	defer span.End()

	owner, err := primitive.ObjectIDFromHex(book.UserID)
	if err != nil {
		return fmt.Errorf("failed to create book: invalid owner id %q: %w", book.UserID, err)
	}
	if book.CreatedAt.IsZero() {
		book.CreatedAt = time.Now().UTC()
	}
	book.UpdatedAt = book.CreatedAt

	doc := bookDocument{
		ID:          primitive.NewObjectID(),
		Title:       book.Title,
		Description: book.Description,
		CoverImage:  book.CoverImage,
		Rating:      book.Rating,
		User:        owner,
		CreatedAt:   book.CreatedAt,
		UpdatedAt:   book.UpdatedAt,
	}
	if _, err := r.books.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create book: %w", err)
	}
	book.ID = doc.ID.Hex()
	return nil
}

func (r *mongoBookRepository) GetBookByID(ctx context.Context, id string) (*models.Book, error) {
	ctx, span := tracer.Start(ctx, "MongoBookRepository.GetBookByID")
	defer span.End()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	var doc bookDocument
	if err := r.books.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	book := doc.toModel()
	return &book, nil
}

func (r *mongoBookRepository) DeleteBook(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "MongoBookRepository.DeleteBook")
	defer span.End()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("failed to delete book: invalid id %q: %w", id, err)
	}
	if _, err := r.books.DeleteOne(ctx, bson.M{"_id": oid}); err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	return nil
}

// ListBooks returns one page of books with their owners resolved, the way an
// ODM populate does: one query for the page, one for the distinct owners.
func (r *mongoBookRepository) ListBooks(ctx context.Context, skip, limit int) ([]models.BookWithOwner, error) {
	ctx, span := tracer.Start(ctx, "MongoBookRepository.ListBooks")
	defer span.End()

	opts := options.Find().
		SetSort(newestFirst).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))

	docs, err := r.find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}

	owners, err := r.owners(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("failed to populate book owners: %w", err)
	}

	books := make([]models.BookWithOwner, 0, len(docs))
	for _, d := range docs {
		owner, ok := owners[d.User]
		if !ok {
			owner = models.Owner{ID: d.User.Hex()}
		}
		books = append(books, models.BookWithOwner{
			ID:          d.ID.Hex(),
			Title:       d.Title,
			Description: d.Description,
			CoverImage:  d.CoverImage,
			Rating:      d.Rating,
			User:        owner,
			CreatedAt:   d.CreatedAt,
			UpdatedAt:   d.UpdatedAt,
		})
	}
	return books, nil
}

func (r *mongoBookRepository) CountBooks(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "MongoBookRepository.CountBooks")
	defer span.End()

	total, err := r.books.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count books: %w", err)
	}
	return total, nil
}

func (r *mongoBookRepository) ListBooksByUser(ctx context.Context, userID string) ([]models.Book, error) {
	ctx, span := tracer.Start(ctx, "MongoBookRepository.ListBooksByUser")
	defer span.End()

	owner, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return []models.Book{}, nil
	}
	docs, err := r.find(ctx, bson.M{"user": owner}, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, fmt.Errorf("failed to list books for user: %w", err)
	}

	books := make([]models.Book, 0, len(docs))
	for i := range docs {
		books = append(books, docs[i].toModel())
	}
	return books, nil
}

func (r *mongoBookRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]bookDocument, error) {
	cursor, err := r.books.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []bookDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *mongoBookRepository) owners(ctx context.Context, docs []bookDocument) (map[primitive.ObjectID]models.Owner, error) {
	owners := make(map[primitive.ObjectID]models.Owner)
	if len(docs) == 0 {
		return owners, nil
	}

	seen := make(map[primitive.ObjectID]struct{}, len(docs))
	ids := make([]primitive.ObjectID, 0, len(docs))
	for _, d := range docs {
		if _, ok := seen[d.User]; ok {
			continue
		}
		seen[d.User] = struct{}{}
		ids = append(ids, d.User)
	}

	projection := options.Find().SetProjection(bson.M{"username": 1, "profileImage": 1})
	cursor, err := r.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, projection)
	if err != nil {
		return nil, err
	}
	var users []userDocument
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	for _, u := range users {
		owners[u.ID] = models.Owner{
			ID:           u.ID.Hex(),
			Username:     u.Username,
			ProfileImage: u.ProfileImage,
		}
	}
	return owners, nil
}
