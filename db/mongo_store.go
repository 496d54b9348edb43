package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"devopsdb/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	codeNamespaceExists = 48
	defaultIndexID      = "_id_"
)

// userDocument is the MongoDB shape of a User.
type userDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Username  string             `bson:"username"`
	Email     string             `bson:"email"`
	Password  string             `bson:"password"`
	FirstName string             `bson:"firstName"`
	LastName  string             `bson:"lastName"`
	Active    bool               `bson:"active"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func newUserDocument(u *model.User) userDocument {
	d := userDocument{
		Username:  u.Username,
		Email:     u.Email,
		Password:  u.Password,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if oid, err := primitive.ObjectIDFromHex(u.ID); err == nil {
		d.ID = oid
	}
	return d
}

func (d userDocument) toModel() *model.User {
	u := &model.User{
		Username:  d.Username,
		Email:     d.Email,
		Password:  d.Password,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Active:    d.Active,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if !d.ID.IsZero() {
		u.ID = d.ID.Hex()
	}
	return u
}

// MongoStore bootstraps a MongoDB database. MongoDB creates databases on
// first write, so selecting one is enough to "create" it.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	log    *zap.SugaredLogger
}

// ConnectMongo dials uri, checks the server answers and selects database.
func ConnectMongo(ctx context.Context, uri, database string, logger *zap.SugaredLogger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if database == "" {
		return nil, fmt.Errorf("mongo: database name cannot be empty")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect failed: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		if dErr := client.Disconnect(ctx); dErr != nil {
			logger.Warnw("failed to disconnect after ping failure", "error", dErr)
		}
		return nil, fmt.Errorf("mongo: ping failed: %w", err)
	}
	logger.Debugw("connected to mongo", "database", database)

	return NewMongoStore(client, database, logger), nil
}

// NewMongoStore wraps an already connected client.
func NewMongoStore(client *mongo.Client, database string, logger *zap.SugaredLogger) *MongoStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &MongoStore{
		client: client,
		db:     client.Database(database),
		log:    logger,
	}
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongo: disconnect failed: %w", err)
	}
	return nil
}

func (s *MongoStore) EnsureDatabase(ctx context.Context) error {
	if err := s.db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return fmt.Errorf("mongo: selecting database %s: %w", s.db.Name(), err)
	}
	return nil
}

func (s *MongoStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return false, fmt.Errorf("mongo: listing collections: %w", err)
	}
	return len(names) > 0, nil
}

func (s *MongoStore) EnsureCollection(ctx context.Context, name string) (bool, error) {
	exists, err := s.CollectionExists(ctx, name)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := s.db.CreateCollection(ctx, name); err != nil {
		if isNamespaceExists(err) {
			return false, nil
		}
		return false, fmt.Errorf("mongo: creating collection %s: %w", name, err)
	}
	return true, nil
}

func (s *MongoStore) EnsureIndex(ctx context.Context, collection string, spec model.IndexSpec) (bool, error) {
	indexes := s.db.Collection(collection).Indexes()

	existing, err := indexes.ListSpecifications(ctx)
	if err != nil {
		return false, fmt.Errorf("mongo: listing indexes on %s: %w", collection, err)
	}
	for _, ix := range existing {
		if ix.Name != spec.Name {
			continue
		}
		if info := indexInfo(ix); !info.Matches(spec) {
			return false, fmt.Errorf("%w: %s on %s covers %v (unique=%t), want %s (unique=%t)",
				ErrIndexConflict, spec.Name, collection, info.Fields, info.Unique, spec.Field, spec.Unique)
		}
		return false, nil
	}

	if _, err := indexes.CreateOne(ctx, indexModel(spec)); err != nil {
		return false, fmt.Errorf("mongo: creating index %s on %s: %w", spec.Name, collection, err)
	}
	return true, nil
}

func (s *MongoStore) ListIndexes(ctx context.Context, collection string) ([]model.IndexInfo, error) {
	specs, err := s.db.Collection(collection).Indexes().ListSpecifications(ctx)
	if err != nil {
		return nil, fmt.Errorf("mongo: listing indexes on %s: %w", collection, err)
	}
	infos := make([]model.IndexInfo, 0, len(specs))
	for _, spec := range specs {
		if spec.Name == defaultIndexID {
			continue
		}
		infos = append(infos, indexInfo(spec))
	}
	return infos, nil
}

func (s *MongoStore) InsertUser(ctx context.Context, collection string, user *model.User) error {
	res, err := s.db.Collection(collection).InsertOne(ctx, newUserDocument(user))
	if err != nil {
		return translateInsertError(user.Username, err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		user.ID = oid.Hex()
	}
	return nil
}

func (s *MongoStore) FindUserByUsername(ctx context.Context, collection, username string) (*model.User, error) {
	var doc userDocument
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"username": username}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("mongo: finding %s: %w", username, err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) CountUsers(ctx context.Context, collection string) (int64, error) {
	return s.db.Collection(collection).CountDocuments(ctx, bson.D{})
}

// indexModel turns spec into a named single-field index model. Naming it
// explicitly lets a rerun recognise the index it created last time.
func indexModel(spec model.IndexSpec) mongo.IndexModel {
	order := spec.Order
	if order == 0 {
		order = model.Ascending
	}
	opts := options.Index().SetName(spec.Name)
	if spec.Unique {
		opts.SetUnique(true)
	}
	return mongo.IndexModel{
		Keys:    bson.D{{Key: spec.Field, Value: int32(order)}},
		Options: opts,
	}
}

func indexInfo(spec *mongo.IndexSpecification) model.IndexInfo {
	info := model.IndexInfo{Name: spec.Name}
	if spec.Unique != nil {
		info.Unique = *spec.Unique
	}
	elems, err := spec.KeysDocument.Elements()
	if err != nil {
		return info
	}
	for _, e := range elems {
		info.Fields = append(info.Fields, e.Key())
	}
	return info
}

func translateInsertError(username string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: inserting %s: %v", ErrDuplicateKey, username, err)
	}
	return fmt.Errorf("mongo: inserting %s: %w", username, err)
}

func isNamespaceExists(err error) bool {
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		return ce.Code == codeNamespaceExists || ce.Name == "NamespaceExists"
	}
	return false
}
