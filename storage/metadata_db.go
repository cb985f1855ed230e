package storage

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/davemorin/meural-manager/model"
)

// MetadataDB persists one PhotoMetadata record per remote item id.
type MetadataDB interface {
	Connect(connectionString, databaseName, collectionName string) error
	Close() error
	Save(ctx context.Context, rec model.PhotoMetadata) error
	GetByItemID(ctx context.Context, itemID int) (*model.PhotoMetadata, error)
	ListAll(ctx context.Context) ([]model.PhotoMetadata, error)
	Delete(ctx context.Context, itemID int) error
	Stats(ctx context.Context) (*model.MetadataStats, error)
}

type MongoMetadataDB struct {
	Log *zap.Logger

	mongoClient      *mongo.Client
	collection       *mongo.Collection
	connectionString string
	databaseName     string
	collectionName   string
}

func (db *MongoMetadataDB) Connect(connectionString, databaseName, collectionName string) error {
	var err error
	db.connectionString = connectionString
	db.databaseName = databaseName
	db.collectionName = collectionName

	db.mongoClient, err = mongo.Connect(context.TODO(), options.Client().ApplyURI(connectionString))
	if err != nil {
		return err
	}

	err = db.mongoClient.Ping(context.TODO(), nil)
	if err != nil {
		return err
	}

	db.collection = db.mongoClient.Database(db.databaseName).Collection(db.collectionName)

	// One record per remote item; re-uploads replace wholesale.
	_, err = db.collection.Indexes().CreateOne(context.TODO(), mongo.IndexModel{
		Keys:    bson.D{{Key: "item_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	db.Log.Info("connected to MongoDB",
		zap.String("database", databaseName), zap.String("collection", collectionName))
	return nil
}

func (db *MongoMetadataDB) Close() error {
	if db.mongoClient != nil {
		err := db.mongoClient.Disconnect(context.TODO())
		if err != nil {
			return err
		}
		db.Log.Info("disconnected from MongoDB")
	}
	return nil
}

// Save upserts by item id. The whole document is replaced: optional fields
// from a prior record never merge forward.
func (db *MongoMetadataDB) Save(ctx context.Context, rec model.PhotoMetadata) error {
	filter := bson.D{{Key: "item_id", Value: rec.ItemID}}
	_, err := db.collection.ReplaceOne(ctx, filter, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return err
	}
	db.Log.Info("metadata saved", zap.Int("item_id", rec.ItemID), zap.String("filename", rec.Filename))
	return nil
}

// GetByItemID returns (nil, nil) when no record exists; absence is not an
// error.
func (db *MongoMetadataDB) GetByItemID(ctx context.Context, itemID int) (*model.PhotoMetadata, error) {
	var rec model.PhotoMetadata
	filter := bson.D{{Key: "item_id", Value: itemID}}
	err := db.collection.FindOne(ctx, filter).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListAll returns every record sorted by capture timestamp, newest first.
// Records without a timestamp sort last.
func (db *MongoMetadataDB) ListAll(ctx context.Context) ([]model.PhotoMetadata, error) {
	opts := options.Find().SetSort(bson.D{{Key: "taken_at", Value: -1}})
	cursor, err := db.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	var records []model.PhotoMetadata
	if err = cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (db *MongoMetadataDB) Delete(ctx context.Context, itemID int) error {
	_, err := db.collection.DeleteOne(ctx, bson.D{{Key: "item_id", Value: itemID}})
	return err
}

func (db *MongoMetadataDB) Stats(ctx context.Context) (*model.MetadataStats, error) {
	stats := &model.MetadataStats{}

	var err error
	stats.Total, err = db.collection.CountDocuments(ctx, bson.D{})
	if err != nil {
		return nil, err
	}

	stats.WithGPS, err = db.collection.CountDocuments(ctx,
		bson.D{{Key: "location", Value: bson.D{{Key: "$ne", Value: nil}}}})
	if err != nil {
		return nil, err
	}

	stats.ByCamera, err = db.countByExpr(ctx, "camera_model", "$camera_model")
	if err != nil {
		return nil, err
	}

	stats.ByLens, err = db.countByExpr(ctx, "lens_model", "$lens_model")
	if err != nil {
		return nil, err
	}

	// Capture year is the leading "YYYY" of the normalized timestamp.
	stats.ByYear, err = db.countByExpr(ctx, "taken_at",
		bson.D{{Key: "$substrCP", Value: bson.A{"$taken_at", 0, 4}}})
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// countByExpr groups records with a non-null field by the given expression.
func (db *MongoMetadataDB) countByExpr(ctx context.Context, field string, groupExpr any) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: field, Value: bson.D{{Key: "$ne", Value: nil}}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: groupExpr},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := db.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ID    string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.ID] = row.Count
	}
	return out, nil
}
