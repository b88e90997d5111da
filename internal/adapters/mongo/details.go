package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/tour-package-bookings/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DetailsRepository stores the free-form part of a package: description, itinerary and media.
type DetailsRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewDetailsRepository(db *mongo.Database, logger observability.Logger) *DetailsRepository {
	return &DetailsRepository{
		coll:   db.Collection("package_details"),
		logger: logger,
	}
}

type PackageDetails struct {
	PackageID   string         `bson:"_id" json:"package_id"`
	Description string         `bson:"description" json:"description"`
	Highlights  []string       `bson:"highlights" json:"highlights"`
	Inclusions  []string       `bson:"inclusions" json:"inclusions"`
	Exclusions  []string       `bson:"exclusions" json:"exclusions"`
	Itinerary   []ItineraryDay `bson:"itinerary" json:"itinerary"`
	Images      []string       `bson:"images" json:"images"`
	UpdatedAt   time.Time      `bson:"updated_at" json:"updated_at"`
}

type ItineraryDay struct {
	Day         int    `bson:"day" json:"day"`
	Title       string `bson:"title" json:"title"`
	Description string `bson:"description" json:"description"`
}

// Get returns nil without an error when the package has no details yet.
func (r *DetailsRepository) Get(ctx context.Context, packageID uuid.UUID) (*PackageDetails, error) {
	var d PackageDetails
	err := r.coll.FindOne(ctx, bson.M{"_id": packageID.String()}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithError(err).WithField("package_id", packageID).Error("failed to get package details")
		return nil, errors.Wrap(err, "mongo: get details")
	}
	return &d, nil
}

func (r *DetailsRepository) Save(ctx context.Context, d PackageDetails) error {
	d.UpdatedAt = time.Now().UTC()
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": d.PackageID}, d, options.Replace().SetUpsert(true))
	if err != nil {
		r.logger.WithError(err).WithField("package_id", d.PackageID).Error("failed to save package details")
		return errors.Wrap(err, "mongo: save details")
	}
	return nil
}

func (r *DetailsRepository) Delete(ctx context.Context, packageID uuid.UUID) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": packageID.String()})
	return errors.Wrap(err, "mongo: delete details")
}
