package catalog

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/overclock/pkg/cache"
	"github.com/matzehuels/overclock/pkg/errors"
	"github.com/matzehuels/overclock/pkg/recipe"
)

// Defaults for MongoOptions.
const (
	DefaultMongoDatabase   = "overclock"
	DefaultMongoCollection = "recipes"
)

// MongoOptions configures a Mongo repository.
type MongoOptions struct {
	URI        string
	Database   string
	Collection string
}

// Mongo stores one document per recipe, keyed by recipe name.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
	source string
	logger *log.Logger
}

// recipeDoc is the stored form of a recipe.
type recipeDoc struct {
	Name      string        `bson:"_id"`
	Building  string        `bson:"building"`
	Kind      string        `bson:"kind"`
	Tier      string        `bson:"tier,omitempty"`
	Time      float64       `bson:"time"`
	Rates     []recipe.Rate `bson:"rates"`
	BasePower float64       `bson:"base_power,omitempty"`
	Ore       *oreDoc       `bson:"ore,omitempty"`
}

type oreDoc struct {
	Mark   int    `bson:"mark"`
	Purity string `bson:"purity"`
}

func toDoc(r *recipe.Recipe) recipeDoc {
	d := recipeDoc{
		Name:      r.Name,
		Building:  r.Building,
		Kind:      r.Kind.String(),
		Tier:      r.Tier,
		Time:      r.Time,
		Rates:     r.Rates,
		BasePower: r.BasePower,
	}
	if r.Ore != nil {
		d.Ore = &oreDoc{Mark: r.Ore.Mark, Purity: string(r.Ore.Purity)}
	}
	return d
}

func fromDoc(d recipeDoc) (*recipe.Recipe, error) {
	kind, err := recipe.ParseKind(d.Kind)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataIngestion, err, "recipe %q", d.Name)
	}
	r := &recipe.Recipe{
		Name:      d.Name,
		Building:  d.Building,
		Kind:      kind,
		Tier:      d.Tier,
		Time:      d.Time,
		Rates:     d.Rates,
		BasePower: d.BasePower,
	}
	if d.Ore != nil {
		r.Ore = &recipe.OreNode{Mark: d.Ore.Mark, Purity: recipe.Purity(d.Ore.Purity)}
	}
	return r, nil
}

// NewMongo connects to MongoDB and verifies the connection, retrying
// transient failures.
func NewMongo(ctx context.Context, opts MongoOptions, logger *log.Logger) (*Mongo, error) {
	if opts.URI == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "mongodb uri is required")
	}
	if opts.Database == "" {
		opts.Database = DefaultMongoDatabase
	}
	if opts.Collection == "" {
		opts.Collection = DefaultMongoCollection
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	err = cache.RetryWithBackoff(ctx, func() error {
		if err := client.Ping(ctx, nil); err != nil {
			return cache.Retryable(fmt.Errorf("ping mongodb: %w", err))
		}
		return nil
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return &Mongo{
		client: client,
		coll:   client.Database(opts.Database).Collection(opts.Collection),
		source: fmt.Sprintf("mongodb:%s/%s", opts.Database, opts.Collection),
		logger: logger,
	}, nil
}

// Source returns "mongodb:<database>/<collection>".
func (m *Mongo) Source() string { return m.source }

// Load reads every recipe document.
func (m *Mongo) Load(ctx context.Context) (recipe.Catalog, error) {
	cur, err := m.coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find recipes: %w", err)
	}
	defer cur.Close(ctx)

	var docs []recipeDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode recipes: %w", err)
	}
	recipes := make([]*recipe.Recipe, 0, len(docs))
	for _, d := range docs {
		r, err := fromDoc(d)
		if err != nil {
			return nil, err
		}
		recipes = append(recipes, r)
	}
	cat, err := recipe.NewCatalog(recipes...)
	if err != nil {
		return nil, err
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	m.logger.Info("loaded catalog", "source", m.source, "recipes", len(cat))
	return cat, nil
}

// Save upserts every recipe and removes documents not in cat.
func (m *Mongo) Save(ctx context.Context, cat recipe.Catalog) error {
	if err := cat.Validate(); err != nil {
		return err
	}
	names := cat.Names()
	for _, r := range cat.Sorted() {
		_, err := m.coll.ReplaceOne(ctx, bson.M{"_id": r.Name}, toDoc(r), options.Replace().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("save recipe %q: %w", r.Name, err)
		}
	}
	res, err := m.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$nin": names}})
	if err != nil {
		return fmt.Errorf("prune recipes: %w", err)
	}
	m.logger.Info("saved catalog", "source", m.source, "recipes", len(names), "removed", res.DeletedCount)
	return nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

var (
	_ Repository = (*Mongo)(nil)
	_ Saver      = (*Mongo)(nil)
)
