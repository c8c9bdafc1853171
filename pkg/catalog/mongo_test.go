package catalog

import (
	"context"
	"os"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/matzehuels/overclock/pkg/errors"
	"github.com/matzehuels/overclock/pkg/recipe"
)

func TestRecipeDocConversion(t *testing.T) {
	r := &recipe.Recipe{
		Name:      "Iron Ore from Miner Mk.1 on Pure node",
		Building:  "Miner Mk.1",
		Kind:      recipe.Ore,
		Time:      0.5,
		Rates:     []recipe.Rate{{Resource: "Iron Ore", Quantity: 1, Time: 0.5}},
		BasePower: 5e6,
		Ore:       &recipe.OreNode{Mark: 1, Purity: recipe.Pure},
	}
	d := toDoc(r)
	if d.Kind != "ore" || d.Ore == nil || d.Ore.Purity != "Pure" {
		t.Errorf("toDoc = %+v", d)
	}
	back, err := fromDoc(d)
	if err != nil {
		t.Fatalf("fromDoc: %v", err)
	}
	if !reflect.DeepEqual(back, r) {
		t.Errorf("fromDoc = %+v, want %+v", back, r)
	}

	d.Kind = "furnace"
	if _, err := fromDoc(d); !errors.Is(err, errors.ErrCodeDataIngestion) {
		t.Errorf("fromDoc error = %v, want DATA_INGESTION", err)
	}
}

func TestNewMongoRequiresURI(t *testing.T) {
	_, err := NewMongo(context.Background(), MongoOptions{}, nil)
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("NewMongo error = %v, want INVALID_INPUT", err)
	}
}

func TestMongoIntegration(t *testing.T) {
	uri := os.Getenv("OVERCLOCK_MONGO_URI")
	if uri == "" {
		t.Skip("OVERCLOCK_MONGO_URI not set")
	}
	ctx := context.Background()
	m, err := NewMongo(ctx, MongoOptions{URI: uri, Database: "overclock_test", Collection: "recipes_" + uuid.NewString()}, nil)
	if err != nil {
		t.Fatalf("NewMongo: %v", err)
	}
	defer m.Close(ctx)
	defer m.coll.Drop(ctx)

	cat, _ := build(t, nil)
	if err := m.Save(ctx, cat); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != len(cat) {
		t.Errorf("len(loaded) = %d, want %d", len(loaded), len(cat))
	}

	small := plateCatalog(t)
	if err := m.Save(ctx, small); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, _ = m.Load(ctx)
	if len(loaded) != 1 {
		t.Errorf("Save should remove stale recipes, have %v", loaded.Names())
	}
}
