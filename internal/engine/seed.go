package engine

import (
	"context"

	"tidewater/internal/domain"
)

// seedItems is the fixed item catalog, created once at world bootstrap.
var seedItems = []domain.Item{
	{Key: "chestnut", Name: "Chestnut", EdibleHunger: 1, Description: "A small forest nut; plain but filling."},
	{Key: "mushroom", Name: "Mushroom", EdibleHunger: 2, Description: "Juicy fungi gathered in the Beautiful Forest."},
	{Key: "wild_herb", Name: "Wild Herbs", EdibleHunger: 0, Description: "Bitter plants used to brew healing potions."},
	{Key: "fruit", Name: "Fruit", EdibleHunger: 2, Description: "Sweet and sticky, grown in Not-New-Eden."},
	{Key: "fish", Name: "Fish", EdibleHunger: 2, Description: "Fresh catch from Ocean View."},
	{Key: "vegetable", Name: "Vegetables", EdibleHunger: 1, Description: "Common garden produce; carrots, onions, celery."},
	{Key: "bag_of_wheat", Name: "Bag of Wheat", EdibleHunger: 0, Description: "Grain for milling into flour."},
	{Key: "bag_of_flour", Name: "Bag of Flour", EdibleHunger: 0, Description: "White powder for baking bread."},
	{Key: "bread_loaf", Name: "Bread Loaf", EdibleHunger: 2, Description: "Warm bread, comforting and soft."},
	{Key: "health_potion", Name: "Health Potion", EdibleHunger: 0, Description: "Restores health when drunk."},
	{Key: "disgusting_insect", Name: "Disgusting Insects", EdibleHunger: 1, Description: "Crunchy, unpleasant, but edible."},
	{Key: "banana", Name: "Bananas", EdibleHunger: 1, Description: "Sweet fruit from the tropical forest."},
	{Key: "cactus", Name: "Cactus Slice", EdibleHunger: 1, Description: "Moist cactus flesh from the desert."},
	{Key: "corn_bag", Name: "Bag of Corn", EdibleHunger: 2, Description: "Maize kernels, staple crop of the mainland."},
	{Key: "bean_bag", Name: "Bag of Beans", EdibleHunger: 2, Description: "Dried beans, nourishing but costly."},
	{Key: "wood_plank", Name: "Wood Plank", EdibleHunger: 0, Description: "Used to build boats and structures."},
}

var seedLocations = []domain.Location{
	{Key: "beautiful_forest", Name: "Beautiful Forest", Region: "mainland"},
	{Key: "not_new_eden", Name: "Not-New-Eden", Region: "mainland"},
	{Key: "ocean_view", Name: "Ocean View", Region: "coast"},
	{Key: "temple_island", Name: "Temple Island", Region: "islands"},
	{Key: "risible_rock", Name: "Risible Rock", Region: "islands"},
}

// SeedWorld creates the item catalog, the map and the default vessel.
// Re-running is harmless: existing keys are left untouched.
func (e Engine) SeedWorld(ctx context.Context) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, it := range seedItems {
		if err := e.Repo.UpsertItem(ctx, tx, it); err != nil {
			return err
		}
	}
	for _, l := range seedLocations {
		if err := e.Repo.UpsertLocation(ctx, tx, l); err != nil {
			return err
		}
	}
	boat := domain.Vessel{
		Key:          "boat",
		Route:        []string{"beautiful_forest", "not_new_eden", "ocean_view", "temple_island", "risible_rock"},
		CurrentIndex: 2,
		// -1 marks "never moved"; 0 would collide with worlds whose epoch
		// puts the first settlement at turn 0.
		LastMovedTurn: -1,
	}
	if err := e.Repo.EnsureVessel(ctx, tx, boat); err != nil {
		return err
	}
	return tx.Commit()
}
