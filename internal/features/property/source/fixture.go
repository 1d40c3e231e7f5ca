package source

import (
	"context"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"propchain/internal/features/property/models"
)

// SampleOwner owns the demo listings nobody else claims.
const SampleOwner = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"

// Fixture serves static demo listings. Listings 1 and 4 are attributed to
// the connected account so the dashboard has something to show.
type Fixture struct {
	now func() time.Time
}

func NewFixture() *Fixture {
	return &Fixture{now: time.Now}
}

func price(v int64) *int64 { return &v }

func (f *Fixture) Fetch(ctx context.Context, owner common.Address) ([]models.Property, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := f.now()
	day := 24 * time.Hour
	items := []models.Property{
		{
			Title:       "Modern Downtown Apartment",
			Description: "Luxurious apartment in the heart of downtown with stunning city views. Features include high ceilings, hardwood floors, and state-of-the-art appliances. The building offers amenities such as a fitness center, rooftop pool, and 24-hour concierge service.",
			Price:       price(425000),
			Location:    "New York, NY",
			AreaSqFt:    1200,
			Bedrooms:    2,
			Bathrooms:   2,
			YearBuilt:   2018,
			Images: []string{
				"https://images.pexels.com/photos/1643383/pexels-photo-1643383.jpeg",
				"https://images.pexels.com/photos/1571463/pexels-photo-1571463.jpeg",
			},
			Status:   models.StatusVerified,
			Featured: true,
		},
		{
			Title:       "Suburban Family Home",
			Description: "Spacious family home in a quiet suburban neighborhood. Features a large backyard, updated kitchen, and finished basement. Located near excellent schools, parks, and shopping centers.",
			Price:       price(625000),
			Location:    "Austin, TX",
			AreaSqFt:    2800,
			Bedrooms:    4,
			Bathrooms:   3,
			YearBuilt:   2010,
			Images: []string{
				"https://images.pexels.com/photos/106399/pexels-photo-106399.jpeg",
				"https://images.pexels.com/photos/1029599/pexels-photo-1029599.jpeg",
			},
			Status: models.StatusVerified,
		},
		{
			Title:       "Beachfront Condo",
			Description: "Stunning beachfront condo with panoramic ocean views. Recently renovated with high-end finishes throughout. Complex includes private beach access, swimming pool, and tennis courts.",
			Price:       price(875000),
			Location:    "Miami, FL",
			AreaSqFt:    1500,
			Bedrooms:    3,
			Bathrooms:   2,
			YearBuilt:   2015,
			Images: []string{
				"https://images.pexels.com/photos/1732414/pexels-photo-1732414.jpeg",
				"https://images.pexels.com/photos/2506990/pexels-photo-2506990.jpeg",
			},
			Status:   models.StatusPending,
			Featured: true,
		},
		{
			Title:       "Mountain Retreat Cabin",
			Description: "Cozy cabin nestled in the mountains. Perfect for nature lovers and outdoor enthusiasts. Features include stone fireplace, wraparound deck, and modern amenities. Close to hiking trails and ski resorts.",
			Price:       price(350000),
			Location:    "Denver, CO",
			AreaSqFt:    1800,
			Bedrooms:    3,
			Bathrooms:   2,
			YearBuilt:   2005,
			Images: []string{
				"https://images.pexels.com/photos/803975/pexels-photo-803975.jpeg",
				"https://images.pexels.com/photos/463734/pexels-photo-463734.jpeg",
			},
			Status: models.StatusVerified,
		},
		{
			Title:       "Historic Brownstone",
			Description: "Charming historic brownstone with original architectural details and modern updates. Features include crown molding, hardwood floors, and a gourmet kitchen. Located in a vibrant neighborhood with restaurants, shops, and cultural attractions.",
			Price:       price(950000),
			Location:    "Boston, MA",
			AreaSqFt:    2200,
			Bedrooms:    3,
			Bathrooms:   2.5,
			YearBuilt:   1920,
			Images: []string{
				"https://images.pexels.com/photos/1115804/pexels-photo-1115804.jpeg",
				"https://images.pexels.com/photos/1643389/pexels-photo-1643389.jpeg",
			},
			Status: models.StatusVerified,
		},
		{
			Title:       "Waterfront Estate",
			Description: "Luxurious waterfront estate on a private lot. Features include a chef's kitchen, home theater, wine cellar, and outdoor entertainment area with infinity pool. Private dock with direct access to the bay.",
			Price:       price(2950000),
			Location:    "Seattle, WA",
			AreaSqFt:    5500,
			Bedrooms:    5,
			Bathrooms:   4.5,
			YearBuilt:   2017,
			Images: []string{
				"https://images.pexels.com/photos/53610/large-home-residential-house-architecture-53610.jpeg",
				"https://images.pexels.com/photos/7031406/pexels-photo-7031406.jpeg",
			},
			Status:   models.StatusVerified,
			Featured: true,
		},
	}

	for i := range items {
		n := strconv.Itoa(i + 1)
		items[i].ID = "prop-" + n
		items[i].TokenID = n
		items[i].RequestedAt = now.Add(-time.Duration(90-i*10) * day)
		items[i].Owner = SampleOwner
		if owner != (common.Address{}) && (i == 0 || i == 3) {
			items[i].Owner = owner.Hex()
		}
	}
	return items, nil
}
