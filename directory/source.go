package directory

import (
	"context"
	"fmt"

	"github.com/cosmomed/pharmacy-locator/interfaces"
	"github.com/cosmomed/pharmacy-locator/pharmacy"
)

var _ interfaces.PharmacySource = (*Source)(nil)

// Source serves session fetches straight from the store, without going
// through GET /pharmacies and its rate limit.
type Source struct {
	store interfaces.DirectoryStore
}

// NewSource returns a source reading from store.
func NewSource(store interfaces.DirectoryStore) *Source {
	return &Source{store: store}
}

// Fetch implements interfaces.PharmacySource.
func (s *Source) Fetch(ctx context.Context, q pharmacy.Query) (*pharmacy.Batch, error) {
	listings, err := s.store.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pharmacy.ErrFetchFailed, err)
	}
	return pharmacy.FromListings(listings), nil
}
