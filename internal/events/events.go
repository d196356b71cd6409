package events

import (
	"context"
)

// ListingUpdated is published whenever a crawl writes/refreshes one listing
// row. Subscribers use it for cache invalidation.
type ListingUpdated struct {
	ListingID string
	Source    string
	Location  string
}

type Publisher interface {
	PublishListingUpdated(ctx context.Context, evt ListingUpdated)
	SubscribeListingUpdated() <-chan ListingUpdated
}

type inMemory struct{ ch chan ListingUpdated }

func NewInMemory(buffer int) Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &inMemory{ch: make(chan ListingUpdated, buffer)}
}

// PublishListingUpdated never blocks; events are dropped when the buffer is
// full.
func (m *inMemory) PublishListingUpdated(_ context.Context, evt ListingUpdated) {
	select {
	case m.ch <- evt:
	default:
	}
}

func (m *inMemory) SubscribeListingUpdated() <-chan ListingUpdated { return m.ch }
