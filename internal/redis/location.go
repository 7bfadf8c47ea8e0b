package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const (
	bookingLocationPrefix = "bookings:locations:"
	maxNearbyResults      = 50
)

// BookingLocation is the last reported position for one booking.
type BookingLocation struct {
	BookingID string
	Lat       float64
	Lng       float64
}

// LocationStore keeps one GEO set per booking kind holding the bookings
// currently on a trip.
type LocationStore struct {
	client *redis.Client
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client}
}

func locationKey(kind string) string {
	return bookingLocationPrefix + kind
}

// UpdateLocation replaces the indexed position of a booking.
func (s *LocationStore) UpdateLocation(ctx context.Context, kind, bookingID string, lat, lng float64) error {
	return s.client.GeoAdd(ctx, locationKey(kind), &redis.GeoLocation{
		Name:      bookingID,
		Longitude: lng,
		Latitude:  lat,
	}).Err()
}

// FindNearby returns up to maxNearbyResults bookings of kind within radiusKm
// of the point, nearest first.
func (s *LocationStore) FindNearby(ctx context.Context, kind string, lat, lng, radiusKm float64) ([]BookingLocation, error) {
	found, err := s.client.GeoSearchLocation(ctx, locationKey(kind), &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lng,
			Latitude:   lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      maxNearbyResults,
		},
		WithCoord: true,
	}).Result()
	if err != nil {
		return nil, err
	}

	out := make([]BookingLocation, len(found))
	for i, loc := range found {
		out[i] = BookingLocation{BookingID: loc.Name, Lat: loc.Latitude, Lng: loc.Longitude}
	}
	return out, nil
}

// RemoveLocation drops a booking once its trip has ended.
func (s *LocationStore) RemoveLocation(ctx context.Context, kind, bookingID string) error {
	return s.client.ZRem(ctx, locationKey(kind), bookingID).Err()
}
