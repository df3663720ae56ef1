package rides

import (
	"net/url"
	"strconv"
)

// PageSize is the number of rides requested per page.
const PageSize = 10

// Provider is the ride offerer as populated by the backend.
type Provider struct {
	ID            string  `json:"_id"`
	Name          string  `json:"name"`
	AverageRating float64 `json:"averageRating"`
	TotalReviews  int     `json:"totalReviews"`
}

// Ride is one listing. It is read-only on the client.
type Ride struct {
	ID             string   `json:"_id"`
	PickupLocation string   `json:"pickupLocation"`
	Destination    string   `json:"destination"`
	Date           string   `json:"date"`
	Time           string   `json:"time"`
	PricePerSeat   float64  `json:"pricePerSeat"`
	VehicleType    string   `json:"vehicleType"`
	AvailableSeats int      `json:"availableSeats"`
	TotalSeats     int      `json:"totalSeats"`
	Provider       Provider `json:"providerId"`
}

// Vehicle types and sort orders accepted by the backend.
var (
	VehicleTypes = []string{"car", "van", "bus"}
	SortOrders   = []string{"date", "price", "-price", "seats"}
)

// DefaultSort is committed when a form leaves the sort order blank.
const DefaultSort = "date"

// Filters is the committed filter set. Zero values are absent.
type Filters struct {
	Pickup      string  `json:"pickup,omitempty"`
	Destination string  `json:"destination,omitempty"`
	Date        string  `json:"date,omitempty"`
	VehicleType string  `json:"vehicleType,omitempty"`
	MaxPrice    float64 `json:"maxPrice,omitempty"`
	SortBy      string  `json:"sortBy,omitempty"`
}

// Values encodes the set filters as query parameters; absent ones are left out.
func (f Filters) Values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("pickup", f.Pickup)
	set("destination", f.Destination)
	set("date", f.Date)
	set("vehicleType", f.VehicleType)
	if f.MaxPrice > 0 {
		v.Set("maxPrice", strconv.FormatFloat(f.MaxPrice, 'f', -1, 64))
	}
	set("sortBy", f.SortBy)
	return v
}

// FormValues is raw search form input.
type FormValues struct {
	PickupLocation string `json:"pickupLocation"`
	Destination    string `json:"destination"`
	Date           string `json:"date"`
	VehicleType    string `json:"vehicleType"`
	MaxPrice       string `json:"maxPrice"`
	SortBy         string `json:"sortBy"`
}

// Field names a filter that QuickSetFilter can change.
type Field string

const (
	FieldPickup      Field = "pickup"
	FieldDestination Field = "destination"
)

// CommonLocations are the campus spots offered as one-click filters.
var CommonLocations = []string{
	"Main Campus Gate",
	"Library",
	"Student Center",
	"Parking Lot A",
	"Parking Lot B",
	"Dormitory Area",
	"Sports Complex",
	"Cafeteria",
	"Academic Building",
	"Administration Building",
	"Gym",
}

// Snapshot is the controller state as seen by a UI.
type Snapshot struct {
	Filters    Filters `json:"filters"`
	Page       int     `json:"page"`
	Rides      []Ride  `json:"rides"`
	TotalPages int     `json:"totalPages"`
	TotalRides int     `json:"totalRides"`
	Loading    bool    `json:"loading"`
	Err        string  `json:"error,omitempty"`
}
