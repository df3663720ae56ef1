package rides

import (
	"strings"

	"campus-rides/pkg/validation"
)

// Normalize turns raw form input into a filter set. Text is trimmed and
// blanks are dropped; the date is reduced to YYYY-MM-DD.
func Normalize(in FormValues) (Filters, error) {
	f := Filters{
		Pickup:      validation.Trim(in.PickupLocation),
		Destination: validation.Trim(in.Destination),
		SortBy:      DefaultSort,
	}

	if raw := strings.TrimSpace(in.Date); raw != "" {
		d, err := validation.ISODate("date", raw)
		if err != nil {
			return Filters{}, err
		}
		f.Date = d
	}

	if vt := strings.ToLower(strings.TrimSpace(in.VehicleType)); vt != "" {
		if !validation.OneOf(vt, VehicleTypes...) {
			return Filters{}, &validation.Error{Field: "vehicleType", Msg: "must be one of car, van, bus"}
		}
		f.VehicleType = vt
	}

	if raw := strings.TrimSpace(in.MaxPrice); raw != "" {
		p, err := validation.PositiveNumber("maxPrice", raw)
		if err != nil {
			return Filters{}, err
		}
		f.MaxPrice = p
	}

	if sb := strings.TrimSpace(in.SortBy); sb != "" {
		if !validation.OneOf(sb, SortOrders...) {
			return Filters{}, &validation.Error{Field: "sortBy", Msg: "must be one of date, price, -price, seats"}
		}
		f.SortBy = sb
	}
	return f, nil
}

// With returns f with field set to value; a blank value removes it.
func (f Filters) With(field Field, value string) (Filters, error) {
	value = validation.Trim(value)
	switch field {
	case FieldPickup:
		f.Pickup = value
	case FieldDestination:
		f.Destination = value
	default:
		return f, &validation.Error{Field: "field", Msg: "must be pickup or destination"}
	}
	return f, nil
}
