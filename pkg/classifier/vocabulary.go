package classifier

// Analytics categories recorded with each query.
const (
	CategoryDining        = "Dining"
	CategoryActivities    = "Activities"
	CategoryFacilities    = "Facilities"
	CategoryAccommodation = "Accommodation"
	CategoryLocation      = "Location"
	CategoryGeneral       = "General"
)

// Explicit on-property references, including the named venues.
var resortContextPhrases = phrases(
	"at the resort", "in the resort", "on the resort", "resort's",
	"on property", "on the property", "on site", "onsite",
	"the restaurant", "the pool", "the spa", "the gym", "the bar",
	"the lobby", "the reception", "the kids club", "the boutique",
	"club med", "mutiara", "rembulan", "pinang",
)

// Off-property language.
var externalIndicators = phrases(
	"nearest", "nearby", "closest", "close to", "near the hotel",
	"near me", "near here", "around here", "in the area", "within",
	"how far", "outside the resort", "off property", "in town",
)

type placeMapping struct {
	phrase    phrase
	placeType string
}

// Keyword to Places API type, checked in order; the first match wins.
var placeTypeMappings = func() []placeMapping {
	table := []struct{ keyword, placeType string }{
		{"hospital", "hospital"},
		{"clinic", "doctor"},
		{"doctor", "doctor"},
		{"doctors", "doctor"},
		{"medical", "hospital"},
		{"pharmacy", "pharmacy"},
		{"pharmacies", "pharmacy"},
		{"drugstore", "pharmacy"},
		{"atm", "atm"},
		{"cash", "atm"},
		{"bank", "bank"},
		{"restaurant", "restaurant"},
		{"restaurants", "restaurant"},
		{"food", "restaurant"},
		{"cafe", "cafe"},
		{"coffee", "cafe"},
		{"mall", "shopping_mall"},
		{"shopping", "shopping_mall"},
		{"supermarket", "supermarket"},
		{"grocery", "supermarket"},
		{"groceries", "supermarket"},
		{"convenience", "convenience_store"},
		{"shop", "store"},
		{"shops", "store"},
		{"store", "store"},
		{"stores", "store"},
		{"gas station", "gas_station"},
		{"fuel", "gas_station"},
		{"petrol", "gas_station"},
		{"car", "gas_station"},
		{"hotel", "lodging"},
		{"accommodation", "lodging"},
		{"mosque", "mosque"},
		{"church", "church"},
		{"temple", "hindu_temple"},
		{"tourist", "tourist_attraction"},
		{"attraction", "tourist_attraction"},
		{"attractions", "tourist_attraction"},
		{"museum", "museum"},
		{"park", "park"},
		{"beach", "natural_feature"},
	}
	out := make([]placeMapping, 0, len(table))
	for _, m := range table {
		out = append(out, placeMapping{phrase: phrase(tokenize(m.keyword)), placeType: m.placeType})
	}
	return out
}()

// Facilities the property has on site.
var facilityKeywords = phrases(
	// beach and water
	"beach", "sea", "ocean", "shore", "coast", "sand", "water", "swimming",
	"pool", "pools", "swimming pool",
	// dining
	"restaurant", "buffet", "dining", "breakfast", "lunch", "dinner", "bar", "food",
	// activities and sports
	"trapeze", "archery", "kayak", "sailing", "tennis", "gym", "fitness",
	"yoga", "spa", "massage", "kids club", "playground",
	// accommodation
	"room", "suite", "accommodation", "deluxe", "garden view",
	// resort areas
	"lobby", "reception", "boutique", "shop", "parking lot",
)

var categoryKeywords = []struct {
	name    string
	phrases []phrase
}{
	{CategoryDining, phrases(
		"restaurant", "restaurants", "buffet", "dining", "breakfast", "lunch", "dinner",
		"bar", "food", "menu", "drink", "drinks", "cafe", "coffee",
		"mutiara", "rembulan", "pinang",
	)},
	{CategoryActivities, phrases(
		"activity", "activities", "trapeze", "archery", "kayak", "sailing", "tennis",
		"yoga", "kids club", "playground", "snorkeling", "excursion", "show",
	)},
	{CategoryFacilities, phrases(
		"pool", "pools", "spa", "massage", "gym", "fitness", "lobby", "reception",
		"boutique", "parking", "wifi", "laundry", "beach",
	)},
	{CategoryAccommodation, phrases(
		"room", "rooms", "suite", "accommodation", "deluxe", "garden view",
		"check in", "checkout", "check out", "housekeeping", "towel", "towels",
	)},
}
