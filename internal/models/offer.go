package models

// Offer types sold on the platform.
const (
	OfferFormation      = "formation"
	OfferSignalFeed     = "signal_feed"
	OfferManagedAccount = "managed_account"
)

// Offer is a purchasable product: a course, a signal feed subscription or a
// managed account package.
type Offer struct {
	BaseModel
	Name        string  `json:"name"`
	Description string  `json:"description"`
	OfferType   string  `json:"offer_type"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	// Access window length; nil means unlimited access.
	DurationDays *int `json:"duration_days"`
	Active       bool `gorm:"default:true" json:"active"`
}

// GrantsChannelAccess reports whether buyers of this offer get access to
// the private Telegram channel.
func (o *Offer) GrantsChannelAccess() bool {
	return o.OfferType == OfferSignalFeed || o.OfferType == OfferManagedAccount
}

// ValidOfferType reports whether t is a known offer type.
func ValidOfferType(t string) bool {
	switch t {
	case OfferFormation, OfferSignalFeed, OfferManagedAccount:
		return true
	}
	return false
}
