package models

// Category is the coarse intent bucket an inbound message is placed in.
// The empty Category means "not yet classified".
type Category string

const (
	CategoryJobSeeker Category = "job_seeker"
	CategoryInvestor  Category = "investor"
	CategoryMedia     Category = "media"
	CategoryCompany   Category = "company"
)

// ValidCategories is the set of all valid categories, in classification order.
var ValidCategories = []Category{
	CategoryJobSeeker,
	CategoryInvestor,
	CategoryMedia,
	CategoryCompany,
}

// IsValid returns true if the category is recognized.
func (c Category) IsValid() bool {
	for _, v := range ValidCategories {
		if c == v {
			return true
		}
	}
	return false
}

// Label is the Arabic display name used in prompts and analytics.
func (c Category) Label() string {
	switch c {
	case CategoryJobSeeker:
		return "باحث عن عمل"
	case CategoryInvestor:
		return "مستثمر"
	case CategoryMedia:
		return "صحفي"
	case CategoryCompany:
		return "شركة"
	default:
		return "عام"
	}
}

// Channel distinguishes private messages from public comments.
type Channel string

const (
	ChannelPrivate Channel = "private"
	ChannelPublic  Channel = "public"
)

// IsValid returns true if the channel is recognized.
func (c Channel) IsValid() bool {
	return c == ChannelPrivate || c == ChannelPublic
}
