package domain

// Error categories a reviewer may attach to a rejection. The set is closed;
// "Other" requires an explanatory comment.
const (
	CategoryIncorrectLabel    = "Incorrect Label"
	CategoryDrawingMisaligned = "Drawing Misaligned"
	CategoryMissingObject     = "Missing Object"
	CategoryOccluded          = "Occluded"
	CategoryOther             = "Other"
)

// ErrorCategories lists every accepted rejection category, in the order shown
// to reviewers.
var ErrorCategories = []string{
	CategoryIncorrectLabel,
	CategoryDrawingMisaligned,
	CategoryMissingObject,
	CategoryOccluded,
	CategoryOther,
}

// ValidErrorCategory reports whether category is part of the closed taxonomy.
func ValidErrorCategory(category string) bool {
	for _, c := range ErrorCategories {
		if c == category {
			return true
		}
	}
	return false
}
