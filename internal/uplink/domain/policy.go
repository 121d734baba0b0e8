package domain

// Policy is the per-file validation policy. It is read once per batch
// and does not change mid-flight.
type Policy struct {
	MaxFileSizeBytes  int64
	AllowedMIMETypes  []string
	AllowedCategories []string
}

// AllowsMIME reports whether the declared MIME type passes the policy.
// An empty allow-list admits every type.
func (p Policy) AllowsMIME(mimeType string) bool {
	return allowed(p.AllowedMIMETypes, mimeType)
}

// AllowsCategory reports whether the content category passes the policy.
func (p Policy) AllowsCategory(category string) bool {
	return allowed(p.AllowedCategories, category)
}

func allowed(list []string, value string) bool {
	if len(list) == 0 {
		return true
	}
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
