package model

import "github.com/google/uuid"

// Case is the subset of a case row that trigger matching needs.
type Case struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Tags     []uuid.UUID
}

// HasAnyTag reports whether the case carries at least one of the given tags.
func (c *Case) HasAnyTag(tags []uuid.UUID) bool {
	for _, want := range tags {
		for _, have := range c.Tags {
			if want == have {
				return true
			}
		}
	}
	return false
}
