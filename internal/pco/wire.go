package pco

import "strings"

// Wire shapes for the JSON:API payloads returned by the calendar API. Only
// the fields the sync loop needs are decoded.

type relationshipRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type instanceResource struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes struct {
		StartsAt string `json:"starts_at"`
		EndsAt   string `json:"ends_at"`
		Location string `json:"location"`
	} `json:"attributes"`
	Relationships struct {
		Event struct {
			Data *relationshipRef `json:"data"`
		} `json:"event"`
	} `json:"relationships"`
}

type includedResource struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes struct {
		Name string `json:"name"`
		Kind string `json:"kind"`
	} `json:"attributes"`
}

type instancesEnvelope struct {
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
	Data     []instanceResource `json:"data"`
	Included []includedResource `json:"included"`
}

type bookingsEnvelope struct {
	Data []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"data"`
	Included []includedResource `json:"included"`
}

// eventNames indexes the included event resources by id.
func (e instancesEnvelope) eventNames() map[string]string {
	names := make(map[string]string, len(e.Included))
	for _, inc := range e.Included {
		if inc.Type != "Event" {
			continue
		}
		names[inc.ID] = inc.Attributes.Name
	}
	return names
}

// roomNames returns the included resources of kind Room, deduplicated.
func (e bookingsEnvelope) roomNames() []string {
	var rooms []string
	seen := make(map[string]struct{})
	for _, inc := range e.Included {
		if inc.Type != "Resource" || inc.Attributes.Kind != "Room" {
			continue
		}
		name := strings.TrimSpace(inc.Attributes.Name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		rooms = append(rooms, name)
	}
	return rooms
}

// buildingFromLocation extracts the campus/building segment from a location
// string like "Main Campus - 123 Main St - Gym": everything before the first
// " - " separator, or the whole string when there is none.
func buildingFromLocation(location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return ""
	}
	if before, _, found := strings.Cut(location, " - "); found {
		return strings.TrimSpace(before)
	}
	return location
}
