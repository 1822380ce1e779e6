package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// DoorConfig describes one controllable door.
type DoorConfig struct {
	Label         string   `json:"label"`
	RemoteDoorIDs []string `json:"remoteDoorIds"`
}

// MappingDefaults holds the lead/lag minutes applied to events without an
// explicit override.
type MappingDefaults struct {
	LeadMinutes int `json:"leadMinutes"`
	LagMinutes  int `json:"lagMinutes"`
}

// NameRule excludes the listed doors for events whose name contains Substr
// (case-insensitive).
type NameRule struct {
	Substr   string   `json:"substr"`
	DoorKeys []string `json:"doorKeys"`
}

// MappingRules groups the exclusion rules of the mapping file.
type MappingRules struct {
	ExcludeDoorKeysByEventName  []NameRule `json:"excludeDoorKeysByEventName,omitempty"`
	ExcludeEventsByRoomContains []string   `json:"excludeEventsByRoomContains,omitempty"`
}

// RoomDoorMapping mirrors room-door-mapping.json. DoorOrder records the
// insertion order of the doors object, which is the canonical display order
// and must survive a load/save round trip.
type RoomDoorMapping struct {
	Doors     map[string]DoorConfig
	DoorOrder []string
	Rooms     map[string][]string
	Defaults  MappingDefaults
	Rules     MappingRules
}

// OrderedDoorKeys returns the door keys in file order. Keys present in Doors
// but absent from DoorOrder are appended alphabetically.
func (m RoomDoorMapping) OrderedDoorKeys() []string {
	keys := make([]string, 0, len(m.Doors))
	seen := make(map[string]struct{}, len(m.Doors))
	for _, key := range m.DoorOrder {
		if _, ok := m.Doors[key]; !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	var rest []string
	for key := range m.Doors {
		if _, ok := seen[key]; !ok {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)

	return append(keys, rest...)
}

// UnmarshalJSON decodes the mapping file keeping the order in which door keys
// appear. A door key repeated inside the doors object is rejected.
func (m *RoomDoorMapping) UnmarshalJSON(data []byte) error {
	var raw struct {
		Doors    json.RawMessage     `json:"doors"`
		Rooms    map[string][]string `json:"rooms"`
		Defaults MappingDefaults     `json:"defaults"`
		Rules    MappingRules        `json:"rules"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.Rooms = raw.Rooms
	m.Defaults = raw.Defaults
	m.Rules = raw.Rules
	m.Doors = make(map[string]DoorConfig)
	m.DoorOrder = nil

	if len(raw.Doors) == 0 || bytes.Equal(raw.Doors, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw.Doors))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("persistence: doors: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("persistence: doors must be a JSON object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("persistence: doors: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("persistence: doors: unexpected key token %v", keyTok)
		}
		if _, exists := m.Doors[key]; exists {
			return fmt.Errorf("persistence: doors: duplicate door key %q", key)
		}

		var door DoorConfig
		if err := dec.Decode(&door); err != nil {
			return fmt.Errorf("persistence: door %q: %w", key, err)
		}
		m.Doors[key] = door
		m.DoorOrder = append(m.DoorOrder, key)
	}

	return nil
}

// MarshalJSON writes the mapping with doors emitted in DoorOrder.
func (m RoomDoorMapping) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"doors":{`)
	for i, key := range m.OrderedDoorKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		doorJSON, err := json.Marshal(m.Doors[key])
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(doorJSON)
	}
	buf.WriteString(`},"rooms":`)

	rooms := m.Rooms
	if rooms == nil {
		rooms = map[string][]string{}
	}
	roomsJSON, err := json.Marshal(rooms)
	if err != nil {
		return nil, err
	}
	buf.Write(roomsJSON)

	buf.WriteString(`,"defaults":`)
	defaultsJSON, err := json.Marshal(m.Defaults)
	if err != nil {
		return nil, err
	}
	buf.Write(defaultsJSON)

	buf.WriteString(`,"rules":`)
	rulesJSON, err := json.Marshal(m.Rules)
	if err != nil {
		return nil, err
	}
	buf.Write(rulesJSON)

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
