package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// Slot status classes shared by both slot families.
const (
	StatusOff      = 0
	StatusDontcare = 1
	StatusActive   = 2
)

// StrDontcare is the wire value a dontcare slot takes in a dialogue state.
const StrDontcare = "dontcare"

type SlotDefinition struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	IsCategorical  bool     `json:"is_categorical"`
	PossibleValues []string `json:"possible_values"`
}

type IntentDefinition struct {
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	IsTransactional bool              `json:"is_transactional"`
	RequiredSlots   []string          `json:"required_slots"`
	OptionalSlots   map[string]string `json:"optional_slots"`
	ResultSlots     []string          `json:"result_slots"`
}

type ServiceDefinition struct {
	ServiceName string             `json:"service_name"`
	Description string             `json:"description"`
	Slots       []SlotDefinition   `json:"slots"`
	Intents     []IntentDefinition `json:"intents"`
}

// Service is the resolved view of one schema service. Element lists are
// in the canonical order embedding-table rows follow: names sorted
// lexicographically, categorical values sorted per slot.
type Service struct {
	ID         int
	Name       string
	Definition ServiceDefinition

	Intents             []string
	Slots               []string
	CategoricalSlots    []string
	NoncategoricalSlots []string
	CategoricalValues   map[string][]string

	slotsByName map[string]SlotDefinition
}

func newService(id int, def ServiceDefinition) *Service {
	svc := &Service{
		ID:                id,
		Name:              def.ServiceName,
		Definition:        def,
		CategoricalValues: make(map[string][]string),
		slotsByName:       make(map[string]SlotDefinition, len(def.Slots)),
	}

	for _, intent := range def.Intents {
		svc.Intents = append(svc.Intents, intent.Name)
	}
	sort.Strings(svc.Intents)

	stateSlots := make(map[string]bool)
	for _, intent := range def.Intents {
		for _, slot := range intent.RequiredSlots {
			stateSlots[slot] = true
		}
		for slot := range intent.OptionalSlots {
			stateSlots[slot] = true
		}
	}

	for _, slot := range def.Slots {
		svc.slotsByName[slot.Name] = slot
		svc.Slots = append(svc.Slots, slot.Name)
		if !stateSlots[slot.Name] {
			continue
		}
		if slot.IsCategorical {
			svc.CategoricalSlots = append(svc.CategoricalSlots, slot.Name)
			values := append([]string(nil), slot.PossibleValues...)
			sort.Strings(values)
			svc.CategoricalValues[slot.Name] = values
		} else {
			svc.NoncategoricalSlots = append(svc.NoncategoricalSlots, slot.Name)
		}
	}
	sort.Strings(svc.Slots)
	sort.Strings(svc.CategoricalSlots)
	sort.Strings(svc.NoncategoricalSlots)

	return svc
}

// IsCategorical reports whether the named slot is categorical. Unknown
// slots report false.
func (s *Service) IsCategorical(slot string) bool {
	def, ok := s.slotsByName[slot]
	return ok && def.IsCategorical
}

// StateSlots lists the requested-slot candidates in embedding-row
// order: categorical slots first, then non-categorical.
func (s *Service) StateSlots() []string {
	out := make([]string, 0, len(s.CategoricalSlots)+len(s.NoncategoricalSlots))
	out = append(out, s.CategoricalSlots...)
	return append(out, s.NoncategoricalSlots...)
}

// SlotDefinitionByName returns the raw definition of a slot.
func (s *Service) SlotDefinitionByName(slot string) (SlotDefinition, bool) {
	def, ok := s.slotsByName[slot]
	return def, ok
}

// Collection holds every service of one schema file. Service ids are the
// positions of the service names in sorted order, matching the id
// assignment the embedding tables were built with.
type Collection struct {
	services *linkedhashmap.Map
	byID     []*Service
}

// LoadCollection reads an SGD-format schema.json.
func LoadCollection(path string) (*Collection, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file %s: %w", path, err)
	}
	var defs []ServiceDefinition
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("parse schema file %s: %w", path, err)
	}
	return NewCollection(defs)
}

// NewCollection builds the resolved services from raw definitions.
func NewCollection(defs []ServiceDefinition) (*Collection, error) {
	sorted := append([]ServiceDefinition(nil), defs...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ServiceName < sorted[j].ServiceName
	})

	col := &Collection{
		services: linkedhashmap.New(),
		byID:     make([]*Service, 0, len(sorted)),
	}
	for id, def := range sorted {
		if def.ServiceName == "" {
			return nil, fmt.Errorf("schema service at sorted position %d has empty service_name", id)
		}
		if _, exists := col.services.Get(def.ServiceName); exists {
			return nil, fmt.Errorf("duplicate service %s in schema", def.ServiceName)
		}
		svc := newService(id, def)
		col.services.Put(def.ServiceName, svc)
		col.byID = append(col.byID, svc)
	}
	return col, nil
}

func (c *Collection) Len() int {
	return len(c.byID)
}

func (c *Collection) ByName(name string) (*Service, bool) {
	v, ok := c.services.Get(name)
	if !ok {
		return nil, false
	}
	return v.(*Service), true
}

func (c *Collection) ByID(id int) (*Service, bool) {
	if id < 0 || id >= len(c.byID) {
		return nil, false
	}
	return c.byID[id], true
}

// Names returns service names in id order.
func (c *Collection) Names() []string {
	names := make([]string, 0, c.services.Size())
	it := c.services.Iterator()
	for it.Next() {
		names = append(names, it.Key().(string))
	}
	return names
}

// Services returns the resolved services in id order.
func (c *Collection) Services() []*Service {
	return c.byID
}
