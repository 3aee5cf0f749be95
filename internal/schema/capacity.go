package schema

import "fmt"

// Capacities are the fixed maxima every padded axis shares: embedding
// tables, model buffers and decoder output all size against them.
type Capacities struct {
	MaxNumIntents          int
	MaxNumCatSlots         int
	MaxNumNoncatSlots      int
	MaxNumValuesPerCatSlot int
	MaxSeqLength           int
	EmbeddingDim           int
}

// DefaultCapacities are the published baseline settings for the SGD
// corpus with a base-size encoder.
func DefaultCapacities() Capacities {
	return Capacities{
		MaxNumIntents:          4,
		MaxNumCatSlots:         6,
		MaxNumNoncatSlots:      12,
		MaxNumValuesPerCatSlot: 11,
		MaxSeqLength:           80,
		EmbeddingDim:           768,
	}
}

// MaxNumTotalSlots is the requested-slot axis: categorical slots first,
// then non-categorical.
func (c Capacities) MaxNumTotalSlots() int {
	return c.MaxNumCatSlots + c.MaxNumNoncatSlots
}

func (c Capacities) Validate() error {
	checks := []struct {
		name  string
		value int
	}{
		{"MaxNumIntents", c.MaxNumIntents},
		{"MaxNumCatSlots", c.MaxNumCatSlots},
		{"MaxNumNoncatSlots", c.MaxNumNoncatSlots},
		{"MaxNumValuesPerCatSlot", c.MaxNumValuesPerCatSlot},
		{"MaxSeqLength", c.MaxSeqLength},
		{"EmbeddingDim", c.EmbeddingDim},
	}
	for _, check := range checks {
		if check.value <= 0 {
			return fmt.Errorf("capacity %s must be positive, got %d", check.name, check.value)
		}
	}
	return nil
}

// ValidateService checks that a service's element counts fit the
// capacities.
func (c Capacities) ValidateService(svc *Service) error {
	if n := len(svc.Intents); n > c.MaxNumIntents {
		return fmt.Errorf("service %s has %d intents, capacity is %d", svc.Name, n, c.MaxNumIntents)
	}
	if n := len(svc.CategoricalSlots); n > c.MaxNumCatSlots {
		return fmt.Errorf("service %s has %d categorical slots, capacity is %d", svc.Name, n, c.MaxNumCatSlots)
	}
	if n := len(svc.NoncategoricalSlots); n > c.MaxNumNoncatSlots {
		return fmt.Errorf("service %s has %d non-categorical slots, capacity is %d", svc.Name, n, c.MaxNumNoncatSlots)
	}
	for slot, values := range svc.CategoricalValues {
		if n := len(values); n > c.MaxNumValuesPerCatSlot {
			return fmt.Errorf("service %s slot %s has %d values, capacity is %d", svc.Name, slot, n, c.MaxNumValuesPerCatSlot)
		}
	}
	return nil
}
