package enums

// StatusMode selects how slot-status logits are produced from the encoded
// utterance: from the pooled vector or from designated trailing token
// positions.
type StatusMode string

const (
	StatusModeUnknown        StatusMode = "StatusModeUnknown"
	StatusModePooled         StatusMode = "StatusModePooled"
	StatusModeTrailingSingle StatusMode = "StatusModeTrailingSingle"
	StatusModeTrailingDouble StatusMode = "StatusModeTrailingDouble"
	StatusModeTrailingMulti  StatusMode = "StatusModeTrailingMulti"
)

func (s StatusMode) String() string {
	switch s {
	case StatusModePooled:
		return "StatusModePooled"
	case StatusModeTrailingSingle:
		return "StatusModeTrailingSingle"
	case StatusModeTrailingDouble:
		return "StatusModeTrailingDouble"
	case StatusModeTrailingMulti:
		return "StatusModeTrailingMulti"
	default:
		return "StatusModeUnknown"
	}
}

// StatusModeFromConfig maps the config wire names to the enum.
func StatusModeFromConfig(value string) StatusMode {
	switch value {
	case "pooled":
		return StatusModePooled
	case "trailing_single":
		return StatusModeTrailingSingle
	case "trailing_double":
		return StatusModeTrailingDouble
	case "trailing_multi":
		return StatusModeTrailingMulti
	default:
		return StatusModeUnknown
	}
}

func (s StatusMode) IsValid() bool {
	return s != StatusModeUnknown && s.String() != "StatusModeUnknown"
}

// TrailingTokens reports how many token positions at the tail of the
// sequence the mode consumes for status scoring.
func (s StatusMode) TrailingTokens(maxTotalSlots int) int {
	switch s {
	case StatusModeTrailingSingle:
		return 1
	case StatusModeTrailingDouble:
		return 2
	case StatusModeTrailingMulti:
		return maxTotalSlots
	default:
		return 0
	}
}
