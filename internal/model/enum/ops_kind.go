package enum

type OpsKind uint8

const (
	_ops_kind_beg OpsKind = iota
	OpsKindStateChange
	OpsKindDataAnomaly
	OpsKindSubscriberError
	OpsKindConfigError
	_ops_kind_end
)

func (k OpsKind) IsAvailable() bool {
	return k > _ops_kind_beg && k < _ops_kind_end
}

func (k OpsKind) String() string {
	switch k {
	case OpsKindStateChange:
		return "state_change"
	case OpsKindDataAnomaly:
		return "data_anomaly"
	case OpsKindSubscriberError:
		return "subscriber_error"
	case OpsKindConfigError:
		return "config_error"
	default:
		return "unknown"
	}
}

// ParseOpsKind maps a kind name such as "state_change" to its enum value.
func ParseOpsKind(s string) (OpsKind, bool) {
	for k := _ops_kind_beg + 1; k < _ops_kind_end; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}
