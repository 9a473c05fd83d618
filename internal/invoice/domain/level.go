package domain

// BlockingLevel is the access restriction applied to a tenant because of an
// unpaid invoice. Levels are totally ordered by severity.
type BlockingLevel string

const (
	BlockingLevelNone               BlockingLevel = "NONE"
	BlockingLevelNotice             BlockingLevel = "NOTICE"
	BlockingLevelBanner             BlockingLevel = "BANNER"
	BlockingLevelFeatureRestriction BlockingLevel = "FEATURE_RESTRICTION"
	BlockingLevelFullLockout        BlockingLevel = "FULL_LOCKOUT"
)

// BlockingLevels lists every level from least to most severe.
func BlockingLevels() []BlockingLevel {
	return []BlockingLevel{
		BlockingLevelNone,
		BlockingLevelNotice,
		BlockingLevelBanner,
		BlockingLevelFeatureRestriction,
		BlockingLevelFullLockout,
	}
}

// Severity returns the position of the level in the escalation order, or -1
// for an unknown value.
func (l BlockingLevel) Severity() int {
	switch l {
	case BlockingLevelNone:
		return 0
	case BlockingLevelNotice:
		return 1
	case BlockingLevelBanner:
		return 2
	case BlockingLevelFeatureRestriction:
		return 3
	case BlockingLevelFullLockout:
		return 4
	default:
		return -1
	}
}

func (l BlockingLevel) Valid() bool {
	return l.Severity() >= 0
}

func (l BlockingLevel) MoreSevereThan(other BlockingLevel) bool {
	return l.Severity() > other.Severity()
}

// MaxLevel returns the most severe of the given levels, NONE when empty.
func MaxLevel(levels ...BlockingLevel) BlockingLevel {
	worst := BlockingLevelNone
	for _, level := range levels {
		if level.MoreSevereThan(worst) {
			worst = level
		}
	}
	return worst
}
