package pipeline

import (
	"errors"
	"strings"

	"compliance_framework/internal/store"
)

var (
	ErrNoMatch        = errors.New("no matching master entry")
	ErrAmbiguousMatch = errors.New("ambiguous master match")
)

// MatchMaster resolves an extracted compliance name against the master
// catalog. Exact case-insensitive match wins outright; otherwise the
// longest master name containing the extracted name wins, and a tie for
// longest is reported as ambiguous rather than silently picking one.
func MatchMaster(masters []store.Master, name string) (store.Master, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return store.Master{}, ErrNoMatch
	}

	for _, m := range masters {
		if strings.ToLower(strings.TrimSpace(m.Name)) == needle {
			return m, nil
		}
	}

	var best store.Master
	bestLen := -1
	tied := false
	for _, m := range masters {
		if !strings.Contains(strings.ToLower(m.Name), needle) {
			continue
		}
		switch l := len(m.Name); {
		case l > bestLen:
			best, bestLen, tied = m, l, false
		case l == bestLen:
			tied = true
		}
	}
	if bestLen < 0 {
		return store.Master{}, ErrNoMatch
	}
	if tied {
		return store.Master{}, ErrAmbiguousMatch
	}
	return best, nil
}
