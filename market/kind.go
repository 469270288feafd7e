package market

import "github.com/cockroachdb/errors"

// Kind enumerates the cached data kinds. Each kind has its own TTL and its own
// empty payload, but all share the same fetch and fallback policy.
type Kind int

const (
	KindSeries Kind = iota
	KindIndicators
	KindKPI
	KindInfo
	KindSummary
	KindUniverse
	KindSearch
	KindNews
)

var kindNames = map[Kind]string{
	KindSeries:     "series",
	KindIndicators: "indicators",
	KindKPI:        "kpi",
	KindInfo:       "info",
	KindSummary:    "summary",
	KindUniverse:   "universe",
	KindSearch:     "search",
	KindNews:       "news",
}

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindSeries, KindIndicators, KindKPI, KindInfo, KindSummary, KindUniverse, KindSearch, KindNews}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind converts a kind name back into a Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, errors.Newf("market: unknown kind %q", name)
}
