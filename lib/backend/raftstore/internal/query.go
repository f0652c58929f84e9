package internal

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTLoad QueryType = iota // Load the keys of the query.
	QueryTSize                  // Count the stored keys.
)

func (q QueryType) String() string {
	switch q {
	case QueryTLoad:
		return "Load"
	case QueryTSize:
		return "Size"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or StaleRead
type Query struct {
	Type QueryType
	Keys []string
}

// QueryResult is the result of a QueryTLoad operation. Keys that are not
// stored are missing from Values. QueryTSize returns a plain int.
type QueryResult struct {
	Values map[string][]byte
}
