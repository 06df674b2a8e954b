package internal

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet  QueryType = iota // Retrieve a record by key.
	QueryTHas                   // Check if a record exists.
	QueryTKeys                  // List all record keys.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTHas:
		return "Has"
	case QueryTKeys:
		return "Keys"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or ReadStale
type Query struct {
	Type QueryType // The type of Query to perform.
	Key  string    // The key for the Query (empty for QueryTKeys).
}

// QueryResult is the result of a QueryTGet operation.
// All other query results are primitive types (bool, []string).
type QueryResult struct {
	Ok    bool
	Value []byte
}
