package logrecord

// Page is one page of a filtered result set together with its metadata.
type Page struct {
	Logs       []*Log
	Page       int
	Limit      int
	TotalRows  int64
	TotalPages int64
}
