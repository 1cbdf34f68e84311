package domain

// Archive object layout
const (
	DefaultKeyPrefix   = "reports/"
	ReportContentType  = "application/json"
	DefaultConsumerTag = "report-archiver"
)
