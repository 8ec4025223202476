package shared

const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
	Unknown       = "unknown"

	IntentJob           = "job"
	IntentCollaboration = "collaboration"
	IntentQuestion      = "question"
	IntentOther         = "other"

	// Description prefixes marking documents owned by this service. The
	// backing account hosts unrelated documents too; anything without one
	// of these prefixes is ignored during listing walks.
	AnalyticsRecordPrefix = "folio-analytics"
	ContactRecordPrefix   = "folio-contact"
)
