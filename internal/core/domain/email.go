package domain

// Attachment is one file carried by an inbound email.
type Attachment struct {
	Filename string
	Content  []byte
}

// InboundEmail is the unit of work handed to the ingestion pipeline.
// Date is the header date formatted as YYYY-MM-DD.
type InboundEmail struct {
	Subject     string
	Date        string
	Body        string
	Attachments []Attachment
}

// ProcessOutcome reports how the pipeline disposed of one email.
type ProcessOutcome string

const (
	OutcomeProcessed       ProcessOutcome = "processed"
	OutcomeSkippedDone     ProcessOutcome = "skipped_done"
	OutcomeSkippedInFlight ProcessOutcome = "skipped_in_flight"
)
