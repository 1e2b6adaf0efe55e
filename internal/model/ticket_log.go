package model

import "time"

// AdmissionStatus is the admission state recorded by gate devices.
type AdmissionStatus string

const (
	AdmissionBeforeEntry AdmissionStatus = "before_entry"
	AdmissionEntered     AdmissionStatus = "entered"
	AdmissionLeft        AdmissionStatus = "left"
)

// Valid reports whether s is a recognized admission status.
func (s AdmissionStatus) Valid() bool {
	switch s {
	case AdmissionBeforeEntry, AdmissionEntered, AdmissionLeft:
		return true
	}
	return false
}

// LogType classifies a ticket log entry.
type LogType string

const (
	LogNormal     LogType = "normal"
	LogForceClose LogType = "force_close"
	LogClean      LogType = "clean"
)

// TicketLog is one entry of a ticket's admission trace.  Status is the
// ResultStatus of the previous entry (or before_entry for the first one);
// ResultStatus is RequestStatus when Result is true and Status otherwise.
type TicketLog struct {
	ID            uint64          // ticket_logs.id
	TicketID      uint64          // ticket_logs.ticket_id
	LogType       LogType         // ticket_logs.log_type
	RequestStatus AdmissionStatus // ticket_logs.request_status
	Status        AdmissionStatus // ticket_logs.status
	Result        bool            // ticket_logs.result
	ResultStatus  AdmissionStatus // ticket_logs.result_status
	DeviceID      *string         // ticket_logs.device_id (nullable)
	CreatedAt     time.Time       // ticket_logs.created_at
}
