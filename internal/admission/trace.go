package admission

import "github.com/iliyamo/ticket-reconciler/internal/model"

// Next builds the log entry that follows prev (nil when the ticket has no
// log yet).  The entry's Status is the status carried forward from prev;
// its ResultStatus is the requested status when result is true and the
// carried status otherwise.
func Next(prev *model.TicketLog, logType model.LogType, request model.AdmissionStatus, result bool, deviceID *string) model.TicketLog {
	carried := model.AdmissionBeforeEntry
	if prev != nil {
		carried = prev.ResultStatus
	}
	resultStatus := carried
	if result {
		resultStatus = request
	}
	return model.TicketLog{
		LogType:       logType,
		RequestStatus: request,
		Status:        carried,
		Result:        result,
		ResultStatus:  resultStatus,
		DeviceID:      deviceID,
	}
}

// Fold replays a ticket's logs in order and returns the admission status
// they leave the ticket in.
func Fold(logs []model.TicketLog) model.AdmissionStatus {
	status := model.AdmissionBeforeEntry
	for _, l := range logs {
		status = l.ResultStatus
	}
	return status
}

// CheckTrace verifies that every entry carries forward the previous
// entry's result status and that each result status follows from its
// request.  It returns the index of the first broken entry, or -1.
func CheckTrace(logs []model.TicketLog) int {
	var prev *model.TicketLog
	for i := range logs {
		l := logs[i]
		want := Next(prev, l.LogType, l.RequestStatus, l.Result, l.DeviceID)
		if l.Status != want.Status || l.ResultStatus != want.ResultStatus {
			return i
		}
		prev = &logs[i]
	}
	return -1
}
