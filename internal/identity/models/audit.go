package models

// Audit event actions describe what happened in a flow.
const (
	AuditActionConsentRecorded     = "consent_recorded"
	AuditActionStepEntered         = "step_entered"
	AuditActionCaptureAccepted     = "capture_accepted"
	AuditActionCaptureFailed       = "capture_failed"
	AuditActionCameraFailed        = "camera_failed"
	AuditActionFlowReset           = "flow_reset"
	AuditActionSubmissionAssembled = "submission_assembled"
)

// Audit event decisions record the outcome of the action.
const (
	AuditDecisionGranted  = "granted"
	AuditDecisionDeclined = "declined"
	AuditDecisionAccepted = "accepted"
	AuditDecisionRejected = "rejected"
)

// Audit event reasons explain why the action was taken.
const (
	AuditReasonUserInitiated  = "user_initiated" // user pressed a control
	AuditReasonAutoReturn     = "auto_return"    // success timeout fired
	AuditReasonBackNavigation = "back_navigation"
)
