package domain

// Signal names emitted by the detectors and scorers.
const (
	// SSN
	SignalSSNDOBMismatch   = "SSN_DOB_MISMATCH"
	SignalDeathMasterMatch = "DEATH_MASTER_MATCH"
	SignalMultipleSSNs     = "MULTIPLE_SSNS"

	// Graph
	SignalSharedSSN    = "SHARED_SSN"
	SignalLargeCluster = "LARGE_CLUSTER"

	// Velocity
	SignalHighAddressVelocity     = "HIGH_ADDRESS_VELOCITY"
	SignalHighPhoneVelocity       = "HIGH_PHONE_VELOCITY"
	SignalHighEmailVelocity       = "HIGH_EMAIL_VELOCITY"
	SignalSharedDevice            = "SHARED_DEVICE"
	SignalAddressPhoneCorrelation = "ADDRESS_PHONE_CORRELATION"
	SignalHighApplicationVelocity = "HIGH_APPLICATION_VELOCITY"

	// Credit
	SignalThinFile            = "THIN_FILE"
	SignalFileAgeMismatch     = "FILE_AGE_MISMATCH"
	SignalThinFileOldIdentity = "THIN_FILE_OLD_IDENTITY"
	SignalAUAbusePattern      = "AU_ABUSE_PATTERN"
	SignalRapidCreditBuilding = "RAPID_CREDIT_BUILDING"

	// Synthetic scorer
	SignalAUAbuse     = "AU_ABUSE"
	SignalFraudDevice = "FRAUD_DEVICE"

	// Authorized user
	SignalExcessiveAUAccounts = "EXCESSIVE_AU_ACCOUNTS"
	SignalHighAUCount         = "HIGH_AU_COUNT"
	SignalMostlyUnrelatedAU   = "MOSTLY_UNRELATED_AU"
	SignalRapidAUAdditions    = "RAPID_AU_ADDITIONS"
	SignalHighLimitAUAccounts = "HIGH_LIMIT_AU_ACCOUNTS"
	SignalAUOnNewAccounts     = "AU_ON_NEW_ACCOUNTS"

	// Bust-out
	SignalMaxedOut                 = "MAXED_OUT"
	SignalDecliningPayments        = "DECLINING_PAYMENTS"
	SignalFrequentCashAdvances     = "FREQUENT_CASH_ADVANCES"
	SignalRapidUtilizationIncrease = "RAPID_UTILIZATION_INCREASE"
	SignalRapidBalanceGrowth       = "RAPID_BALANCE_GROWTH"
	SignalHighSyntheticRisk        = "HIGH_SYNTHETIC_RISK"
)

// CriticalSignals force a critical ensemble level regardless of score.
var CriticalSignals = map[string]bool{
	SignalSSNDOBMismatch:   true,
	SignalDeathMasterMatch: true,
	SignalSharedSSN:        true,
	SignalFraudDevice:      true,
}

// Recommended actions.
const (
	ActionFreezeAndFileSAR     = "IMMEDIATE_CREDIT_FREEZE_SAR_FILING"
	ActionReviewDecline        = "IMMEDIATE_REVIEW_DECLINE_APPLICATION"
	ActionManualReview         = "MANUAL_REVIEW_REQUIRED"
	ActionEnhancedVerification = "ENHANCED_VERIFICATION"
	ActionStandardMonitor      = "STANDARD_PROCESSING_MONITOR"
	ActionApprove              = "APPROVE"
	ActionReviewCreditFreeze   = "IMMEDIATE_REVIEW_CREDIT_FREEZE"
	ActionUrgentReviewReduce   = "URGENT_REVIEW_REDUCE_LIMIT"
	ActionMonitorClosely       = "MONITOR_CLOSELY"
	ActionStandardMonitoring   = "STANDARD_MONITORING"
	ActionNoAction             = "NO_ACTION"
)
