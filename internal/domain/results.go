package domain

import "time"

// GraphFeatures is the per-identity feature set extracted from the sharing graph.
type GraphFeatures struct {
	Degree                float64 `json:"degree"`
	WeightedDegree        float64 `json:"weightedDegree"`
	ClusteringCoefficient float64 `json:"clusteringCoefficient"`
	Betweenness           float64 `json:"betweennessCentrality"`
	PageRank              float64 `json:"pagerank"`
	SharedSSNCount        int     `json:"sharedSsnCount"`
	SharedAddressCount    int     `json:"sharedAddressCount"`
	SharedPhoneCount      int     `json:"sharedPhoneCount"`
	SharedEmailCount      int     `json:"sharedEmailCount"`
	SharedDeviceCount     int     `json:"sharedDeviceCount"`
	ClusterSize           int     `json:"clusterSize"`
	ClusterDensity        float64 `json:"clusterDensity"`
	NeighborAvgScore      float64 `json:"neighborAvgSyntheticScore"`
	NeighborMaxScore      float64 `json:"neighborMaxSyntheticScore"`
	HighRiskNeighborCount int     `json:"highRiskNeighborCount"`

	// Not part of the vector.
	ClusterID     string `json:"clusterId,omitempty"`
	CommunitySize int    `json:"communitySize"`
}

// FeatureVectorSize is the length of GraphFeatures.Vector.
const FeatureVectorSize = 15

// EmptyGraphFeatures is the feature set of an identity absent from the graph.
func EmptyGraphFeatures() GraphFeatures {
	return GraphFeatures{ClusterSize: 1}
}

// Vector returns the features in their fixed model order.
func (f GraphFeatures) Vector() []float64 {
	return []float64{
		f.Degree,
		f.WeightedDegree,
		f.ClusteringCoefficient,
		f.Betweenness,
		f.PageRank,
		float64(f.SharedSSNCount),
		float64(f.SharedAddressCount),
		float64(f.SharedPhoneCount),
		float64(f.SharedEmailCount),
		float64(f.SharedDeviceCount),
		float64(f.ClusterSize),
		f.ClusterDensity,
		f.NeighborAvgScore,
		f.NeighborMaxScore,
		float64(f.HighRiskNeighborCount),
	}
}

// ElementVelocity is the velocity of one element type.
type ElementVelocity struct {
	Score        float64 `json:"score"`
	Identities30 int64   `json:"identities30d"`
	Identities90 int64   `json:"identities90d"`
	Identities   int64   `json:"identities180d"`
	SSNs         int64   `json:"ssns180d"`
}

// VelocityAnalysis is the PII velocity result.
type VelocityAnalysis struct {
	AddressVelocity float64                         `json:"addressVelocity"`
	PhoneVelocity   float64                         `json:"phoneVelocity"`
	EmailVelocity   float64                         `json:"emailVelocity"`
	DeviceVelocity  float64                         `json:"deviceVelocity"`
	OverallVelocity float64                         `json:"overallVelocity"`
	Anomalies       []string                        `json:"anomalies"`
	RiskLevel       RiskLevel                       `json:"riskLevel"`
	Elements        map[ElementType]ElementVelocity `json:"elements,omitempty"`
}

// CreditBehaviorAnalysis is the credit-bureau behaviour result.
type CreditBehaviorAnalysis struct {
	IsThinFile         bool     `json:"isThinFile"`
	FileAgeMonths      *int     `json:"fileAgeMonths,omitempty"`
	TradelineCount     int      `json:"tradelineCount"`
	AUTradelineCount   int      `json:"auTradelineCount"`
	AUTradelineRatio   float64  `json:"auTradelineRatio"`
	CreditVelocity     float64  `json:"creditVelocity"`
	BehaviorScore      float64  `json:"behaviorScore"`
	Anomalies          []string `json:"anomalies"`
	ExpectedFileMonths float64  `json:"expectedFileMonths"`
	ClaimedAgeYears    float64  `json:"claimedAgeYears"`
	FileAgeConsistent  *bool    `json:"fileAgeConsistent,omitempty"`
	FileAgeGapMonths   float64  `json:"fileAgeGapMonths,omitempty"`
}

// HasAnomaly reports whether the analysis flagged the named anomaly.
func (c *CreditBehaviorAnalysis) HasAnomaly(name string) bool {
	for _, a := range c.Anomalies {
		if a == name {
			return true
		}
	}
	return false
}

// AUAccount is an authorized-user tradeline on the applicant's file.
type AUAccount struct {
	AccountID        string    `json:"accountId"`
	PrimaryHolder    string    `json:"primaryHolderSsnHash"`
	AddedDate        time.Time `json:"addedDate"`
	AccountAgeMonths int       `json:"accountAgeMonths"`
	CreditLimit      float64   `json:"creditLimit"`
	IsRelated        bool      `json:"isRelated"`
}

// AUAbuseAnalysis is the authorized-user abuse result.
type AUAbuseAnalysis struct {
	AUCount          int         `json:"auCount"`
	UnrelatedAUCount int         `json:"unrelatedAuCount"`
	Accounts         []AUAccount `json:"accounts"`
	Probability      float64     `json:"abuseProbability"`
	Indicators       []string    `json:"indicators"`
	RiskLevel        RiskLevel   `json:"riskLevel"`
}

// ComponentScores are the synthetic scorer's per-group scores.
type ComponentScores struct {
	SSN      float64 `json:"ssn"`
	Graph    float64 `json:"graph"`
	Velocity float64 `json:"velocity"`
	Credit   float64 `json:"credit"`
	Device   float64 `json:"device"`
}

// SyntheticScore is the synthetic identity result.
type SyntheticScore struct {
	IdentityID       string          `json:"identityId"`
	Score            float64         `json:"score"`
	RiskLevel        RiskLevel       `json:"riskLevel"`
	Components       ComponentScores `json:"componentScores"`
	TriggeredSignals []string        `json:"triggeredSignals"`
	Explanation      string          `json:"explanation"`
	ModelScored      bool            `json:"modelScored"`
	Timestamp        time.Time       `json:"timestamp"`
}

// BustOutPrediction is the bust-out result for one account.
type BustOutPrediction struct {
	AccountID         string             `json:"accountId"`
	Probability       float64            `json:"bustOutProbability"`
	RiskLevel         RiskLevel          `json:"riskLevel"`
	DaysToBustOut     *int               `json:"estimatedDaysToBustOut,omitempty"`
	WarningSignals    []string           `json:"warningSignals"`
	RecommendedAction string             `json:"recommendedAction"`
	Features          map[string]float64 `json:"features"`
	ModelScored       bool               `json:"modelScored"`
}

// SyntheticCluster is a detected community of identities.
type SyntheticCluster struct {
	ClusterID      string              `json:"clusterId"`
	Members        []string            `json:"identities"`
	SharedElements map[ElementType]int `json:"sharedElements"`
	Score          float64             `json:"clusterScore"`
	CenterIdentity string              `json:"centerIdentity"`
	RiskLevel      RiskLevel           `json:"riskLevel"`
	Density        float64             `json:"density"`
}

// ClusterRun records one committed cluster detection run.
type ClusterRun struct {
	ID          string             `json:"id"`
	TenantID    string             `json:"tenantId"`
	Version     int64              `json:"version"`
	Algorithm   string             `json:"algorithm"`
	Resolution  float64            `json:"resolution"`
	MinSize     int                `json:"minClusterSize"`
	NodeCount   int                `json:"nodeCount"`
	EdgeCount   int                `json:"edgeCount"`
	StartedAt   time.Time          `json:"startedAt"`
	CompletedAt time.Time          `json:"completedAt"`
	Clusters    []SyntheticCluster `json:"clusters,omitempty"`
}

// Contribution is one component's weighted share of the final score.
type Contribution struct {
	Component    string  `json:"component"`
	Score        float64 `json:"score"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// EnsembleResult is the final scoring decision for an identity.
type EnsembleResult struct {
	ID                string                  `json:"id"`
	TenantID          string                  `json:"tenantId"`
	IdentityID        string                  `json:"identityId"`
	FinalScore        float64                 `json:"finalRiskScore"`
	RiskLevel         RiskLevel               `json:"riskLevel"`
	Signals           []string                `json:"primarySignals"`
	RecommendedAction string                  `json:"recommendedAction"`
	Explanation       string                  `json:"explanation"`
	Synthetic         *SyntheticScore         `json:"syntheticResult,omitempty"`
	BustOut           *BustOutPrediction      `json:"bustOutResult,omitempty"`
	Velocity          *VelocityAnalysis       `json:"velocityResult,omitempty"`
	Credit            *CreditBehaviorAnalysis `json:"creditResult,omitempty"`
	AUAbuse           *AUAbuseAnalysis        `json:"auResult,omitempty"`
	GraphFeatures     *GraphFeatures          `json:"graphFeatures,omitempty"`
	Contributions     []Contribution          `json:"contributions"`
	RuleResults       []RuleResult            `json:"ruleResults,omitempty"`
	Notes             []string                `json:"notes,omitempty"`
	TraceID           string                  `json:"traceId,omitempty"`
	TotalMs           int64                   `json:"totalMs"`
	AnalyzedAt        time.Time               `json:"analysisTimestamp"`
}
