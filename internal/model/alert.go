package model

// Endpoint is one side of the alerted flow.
type Endpoint struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// Traffic carries the feature values that led to the alert.
type Traffic struct {
	PacketSize   int      `json:"packet_size"`
	PacketRate   float64  `json:"packet_rate"`
	ByteRate     float64  `json:"byte_rate"`
	TCPFlags     string   `json:"tcp_flags"`
	FlowDuration *float64 `json:"flow_duration"`
}

// Alert is the canonical outward record. It is not modified after it has
// been built.
type Alert struct {
	ID             string     `json:"id"`
	Timestamp      string     `json:"timestamp"`
	AlertType      ThreatType `json:"alert_type"`
	AttackName     *string    `json:"attack_name"`
	Severity       Severity   `json:"severity"`
	MitreTechnique *string    `json:"mitre_technique"`
	AnomalyScore   *float64   `json:"anomaly_score"`
	Source         Endpoint   `json:"source"`
	Destination    Endpoint   `json:"destination"`
	Traffic        Traffic    `json:"traffic"`
}

// AlertSummary aggregates stored alerts for reporting.
type AlertSummary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
	ByType     map[string]int `json:"by_type"`
}
