// Package mitre is a small built-in knowledge base of the ATT&CK techniques
// referenced by the bundled rules.
package mitre

import "sort"

// Technique describes one ATT&CK technique.
type Technique struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Tactic      string   `json:"tactic"`
	Description string   `json:"description"`
	Risk        string   `json:"risk"`
	Mitigations []string `json:"mitigations"`
}

// KillChain is the tactic order used when reporting on alerts.
var KillChain = []string{
	"Reconnaissance",
	"Initial Access",
	"Execution",
	"Persistence",
	"Privilege Escalation",
	"Defense Evasion",
	"Credential Access",
	"Command & Control",
	"Exfiltration",
	"Impact",
}

var techniques = map[string]Technique{
	"T1046": {
		ID:          "T1046",
		Name:        "Network Service Scanning",
		Tactic:      "Reconnaissance",
		Description: "Scanning ports and services to identify attack surface.",
		Risk:        "Helps attackers plan exploitation.",
		Mitigations: []string{"Firewall rules", "Scan detection", "Limit exposed services"},
	},
	"T1499": {
		ID:          "T1499",
		Name:        "Endpoint Denial of Service",
		Tactic:      "Impact",
		Description: "Flooding targets to exhaust resources.",
		Risk:        "Service disruption and downtime.",
		Mitigations: []string{"Rate limiting", "DDoS protection", "Traffic shaping"},
	},
	"T1498": {
		ID:          "T1498",
		Name:        "Network Denial of Service",
		Tactic:      "Impact",
		Description: "Saturating network bandwidth toward a target.",
		Risk:        "Loss of availability for every service behind the link.",
		Mitigations: []string{"Upstream filtering", "Traffic scrubbing", "Capacity planning"},
	},
	"T1110": {
		ID:          "T1110",
		Name:        "Brute Force",
		Tactic:      "Credential Access",
		Description: "Repeated authentication attempts against a service.",
		Risk:        "Account takeover.",
		Mitigations: []string{"Account lockout", "Multi-factor authentication", "Connection rate limits"},
	},
	"T1041": {
		ID:          "T1041",
		Name:        "Exfiltration Over C2 Channel",
		Tactic:      "Exfiltration",
		Description: "Sustained outbound transfer over an established channel.",
		Risk:        "Data loss.",
		Mitigations: []string{"Egress filtering", "Data loss prevention", "Baseline outbound volume"},
	},
}

// Lookup returns the technique with id.
func Lookup(id string) (Technique, bool) {
	t, ok := techniques[id]
	return t, ok
}

// All returns every known technique ordered by id.
func All() []Technique {
	out := make([]Technique, 0, len(techniques))
	for _, t := range techniques {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
