package broker

import "strings"

// RiskLevel is an advisory classification attached to RequireApproval
// decisions for the (out-of-core) interactive approval UI. It never
// changes the Allow/Deny outcome itself.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// assessRiskLevel classifies a command line by substring heuristics, mostly
// useful as a hint for a human approver rather than a gate.
func assessRiskLevel(cmd string) RiskLevel {
	lower := strings.ToLower(cmd)

	for _, p := range []string{"rm -rf", "format", "dd if=", ":(){ :|:& };:"} {
		if strings.Contains(lower, p) {
			return RiskCritical
		}
	}

	for _, p := range []string{"sudo", "chmod 777", "| bash", "| sh", "eval", "exec"} {
		if strings.Contains(lower, p) {
			return RiskHigh
		}
	}

	for _, p := range []string{"npm install", "pip install", "cargo install", "curl", "wget", "git clone"} {
		if strings.Contains(lower, p) {
			return RiskMedium
		}
	}

	return RiskLow
}
