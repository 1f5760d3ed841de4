// Package council drives one proposed action through advisory input, parallel
// validator voting, quorum evaluation and synthesis, and commits the outcome
// to the Truth Chain.
package council

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/Vorion-Labs/cognigate/pkg/contracts"
)

// Threshold is the quorum rule for one risk tier. Ratios apply over
// non-abstaining votes; a verdict is reached only when the fraction STRICTLY
// exceeds the ratio, so an exact tie under 0.5/0.5 escalates.
type Threshold struct {
	ApproveRatio             float64 `yaml:"approve_ratio"`
	DenyRatio                float64 `yaml:"deny_ratio"`
	RequireHumanConfirmation bool    `yaml:"require_human_confirmation"`
}

// QuorumPolicy maps risk tiers to thresholds. It is configuration the core
// consumes, never computes.
type QuorumPolicy struct {
	PolicyVersion string            `yaml:"policy_version"`
	Tiers         map[int]Threshold `yaml:"tiers"`
}

// policyVersionRange is the policy schema this build understands.
const policyVersionRange = ">= 1.0.0, < 2.0.0"

// DefaultPolicy mirrors the shipped quorum table: simple majority for tiers
// 1-3, supermajority for 4-5, human confirmation required at tier 5.
func DefaultPolicy() QuorumPolicy {
	return QuorumPolicy{
		PolicyVersion: "1.0.0",
		Tiers: map[int]Threshold{
			1: {ApproveRatio: 0.5, DenyRatio: 0.5},
			2: {ApproveRatio: 0.5, DenyRatio: 0.5},
			3: {ApproveRatio: 0.5, DenyRatio: 0.5},
			4: {ApproveRatio: 0.66, DenyRatio: 0.5},
			5: {ApproveRatio: 0.66, DenyRatio: 0.5, RequireHumanConfirmation: true},
		},
	}
}

// LoadPolicy reads and validates a quorum policy document.
func LoadPolicy(path string) (QuorumPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return QuorumPolicy{}, fmt.Errorf("read quorum policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses YAML and gates on the policy schema version.
func ParsePolicy(data []byte) (QuorumPolicy, error) {
	var p QuorumPolicy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return QuorumPolicy{}, fmt.Errorf("parse quorum policy: %w", err)
	}

	v, err := semver.NewVersion(p.PolicyVersion)
	if err != nil {
		return QuorumPolicy{}, fmt.Errorf("invalid policy_version %q: %w", p.PolicyVersion, err)
	}
	constraint, err := semver.NewConstraint(policyVersionRange)
	if err != nil {
		return QuorumPolicy{}, err
	}
	if !constraint.Check(v) {
		return QuorumPolicy{}, fmt.Errorf("policy_version %s outside supported range %q", v, policyVersionRange)
	}

	if len(p.Tiers) == 0 {
		return QuorumPolicy{}, fmt.Errorf("quorum policy defines no tiers")
	}
	for tier, th := range p.Tiers {
		if th.ApproveRatio < 0.5 || th.ApproveRatio >= 1 || th.DenyRatio < 0.5 || th.DenyRatio >= 1 {
			return QuorumPolicy{}, fmt.Errorf("tier %d: ratios must be in [0.5, 1)", tier)
		}
	}
	return p, nil
}

// ThresholdFor returns the rule for a risk level. Levels above the highest
// configured tier inherit the highest tier's rule; below the lowest, the
// lowest.
func (p QuorumPolicy) ThresholdFor(risk int) Threshold {
	if th, ok := p.Tiers[risk]; ok {
		return th
	}
	lowest, highest := 0, 0
	for tier := range p.Tiers {
		if lowest == 0 || tier < lowest {
			lowest = tier
		}
		if tier > highest {
			highest = tier
		}
	}
	if risk > highest {
		return p.Tiers[highest]
	}
	return p.Tiers[lowest]
}

// synthesize applies a threshold to a tally. humanConfirmed gates approval at
// tiers that require external human confirmation.
func synthesize(t contracts.Tally, th Threshold, humanConfirmed bool) (contracts.CaseVerdict, string) {
	voting := t.Voting()
	if voting == 0 {
		return contracts.VerdictEscalated, "no binding votes cast"
	}

	approveFrac := float64(t.Approve) / float64(voting)
	denyFrac := float64(t.Deny) / float64(voting)

	switch {
	case approveFrac > th.ApproveRatio:
		if th.RequireHumanConfirmation && !humanConfirmed {
			return contracts.VerdictEscalated,
				fmt.Sprintf("approval threshold met (%d/%d) but human confirmation is required at this risk tier", t.Approve, voting)
		}
		return contracts.VerdictApproved,
			fmt.Sprintf("approved by %d of %d binding votes (threshold %.2f)", t.Approve, voting, th.ApproveRatio)
	case denyFrac > th.DenyRatio:
		return contracts.VerdictDenied,
			fmt.Sprintf("denied by %d of %d binding votes (threshold %.2f)", t.Deny, voting, th.DenyRatio)
	default:
		return contracts.VerdictEscalated,
			fmt.Sprintf("no threshold reached (%d approve / %d deny / %d abstain)", t.Approve, t.Deny, t.Abstain)
	}
}
