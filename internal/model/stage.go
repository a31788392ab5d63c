package model

import "slices"

// Stage is the ordered opportunity sales stage.
type Stage int

const (
	StageQualifying Stage = iota
	StageDiscovery
	StageSQO
	StagePilot
	StageProposal
	StageNegotiation
	StageClosedWon
	StageClosedLost
)

var stageNames = [...]string{
	StageQualifying:  "Qualifying",
	StageDiscovery:   "Discovery",
	StageSQO:         "SQO",
	StagePilot:       "Pilot",
	StageProposal:    "Proposal",
	StageNegotiation: "Negotiation",
	StageClosedWon:   "Closed-Won",
	StageClosedLost:  "Closed-Lost",
}

// AllStages lists every stage in declared order.
var AllStages = []Stage{
	StageQualifying, StageDiscovery, StageSQO, StagePilot,
	StageProposal, StageNegotiation, StageClosedWon, StageClosedLost,
}

// DefaultActiveStages is the pipeline considered for probability reweighting.
var DefaultActiveStages = []Stage{
	StageQualifying, StageDiscovery, StageSQO, StagePilot, StageProposal,
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "Unknown"
	}
	return stageNames[s]
}

// Valid reports whether s is one of the declared stages.
func (s Stage) Valid() bool {
	return s >= StageQualifying && s <= StageClosedLost
}

// StageSet is an ordered set of stages.
type StageSet []Stage

// Contains reports whether the set holds s.
func (ss StageSet) Contains(s Stage) bool {
	return slices.Contains(ss, s)
}
