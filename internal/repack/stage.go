package repack

import "fmt"

// Stage is a step of the repack pipeline. Stages only move forward.
type Stage int

const (
	StageInit Stage = iota
	StageHierarchyBuilt
	StageClosureComputed
	StageStripped
	StageCollisionRemapped
	StageDeparented
	StageMetadataRebuilt
	StageSerialized
)

var stageNames = [...]string{
	StageInit:              "init",
	StageHierarchyBuilt:    "hierarchy-built",
	StageClosureComputed:   "closure-computed",
	StageStripped:          "stripped",
	StageCollisionRemapped: "collision-remapped",
	StageDeparented:        "deparented",
	StageMetadataRebuilt:   "metadata-rebuilt",
	StageSerialized:        "serialized",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Terminal reports whether no stage follows s
func (s Stage) Terminal() bool {
	return s == StageSerialized
}
