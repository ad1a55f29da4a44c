// Package model defines the data shapes shared by every ingestion stage.
package model

import "strings"

// DataSource identifies the upstream provider of a record.
type DataSource string

const (
	SourceTeamNotes      DataSource = "team_notes"
	SourceVendorESPN     DataSource = "vendor_espn"
	SourceVendor247      DataSource = "vendor_247"
	SourceVendorOn3      DataSource = "vendor_on3"
	SourceStatsInference DataSource = "stats_inference"
	SourceManualOverride DataSource = "manual_override"
	SourceCFBDAPI        DataSource = "cfbd_api"
	SourceUnknown        DataSource = "unknown"
)

// sourcePriorities ranks sources for the priority strategy. Higher wins.
var sourcePriorities = map[DataSource]int{
	SourceManualOverride: 100,
	SourceTeamNotes:      90,
	SourceVendorESPN:     80,
	SourceVendor247:      75,
	SourceVendorOn3:      75,
	SourceCFBDAPI:        70,
	SourceStatsInference: 60,
	SourceUnknown:        30,
}

// ParseDataSource maps a raw tag onto the fixed enumeration. Anything
// unrecognized becomes SourceUnknown.
func ParseDataSource(s string) DataSource {
	ds := DataSource(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := sourcePriorities[ds]; ok {
		return ds
	}
	return SourceUnknown
}

// Priority returns the source's rank in the priority table.
func (s DataSource) Priority() int {
	if p, ok := sourcePriorities[s]; ok {
		return p
	}
	return sourcePriorities[SourceUnknown]
}

// Valid reports whether s is a member of the enumeration.
func (s DataSource) Valid() bool {
	_, ok := sourcePriorities[s]
	return ok
}

// InjuryStatus is the canonical availability of a player.
type InjuryStatus string

const (
	InjuryOut          InjuryStatus = "OUT"
	InjuryQuestionable InjuryStatus = "QUESTIONABLE"
	InjuryActive       InjuryStatus = "ACTIVE"
)

// Valid reports whether s is one of the three canonical statuses.
func (s InjuryStatus) Valid() bool {
	switch s {
	case InjuryOut, InjuryQuestionable, InjuryActive:
		return true
	}
	return false
}
