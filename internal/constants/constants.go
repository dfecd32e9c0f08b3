// Package constants provides named defaults used throughout episim.
// This centralizes magic numbers for better maintainability and documentation.
package constants

// Simulation defaults
const (
	// DefaultDuration is the number of simulated days.
	DefaultDuration = 60

	// DefaultPurpose labels a run in the cumulative log when none is given.
	DefaultPurpose = "Baseline"

	// DefaultParamsChanged describes the deviation from defaults for the run log.
	DefaultParamsChanged = "All defaults"

	// DefaultPatientZero is the individual forced to Infected before day 1.
	DefaultPatientZero = 0
)

// Virus defaults
const (
	// DefaultVirusName is the virus label used in summaries and plot titles.
	DefaultVirusName = "T-Virus"

	// DefaultInfectRate is the per-contact, per-day transmission probability.
	DefaultInfectRate = 0.7

	// DefaultCureRate is the per-day recovery probability.
	DefaultCureRate = 0.05

	// DefaultInfectionTime caps the infectious period in days.
	DefaultInfectionTime = 2

	// DefaultLatentPeriod is the number of days spent Exposed.
	DefaultLatentPeriod = 1
)

// Population defaults
const (
	// DefaultPopulationSize is the number of individuals (network nodes).
	DefaultPopulationSize = 100

	// DefaultAvgDegree is the ring lattice degree. Must be even.
	DefaultAvgDegree = 6

	// DefaultRewireProb is the small-world rewiring probability per edge.
	DefaultRewireProb = 0.1

	// DefaultRiskFactor applies to age groups missing from the risk table.
	DefaultRiskFactor = 1.0
)

// Output defaults
const (
	// DefaultResultsDir is where exports, the run log and archives are written.
	DefaultResultsDir = "results"

	// RunLogDB is the SQLite file holding the cumulative run log.
	RunLogDB = "runs.db"

	// RunLogCSV is the CSV mirror of the run log.
	RunLogCSV = "log.csv"

	// RunIDWidth is the zero-padded width of run identifiers ("001").
	RunIDWidth = 3
)

// Archive defaults
const (
	// ArchiveDir is the subdirectory of the results directory holding run archives.
	ArchiveDir = "archives"

	// ArchiveExt is the file suffix of a run archive.
	ArchiveExt = ".episim.gz"

	// DefaultKeepArchives is the number of archives retained; 0 keeps all.
	DefaultKeepArchives = 10

	// MaxArchiveSize caps the decompressed payload read from an archive (256 MiB).
	MaxArchiveSize = 256 << 20
)
