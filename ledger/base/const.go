package base

const (
	StateSubModName    = "state"
	ContractSubModName = "contract"
	PRepSubModName     = "prep"
	RollbackSubModName = "rollback"

	// state database storage dir name
	StateStrgDirName = "statedb"
)

// base definition for KV prefix
const (
	MetaTablePrefix     = "M"
	AccountTablePrefix  = "A"
	ContractTablePrefix = "C"
	PRepTablePrefix     = "prep"
)

// protocol revisions, part of the record write path so the
// storage format can migrate across chain upgrades
const (
	Revision0 = iota
	Revision1
	Revision2
	Revision3
	Revision4
	Revision5
	RevisionIISS
	LatestRevision = RevisionIISS
)
