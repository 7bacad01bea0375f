package models

type UnitKind string

const (
	UnitKindMass  UnitKind = "mass"
	UnitKindPiece UnitKind = "piece"
)

type MaterialKind string

const (
	MaterialKindRaw      MaterialKind = "raw"
	MaterialKindFinished MaterialKind = "finished"
	MaterialKindSliced   MaterialKind = "sliced"
	MaterialKindExternal MaterialKind = "external"
)

// Movement type codes in inventory_movements.
type MovementType string

const (
	MovementTypeReceipt           MovementType = "RC"
	MovementTypeProductionIssue   MovementType = "PI"
	MovementTypeProductionReceipt MovementType = "PR"
	MovementTypeWriteOff          MovementType = "WO"
	MovementTypeAdjustment        MovementType = "AD"
	MovementTypeReturn            MovementType = "RT"
)

type BatchStatus string

const (
	BatchStatusPlanned        BatchStatus = "Planned"
	BatchStatusInProduction   BatchStatus = "In Production"
	BatchStatusReceived       BatchStatus = "Received"
	BatchStatusReworkReturned BatchStatus = "Rework Returned"
)

type WriteOffReason string

const (
	WriteOffReasonSpoilage WriteOffReason = "Spoilage"
	WriteOffReasonDamage   WriteOffReason = "Damage"
	WriteOffReasonExpired  WriteOffReason = "Expired"
	WriteOffReasonOther    WriteOffReason = "Other"
)
