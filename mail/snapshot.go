package mail

import "time"

// ObjectType tags the kind of object a snapshot or log entry refers to.
// Messages, threads and labels share one reconciliation path; the type is a
// tagged variant rather than a per-type hierarchy.
type ObjectType string

const (
	ObjectTypeMessage ObjectType = "message"
	ObjectTypeThread  ObjectType = "thread"
	ObjectTypeLabel   ObjectType = "label"
)

// Snapshot is the remote-observed metadata of one object at one point in
// time. It carries everything the reconciler needs to decide whether the
// local record is current.
type Snapshot struct {
	RemoteID MessageID
	Type     ObjectType
	Subject  string
	Sender   string
	Date     time.Time
	Size     int
	Flags    []string
}

// Observation is one element of a reconciler batch: a snapshot plus a
// presence flag. Present=false records an observed deletion, in which case
// only RemoteID and Type of the snapshot are meaningful.
type Observation struct {
	Snapshot Snapshot
	Present  bool
}

func Observed(snap Snapshot) Observation {
	return Observation{Snapshot: snap, Present: true}
}

func ObservedGone(remoteID MessageID) Observation {
	return Observation{
		Snapshot: Snapshot{RemoteID: remoteID, Type: ObjectTypeMessage},
		Present:  false,
	}
}
