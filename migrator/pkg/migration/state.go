package migration

import "fmt"

// State is the progress of a migration run. States are reached in order;
// Failed can follow any of them.
type State int

const (
	NotStarted State = iota
	SnapshotReady
	Exported
	CopiedToTarget
	ClusterCreated
	Reported
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case SnapshotReady:
		return "SnapshotReady"
	case Exported:
		return "Exported"
	case CopiedToTarget:
		return "CopiedToTarget"
	case ClusterCreated:
		return "ClusterCreated"
	case Reported:
		return "Reported"
	case Failed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// SnapshotStatus is the provider status of an ElastiCache snapshot.
type SnapshotStatus struct {
	slug string
}

func (s SnapshotStatus) String() string {
	return s.slug
}

var (
	SnapshotUndefined = SnapshotStatus{""}
	SnapshotCreating  = SnapshotStatus{"creating"}
	SnapshotAvailable = SnapshotStatus{"available"}
	SnapshotFailed    = SnapshotStatus{"failed"}
	SnapshotCopying   = SnapshotStatus{"copying"}
	SnapshotRestoring = SnapshotStatus{"restoring"}
	SnapshotDeleting  = SnapshotStatus{"deleting"}
	// SnapshotNotFound is reported when the provider no longer knows the snapshot.
	SnapshotNotFound = SnapshotStatus{"not-found"}
)

// ParseSnapshotStatus maps the provider string to a SnapshotStatus. Unknown
// values are an error.
func ParseSnapshotStatus(s string) (SnapshotStatus, error) {
	for _, status := range []SnapshotStatus{
		SnapshotCreating, SnapshotAvailable, SnapshotFailed, SnapshotCopying,
		SnapshotRestoring, SnapshotDeleting, SnapshotNotFound,
	} {
		if status.slug == s {
			return status, nil
		}
	}
	return SnapshotUndefined, fmt.Errorf("unknown snapshot status %q", s)
}
