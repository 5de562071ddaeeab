package consensus

import "github.com/emozilla/ethereum-validator-stack/clients/consensus/rpc"

type ClientStatus uint8

var (
	ClientStatusOnline         ClientStatus = 1
	ClientStatusNotInitialized ClientStatus = 2
	ClientStatusSynchronizing  ClientStatus = 3
	ClientStatusOptimistic     ClientStatus = 4
)

// GetClientStatus derives the node status. Optimistic wins over syncing: the remediation differs
// (the execution client is behind, not the beacon node).
func GetClientStatus(status *rpc.SyncStatus) ClientStatus {
	switch {
	case status.Health == rpc.NodeHealthNotInitialized:
		return ClientStatusNotInitialized
	case status.IsOptimistic:
		return ClientStatusOptimistic
	case status.IsSyncing:
		return ClientStatusSynchronizing
	default:
		return ClientStatusOnline
	}
}

func (s ClientStatus) String() string {
	switch s {
	case ClientStatusOnline:
		return "online"
	case ClientStatusNotInitialized:
		return "not_initialized"
	case ClientStatusSynchronizing:
		return "synchronizing"
	case ClientStatusOptimistic:
		return "optimistic"
	}

	return "unknown"
}
