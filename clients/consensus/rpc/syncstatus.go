package rpc

import v1 "github.com/attestantio/go-eth2-client/api/v1"

type SyncStatus struct {
	Health                   NodeHealth
	IsSyncing                bool
	IsOptimistic             bool
	HeadSlot                 uint64
	EstimatedHighestHeadSlot uint64
	SyncDistance             uint64
}

func NewSyncStatus(health NodeHealth, state *v1.SyncState) SyncStatus {
	status := SyncStatus{
		Health: health,
	}

	if state == nil {
		status.IsSyncing = health != NodeHealthReady
		return status
	}

	// health 206 is authoritative even when the syncing endpoint lags behind
	status.IsSyncing = state.IsSyncing || health == NodeHealthSyncing
	status.IsOptimistic = state.IsOptimistic
	status.HeadSlot = uint64(state.HeadSlot)
	status.SyncDistance = uint64(state.SyncDistance)
	status.EstimatedHighestHeadSlot = uint64(state.SyncDistance) + uint64(state.HeadSlot)

	return status
}

func (s *SyncStatus) Percent() float64 {
	if !s.IsSyncing {
		return 100
	}
	if s.EstimatedHighestHeadSlot == 0 {
		return 0
	}

	return float64(s.HeadSlot) / float64(s.EstimatedHighestHeadSlot) * 100
}
