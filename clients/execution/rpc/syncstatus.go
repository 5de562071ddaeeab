package rpc

type SyncStatus struct {
	IsSyncing     bool
	StartingBlock uint64
	CurrentBlock  uint64
	HighestBlock  uint64
}

// Distance is the number of blocks between the local head and the highest known block.
func (s *SyncStatus) Distance() uint64 {
	if !s.IsSyncing || s.CurrentBlock >= s.HighestBlock {
		return 0
	}

	return s.HighestBlock - s.CurrentBlock
}

func (s *SyncStatus) Percent() float64 {
	if !s.IsSyncing {
		return 100
	}
	if s.HighestBlock == 0 {
		return 0
	}

	return float64(s.CurrentBlock) / float64(s.HighestBlock) * 100
}
