package execution

import "strings"

// ClientType is the execution client implementation behind an endpoint.
type ClientType int8

const (
	UnknownClient ClientType = iota - 1
	_
	BesuClient
	ErigonClient
	EthjsClient
	GethClient
	NethermindClient
	RethClient
)

// web3_clientVersion starts with the implementation name, e.g. "Geth/v1.16.3-stable/linux-amd64/go1.24.1"
var clientVersionPrefixes = []struct {
	prefix     string
	clientType ClientType
	name       string
}{
	{"besu/", BesuClient, "besu"},
	{"erigon/", ErigonClient, "erigon"},
	{"ethereumjs/", EthjsClient, "ethjs"},
	{"geth/", GethClient, "geth"},
	{"nethermind/", NethermindClient, "nethermind"},
	{"reth/", RethClient, "reth"},
}

// ParseClientVersion detects the client implementation from its version string.
func ParseClientVersion(version string) ClientType {
	version = strings.ToLower(version)
	for _, entry := range clientVersionPrefixes {
		if strings.HasPrefix(version, entry.prefix) {
			return entry.clientType
		}
	}

	return UnknownClient
}

func (clientType ClientType) String() string {
	for _, entry := range clientVersionPrefixes {
		if entry.clientType == clientType {
			return entry.name
		}
	}

	return "unknown"
}
