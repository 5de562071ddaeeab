package consensus

import "strings"

// ClientType is the beacon node implementation behind an endpoint.
type ClientType int8

const (
	UnknownClient ClientType = iota - 1
	_
	LighthouseClient
	LodestarClient
	NimbusClient
	PrysmClient
	TekuClient
	GrandineClient
)

// /eth/v1/node/version reports "<implementation>/<version>/<platform>", the casing differs per client
var clientVersionPrefixes = []struct {
	prefix     string
	clientType ClientType
	name       string
}{
	{"lighthouse/", LighthouseClient, "lighthouse"},
	{"lodestar/", LodestarClient, "lodestar"},
	{"nimbus/", NimbusClient, "nimbus"},
	{"prysm/", PrysmClient, "prysm"},
	{"teku/", TekuClient, "teku"},
	{"grandine/", GrandineClient, "grandine"},
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
