// Package identity persists the endpoint identity assigned by the server so
// an agent keeps the same endpoint ID across restarts.
package identity

import (
	"os"

	"github.com/google/uuid"

	"github.com/daveram1/EndpointAssessment/pkg/file"
)

// Identity holds the endpoint's server-assigned identifier and hostname.
type Identity struct {
	EndpointID string `json:"endpoint_id,omitempty"`
	Hostname   string `json:"hostname,omitempty"`
}

// EndpointInfoInterface defines methods for managing endpoint identity.
type EndpointInfoInterface interface {
	Load() error
	Save(endpointID uuid.UUID, hostname string) error
	EndpointID() (uuid.UUID, bool)
	Hostname() string
}

// EndpointInfo manages the endpoint identity and its backing file.
type EndpointInfo struct {
	identityFile string
	identity     Identity
	fileOps      file.FileOperations
}

// NewEndpointInfo initializes a new EndpointInfo instance.
func NewEndpointInfo(filePath string, fileOps file.FileOperations) *EndpointInfo {
	return &EndpointInfo{
		identityFile: filePath,
		fileOps:      fileOps,
	}
}

// Load reads the identity file. A missing file is not an error; the agent
// simply registers as new.
func (e *EndpointInfo) Load() error {
	err := e.fileOps.ReadJsonFile(e.identityFile, &e.identity)
	if err != nil {
		if os.IsNotExist(err) {
			e.identity = Identity{}
			return nil
		}
		return err
	}
	return nil
}

// Save persists the endpoint ID and hostname to the identity file.
func (e *EndpointInfo) Save(endpointID uuid.UUID, hostname string) error {
	e.identity = Identity{
		EndpointID: endpointID.String(),
		Hostname:   hostname,
	}
	return e.fileOps.WriteJsonFile(e.identityFile, e.identity)
}

// EndpointID returns the stored endpoint ID and whether a valid one exists.
func (e *EndpointInfo) EndpointID() (uuid.UUID, bool) {
	id, err := uuid.Parse(e.identity.EndpointID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Hostname returns the hostname recorded at the last registration.
func (e *EndpointInfo) Hostname() string {
	return e.identity.Hostname
}
