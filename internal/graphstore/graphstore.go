// Package graphstore provides identity graph storage implementations for Kestrel.
package graphstore

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// New creates a graph store based on configuration.
// For Community tier: returns the in-memory store.
// For Pro tier: returns the Neo4j store.
func New(cfg domain.GraphStoreConfig) (domain.GraphStore, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryStore(), nil

	case "neo4j":
		return NewNeo4jStore(cfg)

	case "none":
		return NullStore{}, nil

	default:
		return nil, fmt.Errorf("unsupported graph store type: %s", cfg.Type)
	}
}

// nodeLabel is the graph label of an element type.
func nodeLabel(t domain.ElementType) string {
	switch t {
	case domain.ElementSSN:
		return "SSN"
	case domain.ElementAddress:
		return "Address"
	case domain.ElementPhone:
		return "Phone"
	case domain.ElementEmail:
		return "Email"
	case domain.ElementDevice:
		return "Device"
	}
	return "Element"
}

// relType is the relationship type linking an identity to an element type.
func relType(t domain.ElementType) string {
	switch t {
	case domain.ElementSSN:
		return "HAS_SSN"
	case domain.ElementAddress:
		return "HAS_ADDRESS"
	case domain.ElementPhone:
		return "HAS_PHONE"
	case domain.ElementEmail:
		return "HAS_EMAIL"
	case domain.ElementDevice:
		return "USES_DEVICE"
	}
	return "HAS_ELEMENT"
}

func elementTypeOfRel(rel string) (domain.ElementType, bool) {
	for _, t := range domain.ElementTypes {
		if relType(t) == rel {
			return t, true
		}
	}
	return "", false
}

func elementNodeID(t domain.ElementType, hash string) string {
	return string(t) + ":" + hash
}

func requireIDs(tenantID, identityID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if identityID == "" {
		return fmt.Errorf("%w: identityID is required", domain.ErrInvalidInput)
	}
	return nil
}

func emptyShared() map[domain.ElementType][]string {
	shared := make(map[domain.ElementType][]string, len(domain.ElementTypes))
	for _, t := range domain.ElementTypes {
		shared[t] = []string{}
	}
	return shared
}
