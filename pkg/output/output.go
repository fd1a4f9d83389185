package output

import "github.com/ericogr/heatingpad/pkg/heatingpad"

type Output interface {
	Publish(heatingpad.Status) error
	Close() error
}

// helper constructors are in subpackages
