package spaces

import (
	"errors"

	"github.com/heavy-go/hv/internal/core/ecs"
)

var (
	// ErrNoSuchObject is returned for despawned or never-created objects.
	ErrNoSuchObject = errors.New("no such object")
	// ErrWrongSpace is returned when an object is used with a space other than
	// the one that created it.
	ErrWrongSpace = errors.New("wrong space")
)

// MissingComponentError reports that an object exists but lacks a component.
type MissingComponentError = ecs.MissingComponentError

// translate maps entity store failures onto the object error taxonomy.
func translate(err error) error {
	if errors.Is(err, ecs.ErrNoSuchEntity) {
		return ErrNoSuchObject
	}
	return err
}
