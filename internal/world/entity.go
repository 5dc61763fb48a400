package world

import "fmt"

// EntityID uniquely identifies an entity in the world.
type EntityID uint64

// NilEntity is the zero value. No valid entity has this ID.
const NilEntity EntityID = 0

// String renders the ID as e<n>.
func (id EntityID) String() string {
	return fmt.Sprintf("e%d", uint64(id))
}

// ComponentType is a small integer key used to store/retrieve components.
type ComponentType uint8

// Component is implemented by every data struct stored in the world.
type Component interface {
	Type() ComponentType
}

// Built-in display components. Hosts may register further types above
// ComponentUser.
const (
	ComponentTag ComponentType = iota + 1
	ComponentText
	ComponentRoot
	ComponentUser ComponentType = 16
)

// Tag names a display element (e.g. "row", "button").
type Tag struct {
	Name string
}

// Type implements Component.
func (Tag) Type() ComponentType { return ComponentTag }

// Text holds the content of a text node.
type Text struct {
	Value string
}

// Type implements Component.
func (Text) Type() ComponentType { return ComponentText }

// Root marks an entity that hosts a mounted view tree.
type Root struct {
	Name string
}

// Type implements Component.
func (Root) Type() ComponentType { return ComponentRoot }
