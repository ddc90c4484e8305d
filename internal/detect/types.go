package detect

// Kind is the runtime family of a detected service. It drives which
// launcher strategy and tool-chain checks apply.
type Kind int

const (
	KindGeneric Kind = iota
	KindPython
	KindNode
	KindDocker
)

func (k Kind) String() string {
	switch k {
	case KindPython:
		return "python"
	case KindNode:
		return "node"
	case KindDocker:
		return "docker"
	default:
		return "generic"
	}
}

// Role is the architectural role of a service. Port defaults are keyed
// by role.
type Role string

const (
	RoleBackend  Role = "backend"
	RoleFrontend Role = "frontend"
	RoleDB       Role = "db"
	RoleOther    Role = "other"
)

// Descriptor describes one detected service in the target repository.
type Descriptor struct {
	// ID is unique within a run, derived from the directory name.
	ID string

	Kind Kind
	Role Role

	// Path is the absolute directory the service runs from.
	Path string

	// DependsOn lists IDs of services that must be up first.
	DependsOn []string

	// PortHint is a port the repository itself declares (docker-compose
	// ports mapping or Dockerfile EXPOSE). Zero when nothing was found.
	PortHint int
}
