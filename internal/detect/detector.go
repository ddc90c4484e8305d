package detect

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"reporunner/pkg/logging"
)

const subsystem = "Detector"

// Detector classifies the services inside a target repository from
// marker files. It never executes repository code.
type Detector struct{}

// New creates a Detector.
func New() *Detector {
	return &Detector{}
}

// Detect scans repoPath and returns one Descriptor per discovered
// service, in a stable order. Immediate subdirectories are classified
// first; when none of them contains a service, the repository root is
// classified as a single service.
func (d *Detector) Detect(repoPath string) ([]Descriptor, error) {
	absPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("resolving repository path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading repository path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository path %s is not a directory", absPath)
	}

	entries, err := os.ReadDir(absPath)
	if err != nil {
		return nil, fmt.Errorf("listing repository: %w", err)
	}

	var services []Descriptor
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(absPath, entry.Name())
		kind, ok := classifyDir(dir)
		if !ok {
			continue
		}
		svc := Descriptor{
			ID:       entry.Name(),
			Kind:     kind,
			Role:     roleFor(entry.Name(), kind),
			Path:     dir,
			PortHint: portHint(dir),
		}
		logging.Info(subsystem, "Detected service %s (kind=%s role=%s)", svc.ID, svc.Kind, svc.Role)
		services = append(services, svc)
	}

	if len(services) == 0 {
		kind, ok := classifyDir(absPath)
		if !ok {
			return nil, fmt.Errorf("no runnable services found in %s", absPath)
		}
		id := filepath.Base(absPath)
		svc := Descriptor{
			ID:       id,
			Kind:     kind,
			Role:     roleFor(id, kind),
			Path:     absPath,
			PortHint: portHint(absPath),
		}
		logging.Info(subsystem, "Detected single service %s (kind=%s role=%s)", svc.ID, svc.Kind, svc.Role)
		services = append(services, svc)
	}

	services = addDatabaseService(absPath, services)
	wireDependencies(services)
	return services, nil
}

// classifyDir maps marker files to a service kind. The docker markers
// win over language markers so a Dockerized service starts through its
// own container recipe.
func classifyDir(dir string) (Kind, bool) {
	switch {
	case fileExists(filepath.Join(dir, "docker-compose.yml")),
		fileExists(filepath.Join(dir, "docker-compose.yaml")),
		fileExists(filepath.Join(dir, "Dockerfile")):
		return KindDocker, true
	case fileExists(filepath.Join(dir, "requirements.txt")),
		fileExists(filepath.Join(dir, "pyproject.toml")),
		fileExists(filepath.Join(dir, "manage.py")):
		return KindPython, true
	case fileExists(filepath.Join(dir, "package.json")):
		return KindNode, true
	case fileExists(filepath.Join(dir, "main.py")),
		fileExists(filepath.Join(dir, "app.py")):
		return KindPython, true
	case fileExists(filepath.Join(dir, "Makefile")):
		return KindGeneric, true
	}
	return KindGeneric, false
}

func roleFor(name string, kind Kind) Role {
	lower := strings.ToLower(name)
	switch {
	case containsAny(lower, "front", "client", "ui", "web"):
		return RoleFrontend
	case containsAny(lower, "back", "api", "server", "service"):
		return RoleBackend
	case containsAny(lower, "db", "database", "postgres", "mysql", "mongo"):
		return RoleDB
	}
	switch kind {
	case KindNode:
		return RoleFrontend
	case KindPython:
		return RoleBackend
	}
	return RoleOther
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// addDatabaseService appends a db service when the repository declares
// one: either a database-ish service in a root docker-compose file, or a
// DATABASE_URL entry in .env.example. Without such a declaration no db
// node is synthesized.
func addDatabaseService(repoPath string, services []Descriptor) []Descriptor {
	for _, svc := range services {
		if svc.Role == RoleDB {
			return services
		}
	}

	name, port, found := composeDatabaseService(repoPath)
	if !found && envDeclaresDatabase(repoPath) {
		name, port = "db", 0
		found = true
	}
	if !found {
		return services
	}

	logging.Info(subsystem, "Detected database service %s", name)
	return append(services, Descriptor{
		ID:       name,
		Kind:     KindDocker,
		Role:     RoleDB,
		Path:     repoPath,
		PortHint: port,
	})
}

func envDeclaresDatabase(repoPath string) bool {
	for _, candidate := range []string{".env.example", ".env.sample", "env.example"} {
		data, err := os.ReadFile(filepath.Join(repoPath, candidate))
		if err != nil {
			continue
		}
		if strings.Contains(string(data), "DATABASE_URL") {
			return true
		}
	}
	return false
}

// wireDependencies adds the standard edges: every frontend waits for
// the backends, every backend waits for the databases.
func wireDependencies(services []Descriptor) {
	var backends, dbs []string
	for _, svc := range services {
		switch svc.Role {
		case RoleBackend:
			backends = append(backends, svc.ID)
		case RoleDB:
			dbs = append(dbs, svc.ID)
		}
	}

	for i := range services {
		switch services[i].Role {
		case RoleFrontend:
			services[i].DependsOn = append(services[i].DependsOn, backends...)
		case RoleBackend:
			services[i].DependsOn = append(services[i].DependsOn, dbs...)
		}
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
