package launch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"reporunner/internal/detect"
)

// startPlan is the recipe for bringing one service up: optional prep
// commands that must finish first (docker build), then the long-running
// start command.
type startPlan struct {
	prep [][]string
	run  []string
}

// startPlanFor selects the start recipe for a service from its kind and
// the files present in its directory.
func startPlanFor(svc detect.Descriptor, port int) (startPlan, error) {
	switch svc.Kind {
	case detect.KindPython:
		return pythonPlan(svc, port)
	case detect.KindNode:
		return nodePlan(svc)
	case detect.KindDocker:
		return dockerPlan(svc, port)
	default:
		return genericPlan(svc)
	}
}

func pythonPlan(svc detect.Descriptor, port int) (startPlan, error) {
	if fileExists(filepath.Join(svc.Path, "manage.py")) {
		return startPlan{
			run: []string{"python3", "manage.py", "runserver", fmt.Sprintf("127.0.0.1:%d", port)},
		}, nil
	}
	for _, entry := range []string{"main.py", "app.py", "run.py", "server.py"} {
		if fileExists(filepath.Join(svc.Path, entry)) {
			return startPlan{run: []string{"python3", entry}}, nil
		}
	}
	return startPlan{}, fmt.Errorf("no python entry point found in %s", svc.Path)
}

func nodePlan(svc detect.Descriptor) (startPlan, error) {
	scripts, err := packageScripts(filepath.Join(svc.Path, "package.json"))
	if err == nil {
		for _, script := range []string{"dev", "start", "serve"} {
			if _, ok := scripts[script]; ok {
				return startPlan{run: []string{"npm", "run", script}}, nil
			}
		}
	}
	for _, entry := range []string{"index.js", "server.js", "app.js"} {
		if fileExists(filepath.Join(svc.Path, entry)) {
			return startPlan{run: []string{"node", entry}}, nil
		}
	}
	return startPlan{}, fmt.Errorf("no node entry point found in %s", svc.Path)
}

func dockerPlan(svc detect.Descriptor, port int) (startPlan, error) {
	for _, compose := range []string{"docker-compose.yml", "docker-compose.yaml"} {
		if fileExists(filepath.Join(svc.Path, compose)) {
			return startPlan{run: []string{"docker", "compose", "up", "--build"}}, nil
		}
	}
	if fileExists(filepath.Join(svc.Path, "Dockerfile")) {
		image := "reporunner-" + svc.ID
		containerPort := svc.PortHint
		if containerPort == 0 {
			containerPort = port
		}
		return startPlan{
			prep: [][]string{{"docker", "build", "-t", image, "."}},
			run: []string{
				"docker", "run", "--rm",
				"-p", strconv.Itoa(port) + ":" + strconv.Itoa(containerPort),
				image,
			},
		}, nil
	}
	return startPlan{}, fmt.Errorf("no docker recipe found in %s", svc.Path)
}

func genericPlan(svc detect.Descriptor) (startPlan, error) {
	if fileExists(filepath.Join(svc.Path, "Makefile")) {
		return startPlan{run: []string{"make", "run"}}, nil
	}
	if fileExists(filepath.Join(svc.Path, "run.sh")) {
		return startPlan{run: []string{"sh", "run.sh"}}, nil
	}
	return startPlan{}, fmt.Errorf("no start command known for %s", svc.Path)
}

// installCommand returns the dependency installation command for a
// service, or nil when its kind needs no install step.
func installCommand(svc detect.Descriptor) []string {
	switch svc.Kind {
	case detect.KindPython:
		if fileExists(filepath.Join(svc.Path, "requirements.txt")) {
			return []string{"pip", "install", "-r", "requirements.txt"}
		}
		if fileExists(filepath.Join(svc.Path, "pyproject.toml")) {
			return []string{"pip", "install", "-e", "."}
		}
	case detect.KindNode:
		if fileExists(filepath.Join(svc.Path, "package.json")) {
			return []string{"npm", "install"}
		}
	}
	return nil
}

// requiredTools lists the executables a service kind needs on PATH.
func requiredTools(kind detect.Kind) []string {
	switch kind {
	case detect.KindPython:
		return []string{"python3", "pip"}
	case detect.KindNode:
		return []string{"node", "npm"}
	case detect.KindDocker:
		return []string{"docker"}
	}
	return nil
}

func packageScripts(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}
	return pkg.Scripts, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
