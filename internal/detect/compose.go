package detect

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Image string `yaml:"image"`
	Ports []any  `yaml:"ports"`
}

var databaseImages = []string{"postgres", "mysql", "mariadb", "mongo", "redis"}

// composeDatabaseService looks for a database service in the root
// docker-compose file and returns its name and host port.
func composeDatabaseService(repoPath string) (name string, port int, found bool) {
	compose, ok := loadCompose(repoPath)
	if !ok {
		return "", 0, false
	}

	for svcName, svc := range compose.Services {
		image := strings.ToLower(svc.Image)
		nameLower := strings.ToLower(svcName)
		isDB := false
		for _, db := range databaseImages {
			if strings.Contains(image, db) || strings.Contains(nameLower, db) {
				isDB = true
				break
			}
		}
		if !isDB && nameLower != "db" && nameLower != "database" {
			continue
		}
		return svcName, firstHostPort(svc.Ports), true
	}
	return "", 0, false
}

// portHint extracts a declared port for the service directory: the
// first docker-compose host port, otherwise the first Dockerfile EXPOSE.
func portHint(dir string) int {
	if compose, ok := loadCompose(dir); ok {
		for _, svc := range compose.Services {
			if p := firstHostPort(svc.Ports); p != 0 {
				return p
			}
		}
	}
	return dockerfileExposedPort(filepath.Join(dir, "Dockerfile"))
}

func loadCompose(dir string) (composeFile, bool) {
	var compose composeFile
	for _, candidate := range []string{"docker-compose.yml", "docker-compose.yaml"} {
		data, err := os.ReadFile(filepath.Join(dir, candidate))
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &compose); err != nil {
			continue
		}
		return compose, len(compose.Services) > 0
	}
	return compose, false
}

// firstHostPort parses short-syntax compose port entries like
// "8080:80", "127.0.0.1:8080:80" or plain "8080". Long-syntax map
// entries are skipped.
func firstHostPort(ports []any) int {
	for _, entry := range ports {
		var s string
		switch v := entry.(type) {
		case string:
			s = v
		case int:
			return v
		default:
			continue
		}
		parts := strings.Split(s, ":")
		hostPart := parts[0]
		if len(parts) == 3 {
			hostPart = parts[1]
		}
		if p, err := strconv.Atoi(hostPart); err == nil {
			return p
		}
	}
	return 0
}

func dockerfileExposedPort(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(strings.ToUpper(line), "EXPOSE") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		// EXPOSE may carry a protocol suffix, e.g. 8080/tcp.
		portPart := strings.SplitN(fields[1], "/", 2)[0]
		if p, err := strconv.Atoi(portPart); err == nil {
			return p
		}
	}
	return 0
}
