package main

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/storage"
)

const (
	defaultComposePath     = "docker-compose.yml"
	sitebuilderImageMarker = "sitebuilder"

	envServeMode       = "SERVE_MODE"
	envDatabaseDSN     = "DB_DSN"
	envDatabaseDriver  = "DB_DRIVER"
	envJWTSecret       = "AUTH_JWT_SECRET"
	envJWKSURL         = "AUTH_JWKS_URL"
	envGatewayURL      = "LLM_GATEWAY_URL"
	envPublicBaseURL   = "PUBLIC_BASE_URL"
	envSubdomainPolicy = "SUBDOMAIN_POLICY"
	envRedisAddress    = "REDIS_ADDR"

	serveModeAll     = "all"
	serveModeChat    = "chat"
	serveModePublish = "publish"
	serveModeSites   = "sites"
)

var (
	// requiredKeysByServeMode lists keys that must be non-empty. Entries joined by "|" need one of the names.
	requiredKeysByServeMode = map[string][]string{
		serveModeAll:     {envDatabaseDSN, envPublicBaseURL, envJWTSecret + "|" + envJWKSURL, envGatewayURL},
		serveModeChat:    {envDatabaseDSN, envGatewayURL},
		serveModePublish: {envDatabaseDSN, envPublicBaseURL, envJWTSecret + "|" + envJWKSURL},
		serveModeSites:   {envDatabaseDSN},
	}
	knownSubdomainPolicies = map[string]struct{}{"": {}, "retain": {}, "release": {}}
	knownDatabaseDrivers   = map[string]struct{}{"": {}, "sqlite": {}, "postgres": {}}
	localHostNames         = map[string]struct{}{"localhost": {}, "127.0.0.1": {}, "0.0.0.0": {}, "::1": {}}
)

type stringList []string

func (list *stringList) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*list = nil
		return nil
	}
	switch node.Kind {
	case yaml.ScalarNode:
		value := strings.TrimSpace(node.Value)
		if value == "" {
			*list = nil
			return nil
		}
		*list = []string{value}
		return nil
	case yaml.SequenceNode:
		entries := make([]string, 0, len(node.Content))
		for _, child := range node.Content {
			if child == nil {
				continue
			}
			value := strings.TrimSpace(child.Value)
			if value == "" {
				continue
			}
			entries = append(entries, value)
		}
		*list = entries
		return nil
	default:
		return fmt.Errorf("unsupported yaml node kind %d for list", node.Kind)
	}
}

type environmentMap map[string]string

func (environment *environmentMap) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*environment = nil
		return nil
	}
	switch node.Kind {
	case yaml.MappingNode:
		decoded := make(map[string]string)
		if err := node.Decode(&decoded); err != nil {
			return err
		}
		normalized := make(map[string]string, len(decoded))
		for key, value := range decoded {
			normalized[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
		*environment = normalized
		return nil
	case yaml.SequenceNode:
		var decoded []string
		if err := node.Decode(&decoded); err != nil {
			return err
		}
		normalized := make(map[string]string)
		for _, entry := range decoded {
			key, value, _ := strings.Cut(strings.TrimSpace(entry), "=")
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			normalized[key] = strings.TrimSpace(value)
		}
		*environment = normalized
		return nil
	default:
		return fmt.Errorf("unsupported yaml node kind %d for environment", node.Kind)
	}
}

type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Image       string         `yaml:"image"`
	EnvFile     stringList     `yaml:"env_file"`
	Environment environmentMap `yaml:"environment"`
	Ports       stringList     `yaml:"ports"`
}

// runsSitebuilder reports whether the service runs the sitebuilder server binary.
func (service composeService) runsSitebuilder(environment map[string]string) bool {
	if strings.Contains(strings.ToLower(service.Image), sitebuilderImageMarker) {
		return true
	}
	_, declaresServeMode := environment[envServeMode]
	_, declaresDatabase := environment[envDatabaseDSN]
	return declaresServeMode || declaresDatabase
}

type auditResult struct {
	errors   []string
	warnings []string
}

func (result *auditResult) addError(message string, arguments ...any) {
	result.errors = append(result.errors, fmt.Sprintf(message, arguments...))
}

func (result *auditResult) addWarning(message string, arguments ...any) {
	result.warnings = append(result.warnings, fmt.Sprintf(message, arguments...))
}

func (result auditResult) ok() bool {
	return len(result.errors) == 0
}

func main() {
	composePath := defaultComposePath
	if len(os.Args) > 1 {
		composePath = os.Args[1]
	}

	result := runAudit(composePath)
	sort.Strings(result.errors)
	sort.Strings(result.warnings)

	for _, warning := range result.warnings {
		_, _ = fmt.Fprintf(os.Stdout, "WARN: %s\n", warning)
	}
	for _, errorMessage := range result.errors {
		_, _ = fmt.Fprintf(os.Stderr, "ERROR: %s\n", errorMessage)
	}
	if !result.ok() {
		_, _ = fmt.Fprintf(os.Stderr, "config-audit failed\n")
		os.Exit(1)
	}
	_, _ = fmt.Fprintf(os.Stdout, "config-audit OK\n")
}

func runAudit(composePath string) auditResult {
	var result auditResult

	composeDocument, readErr := os.ReadFile(composePath)
	if readErr != nil {
		result.addError("read compose file %s: %v", composePath, readErr)
		return result
	}

	var compose composeFile
	if decodeErr := yaml.Unmarshal(composeDocument, &compose); decodeErr != nil {
		result.addError("parse compose file %s: %v", composePath, decodeErr)
		return result
	}
	if len(compose.Services) == 0 {
		result.addError("compose file %s: no services defined", composePath)
		return result
	}

	composeDirectory := filepath.Dir(composePath)
	sitebuilderEnvironments := make(map[string]map[string]string)
	hostPortToService := make(map[string]string)

	serviceNames := make([]string, 0, len(compose.Services))
	for serviceName := range compose.Services {
		serviceNames = append(serviceNames, serviceName)
	}
	sort.Strings(serviceNames)

	for _, serviceName := range serviceNames {
		service := compose.Services[serviceName]
		checkHostPortCollisions(serviceName, service.Ports, hostPortToService, &result)

		environment, envErr := loadServiceEnvironment(composeDirectory, serviceName, service.EnvFile, service.Environment, &result)
		if envErr != nil {
			result.addError("service %s: %v", serviceName, envErr)
			continue
		}
		if !service.runsSitebuilder(environment) {
			continue
		}
		sitebuilderEnvironments[serviceName] = environment
		checkSitebuilderEnvironment(serviceName, environment, &result)
	}

	checkSharedSettings(sitebuilderEnvironments, &result)
	return result
}

func loadServiceEnvironment(composeDirectory string, serviceName string, envFiles []string, environment environmentMap, result *auditResult) (map[string]string, error) {
	merged := make(map[string]string)

	for _, envFile := range envFiles {
		resolvedPath := filepath.Clean(filepath.Join(composeDirectory, envFile))
		if _, statErr := os.Stat(resolvedPath); statErr != nil {
			result.addError("service %s: env_file %s is missing (%v)", serviceName, envFile, statErr)
			continue
		}
		values, duplicates, parseErr := parseDotEnv(resolvedPath)
		if parseErr != nil {
			return nil, fmt.Errorf("parse env_file %s: %w", envFile, parseErr)
		}
		for _, duplicate := range duplicates {
			result.addError("service %s: env_file %s defines %s more than once", serviceName, envFile, duplicate)
		}
		for key, value := range values {
			merged[key] = value
		}
	}

	for key, value := range environment {
		merged[key] = value
	}
	return merged, nil
}

func parseDotEnv(path string) (map[string]string, []string, error) {
	file, openErr := os.Open(path)
	if openErr != nil {
		return nil, nil, openErr
	}
	defer func() { _ = file.Close() }()

	entries := make(map[string]string)
	duplicateSet := make(map[string]struct{})

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		if _, already := entries[key]; already {
			duplicateSet[key] = struct{}{}
		}
		entries[key] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return nil, nil, scanErr
	}

	duplicates := make([]string, 0, len(duplicateSet))
	for key := range duplicateSet {
		duplicates = append(duplicates, key)
	}
	sort.Strings(duplicates)
	return entries, duplicates, nil
}

func checkSitebuilderEnvironment(serviceName string, environment map[string]string, result *auditResult) {
	serveMode := strings.ToLower(strings.TrimSpace(environment[envServeMode]))
	if serveMode == "" {
		serveMode = serveModeAll
	}
	requiredKeys, known := requiredKeysByServeMode[serveMode]
	if !known {
		result.addError("service %s: %s %q is not one of all, chat, publish, sites", serviceName, envServeMode, environment[envServeMode])
		return
	}

	for _, requirement := range requiredKeys {
		alternatives := strings.Split(requirement, "|")
		satisfied := false
		for _, key := range alternatives {
			if strings.TrimSpace(environment[key]) != "" {
				satisfied = true
				break
			}
		}
		if !satisfied {
			result.addError("service %s (%s mode): required env %s is missing or empty", serviceName, serveMode, strings.Join(alternatives, " or "))
		}
	}

	if _, ok := knownSubdomainPolicies[strings.ToLower(strings.TrimSpace(environment[envSubdomainPolicy]))]; !ok {
		result.addError("service %s: %s %q must be retain or release", serviceName, envSubdomainPolicy, environment[envSubdomainPolicy])
	}
	databaseDriver := strings.ToLower(strings.TrimSpace(environment[envDatabaseDriver]))
	if _, ok := knownDatabaseDrivers[databaseDriver]; !ok {
		result.addError("service %s: %s %q must be sqlite or postgres", serviceName, envDatabaseDriver, environment[envDatabaseDriver])
	}
	if (databaseDriver == "" || databaseDriver == storage.DriverNameSQLite) && storage.SQLiteForeignKeysDisabled(environment[envDatabaseDSN]) {
		result.addError("service %s: sqlite %s turns foreign_keys off; project deletes would leave orphaned rows", serviceName, envDatabaseDSN)
	}

	if publicBaseURL := strings.TrimSpace(environment[envPublicBaseURL]); publicBaseURL != "" && pointsAtLocalhost(publicBaseURL) {
		result.addWarning("service %s: %s %s points at localhost; published links will not resolve for visitors", serviceName, envPublicBaseURL, publicBaseURL)
	}
}

func pointsAtLocalhost(rawURL string) bool {
	parsed, parseErr := url.Parse(rawURL)
	if parseErr != nil {
		return false
	}
	_, local := localHostNames[strings.ToLower(parsed.Hostname())]
	return local
}

// checkSharedSettings compares settings every sitebuilder service must agree on: the token secret, the
// database and the cache that publish invalidates and sites reads.
func checkSharedSettings(environmentByService map[string]map[string]string, result *auditResult) {
	serviceNames := make([]string, 0, len(environmentByService))
	for serviceName := range environmentByService {
		serviceNames = append(serviceNames, serviceName)
	}
	sort.Strings(serviceNames)

	for index := 1; index < len(serviceNames); index++ {
		left, right := serviceNames[0], serviceNames[index]
		expectEqual(left, right, envDatabaseDSN, environmentByService[left], environmentByService[right], result.addError)
		expectEqual(left, right, envJWTSecret, environmentByService[left], environmentByService[right], result.addError)
		expectEqual(left, right, envRedisAddress, environmentByService[left], environmentByService[right], result.addWarning)
	}
}

func expectEqual(leftService string, rightService string, key string, leftEnvironment map[string]string, rightEnvironment map[string]string, report func(string, ...any)) {
	leftValue := strings.TrimSpace(leftEnvironment[key])
	rightValue := strings.TrimSpace(rightEnvironment[key])
	if leftValue == "" || rightValue == "" {
		return
	}
	if leftValue != rightValue {
		report("invariant check failed: %s.%s must match %s.%s", leftService, key, rightService, key)
	}
}

func checkHostPortCollisions(serviceName string, ports []string, hostPortToService map[string]string, result *auditResult) {
	for _, mapping := range ports {
		hostPort, ok := parseHostPort(strings.TrimSpace(mapping))
		if !ok {
			continue
		}
		if existingService, already := hostPortToService[hostPort]; already {
			result.addError("compose: host port %s is published by both %s and %s", hostPort, existingService, serviceName)
		} else {
			hostPortToService[hostPort] = serviceName
		}
	}
}

func parseHostPort(portMapping string) (string, bool) {
	trimmed := strings.Trim(portMapping, `"`)
	parts := strings.Split(trimmed, ":")
	if len(parts) < 2 {
		return "", false
	}
	hostPort := strings.TrimSpace(parts[len(parts)-2])
	if hostPort == "" {
		return "", false
	}
	for _, runeValue := range hostPort {
		if runeValue < '0' || runeValue > '9' {
			return "", false
		}
	}
	return hostPort, true
}
