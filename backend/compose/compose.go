// Package compose implements a health.Backend that drives the services of a
// docker compose project.
package compose

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/capatazlib/go-medic/health"
)

const (
	// DefaultProjectDir is the directory the compose commands run in
	DefaultProjectDir = "/opt/moav"
	// DefaultProfile is the compose profile that enables every service
	DefaultProfile = "all"
	// DefaultNamePrefix is stripped from container names to get service names
	DefaultNamePrefix = "moav-"
)

var validServiceName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// InvalidServiceNameError is returned when an operation receives a service
// name that can't be safely handed to the compose CLI
type InvalidServiceNameError struct {
	Name string
}

func (err *InvalidServiceNameError) Error() string {
	return fmt.Sprintf("invalid service name %q", err.Name)
}

// KVs returns a metadata map for structured logging
func (err *InvalidServiceNameError) KVs() map[string]interface{} {
	return map[string]interface{}{"service": err.Name}
}

// psEntry is one container of the `ps --format json` output
type psEntry struct {
	Name    string `json:"Name"`
	Service string `json:"Service"`
	State   string `json:"State"`
	Health  string `json:"Health"`
	Status  string `json:"Status"`
}

// Backend runs `docker compose` commands through a Runner
type Backend struct {
	runner  Runner
	dir     string
	project string
	profile string
	prefix  string
	ll      logrus.FieldLogger
}

// Opt allows clients to tweak the behavior of a Backend
type Opt func(*Backend)

// WithRunner sets the Runner used to execute compose commands
func WithRunner(r Runner) Opt {
	return func(b *Backend) {
		b.runner = r
	}
}

// WithProjectDir sets the directory the compose commands run in
func WithProjectDir(dir string) Opt {
	return func(b *Backend) {
		b.dir = dir
	}
}

// WithProjectName passes an explicit project name (-p) to every command
func WithProjectName(name string) Opt {
	return func(b *Backend) {
		b.project = name
	}
}

// WithProfile sets the compose profile; an empty profile omits the flag
func WithProfile(profile string) Opt {
	return func(b *Backend) {
		b.profile = profile
	}
}

// WithNamePrefix sets the prefix stripped from container names
func WithNamePrefix(prefix string) Opt {
	return func(b *Backend) {
		b.prefix = prefix
	}
}

// WithLogger sets the logger of the backend
func WithLogger(ll logrus.FieldLogger) Opt {
	return func(b *Backend) {
		b.ll = ll
	}
}

// New creates a Backend with the given options
func New(opts ...Opt) *Backend {
	b := &Backend{
		runner:  ExecRunner{},
		dir:     DefaultProjectDir,
		profile: DefaultProfile,
		prefix:  DefaultNamePrefix,
		ll:      logrus.StandardLogger(),
	}
	for _, optFn := range opts {
		optFn(b)
	}
	b.ll = b.ll.WithField("component", "compose-backend")
	return b
}

func (b *Backend) args(sub ...string) []string {
	acc := []string{"compose"}
	if b.project != "" {
		acc = append(acc, "-p", b.project)
	}
	if b.profile != "" {
		acc = append(acc, "--profile", b.profile)
	}
	return append(acc, sub...)
}

func (b *Backend) run(ctx context.Context, sub ...string) ([]byte, error) {
	args := b.args(sub...)
	b.ll.WithField("args", strings.Join(args, " ")).Debug("running compose command")
	return b.runner.Run(ctx, b.dir, args...)
}

// ListServices returns the status of every container of the project, keyed by
// service name
func (b *Backend) ListServices(ctx context.Context) (map[string]health.ServiceStatus, error) {
	out, err := b.run(ctx, "ps", "-a", "--format", "json")
	if err != nil {
		return nil, fmt.Errorf("could not list services: %w", err)
	}
	entries, err := parsePS(out)
	if err != nil {
		return nil, err
	}

	acc := make(map[string]health.ServiceStatus, len(entries))
	for _, entry := range entries {
		name := b.serviceName(entry)
		if name == "" {
			continue
		}
		acc[name] = health.ServiceStatus{
			State:  health.ParseState(entry.State),
			Health: health.ParseHealth(entry.Health),
		}
	}
	return acc, nil
}

func (b *Backend) serviceName(entry psEntry) string {
	if entry.Name != "" {
		return strings.TrimPrefix(entry.Name, b.prefix)
	}
	return entry.Service
}

// parsePS accepts both the JSON array emitted by older compose releases and the
// newline-delimited objects emitted by newer ones
func parsePS(out []byte) ([]psEntry, error) {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var entries []psEntry
		if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
			return nil, fmt.Errorf("could not parse service list: %w", err)
		}
		return entries, nil
	}

	var entries []psEntry
	for i, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var entry psEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("could not parse service list line %d: %w", i+1, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (b *Backend) serviceCommand(ctx context.Context, name string, sub ...string) error {
	if !validServiceName.MatchString(name) {
		return &InvalidServiceNameError{Name: name}
	}
	_, err := b.run(ctx, append(sub, name)...)
	return err
}

// Restart restarts the service containers in place
func (b *Backend) Restart(ctx context.Context, name string) error {
	return b.serviceCommand(ctx, name, "restart")
}

// Stop removes the service containers
func (b *Backend) Stop(ctx context.Context, name string) error {
	return b.serviceCommand(ctx, name, "down")
}

// Start creates and starts the service containers in the background
func (b *Backend) Start(ctx context.Context, name string) error {
	return b.serviceCommand(ctx, name, "up", "-d")
}

// Logs returns the last lines of output of the service
func (b *Backend) Logs(ctx context.Context, name string, lines int) (string, error) {
	if !validServiceName.MatchString(name) {
		return "", &InvalidServiceNameError{Name: name}
	}
	out, err := b.run(ctx, "logs", "--tail", strconv.Itoa(lines), name)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(out), "\n"), nil
}
