// Package scenario loads YAML descriptions of scheduler workloads and runs
// them against the simulated front-end.
package scenario

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/me/rfsched/internal/handlers"
	"github.com/me/rfsched/internal/ticks"
	"github.com/me/rfsched/pkg/model"
)

var (
	ErrUnknownClient  = errors.New("unknown client")
	ErrUnknownKind    = errors.New("unknown command kind")
	ErrUnknownCommand = errors.New("unknown command")
	ErrDuplicateID    = errors.New("duplicate id")
)

// maxRun keeps every scenario time within half the tick counter range so
// offsets compare unambiguously.
const maxRun = 1 << 30

// File is a parsed scenario. All times are tick offsets from StartTick.
type File struct {
	Name      string        `yaml:"name"`
	StartTick uint32        `yaml:"start_tick"`
	Margins   ticks.Margins `yaml:"margins"`
	// FailSetup names PHY configs whose configuration fails.
	FailSetup []string      `yaml:"fail_setup"`
	Clients   []ClientSpec  `yaml:"clients"`
	Commands  []CommandSpec `yaml:"commands"`
	Stops     []StopSpec    `yaml:"stops"`
	Inject    []InjectSpec  `yaml:"inject"`
	RunUntil  uint32        `yaml:"run_until"`
	Step      uint32        `yaml:"step"`
}

// ClientSpec opens one client. Clients naming the same phy share a config.
type ClientSpec struct {
	Name string `yaml:"name"`
	Phy  string `yaml:"phy"`
	// Subscribe lists scheduler event names delivered to the client;
	// empty means DefaultSubscription.
	Subscribe []string `yaml:"subscribe"`
	// FrontEnd lists front-end event names delivered to the client.
	FrontEnd []string `yaml:"front_end"`
}

// DefaultSubscription is the scheduler event mask of a client that does not list one.
const DefaultSubscription = model.EventLastCmdDone | model.EventStartRejected |
	model.EventRxEntryAvail | model.EventStopDelayed | model.EventStopRejected

// CommandSpec describes one command and when it is submitted.
type CommandSpec struct {
	ID         string     `yaml:"id"`
	Client     string     `yaml:"client"`
	Kind       string     `yaml:"kind"`
	SubmitAt   uint32     `yaml:"submit_at"`
	Start      *StartSpec `yaml:"start"`
	AllowDelay bool       `yaml:"allow_delay"`
	Conflict   string     `yaml:"conflict"`
	Phy        uint16     `yaml:"phy_features"`
	// GracefulStop and HardStop are relative to the actual start; zero disables them.
	GracefulStop uint32 `yaml:"graceful_stop"`
	HardStop     uint32 `yaml:"hard_stop"`

	handlers.Params `yaml:",inline"`
}

// StopSpec issues an API stop at a given time.
type StopSpec struct {
	Command string `yaml:"command"`
	At      uint32 `yaml:"at"`
	Type    string `yaml:"type"`
}

// InjectSpec raises front-end events at a given time.
type InjectSpec struct {
	At     uint32   `yaml:"at"`
	Events []string `yaml:"events"`
}

// Load reads and validates the scenario at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate reports every problem found, joined into one error. Reference
// problems wrap the package's sentinel errors.
func (f *File) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if f.RunUntil == 0 || f.RunUntil > maxRun {
		add("run_until must be in 1..%d", maxRun)
	}
	if err := f.EffectiveMargins().Validate(); err != nil {
		add("margins: %w", err)
	}

	clients := make(map[string]bool, len(f.Clients))
	for i, c := range f.Clients {
		switch {
		case c.Name == "":
			add("clients[%d].name is required", i)
		case clients[c.Name]:
			add("clients[%d] %q: %w", i, c.Name, ErrDuplicateID)
		}
		clients[c.Name] = true
		if c.Phy == "" {
			add("clients[%d].phy is required", i)
		}
		if _, err := model.ParseEvents(c.Subscribe...); err != nil {
			add("clients[%d].subscribe: %w", i, err)
		}
		if _, err := model.ParseFrontEndEvents(c.FrontEnd...); err != nil {
			add("clients[%d].front_end: %w", i, err)
		}
	}

	cmds := make(map[string]bool, len(f.Commands))
	for i, c := range f.Commands {
		switch {
		case c.ID == "":
			add("commands[%d].id is required", i)
		case cmds[c.ID]:
			add("commands[%d] %q: %w", i, c.ID, ErrDuplicateID)
		}
		cmds[c.ID] = true
		if !clients[c.Client] {
			add("commands[%d] %q: client %q: %w", i, c.ID, c.Client, ErrUnknownClient)
		}
		if !handlers.Known(c.Kind) {
			add("commands[%d] %q: kind %q: %w", i, c.ID, c.Kind, ErrUnknownKind)
		}
		if _, err := model.ParseConflictPolicy(c.Conflict); err != nil {
			add("commands[%d] %q: %w", i, c.ID, err)
		}
		if c.SubmitAt >= maxRun {
			add("commands[%d] %q: submit_at out of range", i, c.ID)
		}
	}

	for i, s := range f.Stops {
		if !cmds[s.Command] {
			add("stops[%d]: command %q: %w", i, s.Command, ErrUnknownCommand)
		}
		if _, err := model.ParseStopType(s.Type); err != nil {
			add("stops[%d]: %w", i, err)
		}
	}
	for i, in := range f.Inject {
		if len(in.Events) == 0 {
			add("inject[%d].events is required", i)
		}
		if _, err := model.ParseFrontEndEvents(in.Events...); err != nil {
			add("inject[%d]: %w", i, err)
		}
	}

	return errors.Join(errs...)
}

// EffectiveMargins returns the default margins with the scenario's overrides applied.
func (f *File) EffectiveMargins() ticks.Margins {
	return ticks.DefaultMargins().Merge(f.Margins)
}
