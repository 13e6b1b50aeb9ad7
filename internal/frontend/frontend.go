// Package frontend defines the contract between the scheduler core and the
// radio front-end driver, and provides a simulated front-end.
package frontend

import "github.com/me/rfsched/pkg/model"

// RadioState is the front-end's power/readiness phase.
type RadioState uint8

const (
	RadioDown RadioState = iota
	RadioImagesLoaded
	RadioConfigured
)

func (s RadioState) String() string {
	switch s {
	case RadioImagesLoaded:
		return "images_loaded"
	case RadioConfigured:
		return "configured"
	}
	return "down"
}

// TimerEvent identifies a timer compare channel use.
type TimerEvent uint8

const (
	TimerNone TimerEvent = iota
	TimerSetup
	TimerStart
	TimerHardStop
	TimerGracefulStop
)

func (e TimerEvent) String() string {
	switch e {
	case TimerSetup:
		return "setup"
	case TimerStart:
		return "start"
	case TimerHardStop:
		return "hard_stop"
	case TimerGracefulStop:
		return "graceful_stop"
	}
	return "none"
}

// RSSIInvalid is returned by ReadRSSI when no valid measurement is available.
const RSSIInvalid int8 = -128

// Driver is the physical layer the scheduler drives. Every method is called
// with the scheduler lock held and must not block.
type Driver interface {
	// Configure loads images and settings for cfg. prior is the phase the
	// scheduler believes the front-end is in.
	Configure(cfg *model.PhyConfig, phy model.PhyFeatures, prior RadioState) error
	// ImagesNeedUpdate reports whether cfg requires a new image load.
	ImagesNeedUpdate(cfg *model.PhyConfig) bool

	// ArmTimer sets the compare for ev at absolute tick at. TimerSetup is the wake-up timer.
	ArmTimer(ev TimerEvent, at uint32)
	// CancelTimer disarms ev and clears it if it already fired.
	CancelTimer(ev TimerEvent)
	// PollTimer returns and clears one fired compare. Hard stop, start and setup
	// take priority over graceful stop.
	PollTimer() TimerEvent
	// ReadEvents returns and clears pending hardware events.
	ReadEvents() model.FrontEndEvents

	SendHardStop()
	SendGracefulStop()

	CurrentTick() uint32

	SetPowerConstraint()
	ReleasePowerConstraint()
	// PowerOpen registers fn to be called when the device wakes from standby.
	PowerOpen(fn func())
	PowerClose()

	ReadRSSI() int8

	// Attach installs the function raising the command level on timer or hardware events.
	Attach(trigger func())
}

// Operation is one unit of front-end work started by a command handler.
type Operation struct {
	Name string
	// Start is the tick the operation begins; a past value starts it now.
	Start    uint32
	Duration uint32
	// Done is raised when the operation completes on its own.
	Done model.FrontEndEvents
	// Interruptible operations end early on a graceful stop.
	Interruptible bool
}

// Operator lets handlers start front-end operations.
type Operator interface {
	StartOp(op Operation)
}
