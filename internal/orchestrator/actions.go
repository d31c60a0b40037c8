package orchestrator

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/rs/zerolog"

	"github.com/AaronLay10/SentientTimeline/internal/events"
	"github.com/AaronLay10/SentientTimeline/internal/timeline"
)

// ErrUnknownAction is returned when a timeline file names an action that is
// not registered.
var ErrUnknownAction = errors.New("unknown action")

// Action runs against a live instance. A returned error is reported as an
// action.error event and never stops the instance.
type Action func(ctx *timeline.Context) error

// ActionFactory builds an Action from the params of a timeline file.
type ActionFactory func(params map[string]interface{}) (Action, error)

// ActionBinder turns action references into scheduler callbacks.
type ActionBinder interface {
	Bind(ref ActionRef) (func(*timeline.Context), error)
}

// DeviceCommander sends a command to a device.
type DeviceCommander interface {
	Execute(deviceID, signal string, payload map[string]interface{}) error
}

// Actions is a registry of named action factories.
type Actions struct {
	factories map[string]ActionFactory
	log       zerolog.Logger
}

// NewActions creates a registry holding the log and payload.set actions.
func NewActions(logger zerolog.Logger) *Actions {
	a := &Actions{
		factories: make(map[string]ActionFactory),
		log:       logger,
	}
	a.Register("log", a.logAction)
	a.Register("payload.set", payloadSetAction)
	return a
}

// Register adds or replaces a named action.
func (a *Actions) Register(name string, f ActionFactory) {
	a.factories[name] = f
}

// Names returns the registered action names, sorted.
func (a *Actions) Names() []string {
	return slices.Sorted(maps.Keys(a.factories))
}

// RegisterTimelineActions adds timeline.start and timeline.stop, which act
// on sched from inside its own tick.
func (a *Actions) RegisterTimelineActions(sched *timeline.Scheduler, catalog *Catalog) {
	a.Register("timeline.start", func(params map[string]interface{}) (Action, error) {
		id, err := requireString(params, "timeline")
		if err != nil {
			return nil, err
		}
		return func(ctx *timeline.Context) error {
			def, err := catalog.Get(id)
			if err != nil {
				return err
			}
			sched.StartInstance(def, ctx.Subject())
			return nil
		}, nil
	})

	a.Register("timeline.stop", func(params map[string]interface{}) (Action, error) {
		id, err := optionalString(params, "timeline")
		if err != nil {
			return nil, err
		}
		return func(ctx *timeline.Context) error {
			if id == "" {
				ctx.RequestStop()
				return nil
			}
			sched.StopInstance(id)
			return nil
		}, nil
	})
}

// RegisterDeviceActions adds device.command. When device_id is omitted the
// command targets the instance's subject device.
func (a *Actions) RegisterDeviceActions(devices DeviceCommander) {
	a.Register("device.command", func(params map[string]interface{}) (Action, error) {
		deviceID, err := optionalString(params, "device_id")
		if err != nil {
			return nil, err
		}
		signal, err := requireString(params, "signal")
		if err != nil {
			return nil, err
		}
		var payload map[string]interface{}
		if raw, ok := params["payload"]; ok && raw != nil {
			payload, ok = raw.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("param payload must be a map")
			}
		}
		return func(ctx *timeline.Context) error {
			target := deviceID
			if target == "" {
				dev, ok := ctx.Subject().(interface{ LogicalID() string })
				if !ok {
					return fmt.Errorf("device.command: no device_id and subject is not a device")
				}
				target = dev.LogicalID()
			}
			return devices.Execute(target, signal, payload)
		}, nil
	})
}

// Bind resolves ref to a callback. Errors from the action are emitted as
// action.error events.
func (a *Actions) Bind(ref ActionRef) (func(*timeline.Context), error) {
	factory, ok := a.factories[ref.Action]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, ref.Action)
	}
	action, err := factory(ref.Params)
	if err != nil {
		return nil, fmt.Errorf("action %s: %w", ref.Action, err)
	}

	name := ref.Action
	return func(ctx *timeline.Context) {
		if err := action(ctx); err != nil {
			a.log.Warn().Err(err).
				Str("action", name).
				Str("timeline_id", ctx.Definition().ID()).
				Str("instance_id", ctx.ID()).
				Msg("action failed")
			events.EmitSession(ctx.ID(), "error", "action.error", err.Error(), map[string]interface{}{
				"action":      name,
				"timeline_id": ctx.Definition().ID(),
				"instance_id": ctx.ID(),
			})
		}
	}, nil
}

func (a *Actions) logAction(params map[string]interface{}) (Action, error) {
	msg, err := requireString(params, "message")
	if err != nil {
		return nil, err
	}
	lvlName, err := optionalString(params, "level")
	if err != nil {
		return nil, err
	}
	level := zerolog.InfoLevel
	if lvlName != "" {
		level, err = zerolog.ParseLevel(lvlName)
		if err != nil {
			return nil, fmt.Errorf("param level: %w", err)
		}
	}
	return func(ctx *timeline.Context) error {
		a.log.WithLevel(level).
			Str("timeline_id", ctx.Definition().ID()).
			Str("instance_id", ctx.ID()).
			Float64("elapsed", ctx.ElapsedTime()).
			Msg(msg)
		return nil
	}, nil
}

func payloadSetAction(params map[string]interface{}) (Action, error) {
	key, err := requireString(params, "key")
	if err != nil {
		return nil, err
	}
	value := params["value"]
	return func(ctx *timeline.Context) error {
		ctx.SetPayload(key, value)
		return nil
	}, nil
}

func requireString(params map[string]interface{}, key string) (string, error) {
	s, err := optionalString(params, key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("param %s is required", key)
	}
	return s, nil
}

func optionalString(params map[string]interface{}, key string) (string, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("param %s must be a string", key)
	}
	return s, nil
}
