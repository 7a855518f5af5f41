package lifx

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/gray-logic-lifx/internal/correlation"
	"github.com/nerrad567/gray-logic-lifx/internal/light"
	"github.com/nerrad567/gray-logic-lifx/internal/protocol"
	"github.com/nerrad567/gray-logic-lifx/internal/transport"
)

// commandFlags asks every device for an acknowledgement so a lost frame
// surfaces as a TIMEOUT ack.
var commandFlags = light.Flags{AckRequired: true}

// Execute runs cmd against l. Parameters are decoded JSON values, so
// numbers arrive as float64.
func Execute(ctx context.Context, l *light.Light, cmd CommandMessage) error {
	switch cmd.Command {
	case CommandOn, CommandOff:
		_, err := l.SetPower(ctx, cmd.Command == CommandOn, commandFlags)
		return err
	case CommandSetColor:
		return executeSetColor(ctx, l, cmd.Parameters)
	case CommandSetBrightness:
		return executeSetBrightness(ctx, l, cmd.Parameters)
	case CommandSetLabel:
		label, err := stringParam(cmd.Parameters, "label")
		if err != nil {
			return err
		}
		_, err = l.SetLabel(ctx, label, commandFlags)
		return err
	case CommandSetInfrared:
		if !l.ProductInfo().HasInfrared() {
			return fmt.Errorf("%w: infrared", light.ErrUnsupported)
		}
		level, ok, err := uint16Param(cmd.Parameters, "brightness")
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: brightness is required", ErrInvalidParameter)
		}
		_, err = l.SetInfrared(ctx, level, commandFlags)
		return err
	case CommandSetZones:
		return executeSetZones(ctx, l, cmd.Parameters)
	case CommandRefresh:
		l.PollState(ctx)
		l.PollProperties(ctx)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Command)
	}
}

func executeSetColor(ctx context.Context, l *light.Light, params map[string]any) error {
	color, err := colorParams(params, l.Color())
	if err != nil {
		return err
	}
	duration, err := durationParam(params)
	if err != nil {
		return err
	}
	_, err = l.SetColor(ctx, color, duration, commandFlags)
	return err
}

func executeSetBrightness(ctx context.Context, l *light.Light, params map[string]any) error {
	level, ok, err := uint16Param(params, "brightness")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: brightness is required", ErrInvalidParameter)
	}
	duration, err := durationParam(params)
	if err != nil {
		return err
	}
	_, err = l.SetBrightness(ctx, level, duration, commandFlags)
	return err
}

func executeSetZones(ctx context.Context, l *light.Light, params map[string]any) error {
	if !l.ProductInfo().HasMultiZone() {
		return fmt.Errorf("%w: multi-zone", light.ErrUnsupported)
	}
	start, _, err := uint8Param(params, "start")
	if err != nil {
		return err
	}
	end, ok, err := uint8Param(params, "end")
	if err != nil {
		return err
	}
	if !ok {
		end = math.MaxUint8
	}
	if end < start {
		return fmt.Errorf("%w: end %d before start %d", ErrInvalidParameter, end, start)
	}
	color, err := colorParams(params, light.DefaultColor)
	if err != nil {
		return err
	}
	duration, err := durationParam(params)
	if err != nil {
		return err
	}
	_, err = l.SetColorZones(ctx, color, start, end, duration, protocol.Apply, commandFlags)
	return err
}

// colorParams overlays any hue, saturation, brightness and kelvin
// parameters on base.
func colorParams(params map[string]any, base protocol.HSBK) (protocol.HSBK, error) {
	fields := []struct {
		name string
		dst  *uint16
	}{
		{"hue", &base.Hue},
		{"saturation", &base.Saturation},
		{"brightness", &base.Brightness},
		{"kelvin", &base.Kelvin},
	}
	for _, f := range fields {
		v, ok, err := uint16Param(params, f.name)
		if err != nil {
			return protocol.HSBK{}, err
		}
		if ok {
			*f.dst = v
		}
	}
	return base, nil
}

// durationParam reads the optional duration_ms parameter.
func durationParam(params map[string]any) (time.Duration, error) {
	ms, ok, err := numberParam(params, "duration_ms", 0, math.MaxUint32)
	if err != nil || !ok {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func uint16Param(params map[string]any, name string) (uint16, bool, error) {
	v, ok, err := numberParam(params, name, 0, math.MaxUint16)
	return uint16(v), ok, err
}

func uint8Param(params map[string]any, name string) (uint8, bool, error) {
	v, ok, err := numberParam(params, name, 0, math.MaxUint8)
	return uint8(v), ok, err
}

// numberParam reads an integral JSON number within [minValue, maxValue].
func numberParam(params map[string]any, name string, minValue, maxValue float64) (int64, bool, error) {
	raw, ok := params[name]
	if !ok {
		return 0, false, nil
	}
	f, ok := raw.(float64)
	if !ok {
		return 0, false, fmt.Errorf("%w: %s must be a number", ErrInvalidParameter, name)
	}
	if f != math.Trunc(f) || f < minValue || f > maxValue {
		return 0, false, fmt.Errorf("%w: %s out of range [%g, %g]", ErrInvalidParameter, name, minValue, maxValue)
	}
	return int64(f), true, nil
}

func stringParam(params map[string]any, name string) (string, error) {
	raw, ok := params[name]
	if !ok {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidParameter, name)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidParameter, name)
	}
	return s, nil
}

// ErrorCode maps an execution error to an ack error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, correlation.ErrTimeout):
		return ErrCodeTimeout
	case errors.Is(err, transport.ErrNotConnected):
		return ErrCodeNotConnected
	case errors.Is(err, ErrUnknownCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, ErrInvalidParameter):
		return ErrCodeInvalidParameters
	case errors.Is(err, light.ErrUnsupported):
		return ErrCodeUnsupported
	default:
		return ErrCodeBridgeError
	}
}
