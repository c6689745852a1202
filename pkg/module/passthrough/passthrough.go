// Package passthrough implements the reference loadable module: a two-pin
// passthrough with an optional feedback input, used to exercise the whole
// module contract end to end. It is deliberately boring as a DSP component;
// its value is that every table slot, configuration path and reset edge is
// populated.
package passthrough

import (
	"encoding/binary"
	"fmt"

	"github.com/thesofproject/sof-lmdk/internal/types"
	"github.com/thesofproject/sof-lmdk/pkg/abi"
	"github.com/thesofproject/sof-lmdk/pkg/module"
)

// Module identity.
var (
	UUID = types.MustParseUUID("7c8e1a40-93b1-4c2a-9d0f-6e5a1b3c2d4e")
)

// Name is the manifest name, diagnostics only.
const Name = "PASSTHRU"

// Pin layout: one source, one optional feedback input, one output.
const (
	NumInputPins  = 2
	NumOutputPins = 1
)

// Configuration fragment IDs.
const (
	// ConfigIDModel carries an opaque model blob. Accepted and discarded.
	ConfigIDModel uint32 = iota

	// ConfigIDParams carries the channel configuration.
	ConfigIDParams
)

// ConfigSize is the encoded size of a params fragment.
const ConfigSize = 12

// MaxChannels bounds any declared channel count.
const MaxChannels = 8

// Config is the module's channel configuration.
type Config struct {
	SourceChannels   uint32
	FeedbackChannels uint32
	OutChannels      uint32
}

// Encode returns the 12-byte fragment encoding.
func (c Config) Encode() []byte {
	buf := make([]byte, ConfigSize)
	binary.LittleEndian.PutUint32(buf[0:4], c.SourceChannels)
	binary.LittleEndian.PutUint32(buf[4:8], c.FeedbackChannels)
	binary.LittleEndian.PutUint32(buf[8:12], c.OutChannels)
	return buf
}

// ParseConfig decodes and validates a params fragment.
func ParseConfig(fragment []byte) (Config, error) {
	var c Config
	if len(fragment) != ConfigSize {
		return c, fmt.Errorf("%w: fragment %d bytes, want %d",
			module.ErrInvalidConfiguration, len(fragment), ConfigSize)
	}
	c.SourceChannels = binary.LittleEndian.Uint32(fragment[0:4])
	c.FeedbackChannels = binary.LittleEndian.Uint32(fragment[4:8])
	c.OutChannels = binary.LittleEndian.Uint32(fragment[8:12])

	if c.SourceChannels == 0 || c.SourceChannels > MaxChannels ||
		c.OutChannels == 0 || c.OutChannels > MaxChannels ||
		c.FeedbackChannels > MaxChannels {
		return c, fmt.Errorf("%w: channels out of range", module.ErrInvalidConfiguration)
	}
	return c, nil
}

func defaultConfig() Config {
	return Config{SourceChannels: 2, OutChannels: 2}
}

// state is the instance's private data, reached only through the instance
// handle the host passes into each table slot.
type state struct {
	agent      module.SystemAgent
	initCfg    Config
	entryBytes []byte

	cfg  Config
	mode module.ProcessingMode
}

// Entry is the module entry point. Invoked exactly once per instance; it
// binds the system agent and returns the function table. The reserved value
// is opaque by contract and is not inspected.
func Entry(config []byte, reserved any, agent module.SystemAgent) (*module.Interface, error) {
	_ = reserved

	s := &state{
		agent:      agent,
		entryBytes: config,
	}

	return &module.Interface{
		Init:              s.init,
		Process:           s.process,
		SetProcessingMode: s.setMode,
		GetProcessingMode: s.getMode,
		SetConfiguration:  s.setConfig,
		GetConfiguration:  s.getConfig,
		Reset:             s.reset,
		Free:              s.free,
	}, nil
}

// Register binds the module into a host registry.
func Register(r *module.Registry) error {
	return r.Register(UUID, Entry)
}

func (s *state) init(inst *module.Instance) error {
	cfg := defaultConfig()
	if len(s.entryBytes) > 0 {
		parsed, err := ParseConfig(s.entryBytes)
		if err != nil {
			return fmt.Errorf("init: %w", err)
		}
		cfg = parsed
	}

	s.initCfg = cfg
	s.cfg = cfg
	s.mode = module.ProcessingModeNormal
	inst.SetPrivateData(s)

	if s.agent != nil {
		s.agent.Logger().Debug("passthrough init",
			"instance", inst.ID(), "source_ch", cfg.SourceChannels, "out_ch", cfg.OutChannels)
	}
	return nil
}

func (s *state) process(inst *module.Instance, sources, sinks []*module.Buffer) error {
	st := inst.PrivateData().(*state)

	if len(sources) == 0 || len(sinks) == 0 {
		return fmt.Errorf("passthrough: no buffers")
	}
	sink := sinks[0]

	if st.mode == module.ProcessingModeBypass {
		copySamples(sink, sources[0])
		return nil
	}

	// Feedback lands first, then the main source overwrites its span,
	// matching the reference behavior of a feedback-capable passthrough.
	if len(sources) == NumInputPins && sources[1] != nil && len(sources[1].Data) > 0 {
		copySamples(sink, sources[1])
	}
	copySamples(sink, sources[0])
	return nil
}

// copySamples copies whole samples from src to dst, never splitting a
// sample across the copy boundary. A 16-bit endpoint forces the 16-bit
// stride; otherwise the 32-bit stride is used.
func copySamples(dst, src *module.Buffer) int {
	width := 4
	if src.Format == module.FormatS16LE || dst.Format == module.FormatS16LE {
		width = 2
	}

	n := len(src.Data)
	if len(dst.Data) < n {
		n = len(dst.Data)
	}
	n -= n % width
	copy(dst.Data[:n], src.Data[:n])
	return n
}

func (s *state) setMode(inst *module.Instance, mode module.ProcessingMode) error {
	if mode != module.ProcessingModeNormal && mode != module.ProcessingModeBypass {
		return fmt.Errorf("passthrough: unsupported processing mode %d", mode)
	}
	inst.PrivateData().(*state).mode = mode
	return nil
}

func (s *state) getMode(inst *module.Instance) module.ProcessingMode {
	return inst.PrivateData().(*state).mode
}

func (s *state) setConfig(inst *module.Instance, configID uint32, fragment []byte) error {
	st := inst.PrivateData().(*state)

	switch configID {
	case ConfigIDModel:
		return nil
	case ConfigIDParams:
		cfg, err := ParseConfig(fragment)
		if err != nil {
			// Prior configuration stays in place.
			return err
		}
		st.cfg = cfg
		return nil
	default:
		return fmt.Errorf("%w: unknown config id %d", module.ErrInvalidConfiguration, configID)
	}
}

func (s *state) getConfig(inst *module.Instance, configID uint32) ([]byte, error) {
	st := inst.PrivateData().(*state)

	if configID != ConfigIDParams {
		return nil, fmt.Errorf("%w: unknown config id %d", module.ErrInvalidConfiguration, configID)
	}
	return st.cfg.Encode(), nil
}

// reset restores the state equivalent to just after init: the entry-time
// configuration and normal processing.
func (s *state) reset(inst *module.Instance) error {
	st := inst.PrivateData().(*state)
	st.cfg = st.initCfg
	st.mode = module.ProcessingModeNormal
	return nil
}

func (s *state) free(inst *module.Instance) error {
	inst.SetPrivateData(nil)
	return nil
}

// Manifest returns the developer-authored manifest for the module.
func Manifest() abi.Manifest {
	return abi.Manifest{
		Name:             Name,
		UUID:             UUID,
		EntryPoint:       abi.MinBinarySize,
		Type:             abi.LoadTypeLoadable | abi.DomainLL,
		AffinityMask:     1,
		InstanceMaxCount: 8,
	}
}

// BuildBinary produces the module's binary artifact for image packaging:
// version tag, manifest, and a deterministic stand-in code section.
func BuildBinary(buildID uint32, codeSize int) ([]byte, error) {
	code := make([]byte, codeSize)
	for i := range code {
		code[i] = byte(i * 7)
	}
	tag := abi.VersionTag{Version: abi.CurrentVersion, BuildID: buildID}
	return abi.BuildModuleBinary(tag, Manifest(), code)
}
