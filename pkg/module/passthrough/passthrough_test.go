package passthrough

import (
	"bytes"
	"errors"
	"testing"

	"github.com/thesofproject/sof-lmdk/pkg/abi"
	"github.com/thesofproject/sof-lmdk/pkg/module"
)

func newReadyInstance(t *testing.T, entryConfig []byte) (*module.Interface, *module.Instance) {
	t.Helper()

	table, err := Entry(entryConfig, nil, nil)
	if err != nil {
		t.Fatalf("Entry failed: %v", err)
	}
	inst := module.NewInstance(UUID, 1)
	if err := table.Init(inst); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return table, inst
}

func TestEntryPopulatesTable(t *testing.T) {
	table, err := Entry(nil, nil, nil)
	if err != nil {
		t.Fatalf("Entry failed: %v", err)
	}

	if table.Init == nil {
		t.Fatal("table has no Init")
	}
	if table.Process == nil {
		t.Error("table has no Process")
	}
	if table.ProcessStream != nil {
		t.Error("table wires both processing kinds")
	}
	if table.Reset == nil || table.SetConfiguration == nil || table.GetConfiguration == nil {
		t.Error("table missing lifecycle slots")
	}
}

func TestInitWithEntryConfig(t *testing.T) {
	cfg := Config{SourceChannels: 4, FeedbackChannels: 2, OutChannels: 4}
	table, inst := newReadyInstance(t, cfg.Encode())

	got, err := table.GetConfiguration(inst, ConfigIDParams)
	if err != nil {
		t.Fatalf("GetConfiguration failed: %v", err)
	}
	if !bytes.Equal(got, cfg.Encode()) {
		t.Errorf("config after init = %x, want %x", got, cfg.Encode())
	}
}

func TestInitRejectsMalformedEntryConfig(t *testing.T) {
	table, err := Entry([]byte{1, 2, 3}, nil, nil)
	if err != nil {
		t.Fatalf("Entry failed: %v", err)
	}
	inst := module.NewInstance(UUID, 1)
	if err := table.Init(inst); !errors.Is(err, module.ErrInvalidConfiguration) {
		t.Errorf("Init error = %v, want ErrInvalidConfiguration", err)
	}
}

func TestProcessCopiesSource(t *testing.T) {
	table, inst := newReadyInstance(t, nil)

	src := &module.Buffer{Format: module.FormatS32LE, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	sink := &module.Buffer{Format: module.FormatS32LE, Data: make([]byte, 8)}

	if err := table.Process(inst, []*module.Buffer{src}, []*module.Buffer{sink}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !bytes.Equal(sink.Data, src.Data) {
		t.Errorf("sink = %v, want %v", sink.Data, src.Data)
	}
}

func TestProcessSourceOverwritesFeedback(t *testing.T) {
	table, inst := newReadyInstance(t, nil)

	src := &module.Buffer{Format: module.FormatS32LE, Data: []byte{1, 1, 1, 1}}
	fb := &module.Buffer{Format: module.FormatS32LE, Data: []byte{9, 9, 9, 9, 9, 9, 9, 9}}
	sink := &module.Buffer{Format: module.FormatS32LE, Data: make([]byte, 8)}

	if err := table.Process(inst, []*module.Buffer{src, fb}, []*module.Buffer{sink}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// First samples come from the main source, the rest from feedback.
	want := []byte{1, 1, 1, 1, 9, 9, 9, 9}
	if !bytes.Equal(sink.Data, want) {
		t.Errorf("sink = %v, want %v", sink.Data, want)
	}
}

func TestCopySamplesStride(t *testing.T) {
	tests := []struct {
		name      string
		srcFormat module.SampleFormat
		dstFormat module.SampleFormat
		srcLen    int
		dstLen    int
		wantN     int
	}{
		{"s32 whole samples", module.FormatS32LE, module.FormatS32LE, 10, 16, 8},
		{"s16 endpoint forces stride 2", module.FormatS16LE, module.FormatS32LE, 10, 16, 10},
		{"sink bound", module.FormatS32LE, module.FormatS32LE, 16, 7, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &module.Buffer{Format: tt.srcFormat, Data: make([]byte, tt.srcLen)}
			dst := &module.Buffer{Format: tt.dstFormat, Data: make([]byte, tt.dstLen)}
			if got := copySamples(dst, src); got != tt.wantN {
				t.Errorf("copySamples = %d, want %d", got, tt.wantN)
			}
		})
	}
}

func TestSetConfigurationRejectsAndRetainsPrior(t *testing.T) {
	table, inst := newReadyInstance(t, nil)

	good := Config{SourceChannels: 2, FeedbackChannels: 1, OutChannels: 2}
	if err := table.SetConfiguration(inst, ConfigIDParams, good.Encode()); err != nil {
		t.Fatalf("SetConfiguration failed: %v", err)
	}

	tests := []struct {
		name     string
		configID uint32
		fragment []byte
	}{
		{"wrong size", ConfigIDParams, []byte{1, 2, 3}},
		{"zero source channels", ConfigIDParams, Config{OutChannels: 2}.Encode()},
		{"too many channels", ConfigIDParams, Config{SourceChannels: 99, OutChannels: 2}.Encode()},
		{"unknown id", 42, good.Encode()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := table.SetConfiguration(inst, tt.configID, tt.fragment)
			if !errors.Is(err, module.ErrInvalidConfiguration) {
				t.Fatalf("error = %v, want ErrInvalidConfiguration", err)
			}

			got, err := table.GetConfiguration(inst, ConfigIDParams)
			if err != nil {
				t.Fatalf("GetConfiguration failed: %v", err)
			}
			if !bytes.Equal(got, good.Encode()) {
				t.Error("rejected fragment replaced the prior configuration")
			}
		})
	}
}

func TestModelFragmentAccepted(t *testing.T) {
	table, inst := newReadyInstance(t, nil)
	if err := table.SetConfiguration(inst, ConfigIDModel, []byte{1, 2, 3, 4}); err != nil {
		t.Errorf("model fragment rejected: %v", err)
	}
}

func TestResetRestoresInitState(t *testing.T) {
	entryCfg := Config{SourceChannels: 4, OutChannels: 4}
	table, inst := newReadyInstance(t, entryCfg.Encode())

	changed := Config{SourceChannels: 1, OutChannels: 1}
	if err := table.SetConfiguration(inst, ConfigIDParams, changed.Encode()); err != nil {
		t.Fatalf("SetConfiguration failed: %v", err)
	}
	if err := table.SetProcessingMode(inst, module.ProcessingModeBypass); err != nil {
		t.Fatalf("SetProcessingMode failed: %v", err)
	}

	if err := table.Reset(inst); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	got, err := table.GetConfiguration(inst, ConfigIDParams)
	if err != nil {
		t.Fatalf("GetConfiguration failed: %v", err)
	}
	if !bytes.Equal(got, entryCfg.Encode()) {
		t.Error("Reset did not restore the entry-time configuration")
	}
	if table.GetProcessingMode(inst) != module.ProcessingModeNormal {
		t.Error("Reset did not restore normal processing mode")
	}
}

func TestBypassMode(t *testing.T) {
	table, inst := newReadyInstance(t, nil)

	if err := table.SetProcessingMode(inst, module.ProcessingModeBypass); err != nil {
		t.Fatalf("SetProcessingMode failed: %v", err)
	}
	if table.GetProcessingMode(inst) != module.ProcessingModeBypass {
		t.Fatal("mode not bypass after set")
	}

	src := &module.Buffer{Format: module.FormatS32LE, Data: []byte{1, 2, 3, 4}}
	fb := &module.Buffer{Format: module.FormatS32LE, Data: []byte{9, 9, 9, 9, 9, 9, 9, 9}}
	sink := &module.Buffer{Format: module.FormatS32LE, Data: make([]byte, 8)}

	if err := table.Process(inst, []*module.Buffer{src, fb}, []*module.Buffer{sink}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// Bypass ignores feedback entirely.
	want := []byte{1, 2, 3, 4, 0, 0, 0, 0}
	if !bytes.Equal(sink.Data, want) {
		t.Errorf("sink = %v, want %v", sink.Data, want)
	}

	if err := table.SetProcessingMode(inst, module.ProcessingMode(7)); err == nil {
		t.Error("unsupported mode accepted")
	}
}

func TestBuildBinary(t *testing.T) {
	data, err := BuildBinary(42, 256)
	if err != nil {
		t.Fatalf("BuildBinary failed: %v", err)
	}

	parsed, err := abi.ParseModuleBinary(data)
	if err != nil {
		t.Fatalf("ParseModuleBinary failed: %v", err)
	}
	if parsed.Manifest.UUID != UUID {
		t.Errorf("UUID = %s, want %s", parsed.Manifest.UUID, UUID)
	}
	if parsed.Tag.BuildID != 42 {
		t.Errorf("BuildID = %d, want 42", parsed.Tag.BuildID)
	}
	if parsed.Manifest.Name != Name {
		t.Errorf("Name = %q, want %q", parsed.Manifest.Name, Name)
	}
}
