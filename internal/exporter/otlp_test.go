package exporter

import (
	"testing"

	collectorpb "go.opentelemetry.io/proto/otlp/collector/profiles/v1development"
	v1 "go.opentelemetry.io/proto/otlp/common/v1"
	profilespb "go.opentelemetry.io/proto/otlp/profiles/v1development"
	resourceV1 "go.opentelemetry.io/proto/otlp/resource/v1"
	"google.golang.org/protobuf/proto"

	"github.com/ohes/ksymtool/internal/symmap"
)

func mustMarshal(t *testing.T, m proto.Message) []byte {
	t.Helper()
	b, err := proto.Marshal(m)
	if err != nil {
		t.Fatalf("failed to marshal proto: %v", err)
	}
	return b
}

func TestBuildOtlpRequest_Basic(t *testing.T) {
	nowValue := uint64(9999999999)

	m := symmap.New()
	m.Append("main.rs", symmap.Record{Addr: 0x401000, Line: 12})
	m.Append("main.rs", symmap.Record{Addr: 0x401010, Line: 13})
	m.Append("pci.rs", symmap.Record{Addr: 0x400000, Line: 7})

	got := BuildOtlpRequest(m, "kernel.elf", func() uint64 { return nowValue })

	expectedStringTable := []string{"", "lines", "count", "kernel.elf", "main.rs", "pci.rs"}
	expectedMappingTable := []*profilespb.Mapping{
		{},
		{MemoryStart: 0x400000, MemoryLimit: 0x401011, FilenameStrindex: 3},
	}
	expectedFunctionTable := []*profilespb.Function{
		{},
		{NameStrindex: 4, SystemNameStrindex: 4, FilenameStrindex: 4},
		{NameStrindex: 5, SystemNameStrindex: 5, FilenameStrindex: 5},
	}
	expectedLocationTable := []*profilespb.Location{
		{},
		{Address: 0x401000, MappingIndex: 1, Lines: []*profilespb.Line{{FunctionIndex: 1, Line: 12}}},
		{Address: 0x401010, MappingIndex: 1, Lines: []*profilespb.Line{{FunctionIndex: 1, Line: 13}}},
		{Address: 0x400000, MappingIndex: 1, Lines: []*profilespb.Line{{FunctionIndex: 2, Line: 7}}},
	}
	expectedStackTable := []*profilespb.Stack{
		{},
		{LocationIndices: []int32{1}},
		{LocationIndices: []int32{2}},
		{LocationIndices: []int32{3}},
	}
	expectedSamples := []*profilespb.Sample{
		{StackIndex: 1, Values: []int64{1}},
		{StackIndex: 2, Values: []int64{1}},
		{StackIndex: 3, Values: []int64{1}},
	}

	expectedProfile := &profilespb.Profile{
		TimeUnixNano: nowValue,
		SampleType:   &profilespb.ValueType{TypeStrindex: 1, UnitStrindex: 2},
		Samples:      expectedSamples,
	}

	expected := &collectorpb.ExportProfilesServiceRequest{
		ResourceProfiles: []*profilespb.ResourceProfiles{{
			Resource: &resourceV1.Resource{
				Attributes: []*v1.KeyValue{{
					Key:   "process.executable.path",
					Value: &v1.AnyValue{Value: &v1.AnyValue_StringValue{StringValue: "kernel.elf"}},
				}},
			},
			ScopeProfiles: []*profilespb.ScopeProfiles{{
				Scope:    &v1.InstrumentationScope{Name: "ksymtool", Version: "v1"},
				Profiles: []*profilespb.Profile{expectedProfile},
			}},
		}},
		Dictionary: &profilespb.ProfilesDictionary{
			MappingTable:  expectedMappingTable,
			LocationTable: expectedLocationTable,
			FunctionTable: expectedFunctionTable,
			StackTable:    expectedStackTable,
			StringTable:   expectedStringTable,
		},
	}

	if !proto.Equal(got, expected) {
		gotB := mustMarshal(t, got)
		wantB := mustMarshal(t, expected)
		t.Fatalf("export request mismatch\nGOT (len %d): %x\nWANT (len %d): %x", len(gotB), gotB, len(wantB), wantB)
	}
}

func TestBuildOtlpRequest_Empty(t *testing.T) {
	got := BuildOtlpRequest(symmap.New(), "kernel.elf", func() uint64 { return 1 })
	if n := len(got.ResourceProfiles[0].ScopeProfiles[0].Profiles[0].Samples); n != 0 {
		t.Fatalf("expected no samples, got %d", n)
	}
	if n := len(got.Dictionary.LocationTable); n != 1 {
		t.Fatalf("expected only the zero location, got %d", n)
	}
}
