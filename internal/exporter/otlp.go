package exporter

import (
	collectorpb "go.opentelemetry.io/proto/otlp/collector/profiles/v1development"
	v1 "go.opentelemetry.io/proto/otlp/common/v1"
	profilespb "go.opentelemetry.io/proto/otlp/profiles/v1development"
	resourceV1 "go.opentelemetry.io/proto/otlp/resource/v1"

	"github.com/ohes/ksymtool/internal/symmap"
)

type NowFunc func() uint64 // produces unix nsec

// BuildOtlpRequest packs the symbol map into an OTLP profiles export request. The dictionary carries
// one function per source file and one location per record; every location is referenced by a
// single-frame stack with a unit sample.
func BuildOtlpRequest(m *symmap.SymbolMap, binary string, now NowFunc) *collectorpb.ExportProfilesServiceRequest {
	nowNsec := now()
	stringTable := []string{""}
	mappingTable := []*profilespb.Mapping{{}}
	locationTable := []*profilespb.Location{{}}
	functionTable := []*profilespb.Function{{}}
	stackTable := []*profilespb.Stack{{}}

	sampleType := &profilespb.ValueType{
		TypeStrindex: strIndex(&stringTable, "lines"),
		UnitStrindex: strIndex(&stringTable, "count"),
	}

	kernelMapping := &profilespb.Mapping{FilenameStrindex: strIndex(&stringTable, binary)}
	mappingTable = append(mappingTable, kernelMapping)
	mappingIdx := int32(len(mappingTable) - 1)

	samples := make([]*profilespb.Sample, 0, m.RecordCount())
	m.Each(func(file string, records []symmap.Record) {
		fileIdx := strIndex(&stringTable, file)
		functionTable = append(functionTable, &profilespb.Function{
			NameStrindex:       fileIdx,
			SystemNameStrindex: fileIdx,
			FilenameStrindex:   fileIdx,
		})
		fnIdx := int32(len(functionTable) - 1)

		for _, r := range records {
			locationTable = append(locationTable, &profilespb.Location{
				Address:      r.Addr,
				MappingIndex: mappingIdx,
				Lines: []*profilespb.Line{
					{
						FunctionIndex: fnIdx,
						Line:          int64(r.Line),
					},
				},
			})
			stackTable = append(stackTable, &profilespb.Stack{LocationIndices: []int32{int32(len(locationTable) - 1)}})
			samples = append(samples, &profilespb.Sample{
				StackIndex: int32(len(stackTable) - 1),
				Values:     []int64{1},
			})

			if kernelMapping.MemoryStart == 0 || r.Addr < kernelMapping.MemoryStart {
				kernelMapping.MemoryStart = r.Addr
			}
			if r.Addr >= kernelMapping.MemoryLimit {
				kernelMapping.MemoryLimit = r.Addr + 1
			}
		}
	})

	profile := &profilespb.Profile{
		TimeUnixNano: nowNsec,
		SampleType:   sampleType,
		Samples:      samples,
	}

	return &collectorpb.ExportProfilesServiceRequest{
		ResourceProfiles: []*profilespb.ResourceProfiles{{
			Resource: &resourceV1.Resource{
				Attributes: []*v1.KeyValue{{
					Key:   "process.executable.path",
					Value: &v1.AnyValue{Value: &v1.AnyValue_StringValue{StringValue: binary}},
				}},
			},
			ScopeProfiles: []*profilespb.ScopeProfiles{
				{
					Scope: &v1.InstrumentationScope{
						Name:    "ksymtool",
						Version: "v1",
					},
					Profiles: []*profilespb.Profile{profile},
				},
			},
		}},
		Dictionary: &profilespb.ProfilesDictionary{
			MappingTable:  mappingTable,
			LocationTable: locationTable,
			FunctionTable: functionTable,
			StackTable:    stackTable,
			StringTable:   stringTable,
		},
	}
}

func strIndex(table *[]string, s string) int32 {
	for i, v := range *table {
		if v == s {
			return int32(i)
		}
	}
	*table = append(*table, s)
	return int32(len(*table) - 1)
}
