package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"harmonia/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Stamp returns the versions written by this build.
func Stamp() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeFitness(r model.FitnessRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeFitness(data []byte) (model.FitnessRecord, error) {
	var record model.FitnessRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.FitnessRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.FitnessRecord{}, err
	}
	return record, nil
}

func EncodePopulation(p model.PopulationRecord) ([]byte, error) {
	return json.Marshal(p)
}

func DecodePopulation(data []byte) (model.PopulationRecord, error) {
	var population model.PopulationRecord
	if err := json.Unmarshal(data, &population); err != nil {
		return model.PopulationRecord{}, err
	}
	if err := checkVersion(population.VersionedRecord); err != nil {
		return model.PopulationRecord{}, err
	}
	for i, member := range population.Members {
		if err := checkVersion(member.VersionedRecord); err != nil {
			return model.PopulationRecord{}, fmt.Errorf("member %d: %w", i, err)
		}
	}
	return population, nil
}

func EncodeTrace(trace []model.GenerationDiagnostics) ([]byte, error) {
	return json.Marshal(trace)
}

func DecodeTrace(data []byte) ([]model.GenerationDiagnostics, error) {
	var trace []model.GenerationDiagnostics
	if err := json.Unmarshal(data, &trace); err != nil {
		return nil, err
	}
	return trace, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
