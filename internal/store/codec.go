package store

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/GoSim-25-26J-441/amplitude-core/internal/dataset"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/models"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// VersionedRecord captures schema and codec evolution for persisted payloads.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

func currentVersion() VersionedRecord {
	return VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

type datasetRecord struct {
	VersionedRecord
	Name      string          `json:"name"`
	CreatedAt time.Time       `json:"created_at"`
	Events    []dataset.Event `json:"events"`
}

type fitRecord struct {
	VersionedRecord
	Result models.FitResult `json:"result"`
}

// EncodeDataset serializes a dataset's events.
func EncodeDataset(name string, ds *dataset.Dataset, createdAt time.Time) ([]byte, error) {
	return json.Marshal(datasetRecord{
		VersionedRecord: currentVersion(),
		Name:            name,
		CreatedAt:       createdAt,
		Events:          ds.Events(),
	})
}

// DecodeDataset rebuilds a dataset. Event indices are reassigned from position.
func DecodeDataset(data []byte) (*dataset.Dataset, error) {
	var rec datasetRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if err := checkVersion(rec.VersionedRecord); err != nil {
		return nil, err
	}
	return dataset.New(rec.Events), nil
}

func EncodeFitResult(r models.FitResult) ([]byte, error) {
	return json.Marshal(fitRecord{VersionedRecord: currentVersion(), Result: r})
}

func DecodeFitResult(data []byte) (models.FitResult, error) {
	var rec fitRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.FitResult{}, err
	}
	if err := checkVersion(rec.VersionedRecord); err != nil {
		return models.FitResult{}, err
	}
	return rec.Result, nil
}

func checkVersion(v VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
