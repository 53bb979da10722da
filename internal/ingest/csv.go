package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"graphpipe/internal/events"
	"graphpipe/pkg/logger"
)

// defaultSendBatchSize is how many events go into one producer send
const defaultSendBatchSize = 10000

// Sender is the producer surface the loaders write to
type Sender interface {
	SendNodeEvents(ctx context.Context, evts []events.NodeEvent, partitionKey string) error
	SendEdgeEvents(ctx context.Context, evts []events.EdgeEvent, partitionKey string) error
}

// Options bounds a bulk load
type Options struct {
	MaxRows   int // 0 means all rows
	BatchSize int // events per send; defaults to defaultSendBatchSize
}

func (o Options) batchSize() int {
	if o.BatchSize > 0 {
		return o.BatchSize
	}
	return defaultSendBatchSize
}

// EdgeSpec describes one source→target relationship extracted from a CSV
type EdgeSpec struct {
	SourceField    string
	TargetField    string
	EdgeType       events.EdgeType
	SourceNodeType events.NodeType
	TargetNodeType events.NodeType
	DataFields     []string
}

// UniqueFieldValues streams a CSV, extracts the unique non-empty values of one
// column, and sends an upsert node event per value
func UniqueFieldValues(ctx context.Context, sender Sender, csvPath, fieldName string, nodeType events.NodeType, opts Options) error {
	log := logger.Get()

	seen := make(map[string]struct{})
	var batch []events.NodeEvent
	total := 0

	err := forEachRow(csvPath, opts.MaxRows, func(row map[string]string) error {
		value := row[fieldName]
		if value == "" {
			return nil
		}
		if _, ok := seen[value]; ok {
			return nil
		}
		seen[value] = struct{}{}

		batch = append(batch, events.NewNodeEvent(nodeType, value, map[string]interface{}{"name": value}, events.ActionUpsert))
		if len(batch) >= opts.batchSize() {
			if err := sender.SendNodeEvents(ctx, batch, ""); err != nil {
				return err
			}
			total += len(batch)
			batch = nil
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to ingest %s from %s: %w", fieldName, csvPath, err)
	}

	if len(batch) > 0 {
		if err := sender.SendNodeEvents(ctx, batch, ""); err != nil {
			return err
		}
		total += len(batch)
	}

	log.Info("Ingested unique field values",
		zap.String("field", fieldName),
		zap.String("node_type", string(nodeType)),
		zap.Int("events", total),
	)
	return nil
}

// Edges streams a CSV, extracts unique source→target pairs, and sends an
// upsert edge event per pair
func Edges(ctx context.Context, sender Sender, csvPath string, spec EdgeSpec, opts Options) error {
	log := logger.Get()

	seen := make(map[[2]string]struct{})
	var batch []events.EdgeEvent
	total := 0

	err := forEachRow(csvPath, opts.MaxRows, func(row map[string]string) error {
		source := row[spec.SourceField]
		target := row[spec.TargetField]
		if source == "" || target == "" {
			return nil
		}

		pair := [2]string{source, target}
		if _, ok := seen[pair]; ok {
			return nil
		}
		seen[pair] = struct{}{}

		data := make(map[string]interface{}, len(spec.DataFields))
		for _, field := range spec.DataFields {
			data[field] = row[field]
		}

		batch = append(batch, events.NewEdgeEvent(
			spec.EdgeType,
			source, spec.SourceNodeType,
			target, spec.TargetNodeType,
			data, events.ActionUpsert,
		))
		if len(batch) >= opts.batchSize() {
			if err := sender.SendEdgeEvents(ctx, batch, ""); err != nil {
				return err
			}
			total += len(batch)
			batch = nil
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to ingest edges %s -> %s from %s: %w", spec.SourceField, spec.TargetField, csvPath, err)
	}

	if len(batch) > 0 {
		if err := sender.SendEdgeEvents(ctx, batch, ""); err != nil {
			return err
		}
		total += len(batch)
	}

	log.Info("Ingested edges",
		zap.String("source_field", spec.SourceField),
		zap.String("target_field", spec.TargetField),
		zap.String("edge_type", string(spec.EdgeType)),
		zap.Int("events", total),
	)
	return nil
}

// forEachRow streams a CSV file row by row, presenting each row as a
// header-keyed map. Short rows are padded with empty strings.
func forEachRow(csvPath string, maxRows int, fn func(row map[string]string) error) error {
	file, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("failed to open CSV: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	rows := 0
	for {
		if maxRows > 0 && rows >= maxRows {
			return nil
		}

		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read CSV row %d: %w", rows+1, err)
		}
		rows++

		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			} else {
				row[name] = ""
			}
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}
