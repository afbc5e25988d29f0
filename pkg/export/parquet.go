package export

import (
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/bootlens/bootlens/internal/model"
)

// ledgerSchema returns the Arrow schema for exported ledger entries.
func ledgerSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "timestamp", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
		{Name: "log_level", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "category", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "operation_id", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "boot_session_id", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "message", Type: arrow.BinaryTypes.String, Nullable: false},
	}, nil)
}

// writeParquet writes ledger entries as a Parquet file via Arrow.
func (e *Exporter) writeParquet(path string, entries []model.LogEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer f.Close()

	allocator := memory.NewGoAllocator()
	schema := ledgerSchema()

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithDictionaryDefault(true),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(schema, f, writerProps, arrowProps)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}

	tsBuilder := array.NewFloat64Builder(allocator)
	levelBuilder := array.NewStringBuilder(allocator)
	categoryBuilder := array.NewStringBuilder(allocator)
	opIDBuilder := array.NewStringBuilder(allocator)
	sessionBuilder := array.NewStringBuilder(allocator)
	messageBuilder := array.NewStringBuilder(allocator)
	defer func() {
		tsBuilder.Release()
		levelBuilder.Release()
		categoryBuilder.Release()
		opIDBuilder.Release()
		sessionBuilder.Release()
		messageBuilder.Release()
	}()

	for _, entry := range entries {
		tsBuilder.Append(entry.Timestamp)
		levelBuilder.Append(entry.Level)
		categoryBuilder.Append(entry.Category)
		opIDBuilder.Append(entry.OperationID)
		if entry.SessionID == "" {
			sessionBuilder.AppendNull()
		} else {
			sessionBuilder.Append(entry.SessionID)
		}
		messageBuilder.Append(entry.Message)
	}

	cols := []arrow.Array{
		tsBuilder.NewArray(),
		levelBuilder.NewArray(),
		categoryBuilder.NewArray(),
		opIDBuilder.NewArray(),
		sessionBuilder.NewArray(),
		messageBuilder.NewArray(),
	}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	batch := array.NewRecord(schema, cols, int64(len(entries)))
	defer batch.Release()

	if err := writer.Write(batch); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}
