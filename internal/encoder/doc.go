// Package encoder turns drained batches of staged records into files.
//
// Two formats are supported:
//
//   - Parquet: columnar, one row group per batch
//   - Avro: Object Container File with the schema embedded
//
// Both encoders flatten a record.Record into StagedRow, which carries the
// CloudEvent attributes together with the buffer it passed through, its
// producer sequence number and how long it stayed buffered.
//
// # Encoder Factory
//
//	factory := encoder.NewFactory(record.FormatParquet, "zstd")
//	enc, err := factory.CreateEncoder()
//	if err != nil {
//	    return err
//	}
//	stats, err := enc.Encode(path, records)
//
// An empty compression selects DefaultCompression, which is uncompressed
// for both formats. Avro accepts uncompressed, deflate and snappy; Parquet
// accepts uncompressed, snappy, gzip, lz4 and zstd.
package encoder
