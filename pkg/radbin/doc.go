// Package radbin provides a high-level API for decoding binary weather
// radar files: the DWD DX per-beam raw format, the DWD RADOLAN
// composite grid format and the Rainbow XML+BLOB container.
//
// # Overview
//
// Each format has its own package (dx, radolan, rainbow); this package
// bundles them behind format auto-detection and file-level entry
// points. It supports:
//
//   - Format detection from leading bytes
//   - One-call file decoding
//   - Context support for cancellation
//   - Summary statistics over decoded grids and sweeps
//
// # Quick Start
//
// The simplest way to decode a radar file is the global function:
//
//	decoded, err := radbin.DecodeFile("raa00-dx_10488-200608050000-drs---bin")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	switch decoded.Format {
//	case radbin.FormatDX:
//	    fmt.Println(decoded.DX.Header.ProductType)
//	case radbin.FormatRadolan:
//	    fmt.Println(decoded.Radolan.Header.ProductType)
//	case radbin.FormatRainbow:
//	    fmt.Println(len(decoded.Rainbow.Blobs))
//	}
//
// # Custom Decoder Instance
//
// For control over logging and the nodata sentinel, create a decoder:
//
//	d := radbin.New(
//	    radbin.WithLogger(logger),
//	    radbin.WithNoData(math.NaN()),
//	)
//	comp, err := d.DecodeRadolan(ctx, data)
//
// # Thread Safety
//
// Decoding is stateless: a Decoder holds no mutable state across
// calls, so one instance may be shared by any number of goroutines.
package radbin
