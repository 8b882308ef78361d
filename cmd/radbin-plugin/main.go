package main

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/twinfer/radbin/pkg/dx"
	"github.com/twinfer/radbin/pkg/radbin"
	"github.com/twinfer/radbin/pkg/radolan"
	"github.com/twinfer/radbin/pkg/rainbow"
)

// RadarProcessor is a Benthos processor that decodes binary weather
// radar messages (DX, RADOLAN, Rainbow) into structured data.
type RadarProcessor struct {
	config    RadarConfig
	decoder   *radbin.Decoder
	filter    *vm.Program
	logger    *service.Logger
	mDecoded  *service.MetricCounter
	mErrors   *service.MetricCounter
	mFiltered *service.MetricCounter
}

// RadarConfig contains configuration parameters for the radar processor.
type RadarConfig struct {
	Format string  `json:"format" yaml:"format"`
	NoData float64 `json:"nodata" yaml:"nodata"`
	Filter string  `json:"filter" yaml:"filter"`
}

func init() {
	err := service.RegisterProcessor(
		"radar_decode",
		radarProcessorConfig(),
		func(conf *service.ParsedConfig, mgr *service.Resources) (service.Processor, error) {
			return newRadarProcessorFromConfig(conf, mgr)
		},
	)
	if err != nil {
		panic(err)
	}
}

// radarProcessorConfig returns a config spec for a radar_decode processor.
func radarProcessorConfig() *service.ConfigSpec {
	return service.NewConfigSpec().
		Summary("Decodes binary weather radar data (DWD DX, DWD RADOLAN, Rainbow) into structured messages.").
		Description("Each input message is expected to hold one complete radar file. The decoded content replaces the message payload; the detected format is set as metadata under radar_format.").
		Field(service.NewStringField("format").
			Description("Input format: auto, dx, radolan or rainbow.").
			Default("auto")).
		Field(service.NewFloatField("nodata").
			Description("Sentinel value assigned to RADOLAN nodata cells.").
			Default(float64(radolan.DefaultNoData))).
		Field(service.NewStringField("filter").
			Description("Optional boolean expression evaluated against the decoded message; messages for which it is false are dropped.").
			Example(`producttype == "RX"`).
			Default("")).
		Version("0.1.0")
}

// newRadarProcessorFromConfig creates a new RadarProcessor from a parsed config.
func newRadarProcessorFromConfig(conf *service.ParsedConfig, mgr *service.Resources) (*RadarProcessor, error) {
	format, err := conf.FieldString("format")
	if err != nil {
		return nil, err
	}
	switch format {
	case "auto", "dx", "radolan", "rainbow":
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}

	nodata, err := conf.FieldFloat("nodata")
	if err != nil {
		return nil, err
	}

	filter, err := conf.FieldString("filter")
	if err != nil {
		return nil, err
	}
	var program *vm.Program
	if filter != "" {
		program, err = expr.Compile(filter, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("compiling filter expression: %w", err)
		}
	}

	metrics := mgr.Metrics()
	return &RadarProcessor{
		config:    RadarConfig{Format: format, NoData: nodata, Filter: filter},
		decoder:   radbin.New(radbin.WithNoData(nodata)),
		filter:    program,
		logger:    mgr.Logger(),
		mDecoded:  metrics.NewCounter("radar_decoded_messages"),
		mErrors:   metrics.NewCounter("radar_decoding_errors"),
		mFiltered: metrics.NewCounter("radar_filtered_messages"),
	}, nil
}

// Process decodes one radar file message.
func (p *RadarProcessor) Process(ctx context.Context, msg *service.Message) (service.MessageBatch, error) {
	data, err := msg.AsBytes()
	if err != nil {
		p.logger.Errorf("Failed to get binary data from message: %v", err)
		p.mErrors.Incr(1)
		msg.SetError(fmt.Errorf("failed to get binary data from message: %w", err))
		return service.MessageBatch{msg}, nil
	}
	if len(data) == 0 {
		p.logger.Warn("Empty radar message")
		p.mErrors.Incr(1)
		msg.SetError(fmt.Errorf("empty radar message"))
		return service.MessageBatch{msg}, nil
	}

	decoded, err := p.decode(ctx, data)
	if err != nil {
		p.logger.Errorf("Failed to decode %d bytes of radar data: %v", len(data), err)
		p.mErrors.Incr(1)
		msg.SetError(fmt.Errorf("failed to decode radar data: %w", err))
		return service.MessageBatch{msg}, nil
	}

	result := buildResult(decoded)

	if p.filter != nil {
		keep, err := expr.Run(p.filter, result)
		if err != nil {
			p.logger.Errorf("Filter expression failed: %v", err)
			p.mErrors.Incr(1)
			msg.SetError(fmt.Errorf("filter expression failed: %w", err))
			return service.MessageBatch{msg}, nil
		}
		if keep != true {
			p.mFiltered.Incr(1)
			return nil, nil
		}
	}

	p.mDecoded.Incr(1)

	newMsg := service.NewMessage(nil)
	newMsg.SetStructured(result)
	newMsg.MetaSet("radar_format", decoded.Format.String())
	msg.MetaWalk(func(key, value string) error {
		newMsg.MetaSet(key, value)
		return nil
	})
	return service.MessageBatch{newMsg}, nil
}

// decode honours a forced format, falling back to detection for "auto".
func (p *RadarProcessor) decode(ctx context.Context, data []byte) (*radbin.Decoded, error) {
	switch p.config.Format {
	case "dx":
		sweep, err := p.decoder.DecodeDX(ctx, data)
		if err != nil {
			return nil, err
		}
		return &radbin.Decoded{Format: radbin.FormatDX, DX: sweep}, nil
	case "radolan":
		comp, err := p.decoder.DecodeRadolan(ctx, data)
		if err != nil {
			return nil, err
		}
		return &radbin.Decoded{Format: radbin.FormatRadolan, Radolan: comp}, nil
	case "rainbow":
		file, err := p.decoder.DecodeRainbow(ctx, data)
		if err != nil {
			return nil, err
		}
		return &radbin.Decoded{Format: radbin.FormatRainbow, Rainbow: file}, nil
	default:
		return p.decoder.Decode(ctx, data)
	}
}

// buildResult flattens a decoded product into the structured message
// payload.
func buildResult(decoded *radbin.Decoded) map[string]any {
	switch decoded.Format {
	case radbin.FormatDX:
		return dxResult(decoded.DX)
	case radbin.FormatRadolan:
		return radolanResult(decoded.Radolan)
	default:
		return rainbowResult(decoded.Rainbow)
	}
}

func dxResult(sweep *dx.Sweep) map[string]any {
	h := sweep.Header
	beams := make([]any, len(sweep.Beams))
	clutter := make([]any, len(sweep.Beams))
	for i, b := range sweep.Beams {
		beams[i] = b.DBZ
		clutter[i] = b.Clutter
	}
	summary := radbin.SummarizeSweep(sweep)
	return map[string]any{
		"producttype":   h.ProductType,
		"radarid":       h.RadarID,
		"datetime":      h.Timestamp,
		"bytes":         h.ByteLength,
		"version":       h.Version,
		"cluttermap":    h.ClutterMap,
		"dopplerfilter": h.DopplerFilter,
		"statfilter":    h.StatFilter,
		"elevprofile":   h.ElevProfile[:],
		"message":       h.Message,
		"rays":          len(sweep.Beams),
		"ragged":        sweep.Ragged(),
		"azim":          sweep.Azimuths(),
		"elev":          sweep.Elevations(),
		"data":          beams,
		"clutter":       clutter,
		"summary":       summary,
	}
}

func radolanResult(comp *radolan.Composite) map[string]any {
	h := comp.Header
	rows := make([]any, comp.Rows)
	for r := 0; r < comp.Rows; r++ {
		rows[r] = comp.Data[r*comp.Cols : (r+1)*comp.Cols]
	}
	return map[string]any{
		"producttype":     h.ProductType,
		"radarid":         h.RadarID,
		"datetime":        h.Timestamp,
		"maxrange":        h.MaxRange,
		"radolanversion":  h.Version,
		"precision":       h.Precision,
		"intervalseconds": h.IntervalSeconds,
		"nrow":            h.Rows,
		"ncol":            h.Cols,
		"radarlocations":  h.RadarLocations,
		"nodataflag":      comp.NoData,
		"cluttermask":     comp.Clutter,
		"data":            rows,
		"summary":         radbin.SummarizeComposite(comp),
	}
}

func rainbowResult(file *rainbow.File) map[string]any {
	blobs := make(map[string]any, len(file.Blobs))
	for id, blob := range file.Blobs {
		entry := map[string]any{
			"depth":    blob.Depth,
			"elements": blob.Len(),
		}
		if rays, bins, ok := blob.Shape(); ok {
			entry["rays"] = rays
			entry["bins"] = bins
		}
		switch blob.Depth {
		case 8:
			entry["data"] = blob.Uint8
		case 16:
			entry["data"] = blob.Uint16
		default:
			entry["data"] = blob.Uint32
		}
		blobs[fmt.Sprintf("%d", id)] = entry
	}
	return map[string]any{
		"header": file.Root.AsMap(),
		"blobs":  blobs,
	}
}

// Close releases processor resources.
func (p *RadarProcessor) Close(ctx context.Context) error {
	return nil
}

func main() {
	service.RunCLI(context.Background())
}
