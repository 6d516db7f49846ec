// Package meter formats periodic sampled-value payloads from a connector
// snapshot, the way a real charging station reports metering data.
package meter

import (
	"math"
	"strconv"
	"time"

	"github.com/ruslanhut/ocpp-emu/internal/ocpp/v16"
)

// SampledData names the measurands this simulator reports, comma-separated;
// it is also the value seeded into the MeterValuesSampledData configuration
// key. Generate emits them in its own order, Power.Active.Import first.
const SampledData = "Power.Offered,Power.Active.Import,Energy.Active.Import.Register,Voltage,SoC"

// Generate builds the single-entry meter-value list for one sampling tick
// of a connector offering powerOffered watts with the given accumulated
// energy register.
func Generate(powerOffered, energyImportRegister float64) []v16.MeterValue {
	return []v16.MeterValue{
		{
			Timestamp: v16.DateTime{Time: time.Now().UTC()},
			SampledValue: []v16.SampledValue{
				sampled(v16.MeasurandPowerActiveImport, v16.UnitOfMeasureW, round3(powerOffered)),
				sampled(v16.MeasurandPowerOffered, v16.UnitOfMeasureW, round3(powerOffered)),
				sampled(v16.MeasurandEnergyActiveImportRegister, v16.UnitOfMeasureWh, round3(energyImportRegister)),
				sampled(v16.MeasurandVoltage, v16.UnitOfMeasureV, 230),
				sampled(v16.MeasurandSoC, v16.UnitOfMeasurePercent, 0),
			},
		},
	}
}

func sampled(measurand v16.Measurand, unit v16.UnitOfMeasure, value float64) v16.SampledValue {
	return v16.SampledValue{
		Value:     formatValue(value),
		Context:   v16.ReadingContextSamplePeriodic,
		Location:  v16.LocationOutlet,
		Measurand: measurand,
		Unit:      unit,
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
