package models

import "time"

// ObservationRow is a single (fmisid, measurand, producer, sensor, time,
// value) tuple from observation_data. Rows with a null value are never
// constructed; a missing observation at a timestep is represented by
// valuetype.None() in the assembled timeseries, not by an ObservationRow.
type ObservationRow struct {
	FMISID      int
	MeasurandID int
	ProducerID  int
	SensorNo    int
	ObsTimeUTC  time.Time
	Value       float64
	QualityFlag int
}

// QCRow is a single row from weather_data_qc, used for road and foreign
// station classes where the parameter is a string code rather than a
// numeric measurand id.
type QCRow struct {
	FMISID        int
	ObsTimeUTC    time.Time
	ParameterCode string
	SensorNo      int
	Value         float64
	Flag          int
}

// FlashRow is a single lightning stroke/flash record. It carries no
// station id; flashes are associated with a request only by spatial and
// temporal proximity.
type FlashRow struct {
	StrokeTime  time.Time // microsecond resolution
	Latitude    float64
	Longitude   float64
	Attributes  map[string]float64 // twenty-plus lightning attributes, keyed by name
	Peak        float64
	Multiplicity int
	CloudIndicator int
}
