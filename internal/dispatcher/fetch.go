package dispatcher

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fmiobs/obsengine/internal/authstore"
	"github.com/fmiobs/obsengine/internal/models"
)

// paramRequest is one requested, registry-resolved data parameter: the
// alias as the caller wrote it, the measurand/parameter code the
// registry resolved it to, the sensor number to match exactly (see
// observationRowsToCells), and whether the quality-flag
// column was requested instead of the value column.
type paramRequest struct {
	alias       string
	code        string
	sensorNo    int
	qualityFlag bool
}

// resolveParamRequests splits settings.Parameters into the registered
// data parameters (special/derived names are handled separately by the
// row assembler) and resolves each via the registry for class.
func (d *Dispatcher) resolveParamRequests(names []string, class string) []paramRequest {
	var out []paramRequest
	for _, name := range names {
		if isSpecialColumn(name) || isDerivedParameter(name) {
			continue
		}
		code, sensorNo, qc, err := d.registry.ParameterID(name, class)
		if err != nil {
			continue
		}
		out = append(out, paramRequest{alias: name, code: code, sensorNo: sensorNo, qualityFlag: qc})
	}
	return out
}

// rawCell is one decoded (station, time, parameter) data point, the
// common shape both the cache and authoritative fetch paths normalize
// into before row assembly.
type rawCell struct {
	fmisid  int
	obstime time.Time
	alias   string
	value   float64
	ok      bool // false means "row present but value null/missing"
}

// fetchData runs the cache-vs-authoritative decision's fetch half: it
// pulls every requested data parameter for stations within
// [settings.StartTime, settings.EndTime] and returns the results as
// flat cells, grouped by nothing in particular — row assembly does the
// grouping.
func (d *Dispatcher) fetchData(ctx context.Context, plan queryPlan, stations []models.Station, params []paramRequest) ([]rawCell, error) {
	if len(params) == 0 || len(stations) == 0 {
		return nil, nil
	}

	if _, isQC := d.classes.QC[plan.class]; isQC {
		return d.fetchQC(ctx, plan, stations, params)
	}
	if _, isFlash := d.classes.Flash[plan.class]; isFlash {
		return nil, nil // flashes are fetched by bbox/count, not per-parameter cells
	}
	return d.fetchObservation(ctx, plan, stations, params)
}

func fmisidsOf(stations []models.Station) []int {
	out := make([]int, len(stations))
	for i, st := range stations {
		out[i] = st.FMISID
	}
	return out
}

func (d *Dispatcher) fetchObservation(ctx context.Context, plan queryPlan, stations []models.Station, params []paramRequest) ([]rawCell, error) {
	fmisids := fmisidsOf(stations)
	measurandIDs := make([]int, 0, len(params))
	byCode := make(map[int]string, len(params))
	for _, p := range params {
		id, err := strconv.Atoi(p.code)
		if err != nil {
			continue
		}
		measurandIDs = append(measurandIDs, id)
		byCode[id] = p.alias
	}

	if plan.useCache {
		rows, err := d.cache.CachedData(ctx, fmisids, measurandIDs, plan.settings.StartTime, plan.settings.EndTime, plan.settings.Timestep)
		if err != nil {
			return nil, fmt.Errorf("dispatcher: cache fetch: %w", err)
		}
		return observationRowsToCells(rows, byCode, params), nil
	}

	var cells []rawCell
	err := d.withSession(ctx, func(sess *authstore.Session) error {
		measurandStrs := make([]string, len(measurandIDs))
		for i, id := range measurandIDs {
			measurandStrs[i] = strconv.Itoa(id)
		}
		q := authstore.PivotQuery{
			Table:        d.registry.TableFor(plan.class),
			FMISIDs:      fmisids,
			MeasurandIDs: measurandStrs,
			ProducerIDs:  plan.settings.ProducerIDs,
			Start:        plan.settings.StartTime,
			End:          plan.settings.EndTime,
			Latest:       plan.settings.Latest,
			Mode:         authstore.NoTimestep,
			TimestepMin:  plan.settings.Timestep,
		}
		if plan.settings.Timestep > 0 {
			q.Mode = authstore.FixedTimestep
		}
		rows, err := sess.RunPivotQuery(ctx, q)
		if err != nil {
			return err
		}
		cells = pivotRowsToCells(rows, measurandIDs, byCode)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dispatcher: authoritative fetch: %w", err)
	}
	return cells, nil
}

func (d *Dispatcher) fetchQC(ctx context.Context, plan queryPlan, stations []models.Station, params []paramRequest) ([]rawCell, error) {
	fmisids := fmisidsOf(stations)
	codes := make([]string, len(params))
	byCode := make(map[string]string, len(params))
	for i, p := range params {
		codes[i] = p.code
		byCode[p.code] = p.alias
	}

	if plan.useCache {
		rows, err := d.cache.CachedQCData(ctx, fmisids, codes, plan.settings.StartTime, plan.settings.EndTime, plan.settings.Timestep)
		if err != nil {
			return nil, fmt.Errorf("dispatcher: cache qc fetch: %w", err)
		}
		return qcRowsToCells(rows, byCode, params), nil
	}

	var cells []rawCell
	err := d.withSession(ctx, func(sess *authstore.Session) error {
		rows, err := sess.RunQCQuery(ctx, authstore.QCQuery{
			FMISIDs:        fmisids,
			ParameterCodes: codes,
			Start:          plan.settings.StartTime,
			End:            plan.settings.EndTime,
			TimestepMin:    plan.settings.Timestep,
			Latest:         plan.settings.Latest,
		})
		if err != nil {
			return err
		}
		cells = qcRowsToCells(rows, byCode, params)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dispatcher: authoritative qc fetch: %w", err)
	}
	return cells, nil
}

// observationRowsToCells keeps only the row whose sensor_no matches the
// alias's resolved sensor number (the registry already picked which
// sensor_no to request — friction defaults to 3, an explicit "_2"
// suffix to 2, everything else to 1 — so selection here is an exact
// match, not a fallback scan).
func observationRowsToCells(rows []models.ObservationRow, byCode map[int]string, params []paramRequest) []rawCell {
	wantedSensor := make(map[string]int, len(params))
	wantsFlag := make(map[string]bool, len(params))
	for _, p := range params {
		wantedSensor[p.alias] = p.sensorNo
		wantsFlag[p.alias] = p.qualityFlag
	}

	out := make([]rawCell, 0, len(rows))
	for _, r := range rows {
		alias, ok := byCode[r.MeasurandID]
		if !ok {
			continue
		}
		if r.SensorNo != wantedSensor[alias] {
			continue
		}
		value := r.Value
		if wantsFlag[alias] {
			value = float64(r.QualityFlag)
		}
		out = append(out, rawCell{fmisid: r.FMISID, obstime: r.ObsTimeUTC, alias: alias, value: value, ok: true})
	}
	return out
}

func pivotRowsToCells(rows []authstore.PivotRow, measurandIDs []int, byCode map[int]string) []rawCell {
	var out []rawCell
	for _, r := range rows {
		for i, id := range measurandIDs {
			if i >= len(r.Values) {
				break
			}
			alias, ok := byCode[id]
			if !ok {
				continue
			}
			v, ok := toFloat(r.Values[i])
			out = append(out, rawCell{fmisid: r.FMISID, obstime: r.ObsTime, alias: alias, value: v, ok: ok})
		}
	}
	return out
}

func qcRowsToCells(rows []models.QCRow, byCode map[string]string, params []paramRequest) []rawCell {
	wantsFlag := make(map[string]bool, len(params))
	for _, p := range params {
		wantsFlag[p.alias] = p.qualityFlag
	}

	out := make([]rawCell, 0, len(rows))
	for _, r := range rows {
		alias, ok := byCode[r.ParameterCode]
		if !ok {
			continue
		}
		value := r.Value
		if wantsFlag[alias] {
			value = float64(r.Flag)
		}
		out = append(out, rawCell{fmisid: r.FMISID, obstime: r.ObsTimeUTC, alias: alias, value: value, ok: true})
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}
