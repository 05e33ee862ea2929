package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sensorsight/sensorsight/pkg/predict"
)

// predict serves POST /api/v1/predict: trend fit, forecast, health score and
// RUL for an ad-hoc series.
func (h *Handler) predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req PredictRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPredictBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.ForecastPoints < 0 || req.ForecastPoints > predict.MaxForecastPoints {
		jsonErr(w, http.StatusBadRequest, fmt.Sprintf("forecast_points must be within [0, %d]", predict.MaxForecastPoints))
		return
	}
	scale := float64(predict.DefaultRULScale)
	if req.RULScale != nil {
		if *req.RULScale <= 0 {
			jsonErr(w, http.StatusBadRequest, "rul_scale must be positive")
			return
		}
		scale = *req.RULScale
	}

	jsonResp(w, http.StatusOK, h.runPredict(req, scale))
}

func (h *Handler) runPredict(req PredictRequest, scale float64) PredictResponse {
	series := predict.Series(req.Samples)
	resp := PredictResponse{Forecast: predict.Forecast{}}

	if fit, err := h.fits.Fit(series); err != nil {
		resp.FitError = err.Error()
	} else {
		resp.Fit = &fit
		if fc, err := fit.Extrapolate(series.Last().X, series.Interval(), req.ForecastPoints); err != nil {
			resp.ForecastErr = err.Error()
		} else {
			resp.Forecast = fc
		}
	}

	current, haveCurrent := 0.0, false
	switch {
	case req.Current != nil:
		current, haveCurrent = *req.Current, true
	case len(series) > 0:
		current, haveCurrent = series.Last().Y, true
	}
	if haveCurrent {
		if score, err := predict.HealthScore(current, req.Threshold); err != nil {
			resp.HealthError = err.Error()
		} else {
			resp.HealthScore = &score
			resp.Condition = predict.Condition(score)
		}
	}

	est, err := predict.ProjectRUL(series, req.Threshold, scale)
	if err != nil {
		resp.RUL = predict.RULInsufficientHistory
		resp.RULStatus = predict.RULStatusInsufficientData
		resp.RULError = err.Error()
	} else {
		resp.RUL = est.Steps
		resp.RULStatus = est.Status
	}
	return resp
}
