package server

// FallRateRequest is the request body for meter/fall_rate.
type FallRateRequest struct {
	FallRate float64 `json:"fall_rate" validate:"gt=0,lte=100"`
}
