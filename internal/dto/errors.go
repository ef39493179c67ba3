package dto

type ErrorResponse struct {
	Code    string `json:"code" example:"no_recording_available"`
	Message string `json:"message" example:"no recording available to download"`
	Details any    `json:"details,omitempty"`
}
