package handler

import dErrors "idcapture/pkg/domain-errors"

// ConsentRequest records the biometric consent decision.
type ConsentRequest struct {
	Granted *bool `json:"granted"`
}

func (r *ConsentRequest) Validate() error {
	if r.Granted == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "granted is required")
	}
	return nil
}
