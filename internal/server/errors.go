package server

import (
	"encoding/json"
	"net/http"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/errs"
)

// envelope is the /run response shape of : {type, data|error}.
type envelope struct {
	Type string `json:"type"`
	Data interface{} `json:"data,omitempty"`
	Error interface{} `json:"error,omitempty"`
}

// wireErrorBody is the error payload inside an error envelope.
type wireErrorBody struct {
	Code string `json:"code"`
	Message string `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeJSONError writes a *errs.CodedError as the error envelope,
// using its mapped HTTP status.
func writeJSONError(w http.ResponseWriter, ce *errs.CodedError) {
	writeJSON(w, ce.StatusCode, envelope{
		Type: "error",
		Error: wireErrorBody{
			Code: ce.Code,
			Message: ce.Message,
			Details: ce.Details,
		},
	})
}

// writeJSONStatus writes an ad hoc error envelope for routing failures
// (404/405) that don't correspond to one of the closed wire codes in
// error taxonomy.
func writeJSONStatus(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope{Type: "error", Error: wireErrorBody{Code: code, Message: message}})
}

func writeJSONResponse(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Type: "response", Data: data})
}
