package api

import (
	"encoding/json"
)

// version is set by the CLI so the API reports the same version
var version = "local-build"

// SetVersion changes what the /version endpoint reports
func SetVersion(v string) {
	version = v
}

// GenericResponse is the body of every error reply
type GenericResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func MustMarshal(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
