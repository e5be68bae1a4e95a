package opclient_test

import (
	"encoding/json"
	"net/http"
)

func decodeJSON(req *http.Request, v any) error {
	defer func() { _ = req.Body.Close() }()
	return json.NewDecoder(req.Body).Decode(v)
}
