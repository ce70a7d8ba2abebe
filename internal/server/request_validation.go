package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/blsq/iaso/pkg/httperr"
)

const maxRequestBody = 4 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names so that messages match the request body
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads a single JSON object into dst and validates it.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return httperr.NewBadRequest("bad json: " + err.Error())
	}
	if dec.More() {
		return httperr.NewBadRequest("bad json: trailing data")
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		if first.Param() != "" {
			return httperr.BadRequestf("%s fails %s=%s", first.Field(), first.Tag(), first.Param())
		}
		return httperr.BadRequestf("%s fails %s", first.Field(), first.Tag())
	}
	return httperr.NewBadRequest("invalid request")
}

func queryInt64(r *http.Request, key string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, httperr.NewBadRequest(key + " must be a positive integer")
	}
	return &v, nil
}

func queryInt64List(r *http.Request, key string) ([]int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	var out []int64
	for part := range strings.SplitSeq(raw, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || v <= 0 {
			return nil, httperr.NewBadRequest(key + " must be a list of positive integers")
		}
		out = append(out, v)
	}
	return out, nil
}

func queryBool(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, httperr.NewBadRequest(key + " must be a boolean")
	}
	return v, nil
}

func pathID(r *http.Request) (int64, error) {
	v, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || v <= 0 {
		return 0, httperr.NewBadRequest("id must be a positive integer")
	}
	return v, nil
}
