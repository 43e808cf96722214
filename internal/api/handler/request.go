// Package handler implements the HTTP endpoints of the chaos plan API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/harora-WM/chaos-engineering-api/internal/api/response"
	"github.com/harora-WM/chaos-engineering-api/pkg/models"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ConnectionRequest carries per-request OpenSearch credentials.
type ConnectionRequest struct {
	models.OpenSearchConnection
}

func (c *ConnectionRequest) connection() *models.OpenSearchConnection {
	return &c.OpenSearchConnection
}

type connectionCarrier interface {
	connection() *models.OpenSearchConnection
}

// IndexRequest names one index on a cluster.
type IndexRequest struct {
	ConnectionRequest
	Index string `json:"index_name" validate:"required,max=255"`
}

// GenerateRequest asks for a chaos plan. The cluster and model are nested
// under opensearch_config and aws_config. Omitted analysis options take
// their defaults.
type GenerateRequest struct {
	Index            string                      `json:"index_name" validate:"required,max=255"`
	OpenSearchConfig models.OpenSearchConnection `json:"opensearch_config"`
	AWSConfig        models.ModelSelection       `json:"aws_config"`
	Options          models.AnalysisOptions      `json:"analysis_options"`
}

func (g *GenerateRequest) connection() *models.OpenSearchConnection {
	return &g.OpenSearchConfig
}

func newGenerateRequest() *GenerateRequest {
	return &GenerateRequest{Options: models.DefaultAnalysisOptions()}
}

// decodeRequest reads a JSON body into v, fills missing connection fields
// from defaults and validates the result. It writes the error response and
// returns false on failure.
func decodeRequest(w http.ResponseWriter, r *http.Request, v any, defaults models.OpenSearchConnection) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		msg := "Invalid JSON body"
		if strings.HasPrefix(err.Error(), "json: unknown field") {
			msg += ": " + strings.TrimPrefix(err.Error(), "json: ")
		}
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", msg, nil)
		return false
	}

	if c, ok := v.(connectionCarrier); ok {
		applyDefaults(c.connection(), defaults)
	}

	if err := validate.Struct(v); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request", validationDetails(err))
		return false
	}
	return true
}

func applyDefaults(conn *models.OpenSearchConnection, defaults models.OpenSearchConnection) {
	if conn.Endpoint == "" {
		conn.Endpoint = defaults.Endpoint
		if conn.Username == "" && conn.Password == "" {
			conn.Username = defaults.Username
			conn.Password = defaults.Password
		}
	}
}

// validationDetails maps each failing field to a readable message.
func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"request": err.Error()}
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		switch fe.Tag() {
		case "required":
			details[name] = name + " is required"
		case "url":
			details[name] = name + " must be a valid URL"
		case "max":
			details[name] = fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
		default:
			details[name] = fmt.Sprintf("%s failed %s validation", name, fe.Tag())
		}
	}
	return details
}
